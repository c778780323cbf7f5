package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// GenerateSchema reflects a JSON Schema for the type of value, used as the
// structured output format of extraction and answer calls.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflector.Reflect(reflect.New(t).Interface())
}

// UnmarshalFlexible decodes model output into out. Besides plain JSON it
// accepts a markdown code fence around the payload, a JSON document
// encoded as a string and syntax jsonrepair can fix, such as unquoted
// keys, trailing commas or a missing closing bracket.
func UnmarshalFlexible(input string, out any) error {
	input = unfence(input)
	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var inner string
	if err := json.Unmarshal([]byte(input), &inner); err == nil {
		inner = unfence(inner)
		if err := json.Unmarshal([]byte(inner), out); err == nil {
			return nil
		}
		input = inner
	}

	input = dropRepeatedBrace(input)
	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("repair model output: %w (input: %s)", err, input)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("decode repaired model output: %w (repaired: %s)", err, repaired)
	}
	return nil
}

// unfence trims whitespace and a surrounding ``` or ```json fence.
func unfence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// dropRepeatedBrace removes the first of two opening braces, a slip some
// local models make when they restart an answer.
func dropRepeatedBrace(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "{"); ok {
		if rest = strings.TrimSpace(rest); strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}
