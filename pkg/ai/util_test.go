package ai

import (
	"reflect"
	"testing"
)

type extraction struct {
	Entities []struct {
		ID         string  `json:"id"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
	Relationships []struct {
		Source string `json:"source"`
		Target string `json:"target"`
		Type   string `json:"type"`
	} `json:"relationships"`
}

func summary(x extraction) []string {
	var out []string
	for _, e := range x.Entities {
		out = append(out, e.ID+":"+e.Type)
	}
	for _, r := range x.Relationships {
		out = append(out, r.Source+"-"+r.Type+"->"+r.Target)
	}
	return out
}

func TestUnmarshalFlexible(t *testing.T) {
	want := []string{"s:ChemicalSubstance", "h:Hazard", "s-HAS_HAZARD->h"}
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "valid json",
			input: `{"entities":[{"id":"s","type":"ChemicalSubstance"},{"id":"h","type":"Hazard"}],"relationships":[{"source":"s","target":"h","type":"HAS_HAZARD"}]}`,
		},
		{
			name:  "code fence",
			input: "```json\n{\"entities\":[{\"id\":\"s\",\"type\":\"ChemicalSubstance\"},{\"id\":\"h\",\"type\":\"Hazard\"}],\"relationships\":[{\"source\":\"s\",\"target\":\"h\",\"type\":\"HAS_HAZARD\"}]}\n```",
		},
		{
			name:  "unquoted keys and single quotes",
			input: `{entities: [{id: 's', type: 'ChemicalSubstance'}, {id: 'h', type: 'Hazard'}], relationships: [{source: 's', target: 'h', type: 'HAS_HAZARD'}]}`,
		},
		{
			name:  "trailing commas",
			input: `{"entities":[{"id":"s","type":"ChemicalSubstance",},{"id":"h","type":"Hazard"},],"relationships":[{"source":"s","target":"h","type":"HAS_HAZARD"},],}`,
		},
		{
			name:  "cut off answer",
			input: `{"entities":[{"id":"s","type":"ChemicalSubstance"},{"id":"h","type":"Hazard"}],"relationships":[{"source":"s","target":"h","type":"HAS_HAZARD"`,
		},
		{
			name:  "string encoded",
			input: `"{\"entities\":[{\"id\":\"s\",\"type\":\"ChemicalSubstance\"},{\"id\":\"h\",\"type\":\"Hazard\"}],\"relationships\":[{\"source\":\"s\",\"target\":\"h\",\"type\":\"HAS_HAZARD\"}]}"`,
		},
		{
			name:  "string encoded with newlines",
			input: `"{\n  \"entities\": [{\"id\": \"s\", \"type\": \"ChemicalSubstance\"}, {\"id\": \"h\", \"type\": \"Hazard\"}],\n  \"relationships\": [{\"source\": \"s\", \"target\": \"h\", \"type\": \"HAS_HAZARD\"}]\n}\n"`,
		},
		{
			name:  "repeated opening brace",
			input: "{\n{\n  \"entities\": [{\"id\": \"s\", \"type\": \"ChemicalSubstance\"}, {\"id\": \"h\", \"type\": \"Hazard\"}],\n  \"relationships\": [{\"source\": \"s\", \"target\": \"h\", \"type\": \"HAS_HAZARD\"}]\n}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got extraction
			if err := UnmarshalFlexible(tt.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if s := summary(got); !reflect.DeepEqual(s, want) {
				t.Fatalf("UnmarshalFlexible() = %v, want %v", s, want)
			}
		})
	}
}

func TestUnmarshalFlexibleArray(t *testing.T) {
	type hazard struct {
		Type string `json:"type"`
		Code string `json:"ghs_code,omitempty"`
	}
	var got []hazard
	if err := UnmarshalFlexible(`[{type:'corrosive', ghs_code:'GHS05'},{type:'flammable',}]`, &got); err != nil {
		t.Fatal(err)
	}
	want := []hazard{{Type: "corrosive", Code: "GHS05"}, {Type: "flammable"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestUnmarshalFlexibleUnrecoverable(t *testing.T) {
	var got extraction
	if err := UnmarshalFlexible("I could not find any chemical facts.", &got); err == nil {
		t.Fatal("expected error for prose answer")
	}
}

func TestUnfence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  {\"a\":1}  ", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1]\n```", `[1]`},
		{"```{\"a\":1}```", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := unfence(tt.in); got != tt.want {
			t.Errorf("unfence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
