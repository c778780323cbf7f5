package extract

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/OFFIS-RIT/hazgraph/pkg/ai"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"
)

func label(e common.CandidateEntity) string {
	for _, k := range []string{"formula", "type", "material", "code", "name"} {
		if v, ok := e.Attributes[k]; ok {
			return e.Type + ":" + v.String()
		}
	}
	return e.Type + ":?"
}

func triples(res Result) []string {
	byID := map[string]common.CandidateEntity{}
	for _, e := range res.Entities {
		byID[e.LocalID] = e
	}
	var out []string
	for _, r := range res.Relationships {
		out = append(out, label(byID[r.SourceLocalID])+" -"+r.Type+"-> "+label(byID[r.TargetLocalID]))
	}
	sort.Strings(out)
	return out
}

func docRecord(text string) common.CanonicalRecord {
	return common.CanonicalRecord{ID: "rec1", SourceType: common.SourceTypeDocument, SourceName: "sds.txt", Text: text}
}

func TestRuleExtractorText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "sulfuric acid",
			text: "Sulfuric acid (H2SO4) is corrosive. It may be stored in steel containers.",
			want: []string{
				"ChemicalSubstance:H2SO4 -HAS_HAZARD-> Hazard:corrosive",
				"ChemicalSubstance:H2SO4 -IS_COMPATIBLE_WITH-> Container:steel",
			},
		},
		{
			name: "polarity per clause and reactivity",
			text: "Do not store sulfuric acid in aluminium containers; glass is suitable. Sulfuric acid reacts violently with water.",
			want: []string{
				"ChemicalSubstance:H2SO4 -HAS_HAZARD-> Hazard:reactive",
				"ChemicalSubstance:H2SO4 -IS_COMPATIBLE_WITH-> Container:glass",
				"ChemicalSubstance:H2SO4 -IS_INCOMPATIBLE_WITH-> Container:aluminum",
				"ChemicalSubstance:H2SO4 -REACTS_WITH-> ChemicalSubstance:H2O",
			},
		},
		{
			name: "negated hazard",
			text: "Water (H2O) is not flammable.",
			want: nil,
		},
		{
			name: "ghs code",
			text: "Hydrochloric acid carries pictogram GHS05.",
			want: []string{"ChemicalSubstance:HCl -HAS_HAZARD-> Hazard:corrosive"},
		},
		{
			name: "no substance",
			text: "Keep the area ventilated. Flammable liquids must be stored in steel cabinets.",
			want: nil,
		},
	}

	x := NewRuleExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := x.Extract(context.Background(), docRecord(tt.text))
			if err != nil {
				t.Fatal(err)
			}
			if got := triples(res); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("triples = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRuleExtractorSubstanceAttributes(t *testing.T) {
	res, err := NewRuleExtractor().Extract(context.Background(),
		docRecord("Ethanol (C2H5OH) has a flash point of 13 °C and CAS 64-17-5."))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entities) != 1 {
		t.Fatalf("entities = %+v", res.Entities)
	}
	e := res.Entities[0]
	want := map[string]common.Value{
		"formula":     common.StringValue("C2H5OH"),
		"name":        common.StringValue("Ethanol"),
		"cas":         common.StringValue("64-17-5"),
		"flash_point": common.NumberValue(13, "°C"),
	}
	if !reflect.DeepEqual(e.Attributes, want) {
		t.Fatalf("attributes = %#v", e.Attributes)
	}
	if e.Confidence != confNamed || !strings.HasPrefix(e.Provenance, "rec1@") {
		t.Fatalf("confidence %v provenance %q", e.Confidence, e.Provenance)
	}
}

func TestRuleExtractorRow(t *testing.T) {
	rec := common.CanonicalRecord{
		ID:         "row1",
		SourceType: common.SourceTypeRow,
		Fields: map[string]common.Value{
			"name":              common.StringValue("Sulfuric acid"),
			"hazard":            common.StringValue("Corrosive; GHS05"),
			"container":         common.StringValue("steel, glass"),
			"incompatible_with": common.StringValue("water"),
			"flash_point":       common.StringValue(""),
		},
	}
	res, err := NewRuleExtractor().Extract(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"ChemicalSubstance:H2SO4 -HAS_HAZARD-> Hazard:corrosive",
		"ChemicalSubstance:H2SO4 -IS_COMPATIBLE_WITH-> Container:glass",
		"ChemicalSubstance:H2SO4 -IS_COMPATIBLE_WITH-> Container:steel",
		"ChemicalSubstance:H2SO4 -IS_INCOMPATIBLE_WITH-> ChemicalSubstance:H2O",
	}
	if got := triples(res); !reflect.DeepEqual(got, want) {
		t.Fatalf("triples = %#v", got)
	}
	if _, ok := res.Entities[0].Attributes["flash_point"]; ok {
		t.Fatal("empty cell became an attribute")
	}
}

func TestIsFormula(t *testing.T) {
	tests := []struct {
		in     string
		strict bool
		want   bool
	}{
		{"H2SO4", true, true},
		{"HCl", true, true},
		{"NaOH", true, true},
		{"Ca(OH)2", true, true},
		{"GHS05", true, false},
		{"UN1830", true, false},
		{"PVC", true, false},
		{"In", true, false},
		{"HF", true, false},
		{"HF", false, true},
		{"steel", false, false},
	}
	for _, tt := range tests {
		if got := isFormula(tt.in, tt.strict); got != tt.want {
			t.Errorf("isFormula(%q, %v) = %v, want %v", tt.in, tt.strict, got, tt.want)
		}
	}
}

func TestClampConfidence(t *testing.T) {
	res := Clamp(Result{
		Entities:      []common.CandidateEntity{{Confidence: 1.5}, {Confidence: -0.2}, {Confidence: 0.5}},
		Relationships: []common.CandidateRelationship{{Confidence: 1}},
	})
	got := []float64{res.Entities[0].Confidence, res.Entities[1].Confidence, res.Entities[2].Confidence, res.Relationships[0].Confidence}
	want := []float64{0.99, 0, 0.5, 0.99}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("confidences = %v, want %v", got, want)
	}
}

func TestIsolated(t *testing.T) {
	failing := ExtractorFunc(func(context.Context, common.CanonicalRecord) (Result, error) {
		return Result{Entities: []common.CandidateEntity{{LocalID: "e1"}}}, errors.New("model offline")
	})
	panicking := ExtractorFunc(func(context.Context, common.CanonicalRecord) (Result, error) {
		panic("boom")
	})
	for name, x := range map[string]Extractor{"error": failing, "panic": panicking} {
		t.Run(name, func(t *testing.T) {
			res, err := Isolated(x).Extract(context.Background(), docRecord("text"))
			if !errors.Is(err, ErrExtractionDegraded) {
				t.Fatalf("err = %v", err)
			}
			if !res.Empty() {
				t.Fatalf("result = %+v, want empty", res)
			}
		})
	}
}

func TestChain(t *testing.T) {
	ok := ExtractorFunc(func(context.Context, common.CanonicalRecord) (Result, error) {
		return Result{
			Entities:      []common.CandidateEntity{{LocalID: "e1"}, {LocalID: "e2"}},
			Relationships: []common.CandidateRelationship{{SourceLocalID: "e1", TargetLocalID: "e2", Type: "HAS_HAZARD", Confidence: 2}},
		}, nil
	})
	bad := ExtractorFunc(func(context.Context, common.CanonicalRecord) (Result, error) {
		return Result{}, errors.New("down")
	})

	res, err := Chain{ok, bad}.Extract(context.Background(), docRecord("x"))
	if !errors.Is(err, ErrExtractionDegraded) {
		t.Fatalf("err = %v", err)
	}
	rel := res.Relationships[0]
	if res.Entities[0].LocalID != "x0.e1" || rel.SourceLocalID != "x0.e1" || rel.TargetLocalID != "x0.e2" {
		t.Fatalf("ids not prefixed: %+v", res)
	}
	if rel.Confidence != MaxConfidence {
		t.Fatalf("confidence = %v", rel.Confidence)
	}

	if _, err := (Chain{bad, bad}).Extract(context.Background(), docRecord("x")); err == nil {
		t.Fatal("expected error when all extractors fail")
	}
}

func TestChainMemberPanics(t *testing.T) {
	panicking := ExtractorFunc(func(context.Context, common.CanonicalRecord) (Result, error) {
		panic("nil map")
	})
	rec := docRecord("Sulfuric acid (H2SO4) is corrosive.")

	res, err := Isolated(Chain{NewRuleExtractor(), panicking}).Extract(context.Background(), rec)
	if !errors.Is(err, ErrExtractionDegraded) {
		t.Fatalf("err = %v", err)
	}
	if got := triples(res); !reflect.DeepEqual(got, []string{"ChemicalSubstance:H2SO4 -HAS_HAZARD-> Hazard:corrosive"}) {
		t.Fatalf("triples = %v", got)
	}

	if _, err := (Chain{panicking}).Extract(context.Background(), rec); !strings.Contains(fmt.Sprint(err), "panic") {
		t.Fatalf("single member err = %v", err)
	}
}

func TestSingleMemberChainClamps(t *testing.T) {
	certain := ExtractorFunc(func(context.Context, common.CanonicalRecord) (Result, error) {
		return Result{Entities: []common.CandidateEntity{{
			LocalID:    "e1",
			Type:       "ChemicalSubstance",
			Attributes: map[string]common.Value{"formula": common.StringValue("NaCl")},
			Confidence: 1,
		}}}, nil
	})
	res, err := Chain{certain}.Extract(context.Background(), docRecord("x"))
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Entities[0].Confidence; got != MaxConfidence {
		t.Fatalf("confidence = %v, want %v", got, MaxConfidence)
	}
}

type fakeAI struct {
	response string
	prompt   string
}

func (f *fakeAI) GenerateCompletion(context.Context, string, ...ai.GenerateOption) (string, error) {
	return f.response, nil
}

func (f *fakeAI) GenerateCompletionWithFormat(_ context.Context, _, _ string, prompt string, out any, _ ...ai.GenerateOption) error {
	f.prompt = prompt
	return ai.UnmarshalFlexible(f.response, out)
}

func (f *fakeAI) GenerateChat(context.Context, []ai.ChatMessage, ...ai.GenerateOption) (string, error) {
	return f.response, nil
}

func (f *fakeAI) GenerateEmbedding(context.Context, []byte) ([]float32, error) { return nil, nil }

func (f *fakeAI) GenerateEmbeddings(context.Context, [][]byte) ([][]float32, error) { return nil, nil }

func (f *fakeAI) LoadModel(context.Context, ...ai.GenerateOption) error { return nil }

func (f *fakeAI) ResetMetrics() {}

func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestLLMExtractor(t *testing.T) {
	client := &fakeAI{response: `{
		"entities": [
			{"id": "s", "type": "ChemicalSubstance", "attributes": [{"name": "formula", "value": "H2SO4"}, {"name": "boiling_point", "value": "337 °C"}], "confidence": 1.2},
			{"id": "h", "type": "Hazard", "attributes": [{"name": "type", "value": "corrosive"}], "confidence": 0.8}
		],
		"relationships": [{"source": "s", "target": "h", "type": "has_hazard", "confidence": 0.7}]
	}`}
	x := NewLLMExtractor(LLMExtractorParams{Client: client, Catalog: schema.DefaultCatalog()})

	res, err := x.Extract(context.Background(), docRecord("Sulfuric acid is corrosive."))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(client.prompt, "ChemicalSubstance") || !strings.Contains(client.prompt, "IS_COMPATIBLE_WITH") {
		t.Fatal("prompt does not list catalog types")
	}
	s := res.Entities[0]
	if s.Confidence != MaxConfidence {
		t.Fatalf("confidence = %v", s.Confidence)
	}
	if !reflect.DeepEqual(s.Attributes["boiling_point"], common.NumberValue(337, "°C")) {
		t.Fatalf("boiling_point = %#v", s.Attributes["boiling_point"])
	}
	if got := triples(res); !reflect.DeepEqual(got, []string{"ChemicalSubstance:H2SO4 -HAS_HAZARD-> Hazard:corrosive"}) {
		t.Fatalf("triples = %v", got)
	}
}

func TestLLMExtractorKeyEndpoints(t *testing.T) {
	client := &fakeAI{response: `{
		"entities": [{"id": "s", "type": "ChemicalSubstance", "attributes": [{"name": "formula", "value": "NaCl"}], "confidence": 0.9}],
		"relationships": [
			{"source": "s", "target": "Container:material=steel", "type": "IS_COMPATIBLE_WITH", "confidence": 0.8},
			{"source": "s", "target": "ghost", "type": "HAS_HAZARD", "confidence": 0.8}
		]
	}`}
	x := NewLLMExtractor(LLMExtractorParams{Client: client, Catalog: schema.DefaultCatalog()})
	res, err := x.Extract(context.Background(), docRecord("Sodium chloride may be stored in steel."))
	if err != nil {
		t.Fatal(err)
	}
	want := []common.CandidateRelationship{
		{SourceLocalID: "s", TargetKey: "Container:material=steel", Type: "IS_COMPATIBLE_WITH", Confidence: 0.8, Provenance: "rec1@llm"},
		{SourceLocalID: "s", TargetLocalID: "ghost", Type: "HAS_HAZARD", Confidence: 0.8, Provenance: "rec1@llm"},
	}
	if !reflect.DeepEqual(res.Relationships, want) {
		t.Fatalf("relationships = %+v", res.Relationships)
	}
	if got := res.Relationships[0].SubjectID(); got != "s-[IS_COMPATIBLE_WITH]->Container:material=steel" {
		t.Fatalf("subject = %q", got)
	}
}

func TestLLMExtractorTruncatesOnRuneBoundary(t *testing.T) {
	client := &fakeAI{response: `{"entities": [], "relationships": []}`}
	// "°" is two bytes; a cut after 5 bytes would split it.
	x := NewLLMExtractor(LLMExtractorParams{Client: client, Catalog: schema.DefaultCatalog(), MaxChars: 5})
	if _, err := x.Extract(context.Background(), docRecord("bp 3°C and more")); err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(client.prompt) {
		t.Fatal("prompt contains a split rune")
	}
	if !strings.HasSuffix(client.prompt, "\nbp 3\n") {
		t.Fatalf("prompt does not end with the truncated text: %q", client.prompt)
	}

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"bp 3°C", 5, "bp 3"},
		{"bp 3°C", 6, "bp 3°"},
		{"°", 1, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestMentions(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"What containers are suitable for sulfuric acid?", []string{"ChemicalSubstance:H2SO4"}},
		{"Is H2SO4 corrosive to stainless steel?", []string{"ChemicalSubstance:H2SO4", "Container:stainless_steel", "Hazard:corrosive"}},
		{"Which substances are flammable?", []string{"Hazard:flammable"}},
		{"How do I clean a spill?", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var got []string
			for _, e := range Mentions(tt.text) {
				got = append(got, label(e))
			}
			sort.Strings(got)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
