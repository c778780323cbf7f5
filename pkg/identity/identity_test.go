package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"
)

func substance(formula string) common.CandidateEntity {
	return common.CandidateEntity{
		LocalID:    "e1",
		Type:       "ChemicalSubstance",
		Attributes: map[string]common.Value{"formula": common.StringValue(formula)},
	}
}

func TestResolveConverges(t *testing.T) {
	r := NewResolver(schema.DefaultCatalog())

	tests := []struct {
		name string
		a, b common.CandidateEntity
	}{
		{"subscript digits", substance("H₂SO₄"), substance("H2SO4")},
		{"whitespace and separators", substance(" H2 SO4 "), substance("H2-SO4")},
		{"lower case formula", substance("h2so4"), substance("H2SO4")},
		{"lower case salt", substance("nacl"), substance("NaCl")},
		{
			"hazard case and underscores",
			common.CandidateEntity{Type: "Hazard", Attributes: map[string]common.Value{"type": common.StringValue("Acute Toxic")}},
			common.CandidateEntity{Type: "Hazard", Attributes: map[string]common.Value{"type": common.EnumValue("acute_toxic")}},
		},
		{
			"container material",
			common.CandidateEntity{Type: "Container", Attributes: map[string]common.Value{"material": common.StringValue("  Steel ")}},
			common.CandidateEntity{Type: "Container", Attributes: map[string]common.Value{"material": common.StringValue("STEEL")}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, err := r.Resolve(tt.a)
			if err != nil {
				t.Fatal(err)
			}
			kb, err := r.Resolve(tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if ka != kb {
				t.Fatalf("keys differ: %q vs %q", ka, kb)
			}
		})
	}
}

func TestResolveKeyShape(t *testing.T) {
	r := NewResolver(schema.DefaultCatalog())
	key, err := r.Resolve(substance("H2SO4"))
	if err != nil {
		t.Fatal(err)
	}
	if key != "ChemicalSubstance:formula=H2SO4" {
		t.Fatalf("key = %q", key)
	}
	if key.Type() != "ChemicalSubstance" {
		t.Fatalf("type = %q", key.Type())
	}

	co, _ := r.Resolve(substance("CO"))
	cobalt, _ := r.Resolve(substance("Co"))
	if co == cobalt {
		t.Fatal("formula case must be preserved")
	}
}

func TestResolveUnits(t *testing.T) {
	def := schema.Definition{Version: 1, Entities: []schema.TypeSpec{{Name: "Sample", Keys: []string{"mass", "label"}}}}
	cat, err := schema.NewStaticCatalog(def)
	if err != nil {
		t.Fatal(err)
	}
	mk := func(mass common.Value) common.CandidateEntity {
		return common.CandidateEntity{Type: "Sample", Attributes: map[string]common.Value{
			"mass":  mass,
			"label": common.StringValue("A"),
		}}
	}
	ka, err := Resolve(mk(common.NumberValue(1, "kg")), cat)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := Resolve(mk(common.NumberValue(1000, "g")), cat)
	if err != nil {
		t.Fatal(err)
	}
	if ka != kb || ka != "Sample:label=a|mass=1000 g" {
		t.Fatalf("keys = %q, %q", ka, kb)
	}
}

func TestResolveMissingKey(t *testing.T) {
	r := NewResolver(schema.DefaultCatalog())
	tests := []common.CandidateEntity{
		{LocalID: "e1", Type: "ChemicalSubstance", Attributes: map[string]common.Value{"name": common.StringValue("acid")}},
		{LocalID: "e2", Type: "ChemicalSubstance", Attributes: map[string]common.Value{"formula": common.StringValue("  ")}},
		{LocalID: "e3", Type: "Gizmo"},
		{LocalID: "e4"},
	}
	for _, e := range tests {
		t.Run(e.LocalID, func(t *testing.T) {
			if _, err := r.Resolve(e); !errors.Is(err, ErrUnresolvableIdentity) {
				t.Fatalf("err = %v, want ErrUnresolvableIdentity", err)
			}
		})
	}
}

func TestResolveUnknownTypeUsesName(t *testing.T) {
	r := NewResolver(schema.DefaultCatalog())
	key, err := r.Resolve(common.CandidateEntity{Type: "Gizmo", Attributes: map[string]common.Value{"name": common.StringValue("Fume  Hood")}})
	if err != nil {
		t.Fatal(err)
	}
	if key != "Gizmo:name=fume hood" {
		t.Fatalf("key = %q", key)
	}
}

func TestMemoryReviewQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryReviewQueue()
	for _, id := range []string{"a", "b", "c"} {
		item := common.ReviewItem{RecordID: id, Reason: "missing formula", QueuedAt: time.Unix(0, 0)}
		if err := q.EnqueueReview(ctx, item); err != nil {
			t.Fatal(err)
		}
	}
	items, err := q.ListReview(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].RecordID != "c" || items[1].RecordID != "b" {
		t.Fatalf("items = %+v", items)
	}
	all, _ := q.ListReview(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
}

func TestRecaseFormula(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"h2so4", "H2SO4", true},
		{"nacl", "NaCl", true},
		{"co2", "CO2", true},
		{"caco3", "CaCO3", true},
		{"kmno4", "KMnO4", true},
		{"fe2o3", "Fe2O3", true},
		{"cuso4", "CuSO4", true},
		{"sio2", "SiO2", true},
		{"Co", "Co", true},
		{"CO", "CO", true},
		{"NaCl", "NaCl", true},
		{"xq", "xq", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := recaseFormula(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("recaseFormula(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	cat := schema.DefaultCatalog()
	tests := []struct {
		in      string
		want    common.IdentityKey
		wantErr bool
	}{
		{in: "Container:material=steel", want: "Container:material=steel"},
		{in: " Container:material=Steel ", want: "Container:material=steel"},
		{in: "ChemicalSubstance:formula=h2so4", want: "ChemicalSubstance:formula=H2SO4"},
		{in: "Hazard:type=Acute_Toxic", want: "Hazard:type=acute toxic"},
		{in: "Container", wantErr: true},
		{in: "Container:steel", wantErr: true},
		{in: "Container:name=drum", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKey(tt.in, cat)
			if tt.wantErr {
				if !errors.Is(err, ErrUnresolvableIdentity) {
					t.Fatalf("err = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("ParseKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
