package schema

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

func entity(id, typ string, attrs map[string]common.Value) common.CandidateEntity {
	return common.CandidateEntity{LocalID: id, Type: typ, Attributes: attrs, Confidence: 0.9}
}

func TestValidateEntity(t *testing.T) {
	cat := DefaultCatalog()

	tests := []struct {
		name       string
		entity     common.CandidateEntity
		status     common.VerdictStatus
		violations []string
	}{
		{
			name: "valid substance",
			entity: entity("e1", "ChemicalSubstance", map[string]common.Value{
				"formula": common.StringValue("H2SO4"),
				"cas":     common.StringValue("7664-93-9"),
			}),
			status: common.VerdictAccepted,
		},
		{
			name: "all violations are listed",
			entity: entity("e1", "ChemicalSubstance", map[string]common.Value{
				"cas": common.StringValue("bad"),
			}),
			status: common.VerdictRejected,
			violations: []string{
				"required: formula is missing",
				`pattern: cas "bad" does not match ^[0-9]{2,7}-[0-9]{2}-[0-9]$`,
			},
		},
		{
			name:       "unknown type is warned",
			entity:     entity("g", "Gizmo", map[string]common.Value{"name": common.StringValue("x")}),
			status:     common.VerdictWarned,
			violations: []string{`type: unknown entity type "Gizmo"`},
		},
		{
			name:   "enum ignores case",
			entity: entity("h", "Hazard", map[string]common.Value{"type": common.StringValue("Corrosive")}),
			status: common.VerdictAccepted,
		},
		{
			name:       "enum miss is soft",
			entity:     entity("h", "Hazard", map[string]common.Value{"type": common.StringValue("sticky")}),
			status:     common.VerdictWarned,
			violations: []string{`enum: type "sticky" not in [corrosive, flammable, toxic, acute_toxic, oxidizing, explosive, irritant, carcinogenic, environmental, compressed_gas, reactive, health_hazard]`},
		},
		{
			name: "range converts units",
			entity: entity("e1", "ChemicalSubstance", map[string]common.Value{
				"formula":     common.StringValue("C2H6O"),
				"flash_point": common.NumberValue(55, "°F"),
			}),
			status: common.VerdictAccepted,
		},
		{
			name: "range outside after conversion",
			entity: entity("e1", "ChemicalSubstance", map[string]common.Value{
				"formula":     common.StringValue("C2H6O"),
				"flash_point": common.NumberValue(2000, "°F"),
			}),
			status:     common.VerdictWarned,
			violations: []string{"range: flash_point 2000 °F outside [-200, 1000] °C"},
		},
		{
			name: "incompatible unit",
			entity: entity("e1", "ChemicalSubstance", map[string]common.Value{
				"formula":     common.StringValue("C2H6O"),
				"flash_point": common.NumberValue(20, "kg"),
			}),
			status:     common.VerdictWarned,
			violations: []string{`range: flash_point unit "kg" incompatible with "°C"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValidateEntity(tt.entity, cat)
			if v.Status != tt.status {
				t.Fatalf("status = %s, want %s (violations %v)", v.Status, tt.status, v.Violations)
			}
			if !reflect.DeepEqual(v.Violations, tt.violations) {
				t.Fatalf("violations = %#v, want %#v", v.Violations, tt.violations)
			}
			if v.CatalogVersion != 1 {
				t.Fatalf("catalog version = %d, want 1", v.CatalogVersion)
			}
		})
	}
}

func TestValidateRelationship(t *testing.T) {
	cat := DefaultCatalog()
	rel := common.CandidateRelationship{SourceLocalID: "e1", TargetLocalID: "e2", Type: "HAS_HAZARD", Confidence: 0.8}
	accepted := func(id, typ string) Endpoint {
		return Endpoint{ID: id, Type: typ, Status: common.VerdictAccepted}
	}

	tests := []struct {
		name       string
		source     Endpoint
		target     Endpoint
		status     common.VerdictStatus
		violations []string
	}{
		{
			name:   "valid",
			source: accepted("e1", "ChemicalSubstance"),
			target: accepted("e2", "Hazard"),
			status: common.VerdictAccepted,
		},
		{
			name:       "rejected endpoint cascades",
			source:     Endpoint{ID: "e1", Type: "ChemicalSubstance", Status: common.VerdictRejected},
			target:     accepted("e2", "Hazard"),
			status:     common.VerdictRejected,
			violations: []string{"endpoint e1 rejected"},
		},
		{
			name:       "unresolved endpoint",
			source:     accepted("e1", "ChemicalSubstance"),
			target:     Endpoint{ID: "e2", Type: "Hazard", Status: common.VerdictAccepted, Unresolved: true},
			status:     common.VerdictRejected,
			violations: []string{"endpoint e2 unresolved"},
		},
		{
			name:       "missing endpoint",
			source:     accepted("e1", "ChemicalSubstance"),
			target:     Endpoint{ID: "e2", Type: "Hazard"},
			status:     common.VerdictRejected,
			violations: []string{"endpoint e2 missing"},
		},
		{
			name:   "preexisting endpoint",
			source: accepted("e1", "ChemicalSubstance"),
			target: Endpoint{ID: "e2", Type: "Hazard", Preexisting: true},
			status: common.VerdictAccepted,
		},
		{
			name:       "wrong endpoint type",
			source:     accepted("e1", "ChemicalSubstance"),
			target:     accepted("e2", "Container"),
			status:     common.VerdictRejected,
			violations: []string{"endpoints: target type Container not allowed for HAS_HAZARD"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValidateRelationship(rel, tt.source, tt.target, cat)
			if v.Status != tt.status {
				t.Fatalf("status = %s, want %s (violations %v)", v.Status, tt.status, v.Violations)
			}
			if !reflect.DeepEqual(v.Violations, tt.violations) {
				t.Fatalf("violations = %#v, want %#v", v.Violations, tt.violations)
			}
			if v.SubjectID != "e1-[HAS_HAZARD]->e2" {
				t.Fatalf("subject = %s", v.SubjectID)
			}
		})
	}
}

func TestNewStaticCatalogRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"no keys", Definition{Entities: []TypeSpec{{Name: "A"}}}},
		{"duplicate", Definition{Entities: []TypeSpec{{Name: "A", Keys: []string{"x"}}, {Name: "A", Keys: []string{"x"}}}}},
		{"bad pattern", Definition{Entities: []TypeSpec{{Name: "A", Keys: []string{"x"}, Constraints: []Constraint{{Kind: KindPattern, Attribute: "x", Pattern: "("}}}}}},
		{"unknown kind", Definition{Entities: []TypeSpec{{Name: "A", Keys: []string{"x"}, Constraints: []Constraint{{Kind: "shape", Attribute: "x"}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStaticCatalog(tt.def); !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("err = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestReloadableCatalogSwap(t *testing.T) {
	cat := NewReloadableCatalog(DefaultCatalog())
	pinned := Snapshot(cat)

	v, err := cat.Swap(Definition{Version: 1, Entities: []TypeSpec{{Name: "Thing", Keys: []string{"name"}}}})
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 || cat.Version() != 2 {
		t.Fatalf("version = %d/%d, want 2", v, cat.Version())
	}
	if !cat.HasType("Thing") || cat.HasType("Hazard") {
		t.Fatal("swap did not replace the type set")
	}
	if pinned.Version() != 1 || !pinned.HasType("Hazard") {
		t.Fatal("snapshot changed after swap")
	}

	if _, err := cat.Swap(Definition{Entities: []TypeSpec{{Name: "Broken"}}}); err == nil {
		t.Fatal("expected error for invalid definition")
	}
	if cat.Version() != 2 {
		t.Fatalf("failed swap changed version to %d", cat.Version())
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	doc := "version: 1\nentities:\n  - name: Thing\n    keys: [name]\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cat := NewReloadableCatalog(DefaultCatalog())
	w := NewWatcher(path, cat, 0)

	changed, err := w.Reload()
	if err != nil || !changed {
		t.Fatalf("first reload = %v, %v", changed, err)
	}
	if !cat.HasType("Thing") {
		t.Fatal("catalog not swapped")
	}
	changed, err = w.Reload()
	if err != nil || changed {
		t.Fatalf("unchanged reload = %v, %v", changed, err)
	}

	if err := os.WriteFile(path, []byte("entities: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Reload(); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("err = %v, want ErrInvalidCatalog", err)
	}
	if cat.Version() != 2 || !cat.HasType("Thing") {
		t.Fatal("invalid file replaced the catalog")
	}
}
