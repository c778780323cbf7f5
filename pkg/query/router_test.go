package query

import (
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"
)

func TestRoute(t *testing.T) {
	router := NewRouter(schema.DefaultCatalog())

	tests := []struct {
		name     string
		req      common.QueryRequest
		paths    []common.ResultKind
		keys     []common.IdentityKey
		relTypes []string
	}{
		{
			name:     "open question with references goes both ways",
			req:      common.QueryRequest{Question: "What containers are suitable for sulfuric acid?"},
			paths:    []common.ResultKind{common.ResultSemantic, common.ResultGraph},
			keys:     []common.IdentityKey{"ChemicalSubstance:formula=H2SO4"},
			relTypes: []string{"IS_COMPATIBLE_WITH", "IS_INCOMPATIBLE_WITH", "STORED_IN"},
		},
		{
			name:     "formula and compatibility cue",
			req:      common.QueryRequest{Question: "Is H2SO4 compatible with steel?"},
			paths:    []common.ResultKind{common.ResultGraph},
			keys:     []common.IdentityKey{"ChemicalSubstance:formula=H2SO4", "Container:material=steel"},
			relTypes: []string{"IS_COMPATIBLE_WITH", "IS_INCOMPATIBLE_WITH"},
		},
		{
			name:  "open question without references",
			req:   common.QueryRequest{Question: "Why is ventilation important in a laboratory?"},
			paths: []common.ResultKind{common.ResultSemantic},
		},
		{
			name:  "no signal",
			req:   common.QueryRequest{Question: "hello there"},
			paths: []common.ResultKind{common.ResultSemantic, common.ResultGraph},
		},
		{
			name: "explicit filters",
			req: common.QueryRequest{
				Question: "list entries",
				Filters:  map[string]string{"relation": "reacts_with", "key": "Hazard:type=toxic"},
			},
			paths:    []common.ResultKind{common.ResultGraph},
			keys:     []common.IdentityKey{"Hazard:type=toxic"},
			relTypes: []string{"REACTS_WITH"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := router.Route(tt.req)
			if !reflect.DeepEqual(d.Paths(), tt.paths) {
				t.Fatalf("paths = %v, want %v (%s, %.2f)", d.Paths(), tt.paths, d.Reason, d.Confidence)
			}
			if !reflect.DeepEqual(d.Filters.Keys, tt.keys) {
				t.Fatalf("keys = %v, want %v", d.Filters.Keys, tt.keys)
			}
			if !reflect.DeepEqual(d.Filters.RelTypes, tt.relTypes) {
				t.Fatalf("rel types = %v, want %v", d.Filters.RelTypes, tt.relTypes)
			}
		})
	}
}

func TestRouteCASNumber(t *testing.T) {
	d := NewRouter(schema.DefaultCatalog()).Route(common.QueryRequest{Question: "Hazards of 7664-93-9"})
	if !d.Graph {
		t.Fatalf("expected graph path, got %+v", d)
	}
	found := false
	for _, term := range d.Filters.Terms {
		if term == "7664-93-9" {
			found = true
		}
	}
	if !found {
		t.Fatalf("terms = %v", d.Filters.Terms)
	}
}
