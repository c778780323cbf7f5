package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

// substanceColumns maps row columns to ChemicalSubstance attributes.
var substanceColumns = map[string]string{
	"formula":          "formula",
	"chemical_formula": "formula",
	"name":             "name",
	"substance":        "name",
	"substance_name":   "name",
	"chemical":         "name",
	"chemical_name":    "name",
	"cas":              "cas",
	"cas_number":       "cas",
	"cas_no":           "cas",
	"flash_point":      "flash_point",
	"flashpoint":       "flash_point",
	"boiling_point":    "boiling_point",
	"molar_mass":       "molar_mass",
	"molecular_weight": "molar_mass",
	"concentration":    "concentration",
}

var (
	hazardColumns                = []string{"hazard", "hazards", "hazard_class", "hazard_classes", "ghs", "ghs_class", "ghs_pictograms"}
	containerColumns             = []string{"container", "containers", "container_material", "storage", "storage_container", "compatible_container", "compatible_containers", "compatible_materials"}
	incompatibleContainerColumns = []string{"incompatible_container", "incompatible_containers", "incompatible_materials"}
	incompatibleSubstanceColumns = []string{"incompatible_with", "incompatibilities", "incompatible_substances"}
	reactsColumns                = []string{"reacts_with", "reactive_with"}
	regulationColumns            = []string{"regulation", "regulations", "regulated_by"}
)

var listSplitRe = regexp.MustCompile(`\s*(?:[,;/|]|\band\b|\bor\b)\s*`)

func extractRow(b *builder, fields map[string]common.Value) {
	attrs := map[string]common.Value{}
	for _, col := range sortedKeys(fields) {
		name, ok := substanceColumns[col]
		if !ok {
			continue
		}
		v := fields[col]
		if v.IsZero() {
			continue
		}
		if _, set := attrs[name]; set {
			continue
		}
		switch name {
		case "formula", "name", "cas":
			v = common.StringValue(strings.TrimSpace(v.String()))
		}
		attrs[name] = v
	}
	if len(attrs) == 0 {
		return
	}
	if _, ok := attrs["formula"]; !ok {
		if n, ok := attrs["name"]; ok {
			if f := knownSubstances[strings.ToLower(n.Str)]; f != "" {
				attrs["formula"] = common.StringValue(f)
			}
		}
	}
	natural := ""
	if f, ok := attrs["formula"]; ok {
		natural = subscriptDigits(f.Str)
		attrs["formula"] = common.StringValue(natural)
	} else if n, ok := attrs["name"]; ok {
		natural = "name:" + strings.ToLower(n.Str)
	} else {
		natural = "row"
	}
	subject := b.entity("ChemicalSubstance", natural, attrs, confRow, 0)

	for _, item := range listColumn(fields, hazardColumns) {
		var class string
		if c := ghsClasses[strings.ToUpper(item)]; c != "" {
			class = c
		} else if found := findHazards(item); len(found) > 0 {
			class = found[0]
		} else {
			class = strings.Join(strings.Fields(strings.ToLower(item)), "_")
		}
		b.relate(subject, b.hazard(class, 0, confRow), "HAS_HAZARD", confRow, 0)
	}
	for _, item := range listColumn(fields, containerColumns) {
		b.relate(subject, b.container(materialOf(item), 0, confRow), "IS_COMPATIBLE_WITH", confRow, 0)
	}
	for _, item := range listColumn(fields, incompatibleContainerColumns) {
		b.relate(subject, b.container(materialOf(item), 0, confRow), "IS_INCOMPATIBLE_WITH", confRow, 0)
	}
	for _, item := range listColumn(fields, incompatibleSubstanceColumns) {
		if id := rowSubstance(b, item); id != "" {
			b.relate(subject, id, "IS_INCOMPATIBLE_WITH", confRow, 0)
		}
	}
	for _, item := range listColumn(fields, reactsColumns) {
		if id := rowSubstance(b, item); id != "" {
			b.relate(subject, id, "REACTS_WITH", confRow, 0)
		}
	}
	for _, item := range listColumn(fields, regulationColumns) {
		id := b.entity("Regulation", strings.ToUpper(item), map[string]common.Value{"code": common.StringValue(item)}, confRow, 0)
		b.relate(subject, id, "REGULATED_BY", confRow, 0)
	}
}

// rowSubstance resolves a list item to a substance by formula or known
// name. Free text that is neither is skipped.
func rowSubstance(b *builder, item string) string {
	f := subscriptDigits(item)
	if isFormula(f, false) {
		return b.substance(nameForFormula(f), f, confRow, 0)
	}
	if f, ok := knownSubstances[strings.ToLower(item)]; ok {
		return b.substance(strings.ToLower(item), f, confRow, 0)
	}
	return ""
}

func materialOf(item string) string {
	if m := findMaterials(strings.ToLower(item)); len(m) > 0 {
		return m[0]
	}
	return strings.Join(strings.Fields(strings.ToLower(item)), "_")
}

func listColumn(fields map[string]common.Value, columns []string) []string {
	var out []string
	for _, col := range columns {
		v, ok := fields[col]
		if !ok || v.IsZero() {
			continue
		}
		for _, item := range listSplitRe.Split(v.String(), -1) {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func sortedKeys(m map[string]common.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
