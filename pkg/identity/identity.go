// Package identity computes deterministic identity keys for accepted
// entities so that mentions of the same real-world thing converge on one
// graph node.
package identity

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var ErrUnresolvableIdentity = errors.New("unresolvable identity")

// fallbackKey is used for types the catalog does not know.
const fallbackKey = "name"

type Resolver struct {
	catalog schema.Catalog
}

func NewResolver(catalog schema.Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve builds Type + ":" + the sorted, normalized key attributes of e.
// Every key attribute the catalog declares for the type must be present.
func (r *Resolver) Resolve(e common.CandidateEntity) (common.IdentityKey, error) {
	return Resolve(e, r.catalog)
}

// Resolve is the stateless form of Resolver.Resolve.
func Resolve(e common.CandidateEntity, catalog schema.Catalog) (common.IdentityKey, error) {
	if strings.TrimSpace(e.Type) == "" {
		return "", fmt.Errorf("%w: %s has no type", ErrUnresolvableIdentity, e.LocalID)
	}
	keys := catalog.KeysFor(e.Type)
	if len(keys) == 0 {
		keys = []string{fallbackKey}
	}
	keys = slices.Clone(keys)
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := e.Attributes[k]
		if !ok || v.IsZero() {
			return "", fmt.Errorf("%w: %s %s is missing key attribute %s", ErrUnresolvableIdentity, e.Type, e.LocalID, k)
		}
		n := NormalizeValue(k, v)
		if n == "" {
			return "", fmt.Errorf("%w: %s %s key attribute %s is empty after normalization", ErrUnresolvableIdentity, e.Type, e.LocalID, k)
		}
		parts = append(parts, k+"="+n)
	}
	return common.IdentityKey(e.Type + ":" + strings.Join(parts, "|")), nil
}

// NormalizeValue renders v in the canonical form used inside identity
// keys. Numbers are converted to base units. Chemical formulas keep their
// case since it is significant (Co vs CO); all lower case formulas are
// re-cased against the element symbols first.
func NormalizeValue(attr string, v common.Value) string {
	switch v.Kind {
	case common.KindNumber:
		v = common.NormalizeUnit(v)
		n := strconv.FormatFloat(v.Num, 'f', -1, 64)
		if v.Unit != "" {
			n += " " + v.Unit
		}
		return n
	case common.KindDate:
		return v.Date.Format("2006-01-02")
	case common.KindBool:
		return strconv.FormatBool(v.Bool)
	}

	s := norm.NFKC.String(v.Str)
	if isFormulaAttr(attr) {
		return NormalizeFormula(s)
	}
	return NormalizeText(s)
}

// NormalizeText case folds, trims and collapses whitespace. Underscores
// and hyphens count as whitespace so "acute_toxic" equals "Acute Toxic".
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	s = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeFormula removes separators and whitespace from a chemical
// formula and restores element case when it was written in lower case.
// Subscript digits are folded by NFKC. Lower case input that does not
// split into element symbols is kept folded.
func NormalizeFormula(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '-', r == '_', r == '·', r == '•', r == '⋅':
			return -1
		}
		return r
	}, s)
	recased, _ := recaseFormula(s)
	return recased
}

func isFormulaAttr(attr string) bool {
	return attr == "formula" || strings.HasSuffix(attr, "_formula")
}

// ParseKey reads a key written as Type:attr=value|attr=value, as an
// extractor may reference a node outside its record, and returns the
// canonical key Resolve would build for the same attributes.
func ParseKey(s string, catalog schema.Catalog) (common.IdentityKey, error) {
	typ, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || typ == "" || rest == "" {
		return "", fmt.Errorf("%w: malformed key %q", ErrUnresolvableIdentity, s)
	}
	e := common.CandidateEntity{LocalID: s, Type: typ, Attributes: make(map[string]common.Value)}
	for _, part := range strings.Split(rest, "|") {
		attr, val, ok := strings.Cut(part, "=")
		attr = strings.TrimSpace(attr)
		if !ok || attr == "" {
			return "", fmt.Errorf("%w: malformed key %q", ErrUnresolvableIdentity, s)
		}
		if isFormulaAttr(attr) {
			e.Attributes[attr] = common.StringValue(val)
		} else {
			e.Attributes[attr] = common.ParseValue(val)
		}
	}
	return Resolve(e, catalog)
}
