package schema

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

type ConstraintKind string

const (
	KindRequired  ConstraintKind = "required"
	KindRange     ConstraintKind = "range"
	KindPattern   ConstraintKind = "pattern"
	KindEnum      ConstraintKind = "enum"
	KindEndpoints ConstraintKind = "endpoints"
)

type Severity string

const (
	SeverityHard Severity = "hard"
	SeveritySoft Severity = "soft"
)

// Constraint is one rule from the catalog. Which fields matter depends on
// Kind: Attribute for attribute rules, Min/Max/Unit for range, Pattern,
// Values for enum and Source/Target for relationship endpoints.
type Constraint struct {
	Kind      ConstraintKind `yaml:"kind" json:"kind"`
	Attribute string         `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Min       *float64       `yaml:"min,omitempty" json:"min,omitempty"`
	Max       *float64       `yaml:"max,omitempty" json:"max,omitempty"`
	Unit      string         `yaml:"unit,omitempty" json:"unit,omitempty"`
	Pattern   string         `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Values    []string       `yaml:"values,omitempty" json:"values,omitempty"`
	Source    []string       `yaml:"source,omitempty" json:"source,omitempty"`
	Target    []string       `yaml:"target,omitempty" json:"target,omitempty"`
	Severity  Severity       `yaml:"severity,omitempty" json:"severity,omitempty"`
	Message   string         `yaml:"message,omitempty" json:"message,omitempty"`

	re *regexp.Regexp
}

// EffectiveSeverity defaults required and endpoint rules to hard and
// everything else to soft.
func (c Constraint) EffectiveSeverity() Severity {
	if c.Severity != "" {
		return c.Severity
	}
	switch c.Kind {
	case KindRequired, KindEndpoints:
		return SeverityHard
	}
	return SeveritySoft
}

func (c *Constraint) compile() error {
	switch c.Kind {
	case KindRequired:
		if c.Attribute == "" {
			return fmt.Errorf("required constraint needs an attribute")
		}
	case KindRange:
		if c.Attribute == "" || (c.Min == nil && c.Max == nil) {
			return fmt.Errorf("range constraint needs an attribute and min or max")
		}
	case KindPattern:
		if c.Attribute == "" || c.Pattern == "" {
			return fmt.Errorf("pattern constraint needs an attribute and pattern")
		}
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", c.Pattern, err)
		}
		c.re = re
	case KindEnum:
		if c.Attribute == "" || len(c.Values) == 0 {
			return fmt.Errorf("enum constraint needs an attribute and values")
		}
	case KindEndpoints:
		if len(c.Source) == 0 && len(c.Target) == 0 {
			return fmt.Errorf("endpoints constraint needs source or target types")
		}
	default:
		return fmt.Errorf("unknown constraint kind %q", c.Kind)
	}
	switch c.Severity {
	case "", SeverityHard, SeveritySoft:
	default:
		return fmt.Errorf("unknown severity %q", c.Severity)
	}
	return nil
}

// checkAttributes evaluates an attribute constraint and returns a
// violation message or "".
func (c Constraint) checkAttributes(attrs map[string]common.Value) string {
	v, ok := attrs[c.Attribute]
	present := ok && !v.IsZero()

	switch c.Kind {
	case KindRequired:
		if !present {
			return c.message(fmt.Sprintf("required: %s is missing", c.Attribute))
		}
	case KindRange:
		if !present {
			return ""
		}
		if v.Kind != common.KindNumber {
			return c.message(fmt.Sprintf("range: %s %q is not a number", c.Attribute, v.String()))
		}
		n, lo, hi := v.Num, c.Min, c.Max
		if c.Unit != "" && v.Unit != "" && !strings.EqualFold(v.Unit, c.Unit) {
			vn, vBase, ok := common.ConvertUnit(v.Num, v.Unit)
			cLo, cHi, cBase := c.bounds()
			if !ok || vBase != cBase {
				return c.message(fmt.Sprintf("range: %s unit %q incompatible with %q", c.Attribute, v.Unit, c.Unit))
			}
			n, lo, hi = vn, cLo, cHi
		}
		if (lo != nil && n < *lo) || (hi != nil && n > *hi) {
			return c.message(fmt.Sprintf("range: %s %s outside %s", c.Attribute, v.String(), c.describeRange()))
		}
	case KindPattern:
		if !present {
			return ""
		}
		if !c.re.MatchString(v.String()) {
			return c.message(fmt.Sprintf("pattern: %s %q does not match %s", c.Attribute, v.String(), c.Pattern))
		}
	case KindEnum:
		if !present {
			return ""
		}
		if !slices.Contains(c.normalizedValues(), enumKey(v.String())) {
			return c.message(fmt.Sprintf("enum: %s %q not in [%s]", c.Attribute, v.String(), strings.Join(c.Values, ", ")))
		}
	}
	return ""
}

// checkEndpoints evaluates an endpoints constraint against resolved
// endpoint types.
func (c Constraint) checkEndpoints(relType, sourceType, targetType string) []string {
	var out []string
	if len(c.Source) > 0 && !slices.Contains(c.Source, sourceType) {
		out = append(out, c.message(fmt.Sprintf("endpoints: source type %s not allowed for %s", sourceType, relType)))
	}
	if len(c.Target) > 0 && !slices.Contains(c.Target, targetType) {
		out = append(out, c.message(fmt.Sprintf("endpoints: target type %s not allowed for %s", targetType, relType)))
	}
	return out
}

// bounds converts Min and Max into the base unit of c.Unit.
func (c Constraint) bounds() (*float64, *float64, string) {
	_, base, _ := common.ConvertUnit(0, c.Unit)
	conv := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		n, _, _ := common.ConvertUnit(*p, c.Unit)
		return &n
	}
	return conv(c.Min), conv(c.Max), base
}

func (c Constraint) describeRange() string {
	lo, hi := "-inf", "+inf"
	if c.Min != nil {
		lo = fmt.Sprint(*c.Min)
	}
	if c.Max != nil {
		hi = fmt.Sprint(*c.Max)
	}
	r := "[" + lo + ", " + hi + "]"
	if c.Unit != "" {
		r += " " + c.Unit
	}
	return r
}

func (c Constraint) normalizedValues() []string {
	out := make([]string, len(c.Values))
	for i, v := range c.Values {
		out[i] = enumKey(v)
	}
	return out
}

func (c Constraint) message(def string) string {
	if c.Message != "" {
		return string(c.Kind) + ": " + c.Message
	}
	return def
}

func enumKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(s, "_", " "))), "_")
}
