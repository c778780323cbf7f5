package extract

import (
	"regexp"
	"sort"
	"strings"
)

// knownSubstances maps common names to their formula.
var knownSubstances = map[string]string{
	"sulfuric acid":       "H2SO4",
	"sulphuric acid":      "H2SO4",
	"hydrochloric acid":   "HCl",
	"nitric acid":         "HNO3",
	"phosphoric acid":     "H3PO4",
	"hydrofluoric acid":   "HF",
	"acetic acid":         "CH3COOH",
	"sodium hydroxide":    "NaOH",
	"potassium hydroxide": "KOH",
	"ammonia":             "NH3",
	"hydrogen peroxide":   "H2O2",
	"sodium hypochlorite": "NaOCl",
	"ethanol":             "C2H5OH",
	"methanol":            "CH3OH",
	"acetone":             "C3H6O",
	"toluene":             "C7H8",
	"benzene":             "C6H6",
	"chlorine":            "Cl2",
	"water":               "H2O",
	"hydrogen":            "H2",
	"oxygen":              "O2",
	"carbon dioxide":      "CO2",
}

// substanceNames lists knownSubstances keys longest first so "sulfuric
// acid" wins over a shorter overlapping name.
var substanceNames = func() []string {
	names := make([]string, 0, len(knownSubstances))
	for n := range knownSubstances {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}()

func nameForFormula(formula string) string {
	best := ""
	for name, f := range knownSubstances {
		if f == formula && (best == "" || name < best) {
			best = name
		}
	}
	return best
}

type hazardTerm struct {
	phrase string
	class  string
}

// hazardTerms is scanned in order; the first phrase of a class found in a
// clause wins for that class.
var hazardTerms = []hazardTerm{
	{"causes severe skin burns", "corrosive"},
	{"corrosive", "corrosive"},
	{"highly flammable", "flammable"},
	{"extremely flammable", "flammable"},
	{"flammable", "flammable"},
	{"inflammable", "flammable"},
	{"acutely toxic", "acute_toxic"},
	{"fatal if", "acute_toxic"},
	{"toxic", "toxic"},
	{"poisonous", "toxic"},
	{"oxidizing", "oxidizing"},
	{"oxidising", "oxidizing"},
	{"oxidizer", "oxidizing"},
	{"explosive", "explosive"},
	{"irritant", "irritant"},
	{"irritating", "irritant"},
	{"causes skin irritation", "irritant"},
	{"carcinogenic", "carcinogenic"},
	{"carcinogen", "carcinogenic"},
	{"may cause cancer", "carcinogenic"},
	{"hazardous to the aquatic", "environmental"},
	{"compressed gas", "compressed_gas"},
	{"gas under pressure", "compressed_gas"},
	{"reacts violently", "reactive"},
}

var ghsClasses = map[string]string{
	"GHS01": "explosive",
	"GHS02": "flammable",
	"GHS03": "oxidizing",
	"GHS04": "compressed_gas",
	"GHS05": "corrosive",
	"GHS06": "acute_toxic",
	"GHS07": "irritant",
	"GHS08": "health_hazard",
	"GHS09": "environmental",
}

func ghsForClass(class string) string {
	for code, c := range ghsClasses {
		if c == class {
			return code
		}
	}
	return ""
}

type materialTerm struct {
	phrase   string
	material string
}

// materialTerms is ordered longest first.
var materialTerms = []materialTerm{
	{"stainless steel", "stainless_steel"},
	{"carbon steel", "carbon_steel"},
	{"high-density polyethylene", "hdpe"},
	{"high density polyethylene", "hdpe"},
	{"low-density polyethylene", "ldpe"},
	{"polypropylene", "polypropylene"},
	{"polyethylene", "polyethylene"},
	{"fiberglass", "fiberglass"},
	{"fibreglass", "fiberglass"},
	{"aluminium", "aluminum"},
	{"aluminum", "aluminum"},
	{"plastic", "plastic"},
	{"rubber", "rubber"},
	{"copper", "copper"},
	{"brass", "brass"},
	{"glass", "glass"},
	{"steel", "steel"},
	{"hdpe", "hdpe"},
	{"ldpe", "ldpe"},
	{"ptfe", "ptfe"},
	{"teflon", "ptfe"},
	{"pvc", "pvc"},
}

var (
	negativeCues = []string{
		"not be stored", "not store", "do not", "must not", "should not", "never",
		"incompatible", "avoid", "unsuitable", "not suitable", "keep away", "attacks", "corrodes",
	}
	positiveCues = []string{
		"stored in", "store in", "compatible", "suitable", "kept in", "keep in",
		"transported in", "packed in", "stored at",
	}
	reactCues = []string{"reacts", "react with", "reaction with"}
)

var elementSymbols = func() map[string]struct{} {
	const list = "H He Li Be B C N O F Ne Na Mg Al Si P S Cl Ar K Ca Sc Ti V Cr Mn Fe Co Ni Cu Zn " +
		"Ga Ge As Se Br Kr Rb Sr Y Zr Nb Mo Tc Ru Rh Pd Ag Cd In Sn Sb Te I Xe Cs Ba La Ce Pr Nd " +
		"Pm Sm Eu Gd Tb Dy Ho Er Tm Yb Lu Hf Ta W Re Os Ir Pt Au Hg Tl Pb Bi Po At Rn Fr Ra Ac Th " +
		"Pa U Np Pu Am Cm Bk Cf Es Fm Md No Lr Rf Db Sg Bh Hs Mt Ds Rg Cn Nh Fl Mc Lv Ts Og"
	m := make(map[string]struct{})
	for _, s := range strings.Fields(list) {
		m[s] = struct{}{}
	}
	return m
}()

var (
	formulaPartRe = regexp.MustCompile(`[A-Z][a-z]?|[0-9]+|[()·.\[\]]`)
	formulaCharRe = regexp.MustCompile(`^[A-Za-z0-9()·.\[\]]+$`)
	longDigitsRe  = regexp.MustCompile(`[0-9]{4,}`)
)

// isFormula reports whether s reads as a chemical formula built from real
// element symbols. strict additionally requires a digit, or at least two
// elements including a two-letter symbol, so acronyms like "PVC" and words
// like "In" are not taken as formulas.
func isFormula(s string, strict bool) bool {
	if s == "" || !formulaCharRe.MatchString(s) || longDigitsRe.MatchString(s) {
		return false
	}
	if s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	parts := formulaPartRe.FindAllString(s, -1)
	if strings.Join(parts, "") != s {
		return false
	}
	hasDigit, hasTwoLetter, elements := false, false, 0
	for _, p := range parts {
		switch {
		case p[0] >= '0' && p[0] <= '9':
			hasDigit = true
		case p[0] >= 'A' && p[0] <= 'Z':
			if _, ok := elementSymbols[p]; !ok {
				return false
			}
			elements++
			if len(p) == 2 {
				hasTwoLetter = true
			}
		}
	}
	if elements == 0 {
		return false
	}
	if strict && !hasDigit && (!hasTwoLetter || elements < 2) {
		return false
	}
	return true
}
