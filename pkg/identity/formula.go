package identity

import (
	"strings"
	"unicode"
)

var elements = symbolSet(`
	H He Li Be B C N O F Ne Na Mg Al Si P S Cl Ar K Ca Sc Ti V Cr Mn Fe Co Ni Cu Zn
	Ga Ge As Se Br Kr Rb Sr Y Zr Nb Mo Tc Ru Rh Pd Ag Cd In Sn Sb Te I Xe Cs Ba La Ce
	Pr Nd Pm Sm Eu Gd Tb Dy Ho Er Tm Yb Lu Hf Ta W Re Os Ir Pt Au Hg Tl Pb Bi Po At Rn
	Fr Ra Ac Th Pa U Np Pu Am Cm Bk Cf Es Fm Md No Lr Rf Db Sg Bh Hs Mt Ds Rg Cn Nh Fl
	Mc Lv Ts Og`)

// commonElements break ties when a lower case formula splits more than one
// way: "caco3" is Ca C O rather than C Ac O.
var commonElements = symbolSet(`
	H C N O F P S K Li Be Na Mg Al Si Cl Ca Ti Cr Mn Fe Co Ni Cu Zn As Se Br Sr Ag
	Cd Sn Sb Ba Pt Au Hg Pb`)

// maxRecaseLen bounds the input recaseFormula will try to split.
const maxRecaseLen = 64

func symbolSet(list string) map[string]struct{} {
	symbols := strings.Fields(list)
	m := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		m[s] = struct{}{}
	}
	return m
}

func has(set map[string]struct{}, sym string) bool {
	_, ok := set[sym]
	return ok
}

type split struct {
	ok       bool
	uncommon int
	tokens   int
	text     string
}

// better prefers fewer uncommon symbols, then more symbols, so "co2" reads
// as CO2 and not Co2.
func (s split) better(o split) bool {
	switch {
	case !o.ok:
		return s.ok
	case !s.ok:
		return false
	case s.uncommon != o.uncommon:
		return s.uncommon < o.uncommon
	}
	return s.tokens > o.tokens
}

// recaseFormula restores element capitalization in a formula written in
// lower case, e.g. "h2so4" -> "H2SO4" and "nacl" -> "NaCl". Input that
// already contains an upper case letter is returned as is, since its case
// is significant (Co vs CO). ok is false when the letters cannot be split
// into element symbols.
func recaseFormula(s string) (string, bool) {
	if strings.IndexFunc(s, unicode.IsUpper) >= 0 {
		return s, true
	}
	runes := []rune(s)
	if len(runes) > maxRecaseLen {
		return s, false
	}

	// best[i] is the preferred split of runes[i:].
	best := make([]split, len(runes)+1)
	best[len(runes)] = split{ok: true}
	for i := len(runes) - 1; i >= 0; i-- {
		r := runes[i]
		if !unicode.IsLetter(r) {
			next := best[i+1]
			if next.ok {
				best[i] = split{ok: true, uncommon: next.uncommon, tokens: next.tokens, text: string(r) + next.text}
			}
			continue
		}

		var cands []split
		if sym := string(unicode.ToUpper(r)); has(elements, sym) && best[i+1].ok {
			cands = append(cands, join(sym, best[i+1]))
		}
		if i+1 < len(runes) && unicode.IsLetter(runes[i+1]) {
			sym := string([]rune{unicode.ToUpper(r), runes[i+1]})
			if has(elements, sym) && best[i+2].ok {
				cands = append(cands, join(sym, best[i+2]))
			}
		}
		for _, c := range cands {
			if c.better(best[i]) {
				best[i] = c
			}
		}
	}

	if !best[0].ok {
		return s, false
	}
	return best[0].text, true
}

func join(sym string, rest split) split {
	s := split{ok: true, uncommon: rest.uncommon, tokens: rest.tokens + 1, text: sym + rest.text}
	if !has(commonElements, sym) {
		s.uncommon++
	}
	return s
}
