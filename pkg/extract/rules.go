package extract

import (
	"context"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

const (
	confRow       = 0.95
	confNamed     = 0.9
	confMention   = 0.8
	confHazard    = 0.85
	confRelation  = 0.75
	confAttribute = 0.8
)

var (
	parenFormulaRe = regexp.MustCompile(`\(\s*([A-Za-z0-9₀-₉()·.\[\]]+?)\s*\)`)
	casRe          = regexp.MustCompile(`\b(\d{2,7}-\d{2}-\d)\b`)
	ghsRe          = regexp.MustCompile(`\bGHS0[1-9]\b`)
	flashPointRe   = regexp.MustCompile(`(?i)flash\s*-?point[^0-9\-+]{0,24}([-+]?\d+(?:[.,]\d+)?)\s*(°\s?[CF]|K)\b`)
	boilingPointRe = regexp.MustCompile(`(?i)boiling\s*-?point[^0-9\-+]{0,24}([-+]?\d+(?:[.,]\d+)?)\s*(°\s?[CF]|K)\b`)
	molarMassRe    = regexp.MustCompile(`(?i)(?:molar mass|molecular weight)[^0-9]{0,24}(\d+(?:[.,]\d+)?)\s*(g/mol)`)
	percentRe      = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(%|percent)`)
	wordRe         = regexp.MustCompile(`[A-Za-z][A-Za-z\-]*`)
	tokenRe        = regexp.MustCompile(`[A-Za-z0-9₀-₉()·]+`)
	clauseSplitRe  = regexp.MustCompile(`;|,\s*but\s|\sbut\s|,\s*whereas\s|,\s*while\s`)
)

// nameNoise is dropped from the front of a name found before a formula.
var nameNoise = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "store": {}, "use": {}, "handle": {}, "of": {}, "and": {},
	"with": {}, "in": {}, "is": {}, "contains": {}, "containing": {},
}

// RuleExtractor recognizes chemical safety facts with lexical rules:
// substances (by name, "name (formula)" or bare formula), GHS hazard
// classes, container materials with compatibility polarity, reactivity and
// physical properties. Structured rows are mapped column by column.
type RuleExtractor struct{}

func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

func (x *RuleExtractor) Extract(ctx context.Context, rec common.CanonicalRecord) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	b := newBuilder(rec.ID)
	if rec.SourceType == common.SourceTypeRow && len(rec.Fields) > 0 {
		extractRow(b, rec.Fields)
	} else {
		extractText(b, rec.Text)
	}
	return Clamp(b.result()), nil
}

// builder deduplicates candidates within one record by their natural key
// and hands out local ids.
type builder struct {
	recordID string
	entities []common.CandidateEntity
	index    map[string]int
	rels     []common.CandidateRelationship
	relIndex map[string]int
}

func newBuilder(recordID string) *builder {
	return &builder{recordID: recordID, index: map[string]int{}, relIndex: map[string]int{}}
}

func (b *builder) provenance(offset int) string {
	return b.recordID + "@" + strconv.Itoa(offset)
}

// entity returns the local id for (typ, natural), creating the entity or
// merging attrs into it. Existing attributes are kept.
func (b *builder) entity(typ, natural string, attrs map[string]common.Value, conf float64, offset int) string {
	k := typ + "|" + natural
	if i, ok := b.index[k]; ok {
		e := &b.entities[i]
		for name, v := range attrs {
			if cur, ok := e.Attributes[name]; !ok || cur.IsZero() {
				e.Attributes[name] = v
			}
		}
		if conf > e.Confidence {
			e.Confidence = conf
		}
		return e.LocalID
	}
	id := "e" + strconv.Itoa(len(b.entities)+1)
	b.index[k] = len(b.entities)
	b.entities = append(b.entities, common.CandidateEntity{
		LocalID:    id,
		Type:       typ,
		Attributes: common.CloneValues(attrs),
		Confidence: conf,
		Provenance: b.provenance(offset),
	})
	return id
}

func (b *builder) setAttr(localID, name string, v common.Value) {
	for i := range b.entities {
		if b.entities[i].LocalID == localID {
			if cur, ok := b.entities[i].Attributes[name]; !ok || cur.IsZero() {
				b.entities[i].Attributes[name] = v
			}
			return
		}
	}
}

func (b *builder) relate(src, dst, typ string, conf float64, offset int) {
	if src == "" || dst == "" || src == dst {
		return
	}
	k := src + "|" + typ + "|" + dst
	if i, ok := b.relIndex[k]; ok {
		if conf > b.rels[i].Confidence {
			b.rels[i].Confidence = conf
		}
		return
	}
	b.relIndex[k] = len(b.rels)
	b.rels = append(b.rels, common.CandidateRelationship{
		SourceLocalID: src,
		TargetLocalID: dst,
		Type:          typ,
		Confidence:    conf,
		Provenance:    b.provenance(offset),
	})
}

func (b *builder) result() Result {
	return Result{Entities: b.entities, Relationships: b.rels}
}

func (b *builder) substance(name, formula string, conf float64, offset int) string {
	attrs := map[string]common.Value{}
	if formula != "" {
		attrs["formula"] = common.StringValue(formula)
	}
	if name != "" {
		attrs["name"] = common.StringValue(name)
	}
	natural := formula
	if natural == "" {
		natural = "name:" + strings.ToLower(name)
	}
	return b.entity("ChemicalSubstance", natural, attrs, conf, offset)
}

func (b *builder) hazard(class string, offset int, conf float64) string {
	attrs := map[string]common.Value{"type": common.EnumValue(class)}
	if code := ghsForClass(class); code != "" {
		attrs["ghs_code"] = common.StringValue(code)
	}
	return b.entity("Hazard", class, attrs, conf, offset)
}

func (b *builder) container(material string, offset int, conf float64) string {
	return b.entity("Container", material, map[string]common.Value{"material": common.EnumValue(material)}, conf, offset)
}

type mention struct {
	id  string
	pos int
}

func extractText(b *builder, text string) {
	subject := ""
	for _, s := range sentences(text) {
		found := findSubstances(b, s.text, s.offset)
		if len(found) > 0 {
			subject = found[0].id
		}
		if subject == "" {
			continue
		}
		extractProperties(b, subject, s.text)

		for _, cl := range clauses(s.text) {
			lower := strings.ToLower(cl.text)
			offset := s.offset + cl.offset

			for _, class := range findHazards(cl.text) {
				b.relate(subject, b.hazard(class, offset, confHazard), "HAS_HAZARD", confHazard, offset)
			}

			neg := containsAny(lower, negativeCues)
			pos := !neg && containsAny(lower, positiveCues)
			if neg || pos {
				relType := "IS_COMPATIBLE_WITH"
				if neg {
					relType = "IS_INCOMPATIBLE_WITH"
				}
				for _, m := range findMaterials(lower) {
					b.relate(subject, b.container(m, offset, confMention), relType, confRelation, offset)
				}
			}

			reacts := containsAny(lower, reactCues)
			if !neg && !reacts {
				continue
			}
			relType := "IS_INCOMPATIBLE_WITH"
			if reacts {
				relType = "REACTS_WITH"
			}
			for _, m := range found {
				if m.pos >= cl.offset && m.pos < cl.offset+len(cl.text) && m.id != subject {
					b.relate(subject, m.id, relType, confRelation, offset)
				}
			}
		}
	}
}

// findSubstances returns substance mentions in order of position.
func findSubstances(b *builder, sentence string, offset int) []mention {
	var out []mention
	taken := make([]bool, len(sentence))
	mark := func(start, end int) {
		for i := start; i < end && i < len(taken); i++ {
			taken[i] = true
		}
	}
	free := func(start, end int) bool {
		for i := start; i < end; i++ {
			if taken[i] {
				return false
			}
		}
		return true
	}

	for _, loc := range parenFormulaRe.FindAllStringSubmatchIndex(sentence, -1) {
		formula := subscriptDigits(sentence[loc[2]:loc[3]])
		known := nameForFormula(formula)
		if !isFormula(formula, true) && (known == "" || !isFormula(formula, false)) {
			continue
		}
		start := loc[0]
		name := nameBefore(sentence[:loc[0]])
		if name != "" {
			if i := strings.LastIndex(sentence[:loc[0]], name); i >= 0 {
				start = i
			}
		} else {
			name = known
		}
		id := b.substance(name, formula, confNamed, offset+start)
		out = append(out, mention{id: id, pos: start})
		mark(start, loc[1])
	}

	lower := strings.ToLower(sentence)
	for _, name := range substanceNames {
		from := 0
		for {
			i := strings.Index(lower[from:], name)
			if i < 0 {
				break
			}
			i += from
			end := i + len(name)
			from = end
			if !wordBoundary(lower, i, end) || !free(i, end) {
				continue
			}
			id := b.substance(name, knownSubstances[name], confMention, offset+i)
			out = append(out, mention{id: id, pos: i})
			mark(i, end)
		}
	}

	for _, loc := range tokenRe.FindAllStringIndex(sentence, -1) {
		if !free(loc[0], loc[1]) {
			continue
		}
		tok := subscriptDigits(sentence[loc[0]:loc[1]])
		if !isFormula(tok, true) {
			continue
		}
		id := b.substance(nameForFormula(tok), tok, confMention, offset+loc[0])
		out = append(out, mention{id: id, pos: loc[0]})
		mark(loc[0], loc[1])
	}

	slices.SortStableFunc(out, func(a, b mention) int { return a.pos - b.pos })
	return out
}

// nameBefore returns up to three words directly preceding a parenthesized
// formula, without leading noise words.
func nameBefore(prefix string) string {
	words := wordRe.FindAllString(prefix, -1)
	if len(words) == 0 || !strings.HasSuffix(strings.TrimSpace(prefix), words[len(words)-1]) {
		return ""
	}
	if len(words) > 3 {
		words = words[len(words)-3:]
	}
	// only keep the contiguous tail
	tail := strings.TrimSpace(prefix)
	for len(words) > 1 && !strings.HasSuffix(tail, strings.Join(words, " ")) {
		words = words[1:]
	}
	for len(words) > 0 {
		if _, noise := nameNoise[strings.ToLower(words[0])]; !noise {
			break
		}
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func findHazards(clause string) []string {
	lower := strings.ToLower(clause)
	seen := map[string]bool{}
	var out []string
	for _, code := range ghsRe.FindAllString(clause, -1) {
		if class := ghsClasses[code]; !seen[class] {
			seen[class] = true
			out = append(out, class)
		}
	}
	for _, t := range hazardTerms {
		if seen[t.class] {
			continue
		}
		i := strings.Index(lower, t.phrase)
		if i < 0 || !wordBoundary(lower, i, i+len(t.phrase)) || negated(lower, i) {
			continue
		}
		seen[t.class] = true
		out = append(out, t.class)
	}
	return out
}

func findMaterials(lower string) []string {
	taken := make([]bool, len(lower))
	seen := map[string]bool{}
	var out []string
	for _, t := range materialTerms {
		from := 0
		for {
			i := strings.Index(lower[from:], t.phrase)
			if i < 0 {
				break
			}
			i += from
			end := i + len(t.phrase)
			from = end
			if !wordBoundary(lower, i, end) || taken[i] {
				continue
			}
			for j := i; j < end; j++ {
				taken[j] = true
			}
			if !seen[t.material] {
				seen[t.material] = true
				out = append(out, t.material)
			}
		}
	}
	return out
}

func extractProperties(b *builder, subject, sentence string) {
	if m := casRe.FindStringSubmatch(sentence); m != nil {
		b.setAttr(subject, "cas", common.StringValue(m[1]))
	}
	if v, ok := numberMatch(flashPointRe, sentence); ok {
		b.setAttr(subject, "flash_point", v)
	}
	if v, ok := numberMatch(boilingPointRe, sentence); ok {
		b.setAttr(subject, "boiling_point", v)
	}
	if v, ok := numberMatch(molarMassRe, sentence); ok {
		b.setAttr(subject, "molar_mass", v)
	}
	if strings.Contains(strings.ToLower(sentence), "concentration") {
		if v, ok := numberMatch(percentRe, sentence); ok {
			v.Unit = "%"
			b.setAttr(subject, "concentration", v)
		}
	}
}

func numberMatch(re *regexp.Regexp, s string) (common.Value, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return common.Value{}, false
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return common.Value{}, false
	}
	unit := strings.ReplaceAll(m[2], " ", "")
	return common.NumberValue(n, unit), true
}

type span struct {
	text   string
	offset int
}

// sentences splits on ., ! or ? followed by whitespace, and on newlines.
// Decimal points are not boundaries.
func sentences(text string) []span {
	var out []span
	start := 0
	emit := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			lead := strings.Index(text[start:end], s)
			out = append(out, span{text: s, offset: start + lead})
		}
		start = end
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\n':
			emit(i + 1)
		case (c == '.' || c == '!' || c == '?') && (i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\t' || text[i+1] == '\n' || text[i+1] == '\r'):
			emit(i + 1)
		}
	}
	emit(len(text))
	return out
}

// clauses splits a sentence where polarity can flip.
func clauses(sentence string) []span {
	var out []span
	last := 0
	for _, loc := range clauseSplitRe.FindAllStringIndex(sentence, -1) {
		out = append(out, span{text: sentence[last:loc[0]], offset: last})
		last = loc[1]
	}
	return append(out, span{text: sentence[last:], offset: last})
}

func containsAny(s string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

func negated(lower string, at int) bool {
	from := max(at-12, 0)
	window := lower[from:at]
	return strings.Contains(window, "not ") || strings.Contains(window, "non-") || strings.HasSuffix(window, "non")
}

func wordBoundary(s string, start, end int) bool {
	isWord := func(c byte) bool {
		return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	}
	if start > 0 && isWord(s[start-1]) {
		return false
	}
	if end < len(s) && isWord(s[end]) {
		return false
	}
	return true
}

var subscriptReplacer = strings.NewReplacer(
	"₀", "0", "₁", "1", "₂", "2", "₃", "3", "₄", "4",
	"₅", "5", "₆", "6", "₇", "7", "₈", "8", "₉", "9",
)

func subscriptDigits(s string) string {
	return subscriptReplacer.Replace(s)
}
