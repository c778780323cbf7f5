package chunk

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

var tableDelimRe = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)

func isTableRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && strings.Contains(trimmed, "|")
}

type line struct {
	start int // offset of first byte
	end   int // offset after the last byte, excluding '\n'
	next  int // offset of the following line
}

func splitLines(text string) []line {
	var lines []line
	start := 0
	for start <= len(text) {
		idx := strings.IndexByte(text[start:], '\n')
		if idx < 0 {
			if start < len(text) {
				lines = append(lines, line{start: start, end: len(text), next: len(text)})
			}
			break
		}
		lines = append(lines, line{start: start, end: start + idx, next: start + idx + 1})
		start += idx + 1
	}
	return lines
}

// segment splits text into sentence-like spans that tile the input without
// gaps. Whitespace trails the segment it follows. Markdown tables with a
// delimiter row stay in one segment; blank lines close a segment.
func segment(text string) []common.Span {
	var segs []common.Span
	segStart := 0

	emit := func(end int) {
		if end <= segStart {
			return
		}
		if strings.TrimSpace(text[segStart:end]) == "" {
			if n := len(segs); n > 0 {
				segs[n-1].End = end
				segStart = end
			}
			return
		}
		segs = append(segs, common.Span{Start: segStart, End: end})
		segStart = end
	}

	lines := splitLines(text)
	for i := 0; i < len(lines); i++ {
		l := lines[i]
		content := text[l.start:l.end]

		if isTableRow(content) && i+1 < len(lines) && tableDelimRe.MatchString(text[lines[i+1].start:lines[i+1].end]) {
			emit(l.start)
			j := i + 1
			for j+1 < len(lines) && isTableRow(text[lines[j+1].start:lines[j+1].end]) {
				j++
			}
			emit(lines[j].next)
			i = j
			continue
		}

		if isTableRow(content) {
			emit(l.start)
			emit(l.next)
			continue
		}

		if strings.TrimSpace(content) == "" {
			emit(l.next)
			continue
		}

		for _, end := range sentenceEnds(content) {
			abs := l.start + end
			if end == len(content) {
				abs = l.next
			}
			emit(abs)
		}
	}
	emit(len(text))
	return segs
}

// sentenceEnds returns offsets within line right after each sentence
// terminator and its trailing closers and spaces. "1. " at the start of a
// line is a list marker, not a sentence end.
func sentenceEnds(line string) []int {
	var ends []int
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if c == '.' && isListMarker(line, i) {
			continue
		}
		j := i + 1
		for j < len(line) && (line[j] == '.' || line[j] == '!' || line[j] == '?') {
			j++
		}
		for j < len(line) && strings.IndexByte("\"')]}", line[j]) >= 0 {
			j++
		}
		if j < len(line) && line[j] != ' ' && line[j] != '\t' {
			i = j - 1
			continue
		}
		for j < len(line) && (line[j] == ' ' || line[j] == '\t') {
			j++
		}
		ends = append(ends, j)
		i = j - 1
	}
	return ends
}

func isListMarker(line string, dot int) bool {
	if dot == 0 || !unicode.IsDigit(rune(line[dot-1])) {
		return false
	}
	k := dot - 1
	for k >= 0 && unicode.IsDigit(rune(line[k])) {
		k--
	}
	return strings.TrimSpace(line[:k+1]) == ""
}
