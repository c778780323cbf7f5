// Package chunk splits record text into bounded, overlapping passages for
// semantic retrieval.
package chunk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

var ErrInvalidConfig = errors.New("invalid chunker config")

type Config struct {
	MaxTokens int
	// Overlap is the fraction of MaxTokens re-included from the end of the
	// previous chunk, 0 <= Overlap < 1.
	Overlap float64
	// Encoder selects a tiktoken encoding. Empty counts whitespace words.
	Encoder string
}

type Chunker struct {
	maxTokens     int
	overlapTokens int
	tokenizer     Tokenizer
}

// NewChunker validates cfg and loads the tokenizer.
func NewChunker(cfg Config) (*Chunker, error) {
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidConfig, cfg.MaxTokens)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= 1 {
		return nil, fmt.Errorf("%w: overlap must be in [0,1), got %v", ErrInvalidConfig, cfg.Overlap)
	}

	var tok Tokenizer = WordTokenizer{}
	if cfg.Encoder != "" {
		t, err := NewTiktokenTokenizer(cfg.Encoder)
		if err != nil {
			return nil, err
		}
		tok = t
	}
	return NewChunkerWithTokenizer(cfg, tok), nil
}

// NewChunkerWithTokenizer builds a chunker around an existing tokenizer.
// cfg.Encoder is ignored.
func NewChunkerWithTokenizer(cfg Config, tok Tokenizer) *Chunker {
	return &Chunker{
		maxTokens:     cfg.MaxTokens,
		overlapTokens: int(cfg.Overlap * float64(cfg.MaxTokens)),
		tokenizer:     tok,
	}
}

type unit struct {
	span   common.Span
	tokens int
}

// Chunk splits the record's text. The result is deterministic, ordered by
// Sequence and tiles the text: each chunk starts at or before the end of
// its predecessor, and the overlapping prefix is exactly the predecessor's
// tail. Blank text yields no chunks.
func (c *Chunker) Chunk(rec common.CanonicalRecord) []common.Chunk {
	return c.Split(rec.ID, rec.Text)
}

func (c *Chunker) Split(recordID, text string) []common.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	units := c.units(text)
	var chunks []common.Chunk
	prevStart := 0
	for next := 0; next < len(units); {
		start := next
		if len(chunks) > 0 {
			start = c.overlapStart(units, prevStart, next)
		}
		total := 0
		for _, u := range units[start:next] {
			total += u.tokens
		}
		end := next
		for end < len(units) && (end == next || total+units[end].tokens <= c.maxTokens) {
			total += units[end].tokens
			end++
		}

		span := common.Span{Start: units[start].span.Start, End: units[end-1].span.End}
		chunkText := text[span.Start:span.End]
		seq := len(chunks)
		chunks = append(chunks, common.Chunk{
			ID:       common.ChunkID(recordID, seq, chunkText),
			RecordID: recordID,
			Sequence: seq,
			Text:     chunkText,
			Span:     span,
		})
		prevStart = start
		next = end
	}
	return chunks
}

// overlapStart walks back from next over whole units of the previous chunk
// while they fit the overlap budget and leave room for unit next.
func (c *Chunker) overlapStart(units []unit, prevStart, next int) int {
	if c.overlapTokens == 0 {
		return next
	}
	s := next
	sum := 0
	for s-1 > prevStart {
		t := units[s-1].tokens
		if sum+t > c.overlapTokens || sum+t+units[next].tokens > c.maxTokens {
			break
		}
		sum += t
		s--
	}
	return s
}

// units segments text and hard-splits any segment that alone exceeds the
// token budget at word boundaries.
func (c *Chunker) units(text string) []unit {
	var out []unit
	for _, seg := range segment(text) {
		n := c.tokenizer.Count(text[seg.Start:seg.End])
		if n <= c.maxTokens {
			out = append(out, unit{span: seg, tokens: n})
			continue
		}
		out = append(out, c.splitWords(text, seg)...)
	}
	return out
}

func (c *Chunker) splitWords(text string, seg common.Span) []unit {
	words := wordSpans(text, seg)
	var out []unit
	start := 0
	for start < len(words) {
		end := start + 1
		for end < len(words) {
			n := c.tokenizer.Count(text[words[start].Start:words[end].End])
			if n > c.maxTokens {
				break
			}
			end++
		}
		span := common.Span{Start: words[start].Start, End: words[end-1].End}
		out = append(out, unit{span: span, tokens: c.tokenizer.Count(text[span.Start:span.End])})
		start = end
	}
	return out
}

// wordSpans returns word spans inside seg with trailing whitespace attached
// so they still tile seg.
func wordSpans(text string, seg common.Span) []common.Span {
	var spans []common.Span
	i := seg.Start
	for i < seg.End {
		j := i
		for j < seg.End && !isSpace(text[j]) {
			j++
		}
		for j < seg.End && isSpace(text[j]) {
			j++
		}
		spans = append(spans, common.Span{Start: i, End: j})
		i = j
	}
	return spans
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
