package chunk

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens in a piece of text.
type Tokenizer interface {
	Count(text string) int
}

// WordTokenizer approximates tokens by whitespace separated words. It needs
// no model files and is used when no encoder is configured.
type WordTokenizer struct{}

func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

// TiktokenTokenizer counts BPE tokens with the named encoding, e.g. "o200k_base".
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
