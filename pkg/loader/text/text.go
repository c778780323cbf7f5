// Package text handles plain text and markdown.
package text

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
)

type Parser struct{}

func (Parser) Parse(ctx context.Context, data []byte) (loader.Parsed, error) {
	if !utf8.Valid(data) {
		return loader.Parsed{}, errors.New("text is not valid UTF-8")
	}
	return loader.Parsed{Text: string(data)}, nil
}
