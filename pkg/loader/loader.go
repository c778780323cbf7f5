// Package loader turns raw bytes into canonical records. Byte-level parsing
// is delegated to format-keyed Parsers held by a Registry.
package loader

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMalformedInput    = errors.New("malformed input")
)

// RawInput is one uploaded or fetched document before parsing.
type RawInput struct {
	Name        string
	Data        []byte
	FormatHint  string
	RetrievedAt time.Time
}

// Row is one structured row with its header-keyed cells in column order.
type Row struct {
	Columns []string
	Cells   map[string]string
}

// Parsed is the output of a Parser. Row-oriented formats fill Rows and may
// leave Text empty; document formats fill Text.
type Parsed struct {
	Text string
	Rows []Row
}

type Parser interface {
	Parse(ctx context.Context, data []byte) (Parsed, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, data []byte) (Parsed, error)

func (f ParserFunc) Parse(ctx context.Context, data []byte) (Parsed, error) {
	return f(ctx, data)
}

// Source fetches raw bytes by name: a path, an object key or a URL.
type Source interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}
