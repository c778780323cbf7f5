package loader

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

var reNewlines = regexp.MustCompile(`\n{3,}`)

// Builder normalizes raw inputs into canonical records.
type Builder struct {
	registry *Registry
	now      func() time.Time
}

type BuilderOption func(*Builder)

// WithClock overrides the time source used for RetrievedAt.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(registry *Registry, opts ...BuilderOption) *Builder {
	b := &Builder{registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Registry() *Registry {
	return b.registry
}

// Build parses in and returns one record for a document or one record per
// row for row-oriented formats. Record ids do not depend on RetrievedAt, so
// re-ingesting unchanged input yields the same ids.
func (b *Builder) Build(ctx context.Context, in RawInput) ([]common.CanonicalRecord, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: %q is empty", ErrMalformedInput, in.Name)
	}
	format, err := b.registry.Detect(in.Name, in.Data, in.FormatHint)
	if err != nil {
		return nil, err
	}
	parsed, err := b.registry.Parse(ctx, in.Data, format)
	if err != nil {
		return nil, err
	}

	retrieved := in.RetrievedAt
	if retrieved.IsZero() {
		retrieved = b.now()
	}
	retrieved = retrieved.UTC()

	if len(parsed.Rows) > 0 {
		return b.rowRecords(in.Name, format, parsed.Rows, retrieved)
	}

	text := NormalizeText(parsed.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: %q has no text content", ErrMalformedInput, in.Name)
	}
	return []common.CanonicalRecord{{
		ID:          common.RecordID(in.Name, -1, text, nil),
		SourceType:  common.SourceTypeDocument,
		SourceName:  in.Name,
		Format:      format,
		Text:        text,
		RetrievedAt: retrieved,
	}}, nil
}

func (b *Builder) rowRecords(name, format string, rows []Row, retrieved time.Time) ([]common.CanonicalRecord, error) {
	records := make([]common.CanonicalRecord, 0, len(rows))
	for i, row := range rows {
		fields := make(map[string]common.Value, len(row.Cells))
		var text strings.Builder
		for _, col := range row.Columns {
			raw := strings.TrimSpace(row.Cells[col])
			if raw == "" {
				continue
			}
			fields[col] = common.ParseValue(raw)
			fmt.Fprintf(&text, "%s: %s\n", col, raw)
		}
		if len(fields) == 0 {
			continue
		}
		body := strings.TrimSpace(text.String())
		records = append(records, common.CanonicalRecord{
			ID:          common.RecordID(name, i, body, fields),
			SourceType:  common.SourceTypeRow,
			SourceName:  name,
			Format:      format,
			Text:        body,
			Fields:      fields,
			RetrievedAt: retrieved,
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %q has no non-empty rows", ErrMalformedInput, name)
	}
	return records, nil
}

// NormalizeText repairs encoding, unifies line endings and collapses runs of
// blank lines.
func NormalizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = reNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
