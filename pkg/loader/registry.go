package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Registry maps format names and file extensions to parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
	aliases map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]Parser),
		aliases: make(map[string]string),
	}
}

// Register binds a parser to format and any extra aliases (extensions or
// alternative names). Later registrations replace earlier ones.
func (r *Registry) Register(format string, p Parser, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	format = normalizeFormat(format)
	r.parsers[format] = p
	r.aliases[format] = format
	for _, a := range aliases {
		r.aliases[normalizeFormat(a)] = format
	}
}

// Formats lists the registered format names.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) resolve(name string) (string, Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	format, ok := r.aliases[normalizeFormat(name)]
	if !ok {
		return "", nil, false
	}
	return format, r.parsers[format], true
}

// Detect picks the format for an input: the hint if given, else the file
// extension, else a content sniff.
func (r *Registry) Detect(name string, data []byte, hint string) (string, error) {
	if hint != "" {
		if f, _, ok := r.resolve(hint); ok {
			return f, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, hint)
	}
	if ext := filepath.Ext(name); ext != "" {
		if f, _, ok := r.resolve(ext); ok {
			return f, nil
		}
	}
	if sniffed := sniff(data); sniffed != "" {
		if f, _, ok := r.resolve(sniffed); ok {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: cannot detect format of %q", ErrUnsupportedFormat, name)
}

// Parse runs the parser registered for format. Parser failures are wrapped
// in ErrMalformedInput unless they already carry one of the loader errors.
func (r *Registry) Parse(ctx context.Context, data []byte, format string) (Parsed, error) {
	f, p, ok := r.resolve(format)
	if !ok {
		return Parsed{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	parsed, err := p.Parse(ctx, data)
	if err != nil {
		if errors.Is(err, ErrMalformedInput) || errors.Is(err, ErrUnsupportedFormat) {
			return Parsed{}, err
		}
		return Parsed{}, fmt.Errorf("%w: %s: %v", ErrMalformedInput, f, err)
	}
	return parsed, nil
}

func normalizeFormat(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
}

func sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return "pdf"
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		switch {
		case bytes.Contains(data, []byte("word/document.xml")):
			return "docx"
		case bytes.Contains(data, []byte("xl/workbook.xml")):
			return "xlsx"
		}
		return ""
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "json"
	}
	if strings.HasPrefix(http.DetectContentType(data), "text/html") {
		return "html"
	}
	if utf8.Valid(data) {
		return "text"
	}
	return ""
}
