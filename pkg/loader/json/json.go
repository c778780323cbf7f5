// Package json parses JSON documents. Arrays of objects become rows, a
// single object becomes one row, anything else is flattened to text.
package json

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
)

type Parser struct{}

func (Parser) Parse(ctx context.Context, data []byte) (loader.Parsed, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return loader.Parsed{}, fmt.Errorf("%w: %v", loader.ErrMalformedInput, err)
	}

	switch t := v.(type) {
	case []any:
		var rows []loader.Row
		var lines []string
		for _, item := range t {
			if obj, ok := item.(map[string]any); ok {
				rows = append(rows, objectRow(obj))
				continue
			}
			lines = append(lines, scalar(item))
		}
		if len(rows) > 0 {
			return loader.Parsed{Rows: rows}, nil
		}
		return loader.Parsed{Text: strings.Join(lines, "\n")}, nil
	case map[string]any:
		return loader.Parsed{Rows: []loader.Row{objectRow(t)}}, nil
	default:
		return loader.Parsed{Text: scalar(t)}, nil
	}
}

func objectRow(obj map[string]any) loader.Row {
	cols := make([]string, 0, len(obj))
	for k := range obj {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	row := loader.Row{Columns: cols, Cells: make(map[string]string, len(cols))}
	for _, k := range cols {
		row.Cells[k] = scalar(obj[k])
	}
	return row
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
