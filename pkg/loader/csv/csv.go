// Package csv parses delimited text into structured rows.
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
)

type Parser struct{}

func (Parser) Parse(ctx context.Context, data []byte) (loader.Parsed, error) {
	records, err := ReadRecords(data)
	if err != nil {
		return loader.Parsed{}, err
	}
	return loader.Parsed{Rows: RowsFromRecords(records)}, nil
}

// ReadRecords reads all non-empty records. The delimiter is guessed from the
// first line among comma, semicolon and tab.
func ReadRecords(content []byte) ([][]string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = guessDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var out [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", loader.ErrMalformedInput, err)
		}
		if isEmpty(record) {
			continue
		}
		out = append(out, record)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: CSV file is empty or contains no valid data", loader.ErrMalformedInput)
	}
	return out, nil
}

// RowsFromRecords turns records into rows, using the first record as the
// header when it looks like one and generated column names otherwise.
func RowsFromRecords(records [][]string) []loader.Row {
	if len(records) == 0 {
		return nil
	}
	var header []string
	data := records
	if IsHeader(records) {
		header = normalizeHeader(records[0])
		data = records[1:]
	}

	rows := make([]loader.Row, 0, len(data))
	for _, rec := range data {
		cols := header
		if len(rec) > len(cols) {
			cols = extendHeader(cols, len(rec))
		}
		row := loader.Row{Columns: cols[:len(rec)], Cells: make(map[string]string, len(rec))}
		for i, cell := range rec {
			row.Cells[cols[i]] = strings.TrimSpace(cell)
		}
		rows = append(rows, row)
	}
	return rows
}

// IsHeader reports whether the first record is a header row: it has no
// numeric cells while the data rows do, or it matches common column names.
func IsHeader(records [][]string) bool {
	if len(records) < 2 {
		return false
	}
	first := records[0]
	firstNumeric := 0
	for _, f := range first {
		if isNumeric(f) {
			firstNumeric++
		}
	}
	if firstNumeric > 0 {
		return false
	}

	sample := min(5, len(records)-1)
	dataNumeric := 0
	for _, rec := range records[1 : sample+1] {
		for _, f := range rec {
			if isNumeric(f) {
				dataNumeric++
			}
		}
	}
	if dataNumeric > 0 {
		return true
	}

	headerPatterns := []string{"id", "name", "date", "type", "class", "formula", "cas",
		"hazard", "container", "material", "description", "value", "unit"}
	matches := 0
	for _, f := range first {
		lower := strings.ToLower(strings.TrimSpace(f))
		for _, p := range headerPatterns {
			if strings.Contains(lower, p) {
				matches++
				break
			}
		}
	}
	return matches >= 2 || matches == len(first)
}

func normalizeHeader(cols []string) []string {
	out := make([]string, len(cols))
	seen := make(map[string]int, len(cols))
	for i, c := range cols {
		name := strings.ToLower(strings.TrimSpace(c))
		name = strings.Join(strings.Fields(name), "_")
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		seen[base]++
		if n := seen[base]; n > 1 {
			name = base + "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}

func extendHeader(cols []string, n int) []string {
	out := append([]string(nil), cols...)
	for i := len(cols); i < n; i++ {
		out = append(out, "column_"+strconv.Itoa(i+1))
	}
	return out
}

func guessDelimiter(content []byte) rune {
	firstLine, _, _ := bytes.Cut(content, []byte("\n"))
	best, bestCount := ',', bytes.Count(firstLine, []byte(","))
	for _, d := range []rune{';', '\t'} {
		if c := bytes.Count(firstLine, []byte(string(d))); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.Trim(strings.TrimSpace(s), "\""), 64)
	return err == nil
}

func isEmpty(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
