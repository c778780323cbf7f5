// Package excel reads spreadsheet workbooks into rows, one row per sheet row.
package excel

import (
	"bytes"
	"context"
	"fmt"

	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader/csv"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	"github.com/xuri/excelize/v2"
)

const sheetColumn = "sheet"

type Parser struct{}

// Parse reads every sheet. Each sheet has its own header detection; when
// the workbook has several sheets a "sheet" column names the origin.
func (Parser) Parse(ctx context.Context, data []byte) (loader.Parsed, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return loader.Parsed{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var rows []loader.Row
	for _, name := range sheets {
		if err := ctx.Err(); err != nil {
			return loader.Parsed{}, err
		}
		records, err := f.GetRows(name)
		if err != nil {
			logger.Warn("[Loader] Skipping unreadable sheet", "sheet", name, "err", err)
			continue
		}
		records = dropEmpty(records)
		for _, row := range csv.RowsFromRecords(records) {
			if len(sheets) > 1 {
				row.Columns = append([]string{sheetColumn}, row.Columns...)
				row.Cells[sheetColumn] = name
			}
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return loader.Parsed{}, fmt.Errorf("workbook has no data rows")
	}
	return loader.Parsed{Rows: rows}, nil
}

func dropEmpty(records [][]string) [][]string {
	out := records[:0]
	for _, r := range records {
		for _, c := range r {
			if c != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
