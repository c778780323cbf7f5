// Package pdf extracts plain text from PDF files.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	"github.com/ledongthuc/pdf"
)

type Parser struct{}

func (Parser) Parse(ctx context.Context, data []byte) (lp loader.Parsed, err error) {
	defer func() {
		// the pdf reader panics on some corrupt xref tables
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return lp, fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return lp, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Debug("[Loader] Skipping unreadable pdf page", "page", i, "err", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	if sb.Len() == 0 {
		return lp, fmt.Errorf("no text layer in %d pages", numPages)
	}
	lp.Text = sb.String()
	return lp, nil
}
