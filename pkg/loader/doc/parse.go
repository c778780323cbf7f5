// Package doc extracts text from Office Open XML word documents.
package doc

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
)

const docXMLMax = 50 << 20

type Parser struct{}

func (Parser) Parse(ctx context.Context, data []byte) (loader.Parsed, error) {
	text, err := parseDocx(data)
	if err != nil {
		return loader.Parsed{}, err
	}
	return loader.Parsed{Text: text}, nil
}

// parseDocx walks word/document.xml. Deleted runs are skipped and table
// rows are rendered as pipe separated lines so the chunker keeps them whole.
func parseDocx(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml not found in docx")
	}
	if docFile.UncompressedSize64 > docXMLMax {
		return "", fmt.Errorf("document.xml too large: %d bytes", docFile.UncompressedSize64)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, docXMLMax))

	var sb strings.Builder
	var (
		inText    bool
		delDepth  int
		tblDepth  int
		cellIdx   int
		rowsInTbl int
		rowCells  int
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "del":
				delDepth++
			case "t":
				inText = true
			case "tab":
				if delDepth == 0 {
					sb.WriteByte('\t')
				}
			case "br", "cr":
				if delDepth == 0 && tblDepth == 0 {
					sb.WriteByte('\n')
				}
			case "noBreakHyphen":
				if delDepth == 0 {
					sb.WriteByte('-')
				}
			case "tbl":
				tblDepth++
				rowsInTbl = 0
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteByte('\n')
				}
			case "tr":
				cellIdx = 0
				sb.WriteString("|")
			case "tc":
				if cellIdx > 0 {
					sb.WriteString(" |")
				}
				sb.WriteByte(' ')
				cellIdx++
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if delDepth == 0 && tblDepth == 0 {
					sb.WriteByte('\n')
				}
			case "tr":
				sb.WriteString(" |\n")
				rowsInTbl++
				if rowsInTbl == 1 {
					rowCells = cellIdx
					sb.WriteString("|" + strings.Repeat(" --- |", max(rowCells, 1)) + "\n")
				}
			case "tbl":
				if tblDepth > 0 {
					tblDepth--
				}
				sb.WriteByte('\n')
			case "del":
				if delDepth > 0 {
					delDepth--
				}
			}

		case xml.CharData:
			if delDepth != 0 || !inText {
				continue
			}
			sb.Write(t)
		}
	}

	return loader.NormalizeText(sb.String()), nil
}
