// Package parsers wires the built-in format parsers into a registry.
package parsers

import (
	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader/csv"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader/doc"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader/excel"
	jsonparser "github.com/OFFIS-RIT/hazgraph/pkg/loader/json"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader/pdf"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader/text"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader/web"
)

// NewRegistry returns a registry with every built-in parser.
func NewRegistry() *loader.Registry {
	r := loader.NewRegistry()
	r.Register("text", text.Parser{}, "txt", "md", "markdown", "plain")
	r.Register("csv", csv.Parser{}, "tsv")
	r.Register("json", jsonparser.Parser{})
	r.Register("pdf", pdf.Parser{})
	r.Register("docx", doc.Parser{})
	r.Register("xlsx", excel.Parser{}, "xlsm")
	r.Register("html", web.Parser{}, "htm")
	return r
}
