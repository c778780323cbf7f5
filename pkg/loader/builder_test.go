package loader_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader/parsers"
)

func newBuilder(at time.Time) *loader.Builder {
	return loader.NewBuilder(parsers.NewRegistry(), loader.WithClock(func() time.Time { return at }))
}

func TestBuildDocumentIsDeterministic(t *testing.T) {
	ctx := context.Background()
	in := loader.RawInput{Name: "sds.txt", Data: []byte("Sulfuric acid (H2SO4) is corrosive.\r\n\r\n\r\n\r\nStore in steel.")}

	first, err := newBuilder(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)).Build(ctx, in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := newBuilder(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)).Build(ctx, in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one record each, got %d and %d", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Fatal("record id must not depend on retrieval time")
	}
	if first[0].SourceType != common.SourceTypeDocument || first[0].Format != "text" {
		t.Fatalf("unexpected record %+v", first[0])
	}
	if first[0].Text != "Sulfuric acid (H2SO4) is corrosive.\n\nStore in steel." {
		t.Fatalf("text not normalized: %q", first[0].Text)
	}
}

func TestBuildCSVRows(t *testing.T) {
	data := "Name,Formula,Mass\nSulfuric acid,H2SO4,98.08 g\nWater,H2O,18\n,,\n"
	recs, err := newBuilder(time.Now()).Build(context.Background(), loader.RawInput{Name: "chem.csv", Data: []byte(data)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 row records, got %d", len(recs))
	}
	r := recs[0]
	if r.SourceType != common.SourceTypeRow {
		t.Fatalf("expected row record, got %s", r.SourceType)
	}
	if got := r.Fields["formula"]; !got.Equal(common.StringValue("H2SO4")) {
		t.Fatalf("formula = %+v", got)
	}
	if got := r.Fields["mass"]; !got.Equal(common.NumberValue(98.08, "g")) {
		t.Fatalf("mass = %+v", got)
	}
	if !strings.Contains(r.Text, "formula: H2SO4") {
		t.Fatalf("row text missing field: %q", r.Text)
	}
	if recs[0].ID == recs[1].ID {
		t.Fatal("rows must have distinct ids")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		in   loader.RawInput
		want error
	}{
		{name: "unknown hint", in: loader.RawInput{Name: "x", Data: []byte("a"), FormatHint: "dwg"}, want: loader.ErrUnsupportedFormat},
		{name: "binary without extension", in: loader.RawInput{Name: "blob", Data: []byte{0xff, 0xfe, 0x00, 0x81}}, want: loader.ErrUnsupportedFormat},
		{name: "broken json", in: loader.RawInput{Name: "a.json", Data: []byte(`{"a":`)}, want: loader.ErrMalformedInput},
		{name: "empty input", in: loader.RawInput{Name: "a.txt"}, want: loader.ErrMalformedInput},
		{name: "whitespace only", in: loader.RawInput{Name: "a.txt", Data: []byte(" \n ")}, want: loader.ErrMalformedInput},
		{name: "not a zip", in: loader.RawInput{Name: "a.docx", Data: []byte("plain")}, want: loader.ErrMalformedInput},
	}
	b := newBuilder(time.Now())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuildJSONArray(t *testing.T) {
	data := `[{"name":"Acetone","flash_point":"-20 °C"},{"name":"Ethanol","flash_point":13}]`
	recs, err := newBuilder(time.Now()).Build(context.Background(), loader.RawInput{Name: "upload", Data: []byte(data)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(recs) != 2 || recs[0].Format != "json" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if got := recs[0].Fields["flash_point"]; !got.Equal(common.NumberValue(-20, "°C")) {
		t.Fatalf("flash_point = %+v", got)
	}
	if got := recs[1].Fields["flash_point"]; !got.Equal(common.NumberValue(13, "")) {
		t.Fatalf("flash_point = %+v", got)
	}
}

func TestBuildDocx(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	xml := `<?xml version="1.0"?><w:document xmlns:w="w"><w:body>` +
		`<w:p><w:r><w:t>Acetone is flammable.</w:t></w:r></w:p>` +
		`<w:p><w:del><w:r><w:t>removed</w:t></w:r></w:del><w:r><w:t>Keep away from heat.</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	if _, err := w.Write([]byte(xml)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	recs, err := newBuilder(time.Now()).Build(context.Background(), loader.RawInput{Name: "sheet", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if recs[0].Format != "docx" {
		t.Fatalf("format = %q", recs[0].Format)
	}
	if recs[0].Text != "Acetone is flammable.\nKeep away from heat." {
		t.Fatalf("text = %q", recs[0].Text)
	}
}
