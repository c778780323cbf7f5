package csv

import (
	"reflect"
	"testing"
)

func TestIsHeader(t *testing.T) {
	tests := []struct {
		name    string
		records [][]string
		want    bool
	}{
		{name: "single row", records: [][]string{{"a", "b"}}, want: false},
		{name: "text header over numeric data", records: [][]string{{"substance", "flash point"}, {"acetone", "-20"}}, want: true},
		{name: "numeric first row", records: [][]string{{"1", "2"}, {"3", "4"}}, want: false},
		{name: "known column names", records: [][]string{{"Name", "Hazard"}, {"acetone", "flammable"}}, want: true},
		{name: "plain text rows", records: [][]string{{"acetone", "flammable"}, {"ethanol", "flammable"}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHeader(tt.records); got != tt.want {
				t.Fatalf("IsHeader() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadRecordsSemicolon(t *testing.T) {
	got, err := ReadRecords([]byte("\xef\xbb\xbfname;cas\nacetone;67-64-1\n"))
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	want := [][]string{{"name", "cas"}, {"acetone", "67-64-1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRowsFromRecordsNamesColumns(t *testing.T) {
	rows := RowsFromRecords([][]string{{"Name", "Name", ""}, {"a", "b", "c", "d"}})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := []string{"name", "name_2", "column_3", "column_4"}
	if !reflect.DeepEqual(rows[0].Columns, want) {
		t.Fatalf("columns = %v, want %v", rows[0].Columns, want)
	}
	if rows[0].Cells["column_4"] != "d" {
		t.Fatalf("cells = %v", rows[0].Cells)
	}
}
