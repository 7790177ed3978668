package core

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
)

func TestFormatCellValue(t *testing.T) {
	tests := []struct {
		name  string
		value *string
		dt    DataType
		want  string
	}{
		{"nil renders empty", nil, TypeText, ""},
		{"boolean yes normalizes", strPtr("yes"), TypeBoolean, "true"},
		{"boolean 0 normalizes", strPtr("0"), TypeBoolean, "false"},
		{"boolean junk kept verbatim", strPtr("maybe"), TypeBoolean, "maybe"},
		{"decimal kept verbatim", strPtr("3.50"), TypeDecimal, "3.50"},
		{"integer kept verbatim", strPtr("42"), TypeInteger, "42"},
		{"date kept verbatim", strPtr("2024-01-05"), TypeDate, "2024-01-05"},
		{"text kept verbatim", strPtr("hello"), TypeText, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCellValue(tt.value, tt.dt); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWritePreamble(t *testing.T) {
	var buf bytes.Buffer
	lines := []preambleLine{
		{"Table", "mortality rates"},
		{"Description", "2024 assumptions"},
	}
	if err := writePreamble(&buf, lines); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "# Table: mortality rates\r\n# Description: 2024 assumptions\r\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTablePreambleSkipsEmptyFields(t *testing.T) {
	table := &TableMeta{Name: "rates"}
	lines := tablePreamble(table)

	if lines[0].Key != "Table" || lines[0].Value != "rates" {
		t.Errorf("first line: %+v", lines[0])
	}
	for _, line := range lines {
		if line.Key == "Description" || line.Key == "Effective Date" {
			t.Errorf("empty field emitted: %+v", line)
		}
	}
	if lines[len(lines)-1].Key != "Exported At" {
		t.Errorf("last line: %+v", lines[len(lines)-1])
	}
}

// Full body assembly: header plus rows through the csv writer, with
// RFC 4180 quoting and CRLF endings.
func TestWriteRows(t *testing.T) {
	columns := []Column{
		{Name: "name", DataType: TypeText},
		{Name: "active", DataType: TypeBoolean},
		{Name: "note", DataType: TypeText},
	}
	cells := map[int]map[string]*string{
		0: {"name": strPtr("Alice"), "active": strPtr("yes"), "note": strPtr(`said "hi", left`)},
		2: {"name": strPtr("Bob"), "active": strPtr("0")},
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.UseCRLF = true
	if err := writeHeader(cw, columns); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := writeRows(cw, columns, []int{0, 2}, cells); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got := buf.String()
	want := "name,active,note\r\n" +
		"Alice,true,\"said \"\"hi\"\", left\"\r\n" +
		"Bob,false,\r\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !strings.HasSuffix(got, "\r\n") {
		t.Error("missing CRLF terminator")
	}
}

func TestNewExportServiceDefaultBatch(t *testing.T) {
	if got := NewExportService(nil, 0).batchSize; got != ExportBatchSize {
		t.Errorf("got %d, want %d", got, ExportBatchSize)
	}
	if got := NewExportService(nil, 250).batchSize; got != 250 {
		t.Errorf("got %d, want 250", got)
	}
}
