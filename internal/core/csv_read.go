package core

// csv_read.go turns uploaded bytes into a parsed, trimmed CSV document.
//
// Decoding order: strip a UTF-8 byte-order-mark if present, then try
// UTF-8, then fall back to Latin-1 (which accepts any byte sequence, so
// legacy Windows exports still import). The delimiter is sniffed from
// the first line by counting commas, semicolons, and tabs.
//
// Rows whose cells are all empty after trimming are "blank". Blank rows
// never count toward row totals, but their positions are preserved so
// that imported row indices keep the gaps.

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode/utf8"
)

// MaxFileSize is the default maximum CSV upload size in bytes. The
// import service's limit is configurable and defaults to this.
const MaxFileSize = 10 << 20 // 10 MB

// MaxValidationErrors caps how many cell errors a single validation
// pass reports.
const MaxValidationErrors = 20

// PreviewSampleRows is how many parsed rows an import preview returns.
const PreviewSampleRows = 10

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// csvFile is a parsed CSV document. Rows holds every data record after
// the header in file order, including blank rows, with cells trimmed.
type csvFile struct {
	Headers []string
	Rows    [][]string
}

// ContentRowCount returns the number of non-blank data rows.
func (f *csvFile) ContentRowCount() int {
	n := 0
	for _, row := range f.Rows {
		if !isBlankRow(row) {
			n++
		}
	}
	return n
}

// parseCSV decodes and parses raw upload bytes into a csvFile.
// The header is the first non-blank record.
func parseCSV(raw []byte) (*csvFile, error) {
	content := decodeContent(raw)
	if strings.TrimSpace(content) == "" {
		return nil, NewStateError("CSV file is empty")
	}

	firstLine, _, _ := strings.Cut(content, "\n")
	delimiter := detectDelimiter(firstLine)

	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, NewStateError("invalid CSV: %v", err)
	}

	for _, record := range records {
		for i, cell := range record {
			record[i] = strings.TrimSpace(cell)
		}
	}

	// The header is the first non-blank record; leading blank lines are
	// skipped like blank rows anywhere else.
	headerIdx := -1
	for i, record := range records {
		if !isBlankRow(record) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, NewStateError("CSV file has no column headers")
	}

	return &csvFile{
		Headers: records[headerIdx],
		Rows:    records[headerIdx+1:],
	}, nil
}

// decodeContent decodes the upload to a string: BOM-stripped UTF-8
// first, Latin-1 as the fallback. Size limits are the import
// service's concern.
func decodeContent(raw []byte) string {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if utf8.Valid(raw) {
		return string(raw)
	}
	return decodeLatin1(raw)
}

// decodeLatin1 decodes ISO 8859-1 bytes; every byte maps directly to
// the code point of the same value, so this cannot fail.
func decodeLatin1(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String()
}

// detectDelimiter picks the separator by counting candidates in the
// header line: tab wins when it beats both comma and semicolon,
// semicolon when it beats comma, comma otherwise (including ties).
func detectDelimiter(firstLine string) rune {
	commas := strings.Count(firstLine, ",")
	semicolons := strings.Count(firstLine, ";")
	tabs := strings.Count(firstLine, "\t")

	switch {
	case tabs > commas && tabs > semicolons:
		return '\t'
	case semicolons > commas:
		return ';'
	default:
		return ','
	}
}

// isBlankRow reports whether every cell is empty after trimming.
func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// checkDuplicateHeaders rejects files that repeat a column name
// (case-sensitive exact match), before any inference runs.
func checkDuplicateHeaders(headers []string) error {
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if _, dup := seen[h]; dup {
			return NewStateError("duplicate column name: %q", h)
		}
		seen[h] = struct{}{}
	}
	return nil
}

// cellAt returns the trimmed cell at position i, or "" when the row is
// shorter than the header.
func cellAt(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}
