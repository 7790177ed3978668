package core

// infer.go infers column types from untyped CSV data and validates
// every cell against the resulting (or declared) types.
//
// Inference checks each column's non-empty values against the types in
// narrowing order: boolean, date, integer, decimal, text. The decimal
// pattern is a superset of the integer pattern, so integer must be
// checked first. A column with no non-empty values defaults to text.

import (
	"fmt"
	"strings"
	"time"
)

// ColumnSpec pairs a column name with its declared or inferred type.
type ColumnSpec struct {
	Name     string   `json:"name"`
	DataType DataType `json:"type"`
}

// inferColumns determines the type of every header column, applying
// caller-supplied overrides where given. Override type names are
// validated; override entries for columns not present in the header are
// ignored.
func inferColumns(headers []string, rows [][]string, overrides map[string]string) ([]ColumnSpec, error) {
	resolved := make(map[string]DataType, len(overrides))
	for name, typeName := range overrides {
		dt, err := ParseDataType(typeName)
		if err != nil {
			return nil, NewStateError("invalid data type %q for column %q: valid types are boolean, date, decimal, integer, text", typeName, name)
		}
		resolved[name] = dt
	}

	specs := make([]ColumnSpec, 0, len(headers))
	for i, name := range headers {
		if dt, ok := resolved[name]; ok {
			specs = append(specs, ColumnSpec{Name: name, DataType: dt})
			continue
		}

		var values []string
		for _, row := range rows {
			if v := cellAt(row, i); v != "" {
				values = append(values, v)
			}
		}
		specs = append(specs, ColumnSpec{Name: name, DataType: inferType(values)})
	}
	return specs, nil
}

// inferType picks the narrowest type that accepts every value.
func inferType(values []string) DataType {
	if len(values) == 0 {
		return TypeText
	}

	if allMatch(values, func(v string) bool {
		_, ok := booleanValues[strings.ToLower(v)]
		return ok
	}) {
		return TypeBoolean
	}

	if allMatch(values, func(v string) bool {
		return datePattern.MatchString(v) && isRealDate(v)
	}) {
		return TypeDate
	}

	if allMatch(values, integerPattern.MatchString) {
		return TypeInteger
	}

	if allMatch(values, decimalPattern.MatchString) {
		return TypeDecimal
	}

	return TypeText
}

func allMatch(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func isRealDate(v string) bool {
	_, err := time.Parse(isoDateLayout, v)
	return err == nil
}

// validateRows checks every non-empty cell against its column's type.
// Collection stops at MaxValidationErrors, but scanning continues far
// enough to report whether more failures exist. Returns nil when the
// data is clean.
//
// Reported row numbers count non-blank content rows from 1 and add 1
// for the header line, matching what users see in a spreadsheet with
// blank lines removed.
func validateRows(columns []ColumnSpec, rows [][]string) *ValidationError {
	var errs []CellError
	truncated := false

	contentRow := 0
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		contentRow++

		for i, col := range columns {
			value := cellAt(row, i)
			if value == "" {
				continue // missing cells are fine for every type
			}

			cellErr := validateCell(value, col.DataType, col.Name, contentRow+1)
			if cellErr == nil {
				continue
			}
			if len(errs) >= MaxValidationErrors {
				truncated = true
				break
			}
			errs = append(errs, *cellErr)
		}
		if truncated {
			break
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs, Truncated: truncated}
}

// validateCell checks one value against one type, using the same
// patterns as inference. Returns nil when the value is acceptable.
func validateCell(value string, dt DataType, column string, rowNumber int) *CellError {
	fail := func(msg string) *CellError {
		return &CellError{
			Row:      rowNumber,
			Column:   column,
			Expected: dt,
			Value:    value,
			Message:  msg,
		}
	}

	switch dt {
	case TypeInteger:
		if !integerPattern.MatchString(value) {
			return fail(fmt.Sprintf("cannot parse %q as integer. Replace with a whole number or empty cell.", value))
		}
	case TypeDecimal:
		if !decimalPattern.MatchString(value) {
			return fail(fmt.Sprintf("cannot parse %q as decimal. Replace with a valid number or empty cell.", value))
		}
	case TypeDate:
		if !datePattern.MatchString(value) {
			return fail(fmt.Sprintf("cannot parse %q as date. Use YYYY-MM-DD format or empty cell.", value))
		}
		if !isRealDate(value) {
			return fail(fmt.Sprintf("%q is not a real calendar date.", value))
		}
	case TypeBoolean:
		if _, ok := booleanValues[strings.ToLower(value)]; !ok {
			return fail(fmt.Sprintf("cannot parse %q as boolean. Use true/false, yes/no, 1/0, or empty cell.", value))
		}
	}
	return nil
}
