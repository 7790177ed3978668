package core

// coerce.go converts between stored string cell values and typed values.
//
// Cells are persisted as text for storage simplicity and precision
// preservation. The rules per type:
//
//   - integer: signed whole number, no decimal point
//   - decimal: signed number with optional fraction; the original string
//     is kept end to end, never routed through a binary float
//   - boolean: stored canonically as "true"/"false"; input accepts
//     true/false, yes/no, 1/0 case-insensitively
//   - date: ISO 8601 calendar date (YYYY-MM-DD), checked as a real date
//   - text: passthrough
//
// Empty or missing input yields a null Value for every type.

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoDateLayout = "2006-01-02"

var (
	integerPattern = regexp.MustCompile(`^-?\d+$`)
	decimalPattern = regexp.MustCompile(`^-?\d+\.?\d*$`)
	datePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// booleanValues maps every accepted boolean literal (lowercased) to its
// truth value.
var booleanValues = map[string]bool{
	"true": true, "false": false,
	"yes": true, "no": false,
	"1": true, "0": false,
}

// Value is a typed cell value: a tagged union over the five column
// types. Valid is false for null/absent cells.
type Value struct {
	Type  DataType
	Valid bool

	Int     int64  // TypeInteger
	Decimal string // TypeDecimal, original string preserved
	Bool    bool   // TypeBoolean
	Date    string // TypeDate, ISO 8601
	Text    string // TypeText
}

// ParseValue coerces a stored or user-supplied string into a typed
// Value. Nil or blank input yields a null Value for every type.
func ParseValue(raw *string, dt DataType) (Value, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return Value{Type: dt, Valid: false}, nil
	}
	s := strings.TrimSpace(*raw)

	switch dt {
	case TypeInteger:
		if !integerPattern.MatchString(s) {
			return Value{}, fmt.Errorf("cannot parse %q as integer", s)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("cannot parse %q as integer: %w", s, err)
		}
		return Value{Type: dt, Valid: true, Int: n}, nil

	case TypeDecimal:
		if !decimalPattern.MatchString(s) {
			return Value{}, fmt.Errorf("cannot parse %q as decimal", s)
		}
		return Value{Type: dt, Valid: true, Decimal: s}, nil

	case TypeBoolean:
		b, ok := booleanValues[strings.ToLower(s)]
		if !ok {
			return Value{}, fmt.Errorf("cannot parse %q as boolean", s)
		}
		return Value{Type: dt, Valid: true, Bool: b}, nil

	case TypeDate:
		if !datePattern.MatchString(s) {
			return Value{}, fmt.Errorf("cannot parse %q as date", s)
		}
		if _, err := time.Parse(isoDateLayout, s); err != nil {
			return Value{}, fmt.Errorf("%q is not a real calendar date", s)
		}
		return Value{Type: dt, Valid: true, Date: s}, nil

	default: // TypeText
		return Value{Type: TypeText, Valid: true, Text: *raw}, nil
	}
}

// Format renders the Value back to its stored string form, the inverse
// of ParseValue. Null values render as nil.
func (v Value) Format() *string {
	if !v.Valid {
		return nil
	}
	var s string
	switch v.Type {
	case TypeInteger:
		s = strconv.FormatInt(v.Int, 10)
	case TypeDecimal:
		s = v.Decimal
	case TypeBoolean:
		s = "false"
		if v.Bool {
			s = "true"
		}
	case TypeDate:
		s = v.Date
	default:
		s = v.Text
	}
	return &s
}

// MarshalJSON renders the Value in its natural JSON form: null for
// absent cells, a number for integers, a bool for booleans, and a
// string otherwise. Decimals stay strings to preserve precision.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	switch v.Type {
	case TypeInteger:
		return json.Marshal(v.Int)
	case TypeBoolean:
		return json.Marshal(v.Bool)
	case TypeDecimal:
		return json.Marshal(v.Decimal)
	case TypeDate:
		return json.Marshal(v.Date)
	default:
		return json.Marshal(v.Text)
	}
}

// NormalizeCell prepares a validated CSV cell for storage. Empty input
// becomes nil (no cell row). Booleans collapse to canonical
// "true"/"false"; integers to their canonical decimal form (leading
// zeros and plus signs do not survive import); everything else is
// stored verbatim.
func NormalizeCell(raw string, dt DataType) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	switch dt {
	case TypeBoolean:
		s := "false"
		if booleanValues[strings.ToLower(raw)] {
			s = "true"
		}
		return &s
	case TypeInteger:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			s := strconv.FormatInt(n, 10)
			return &s
		}
		return &raw
	default:
		// Decimal keeps its original string to preserve precision.
		return &raw
	}
}

// CastStored coerces a stored cell value to the given type for API
// output. Stored values are normalized at import time, so parse
// failures only happen when a column's type changed after a snapshot
// was taken; those values degrade to text rather than erroring.
func CastStored(value *string, dt DataType) Value {
	v, err := ParseValue(value, dt)
	if err != nil {
		return Value{Type: TypeText, Valid: true, Text: *value}
	}
	return v
}
