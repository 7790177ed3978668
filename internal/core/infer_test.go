package core

import (
	"fmt"
	"strings"
	"testing"
)

// ----------------------------------------------------------------------------
// inferType Tests
// ----------------------------------------------------------------------------

func TestInferType(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   DataType
	}{
		{"all integers", []string{"3", "04", "-7"}, TypeInteger},
		{"decimal with integer mixed in", []string{"3.5", "2"}, TypeDecimal},
		{"all dates", []string{"2024-01-05", "2023-12-31"}, TypeDate},
		{"boolean literals", []string{"yes", "0"}, TypeBoolean},
		{"mixed falls back to text", []string{"3", "abc"}, TypeText},
		{"no values defaults to text", nil, TypeText},
		{"impossible date falls through", []string{"2024-02-30"}, TypeText},
		{"date pattern beats integer check order", []string{"2024-01-05"}, TypeDate},
		{"ones and zeros are boolean not integer", []string{"1", "0", "1"}, TypeBoolean},
		{"negative decimals", []string{"-1.5", "2.25"}, TypeDecimal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferType(tt.values); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInferColumns(t *testing.T) {
	headers := []string{"name", "age", "rate"}
	rows := [][]string{
		{"Alice", "30", "1.5"},
		{"Bob", "25", "2"},
	}

	t.Run("no overrides", func(t *testing.T) {
		specs, err := inferColumns(headers, rows, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []DataType{TypeText, TypeInteger, TypeDecimal}
		for i, spec := range specs {
			if spec.Name != headers[i] {
				t.Errorf("spec %d name: got %q, want %q", i, spec.Name, headers[i])
			}
			if spec.DataType != want[i] {
				t.Errorf("column %q: got %s, want %s", spec.Name, spec.DataType, want[i])
			}
		}
	})

	t.Run("override wins over inference", func(t *testing.T) {
		specs, err := inferColumns(headers, rows, map[string]string{"age": "text"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if specs[1].DataType != TypeText {
			t.Errorf("got %s, want text", specs[1].DataType)
		}
	})

	t.Run("override for absent column is ignored", func(t *testing.T) {
		if _, err := inferColumns(headers, rows, map[string]string{"salary": "decimal"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("invalid override type rejected", func(t *testing.T) {
		_, err := inferColumns(headers, rows, map[string]string{"age": "number"})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !IsStateError(err) {
			t.Errorf("expected state error, got %T", err)
		}
	})
}

// ----------------------------------------------------------------------------
// validateRows Tests
// ----------------------------------------------------------------------------

func TestValidateRows(t *testing.T) {
	columns := []ColumnSpec{
		{Name: "name", DataType: TypeText},
		{Name: "age", DataType: TypeInteger},
	}

	t.Run("clean data returns nil", func(t *testing.T) {
		rows := [][]string{{"Alice", "30"}, {"Bob", "25"}}
		if verr := validateRows(columns, rows); verr != nil {
			t.Fatalf("unexpected validation error: %v", verr)
		}
	})

	t.Run("bad cell after blank row reports spreadsheet row number", func(t *testing.T) {
		// Header is line 1; blank rows do not advance the count.
		rows := [][]string{
			{"Alice", "30"},
			{"", ""},
			{"Bob", "twenty"},
		}
		verr := validateRows(columns, rows)
		if verr == nil {
			t.Fatal("expected validation error, got nil")
		}
		if len(verr.Errors) != 1 {
			t.Fatalf("got %d errors, want 1: %v", len(verr.Errors), verr.Errors)
		}
		e := verr.Errors[0]
		if e.Row != 3 {
			t.Errorf("row: got %d, want 3", e.Row)
		}
		if e.Column != "age" {
			t.Errorf("column: got %q, want %q", e.Column, "age")
		}
		if e.Expected != TypeInteger {
			t.Errorf("expected type: got %s, want integer", e.Expected)
		}
		if e.Value != "twenty" {
			t.Errorf("value: got %q, want %q", e.Value, "twenty")
		}
		if !strings.Contains(verr.Error(), "row 3") {
			t.Errorf("message %q does not reference row 3", verr.Error())
		}
	})

	t.Run("empty cells are valid for every type", func(t *testing.T) {
		rows := [][]string{{"", ""}}
		if verr := validateRows(columns, rows); verr != nil {
			t.Fatalf("unexpected validation error: %v", verr)
		}
	})

	t.Run("error count caps with truncation flag", func(t *testing.T) {
		var rows [][]string
		for i := 0; i < MaxValidationErrors+5; i++ {
			rows = append(rows, []string{"x", "not-a-number"})
		}
		verr := validateRows(columns, rows)
		if verr == nil {
			t.Fatal("expected validation error, got nil")
		}
		if len(verr.Errors) != MaxValidationErrors {
			t.Errorf("got %d errors, want %d", len(verr.Errors), MaxValidationErrors)
		}
		if !verr.Truncated {
			t.Error("expected truncated flag")
		}
		if !strings.Contains(verr.Error(), fmt.Sprintf("more than %d", MaxValidationErrors)) {
			t.Errorf("message %q does not mention the cap", verr.Error())
		}
	})
}

func TestValidateCell(t *testing.T) {
	tests := []struct {
		name  string
		value string
		dt    DataType
		ok    bool
	}{
		{"integer accepts digits", "42", TypeInteger, true},
		{"integer rejects words", "twenty", TypeInteger, false},
		{"decimal accepts trailing dot", "99.", TypeDecimal, true},
		{"decimal rejects double dot", "1.2.3", TypeDecimal, false},
		{"date accepts ISO", "2024-06-15", TypeDate, true},
		{"date rejects bad calendar day", "2024-02-30", TypeDate, false},
		{"boolean accepts NO", "NO", TypeBoolean, true},
		{"boolean rejects maybe", "maybe", TypeBoolean, false},
		{"text accepts anything", "~!@#", TypeText, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCell(tt.value, tt.dt, "col", 2)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
