package core

import (
	"testing"
)

func cells(entries ...VersionCell) []VersionCell { return entries }

func cell(row int, col, val string) VersionCell {
	return VersionCell{RowIndex: row, ColumnName: col, Value: &val}
}

func nullCell(row int, col string) VersionCell {
	return VersionCell{RowIndex: row, ColumnName: col}
}

// ----------------------------------------------------------------------------
// compareCellMaps Tests
// ----------------------------------------------------------------------------

func TestCompareCellMapsIdentical(t *testing.T) {
	m := buildCellMap(cells(cell(0, "x", "1"), cell(1, "y", "2")))
	diff := compareCellMaps(m, m)

	if len(diff.AddedRows) != 0 || len(diff.DeletedRows) != 0 || len(diff.ModifiedCells) != 0 {
		t.Errorf("self-compare not empty: %+v", diff)
	}
}

func TestCompareCellMapsSymmetry(t *testing.T) {
	v1 := buildCellMap(cells(cell(0, "x", "1"), cell(2, "x", "3")))
	v2 := buildCellMap(cells(cell(0, "x", "1"), cell(1, "x", "2")))

	forward := compareCellMaps(v1, v2)
	backward := compareCellMaps(v2, v1)

	assertInts(t, "forward added", forward.AddedRows, []int{1})
	assertInts(t, "forward deleted", forward.DeletedRows, []int{2})
	assertInts(t, "backward added", backward.AddedRows, []int{2})
	assertInts(t, "backward deleted", backward.DeletedRows, []int{1})
}

func TestCompareCellMapsModifications(t *testing.T) {
	v1 := buildCellMap(cells(
		cell(0, "a", "1"),
		cell(0, "b", "x"),
		cell(1, "a", "2"),
	))
	v2 := buildCellMap(cells(
		cell(0, "a", "9"),  // changed
		cell(0, "b", "x"),  // unchanged
		cell(1, "a", "2"),  // unchanged
		cell(1, "b", "new"), // present only in v2
	))

	diff := compareCellMaps(v1, v2)
	if len(diff.ModifiedCells) != 2 {
		t.Fatalf("got %d modified cells, want 2: %+v", len(diff.ModifiedCells), diff.ModifiedCells)
	}

	first := diff.ModifiedCells[0]
	if first.RowIndex != 0 || first.Column != "a" || *first.OldValue != "1" || *first.NewValue != "9" {
		t.Errorf("unexpected first modification: %+v", first)
	}

	// A cell absent on one side is a modification from/to null.
	second := diff.ModifiedCells[1]
	if second.RowIndex != 1 || second.Column != "b" {
		t.Errorf("unexpected second modification: %+v", second)
	}
	if second.OldValue != nil {
		t.Errorf("old value: got %q, want nil", *second.OldValue)
	}
	if *second.NewValue != "new" {
		t.Errorf("new value: got %q, want %q", *second.NewValue, "new")
	}
}

func TestCompareCellMapsNilVersusEmpty(t *testing.T) {
	v1 := buildCellMap(cells(nullCell(0, "x")))
	v2 := buildCellMap(cells(cell(0, "x", "")))

	diff := compareCellMaps(v1, v2)
	if len(diff.ModifiedCells) != 1 {
		t.Fatalf("nil and empty string must differ, got %+v", diff.ModifiedCells)
	}
}

func assertInts(t *testing.T, label string, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %v, want %v", label, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s[%d]: got %d, want %d", label, i, got[i], want[i])
		}
	}
}

// ----------------------------------------------------------------------------
// formatDiff Tests
// ----------------------------------------------------------------------------

func TestFormatDiff(t *testing.T) {
	before := buildCellMap(cells(cell(0, "x", "1")))
	after := buildCellMap(cells(cell(0, "x", "2"), cell(1, "y", "5")))

	d := formatDiff(nil, nil, before, after, DiffOptions{})

	if len(d.Changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(d.Changes), d.Changes)
	}

	mod := d.Changes[0]
	if mod.Type != "row_modified" || mod.RowIndex != 0 {
		t.Errorf("first change: %+v", mod)
	}
	if len(mod.Cells) != 1 || mod.Cells[0].Status != "modified" {
		t.Errorf("modified row cells: %+v", mod.Cells)
	}
	if *mod.Cells[0].OldValue != "1" || *mod.Cells[0].NewValue != "2" {
		t.Errorf("cell values: %+v", mod.Cells[0])
	}

	added := d.Changes[1]
	if added.Type != "row_added" || added.RowIndex != 1 {
		t.Errorf("second change: %+v", added)
	}
	if len(added.Cells) != 1 || added.Cells[0].Status != "added" || *added.Cells[0].NewValue != "5" {
		t.Errorf("added row cells: %+v", added.Cells)
	}

	want := DiffSummary{TotalChanges: 2, RowsAdded: 1, RowsRemoved: 0, CellsModified: 1}
	if d.Summary != want {
		t.Errorf("summary: got %+v, want %+v", d.Summary, want)
	}
}

func TestFormatDiffUnchangedCellsKeptForContext(t *testing.T) {
	before := buildCellMap(cells(cell(0, "a", "1"), cell(0, "b", "same")))
	after := buildCellMap(cells(cell(0, "a", "2"), cell(0, "b", "same")))

	d := formatDiff(nil, nil, before, after, DiffOptions{})
	if len(d.Changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(d.Changes))
	}
	row := d.Changes[0]
	if len(row.Cells) != 2 {
		t.Fatalf("got %d cells, want both columns: %+v", len(row.Cells), row.Cells)
	}
	if row.Cells[0].Status != "modified" || row.Cells[1].Status != "unchanged" {
		t.Errorf("cell statuses: %+v", row.Cells)
	}
	if d.Summary.CellsModified != 1 {
		t.Errorf("cells modified: got %d, want 1", d.Summary.CellsModified)
	}
}

func TestFormatDiffIdenticalRowsOmitted(t *testing.T) {
	m := buildCellMap(cells(cell(0, "a", "1"), cell(1, "a", "2")))
	d := formatDiff(nil, nil, m, m, DiffOptions{})
	if len(d.Changes) != 0 {
		t.Errorf("identical versions produced changes: %+v", d.Changes)
	}
	if d.Summary.TotalChanges != 0 {
		t.Errorf("summary not empty: %+v", d.Summary)
	}
}

func TestFormatDiffRemovedRowCounts(t *testing.T) {
	before := buildCellMap(cells(cell(0, "a", "1"), cell(1, "a", "2"), cell(1, "b", "3")))
	after := buildCellMap(cells(cell(0, "a", "1")))

	d := formatDiff(nil, nil, before, after, DiffOptions{})
	if d.Summary.RowsRemoved != 1 {
		t.Errorf("rows removed: got %d, want 1", d.Summary.RowsRemoved)
	}
	// Both cells of the removed row count toward total changes.
	if d.Summary.TotalChanges != 2 {
		t.Errorf("total changes: got %d, want 2", d.Summary.TotalChanges)
	}
}

func TestFormatDiffRowRangeFilter(t *testing.T) {
	before := buildCellMap(cells(cell(0, "a", "1"), cell(5, "a", "old"), cell(9, "a", "x")))
	after := buildCellMap(cells(cell(0, "a", "1"), cell(5, "a", "new")))

	start, end := 0, 5
	opts := DiffOptions{RowStart: &start, RowEnd: &end}
	d := formatDiff(nil, nil, before.filter(opts), after.filter(opts), opts)

	// Row 9 is outside the range and must not surface as removed.
	if d.Summary.RowsRemoved != 0 {
		t.Errorf("rows removed: got %d, want 0", d.Summary.RowsRemoved)
	}
	if len(d.Changes) != 1 || d.Changes[0].RowIndex != 5 {
		t.Errorf("changes: %+v", d.Changes)
	}
}

func TestFormatDiffColumnFilterSummaries(t *testing.T) {
	before := buildCellMap(cells(cell(0, "a", "1"), cell(0, "b", "2")))
	after := buildCellMap(cells(cell(0, "a", "9"), cell(0, "b", "2")))

	opts := DiffOptions{Columns: []string{"a", "b"}}
	d := formatDiff(nil, nil, before.filter(opts), after.filter(opts), opts)

	// With an explicit filter every requested column appears, changed
	// or not.
	if len(d.ColumnSummaries) != 2 {
		t.Fatalf("got %d column summaries, want 2: %+v", len(d.ColumnSummaries), d.ColumnSummaries)
	}
	a, b := d.ColumnSummaries[0], d.ColumnSummaries[1]
	if a.Column != "a" || a.ChangeCount != 1 || !a.HasModifications {
		t.Errorf("summary a: %+v", a)
	}
	if b.Column != "b" || b.ChangeCount != 0 {
		t.Errorf("summary b: %+v", b)
	}

	// Without a filter, untouched columns stay out of the summary.
	d = formatDiff(nil, nil, before, after, DiffOptions{})
	if len(d.ColumnSummaries) != 1 || d.ColumnSummaries[0].Column != "a" {
		t.Errorf("unfiltered summaries: %+v", d.ColumnSummaries)
	}
}
