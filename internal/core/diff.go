package core

// diff.go compares two version snapshots. CompareVersions produces the
// minimal structural diff; GetFormattedDiff produces the richer
// row-classified structure the UI renders, with unchanged cells kept
// for context. Rows always iterate ascending by index and columns
// ascending by name.

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// ModifiedCell is one cell whose stored value differs between two
// versions of the same row. Absent cells compare as nil.
type ModifiedCell struct {
	RowIndex int     `json:"row_index"`
	Column   string  `json:"column"`
	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`
}

// VersionDiff is the minimal diff between two snapshots.
type VersionDiff struct {
	AddedRows     []int          `json:"added_rows"`
	DeletedRows   []int          `json:"deleted_rows"`
	ModifiedCells []ModifiedCell `json:"modified_cells"`
}

// CellChange annotates one column of a row in a formatted diff.
// Status is unchanged, modified, added, or removed; added and removed
// mean the cell existed in only one of the two versions.
type CellChange struct {
	Column   string  `json:"column"`
	Status   string  `json:"status"`
	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`
}

// RowChange classifies one row of a formatted diff as row_added,
// row_removed, or row_modified. Modified rows carry every column of
// the row, unchanged cells included.
type RowChange struct {
	Type     string       `json:"type"`
	RowIndex int          `json:"row_index"`
	Cells    []CellChange `json:"cells"`
}

// DiffSummary counts the changes in a formatted diff. TotalChanges is
// every cell touched: cells of added rows, cells of removed rows, and
// changed cells of modified rows.
type DiffSummary struct {
	TotalChanges  int `json:"total_changes"`
	RowsAdded     int `json:"rows_added"`
	RowsRemoved   int `json:"rows_removed"`
	CellsModified int `json:"cells_modified"`
}

// ColumnSummary aggregates a formatted diff per column.
type ColumnSummary struct {
	Column           string `json:"column"`
	ChangeCount      int    `json:"change_count"`
	HasAdditions     bool   `json:"has_additions"`
	HasRemovals      bool   `json:"has_removals"`
	HasModifications bool   `json:"has_modifications"`
}

// FormattedDiff is the full comparison payload for UI rendering.
type FormattedDiff struct {
	FromVersion     *VersionMeta    `json:"from_version"`
	ToVersion       *VersionMeta    `json:"to_version"`
	Changes         []RowChange     `json:"changes"`
	Summary         DiffSummary     `json:"summary"`
	ColumnSummaries []ColumnSummary `json:"column_summaries"`
}

// DiffOptions narrows a formatted diff. Columns, when non-empty,
// restricts the comparison to those column names. RowStart and RowEnd
// bound row indices inclusively. Filters apply to both versions before
// diffing, so excluded rows and columns never surface as changes.
type DiffOptions struct {
	Columns  []string
	RowStart *int
	RowEnd   *int
}

// cellMap indexes a version's cells by row index then column name.
type cellMap map[int]map[string]*string

func buildCellMap(cells []VersionCell) cellMap {
	m := make(cellMap)
	for _, c := range cells {
		row, ok := m[c.RowIndex]
		if !ok {
			row = make(map[string]*string)
			m[c.RowIndex] = row
		}
		row[c.ColumnName] = c.Value
	}
	return m
}

func (m cellMap) filter(opts DiffOptions) cellMap {
	if len(opts.Columns) == 0 && opts.RowStart == nil && opts.RowEnd == nil {
		return m
	}
	var keep map[string]struct{}
	if len(opts.Columns) > 0 {
		keep = make(map[string]struct{}, len(opts.Columns))
		for _, c := range opts.Columns {
			keep[c] = struct{}{}
		}
	}

	out := make(cellMap)
	for idx, row := range m {
		if opts.RowStart != nil && idx < *opts.RowStart {
			continue
		}
		if opts.RowEnd != nil && idx > *opts.RowEnd {
			continue
		}
		filtered := make(map[string]*string)
		for col, val := range row {
			if keep != nil {
				if _, ok := keep[col]; !ok {
					continue
				}
			}
			filtered[col] = val
		}
		if len(filtered) > 0 {
			out[idx] = filtered
		}
	}
	return out
}

func sortedRowIndices(m cellMap) []int {
	out := make([]int, 0, len(m))
	for idx := range m {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func sortedColumns(rows ...map[string]*string) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for col := range row {
			seen[col] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for col := range seen {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// compareCellMaps computes the minimal diff between two cell maps.
func compareCellMaps(before, after cellMap) *VersionDiff {
	diff := &VersionDiff{
		AddedRows:     []int{},
		DeletedRows:   []int{},
		ModifiedCells: []ModifiedCell{},
	}

	for _, idx := range sortedRowIndices(after) {
		if _, ok := before[idx]; !ok {
			diff.AddedRows = append(diff.AddedRows, idx)
		}
	}
	for _, idx := range sortedRowIndices(before) {
		if _, ok := after[idx]; !ok {
			diff.DeletedRows = append(diff.DeletedRows, idx)
		}
	}

	for _, idx := range sortedRowIndices(before) {
		newRow, ok := after[idx]
		if !ok {
			continue
		}
		oldRow := before[idx]
		for _, col := range sortedColumns(oldRow, newRow) {
			oldVal, newVal := oldRow[col], newRow[col]
			if !sameValue(oldVal, newVal) {
				diff.ModifiedCells = append(diff.ModifiedCells, ModifiedCell{
					RowIndex: idx,
					Column:   col,
					OldValue: oldVal,
					NewValue: newVal,
				})
			}
		}
	}
	return diff
}

// formatDiff builds the UI diff from two already-filtered cell maps.
func formatDiff(from, to *VersionMeta, before, after cellMap, opts DiffOptions) *FormattedDiff {
	out := &FormattedDiff{
		FromVersion: from,
		ToVersion:   to,
		Changes:     []RowChange{},
	}
	columnStats := make(map[string]*ColumnSummary)
	stat := func(col string) *ColumnSummary {
		cs, ok := columnStats[col]
		if !ok {
			cs = &ColumnSummary{Column: col}
			columnStats[col] = cs
		}
		return cs
	}

	allRows := sortedRowIndices(before)
	for _, idx := range sortedRowIndices(after) {
		if _, ok := before[idx]; !ok {
			allRows = append(allRows, idx)
		}
	}
	sort.Ints(allRows)

	for _, idx := range allRows {
		oldRow, inOld := before[idx]
		newRow, inNew := after[idx]

		switch {
		case inNew && !inOld:
			change := RowChange{Type: "row_added", RowIndex: idx}
			for _, col := range sortedColumns(newRow) {
				change.Cells = append(change.Cells, CellChange{
					Column:   col,
					Status:   "added",
					NewValue: newRow[col],
				})
				cs := stat(col)
				cs.ChangeCount++
				cs.HasAdditions = true
			}
			out.Summary.RowsAdded++
			out.Summary.TotalChanges += len(change.Cells)
			out.Changes = append(out.Changes, change)

		case inOld && !inNew:
			change := RowChange{Type: "row_removed", RowIndex: idx}
			for _, col := range sortedColumns(oldRow) {
				change.Cells = append(change.Cells, CellChange{
					Column:   col,
					Status:   "removed",
					OldValue: oldRow[col],
				})
				cs := stat(col)
				cs.ChangeCount++
				cs.HasRemovals = true
			}
			out.Summary.RowsRemoved++
			out.Summary.TotalChanges += len(change.Cells)
			out.Changes = append(out.Changes, change)

		default:
			change := RowChange{Type: "row_modified", RowIndex: idx}
			changed := 0
			for _, col := range sortedColumns(oldRow, newRow) {
				oldVal, inOldRow := oldRow[col]
				newVal, inNewRow := newRow[col]
				cell := CellChange{Column: col, OldValue: oldVal, NewValue: newVal}
				switch {
				case sameValue(oldVal, newVal):
					cell.Status = "unchanged"
				case inNewRow && !inOldRow:
					cell.Status = "added"
					stat(col).HasAdditions = true
				case inOldRow && !inNewRow:
					cell.Status = "removed"
					stat(col).HasRemovals = true
				default:
					cell.Status = "modified"
					stat(col).HasModifications = true
				}
				if cell.Status != "unchanged" {
					stat(col).ChangeCount++
					changed++
				}
				change.Cells = append(change.Cells, cell)
			}
			if changed == 0 {
				continue
			}
			out.Summary.CellsModified += changed
			out.Summary.TotalChanges += changed
			out.Changes = append(out.Changes, change)
		}
	}

	// Without an explicit column filter only changed columns appear.
	// With one, every requested column appears even if untouched.
	var names []string
	if len(opts.Columns) > 0 {
		names = append(names, opts.Columns...)
		sort.Strings(names)
	} else {
		names = sortedColumns()
		for col := range columnStats {
			names = append(names, col)
		}
		sort.Strings(names)
	}
	out.ColumnSummaries = []ColumnSummary{}
	for _, col := range names {
		if cs, ok := columnStats[col]; ok {
			out.ColumnSummaries = append(out.ColumnSummaries, *cs)
		} else if len(opts.Columns) > 0 {
			out.ColumnSummaries = append(out.ColumnSummaries, ColumnSummary{Column: col})
		}
	}
	return out
}

// CompareVersions computes the minimal diff from v1 to v2.
func (s *VersioningService) CompareVersions(ctx context.Context, v1ID, v2ID uuid.UUID) (*VersionDiff, error) {
	if _, err := s.GetVersion(ctx, v1ID); err != nil {
		return nil, err
	}
	if _, err := s.GetVersion(ctx, v2ID); err != nil {
		return nil, err
	}

	beforeCells, err := s.GetVersionData(ctx, v1ID)
	if err != nil {
		return nil, err
	}
	afterCells, err := s.GetVersionData(ctx, v2ID)
	if err != nil {
		return nil, err
	}
	return compareCellMaps(buildCellMap(beforeCells), buildCellMap(afterCells)), nil
}

// GetFormattedDiff computes the UI diff from v1 to v2 with optional
// row-range and column filters.
func (s *VersioningService) GetFormattedDiff(ctx context.Context, v1ID, v2ID uuid.UUID, opts DiffOptions) (*FormattedDiff, error) {
	from, err := s.GetVersion(ctx, v1ID)
	if err != nil {
		return nil, err
	}
	to, err := s.GetVersion(ctx, v2ID)
	if err != nil {
		return nil, err
	}

	beforeCells, err := s.GetVersionData(ctx, v1ID)
	if err != nil {
		return nil, err
	}
	afterCells, err := s.GetVersionData(ctx, v2ID)
	if err != nil {
		return nil, err
	}

	before := buildCellMap(beforeCells).filter(opts)
	after := buildCellMap(afterCells).filter(opts)
	return formatDiff(from, to, before, after, opts), nil
}
