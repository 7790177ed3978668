package core

// export.go renders live table data or a snapshot as RFC 4180 CSV:
// CRLF line endings, a leading UTF-8 BOM for spreadsheet compatibility,
// and an optional comment preamble of "# key: value" lines. Rows
// stream in fixed-size batches so large tables never load whole into
// memory.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExportBatchSize is the default number of rows each export query
// fetches. The service's batch size is configurable and defaults to
// this.
const ExportBatchSize = 1000

// ExportService streams table and version data as CSV.
type ExportService struct {
	pool      *pgxpool.Pool
	batchSize int
}

// NewExportService creates an ExportService backed by the pool.
// Values of batchSize <= 0 fall back to ExportBatchSize.
func NewExportService(pool *pgxpool.Pool, batchSize int) *ExportService {
	if batchSize <= 0 {
		batchSize = ExportBatchSize
	}
	return &ExportService{pool: pool, batchSize: batchSize}
}

// ExportTable writes the table's current data to w. When
// includeMetadata is set, a comment preamble precedes the header row.
func (s *ExportService) ExportTable(ctx context.Context, w io.Writer, tableID uuid.UUID, includeMetadata bool) error {
	table, err := s.loadTable(ctx, tableID)
	if err != nil {
		return err
	}
	columns, err := s.loadColumns(ctx, tableID)
	if err != nil {
		return err
	}

	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write BOM: %w", err)
	}
	if includeMetadata {
		if err := writePreamble(w, tablePreamble(table)); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := writeHeader(cw, columns); err != nil {
		return err
	}

	last := -1
	for {
		indices, err := s.liveRowBatch(ctx, tableID, last)
		if err != nil {
			return err
		}
		if len(indices) == 0 {
			break
		}
		cells, err := s.liveCellsForRows(ctx, tableID, indices)
		if err != nil {
			return err
		}
		if err := writeRows(cw, columns, indices, cells); err != nil {
			return err
		}
		last = indices[len(indices)-1]
	}

	cw.Flush()
	return cw.Error()
}

// ExportVersion writes a snapshot's data to w. The version must belong
// to the table. Header columns follow the table's current column order;
// snapshot cells for columns since removed are not emitted.
func (s *ExportService) ExportVersion(ctx context.Context, w io.Writer, tableID, versionID uuid.UUID, includeMetadata bool) error {
	table, err := s.loadTable(ctx, tableID)
	if err != nil {
		return err
	}
	version, err := scanVersion(s.pool.QueryRow(ctx, versionSelect+` WHERE v.id = $1`, versionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	if version.TableID != tableID {
		return fmt.Errorf("version %s on table %s: %w", versionID, tableID, ErrNotFound)
	}
	columns, err := s.loadColumns(ctx, tableID)
	if err != nil {
		return err
	}

	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write BOM: %w", err)
	}
	if includeMetadata {
		preamble := tablePreamble(table)
		preamble = append(preamble,
			preambleLine{"Version", fmt.Sprintf("%d", version.VersionNumber)},
			preambleLine{"Version Created By", version.CreatedByName},
			preambleLine{"Version Created At", version.CreatedAt.UTC().Format(time.RFC3339)},
			preambleLine{"Approval Status", string(version.Status)},
		)
		if err := writePreamble(w, preamble); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := writeHeader(cw, columns); err != nil {
		return err
	}

	last := -1
	for {
		indices, err := s.versionRowBatch(ctx, versionID, last)
		if err != nil {
			return err
		}
		if len(indices) == 0 {
			break
		}
		cells, err := s.versionCellsForRows(ctx, versionID, indices)
		if err != nil {
			return err
		}
		if err := writeRows(cw, columns, indices, cells); err != nil {
			return err
		}
		last = indices[len(indices)-1]
	}

	cw.Flush()
	return cw.Error()
}

type preambleLine struct {
	Key   string
	Value string
}

func tablePreamble(table *TableMeta) []preambleLine {
	lines := []preambleLine{{"Table", table.Name}}
	if table.Description != nil && *table.Description != "" {
		lines = append(lines, preambleLine{"Description", *table.Description})
	}
	if table.EffectiveDate != nil && *table.EffectiveDate != "" {
		lines = append(lines, preambleLine{"Effective Date", *table.EffectiveDate})
	}
	lines = append(lines, preambleLine{"Exported At", time.Now().UTC().Format(time.RFC3339)})
	return lines
}

func writePreamble(w io.Writer, lines []preambleLine) error {
	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "# %s: %s\r\n", line.Key, line.Value); err != nil {
			return fmt.Errorf("write preamble: %w", err)
		}
	}
	return nil
}

func writeHeader(cw *csv.Writer, columns []Column) error {
	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// writeRows emits one CSV record per row index, in order. cells maps
// row index to column name to stored value.
func writeRows(cw *csv.Writer, columns []Column, indices []int, cells map[int]map[string]*string) error {
	record := make([]string, len(columns))
	for _, idx := range indices {
		row := cells[idx]
		for i, col := range columns {
			record[i] = formatCellValue(row[col.Name], col.DataType)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", idx, err)
		}
	}
	return nil
}

// formatCellValue renders a stored value for CSV output. Missing cells
// render empty, booleans normalize to true/false, and every other type
// keeps its stored representation exactly.
func formatCellValue(value *string, dt DataType) string {
	if value == nil {
		return ""
	}
	if dt == TypeBoolean {
		if b, ok := booleanValues[strings.ToLower(*value)]; ok {
			if b {
				return "true"
			}
			return "false"
		}
	}
	return *value
}

func (s *ExportService) loadTable(ctx context.Context, tableID uuid.UUID) (*TableMeta, error) {
	var t TableMeta
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, description, effective_date, created_by, created_at, updated_at
		FROM assumption_tables
		WHERE id = $1`, tableID,
	).Scan(&t.ID, &t.TenantID, &t.Name, &t.Description, &t.EffectiveDate, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}
	return &t, nil
}

func (s *ExportService) loadColumns(ctx context.Context, tableID uuid.UUID) ([]Column, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, data_type
		FROM assumption_columns
		WHERE table_id = $1
		ORDER BY position`, tableID)
	if err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}
	defer rows.Close()

	var out []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.ID, &col.Name, &col.DataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

// liveRowBatch returns the next batch of row indices after last,
// ascending. Keyset pagination keeps each row's cells inside one batch.
func (s *ExportService) liveRowBatch(ctx context.Context, tableID uuid.UUID, last int) ([]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT row_index
		FROM assumption_rows
		WHERE table_id = $1 AND row_index > $2
		ORDER BY row_index
		LIMIT $3`, tableID, last, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("row batch: %w", err)
	}
	defer rows.Close()
	return scanInts(rows)
}

func (s *ExportService) liveCellsForRows(ctx context.Context, tableID uuid.UUID, indices []int) (map[int]map[string]*string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.row_index, c.name, ac.value
		FROM assumption_rows r
		JOIN assumption_cells ac ON ac.row_id = r.id
		JOIN assumption_columns c ON c.id = ac.column_id
		WHERE r.table_id = $1 AND r.row_index = ANY($2)`,
		tableID, indices)
	if err != nil {
		return nil, fmt.Errorf("cell batch: %w", err)
	}
	defer rows.Close()
	return scanCellGrid(rows)
}

func (s *ExportService) versionRowBatch(ctx context.Context, versionID uuid.UUID, last int) ([]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT row_index
		FROM version_cells
		WHERE version_id = $1 AND row_index > $2
		ORDER BY row_index
		LIMIT $3`, versionID, last, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("version row batch: %w", err)
	}
	defer rows.Close()
	return scanInts(rows)
}

func (s *ExportService) versionCellsForRows(ctx context.Context, versionID uuid.UUID, indices []int) (map[int]map[string]*string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT row_index, column_name, value
		FROM version_cells
		WHERE version_id = $1 AND row_index = ANY($2)`,
		versionID, indices)
	if err != nil {
		return nil, fmt.Errorf("version cell batch: %w", err)
	}
	defer rows.Close()
	return scanCellGrid(rows)
}

func scanInts(rows pgx.Rows) ([]int, error) {
	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan row index: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanCellGrid(rows pgx.Rows) (map[int]map[string]*string, error) {
	grid := make(map[int]map[string]*string)
	for rows.Next() {
		var idx int
		var name string
		var value *string
		if err := rows.Scan(&idx, &name, &value); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		row, ok := grid[idx]
		if !ok {
			row = make(map[string]*string)
			grid[idx] = row
		}
		row[name] = value
	}
	return grid, rows.Err()
}
