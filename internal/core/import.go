package core

// import.go commits validated CSV data to the store: creating a new
// table, replacing a table's data wholesale, or appending rows.
//
// Every operation is all-or-nothing: validation failures reject the
// whole file before any write, and all writes happen inside a single
// transaction. Row indices on create/replace preserve the positions of
// skipped blank rows; append packs new rows contiguously after the
// current maximum index.

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ImportPreview reports what an import would do, without writing.
type ImportPreview struct {
	Columns    []ColumnSpec        `json:"inferred_columns"`
	RowCount   int                 `json:"row_count"`
	SampleRows []map[string]string `json:"sample_rows"`
	Warnings   []CellError         `json:"validation_warnings"`
}

// ImportResult summarizes a committed table creation.
type ImportResult struct {
	TableID     uuid.UUID `json:"table_id"`
	TableName   string    `json:"table_name"`
	ColumnCount int       `json:"column_count"`
	RowCount    int       `json:"row_count"`
}

// NewTableParams carries the metadata for a table created from CSV.
// ColumnTypes optionally overrides inference per column name.
type NewTableParams struct {
	Name          string
	TenantID      uuid.UUID
	CreatedBy     uuid.UUID
	Description   *string
	EffectiveDate *string
	ColumnTypes   map[string]string
}

// ImportService imports delimited text into assumption tables.
// Callers must have verified tenant ownership of the target table
// before invoking any method that takes a table id.
type ImportService struct {
	pool        *pgxpool.Pool
	maxFileSize int64
}

// NewImportService creates an ImportService backed by the given pool.
// maxFileSize caps upload bytes; values <= 0 fall back to MaxFileSize.
func NewImportService(pool *pgxpool.Pool, maxFileSize int64) *ImportService {
	if maxFileSize <= 0 {
		maxFileSize = MaxFileSize
	}
	return &ImportService{pool: pool, maxFileSize: maxFileSize}
}

// parse applies the size cap, then decodes and parses the upload.
func (s *ImportService) parse(raw []byte) (*csvFile, error) {
	if int64(len(raw)) > s.maxFileSize {
		return nil, NewStateError("file size exceeds maximum of %dMB", s.maxFileSize/(1<<20))
	}
	return parseCSV(raw)
}

// Preview parses, infers, and validates a CSV upload without touching
// the store. Validation problems come back as warnings rather than an
// error so the caller can show them alongside the sample rows.
func (s *ImportService) Preview(ctx context.Context, raw []byte, overrides map[string]string) (*ImportPreview, error) {
	file, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if err := checkDuplicateHeaders(file.Headers); err != nil {
		return nil, err
	}

	columns, err := inferColumns(file.Headers, file.Rows, overrides)
	if err != nil {
		return nil, err
	}

	var warnings []CellError
	if verr := validateRows(columns, file.Rows); verr != nil {
		warnings = verr.Errors
	}

	samples := make([]map[string]string, 0, PreviewSampleRows)
	for _, row := range file.Rows {
		if isBlankRow(row) {
			continue
		}
		if len(samples) >= PreviewSampleRows {
			break
		}
		sample := make(map[string]string, len(file.Headers))
		for i, name := range file.Headers {
			sample[name] = cellAt(row, i)
		}
		samples = append(samples, sample)
	}

	return &ImportPreview{
		Columns:    columns,
		RowCount:   file.ContentRowCount(),
		SampleRows: samples,
		Warnings:   warnings,
	}, nil
}

// CreateTableFromCSV validates the upload and creates the table, its
// columns (header order), rows, and cells in one transaction.
func (s *ImportService) CreateTableFromCSV(ctx context.Context, raw []byte, params NewTableParams) (*ImportResult, error) {
	file, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if err := checkDuplicateHeaders(file.Headers); err != nil {
		return nil, err
	}

	columns, err := inferColumns(file.Headers, file.Rows, params.ColumnTypes)
	if err != nil {
		return nil, err
	}
	if verr := validateRows(columns, file.Rows); verr != nil {
		return nil, verr
	}

	if params.EffectiveDate != nil {
		d := strings.TrimSpace(*params.EffectiveDate)
		if !datePattern.MatchString(d) || !isRealDate(d) {
			return nil, NewStateError("invalid effective_date format, use YYYY-MM-DD")
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin import transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var tableID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO assumption_tables (tenant_id, name, description, effective_date, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		params.TenantID, params.Name, params.Description, params.EffectiveDate, params.CreatedBy,
	).Scan(&tableID)
	if err != nil {
		return nil, fmt.Errorf("insert table: %w", err)
	}

	columnIDs := make(map[string]uuid.UUID, len(columns))
	for pos, col := range columns {
		var colID uuid.UUID
		err = tx.QueryRow(ctx, `
			INSERT INTO assumption_columns (table_id, name, data_type, position)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			tableID, col.Name, col.DataType, pos,
		).Scan(&colID)
		if err != nil {
			return nil, fmt.Errorf("insert column %q: %w", col.Name, err)
		}
		columnIDs[col.Name] = colID
	}

	rowCount, err := insertDataRows(ctx, tx, tableID, file, columns, columnIDs, rowIndexByPosition)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}

	return &ImportResult{
		TableID:     tableID,
		TableName:   params.Name,
		ColumnCount: len(columns),
		RowCount:    rowCount,
	}, nil
}

// ReplaceTableData swaps a table's entire row set for the CSV contents.
// The CSV column name set must exactly equal the table's column set;
// types come from the existing columns, never re-inferred.
//
// Callers must refuse this operation when the table has an approved
// version; see HasApprovedVersions.
func (s *ImportService) ReplaceTableData(ctx context.Context, tableID uuid.UUID, raw []byte) (int, error) {
	file, columns, columnIDs, err := s.matchExistingColumns(ctx, tableID, raw)
	if err != nil {
		return 0, err
	}
	if verr := validateRows(columns, file.Rows); verr != nil {
		return 0, verr
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin replace transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Cells cascade with their rows.
	if _, err := tx.Exec(ctx, `DELETE FROM assumption_rows WHERE table_id = $1`, tableID); err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}

	rowCount, err := insertDataRows(ctx, tx, tableID, file, columns, columnIDs, rowIndexByPosition)
	if err != nil {
		return 0, err
	}
	if err := touchTable(ctx, tx, tableID); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}
	return rowCount, nil
}

// AppendTableData adds the CSV rows after the table's current maximum
// row index, contiguously. Column-matching rules are the same as
// ReplaceTableData.
func (s *ImportService) AppendTableData(ctx context.Context, tableID uuid.UUID, raw []byte) (int, error) {
	file, columns, columnIDs, err := s.matchExistingColumns(ctx, tableID, raw)
	if err != nil {
		return 0, err
	}
	if verr := validateRows(columns, file.Rows); verr != nil {
		return 0, verr
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var nextIndex int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(row_index), -1) + 1
		FROM assumption_rows
		WHERE table_id = $1`, tableID,
	).Scan(&nextIndex)
	if err != nil {
		return 0, fmt.Errorf("next row index: %w", err)
	}

	rowCount, err := insertDataRows(ctx, tx, tableID, file, columns, columnIDs, rowIndexAppend(nextIndex))
	if err != nil {
		return 0, err
	}
	if err := touchTable(ctx, tx, tableID); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return rowCount, nil
}

// HasApprovedVersions reports whether any of the table's versions is
// approved. Callers use it to gate destructive replace operations.
func (s *ImportService) HasApprovedVersions(ctx context.Context, tableID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM assumption_versions v
			JOIN version_approvals va ON va.version_id = v.id
			WHERE v.table_id = $1 AND va.status = 'approved'
		)`, tableID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check approved versions: %w", err)
	}
	return exists, nil
}

// matchExistingColumns parses the upload and checks its column name set
// against the table's columns (order independent, exact names),
// returning the specs in header order with the live column types.
func (s *ImportService) matchExistingColumns(ctx context.Context, tableID uuid.UUID, raw []byte) (*csvFile, []ColumnSpec, map[string]uuid.UUID, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM assumption_tables WHERE id = $1)`, tableID,
	).Scan(&exists)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("check table: %w", err)
	}
	if !exists {
		return nil, nil, nil, fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, data_type
		FROM assumption_columns
		WHERE table_id = $1
		ORDER BY position`, tableID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load columns: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]Column)
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.ID, &col.Name, &col.DataType); err != nil {
			return nil, nil, nil, fmt.Errorf("scan column: %w", err)
		}
		existing[col.Name] = col
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}
	if len(existing) == 0 {
		return nil, nil, nil, NewStateError("table has no columns defined")
	}

	file, err := s.parse(raw)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkDuplicateHeaders(file.Headers); err != nil {
		return nil, nil, nil, err
	}
	if err := compareColumnSets(file.Headers, existing); err != nil {
		return nil, nil, nil, err
	}

	columns := make([]ColumnSpec, 0, len(file.Headers))
	columnIDs := make(map[string]uuid.UUID, len(file.Headers))
	for _, name := range file.Headers {
		col := existing[name]
		columns = append(columns, ColumnSpec{Name: name, DataType: col.DataType})
		columnIDs[name] = col.ID
	}
	return file, columns, columnIDs, nil
}

// compareColumnSets requires the CSV header names to exactly equal the
// table's column names, reporting which names are missing or extra.
func compareColumnSets(headers []string, existing map[string]Column) error {
	csvCols := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if h != "" {
			csvCols[h] = struct{}{}
		}
	}

	var missing, extra []string
	for name := range existing {
		if _, ok := csvCols[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range csvCols {
		if _, ok := existing[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(extra)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "Missing columns: "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "Extra columns: "+strings.Join(extra, ", "))
	}
	return NewStateError("Column mismatch. %s", strings.Join(parts, ". "))
}

// touchTable bumps the table's updated_at inside a data-changing
// transaction.
func touchTable(ctx context.Context, tx DBTX, tableID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `
		UPDATE assumption_tables SET updated_at = now() WHERE id = $1`, tableID); err != nil {
		return fmt.Errorf("touch table: %w", err)
	}
	return nil
}

// rowIndexFunc maps a data row's 0-based file position to its stored
// row_index.
type rowIndexFunc func(filePos, insertedSoFar int) int

// rowIndexByPosition keeps file positions, preserving gaps left by
// skipped blank rows.
func rowIndexByPosition(filePos, _ int) int { return filePos }

// rowIndexAppend packs rows contiguously starting at next.
func rowIndexAppend(next int) rowIndexFunc {
	return func(_, insertedSoFar int) int { return next + insertedSoFar }
}

// insertDataRows writes every non-blank row and its non-empty cells,
// coercing values to their storage form. Returns the inserted row count.
func insertDataRows(ctx context.Context, tx DBTX, tableID uuid.UUID, file *csvFile, columns []ColumnSpec, columnIDs map[string]uuid.UUID, indexFor rowIndexFunc) (int, error) {
	inserted := 0
	for pos, row := range file.Rows {
		if isBlankRow(row) {
			continue
		}

		var rowID uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO assumption_rows (table_id, row_index)
			VALUES ($1, $2)
			RETURNING id`,
			tableID, indexFor(pos, inserted),
		).Scan(&rowID)
		if err != nil {
			return 0, fmt.Errorf("insert row %d: %w", pos, err)
		}
		inserted++

		for i, col := range columns {
			normalized := NormalizeCell(cellAt(row, i), col.DataType)
			if normalized == nil {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO assumption_cells (row_id, column_id, value)
				VALUES ($1, $2, $3)`,
				rowID, columnIDs[col.Name], *normalized)
			if err != nil {
				return 0, fmt.Errorf("insert cell (%d, %s): %w", pos, col.Name, err)
			}
		}
	}
	return inserted, nil
}
