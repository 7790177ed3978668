package core

// versioning.go manages immutable snapshots of a table's data. A
// snapshot copies every cell into version_cells keyed by (row_index,
// column_name), so versions survive later column renames or row edits
// untouched. Version numbers are per table, assigned under a
// transaction-scoped advisory lock so concurrent snapshots of the same
// table serialize instead of colliding.

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VersioningService creates and reads table snapshots.
type VersioningService struct {
	pool *pgxpool.Pool
}

// NewVersioningService creates a VersioningService backed by the pool.
func NewVersioningService(pool *pgxpool.Pool) *VersioningService {
	return &VersioningService{pool: pool}
}

const versionSelect = `
	SELECT v.id, v.table_id, v.version_number, v.comment, v.created_by,
	       COALESCE(u.name, ''), v.created_at,
	       COALESCE(va.status, 'draft'),
	       va.submitted_by, va.submitted_at, va.reviewed_by, va.reviewed_at
	FROM assumption_versions v
	LEFT JOIN version_approvals va ON va.version_id = v.id
	LEFT JOIN users u ON u.id = v.created_by`

func scanVersion(row pgx.Row) (*VersionMeta, error) {
	var v VersionMeta
	err := row.Scan(
		&v.ID, &v.TableID, &v.VersionNumber, &v.Comment, &v.CreatedBy,
		&v.CreatedByName, &v.CreatedAt,
		&v.Status,
		&v.SubmittedBy, &v.SubmittedAt, &v.ReviewedBy, &v.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateSnapshot freezes the table's current data as the next version,
// starting in draft. The comment is required by the web layer; here it
// is stored as given.
func (s *VersioningService) CreateSnapshot(ctx context.Context, tableID uuid.UUID, comment string, createdBy uuid.UUID) (*VersionMeta, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	meta, err := createSnapshotTx(ctx, tx, tableID, comment, createdBy)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return meta, nil
}

// createSnapshotTx runs the snapshot inside an existing transaction so
// restore can snapshot atomically with its data rewrite. It takes the
// table's advisory lock before reading MAX(version_number).
func createSnapshotTx(ctx context.Context, tx DBTX, tableID uuid.UUID, comment string, createdBy uuid.UUID) (*VersionMeta, error) {
	if err := lockTable(ctx, tx, tableID); err != nil {
		return nil, err
	}

	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM assumption_tables WHERE id = $1)`, tableID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check table: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}

	var next int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version_number), 0) + 1
		FROM assumption_versions
		WHERE table_id = $1`, tableID,
	).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next version number: %w", err)
	}

	var versionID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO assumption_versions (table_id, version_number, comment, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		tableID, next, comment, createdBy,
	).Scan(&versionID)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	// Denormalized copy: cells keyed by position and column name, not
	// by the live row and column ids.
	_, err = tx.Exec(ctx, `
		INSERT INTO version_cells (version_id, row_index, column_name, value)
		SELECT $1, r.row_index, c.name, ac.value
		FROM assumption_rows r
		JOIN assumption_cells ac ON ac.row_id = r.id
		JOIN assumption_columns c ON c.id = ac.column_id
		WHERE r.table_id = $2`,
		versionID, tableID)
	if err != nil {
		return nil, fmt.Errorf("copy cells: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO version_approvals (version_id, status)
		VALUES ($1, $2)`,
		versionID, StatusDraft)
	if err != nil {
		return nil, fmt.Errorf("insert approval: %w", err)
	}

	return scanVersion(tx.QueryRow(ctx, versionSelect+` WHERE v.id = $1`, versionID))
}

// lockTable serializes version-number assignment per table for the
// duration of the current transaction.
func lockTable(ctx context.Context, tx DBTX, tableID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, tableID)
	if err != nil {
		return fmt.Errorf("lock table %s: %w", tableID, err)
	}
	return nil
}

// GetVersion loads one version with its approval state.
func (s *VersioningService) GetVersion(ctx context.Context, versionID uuid.UUID) (*VersionMeta, error) {
	meta, err := scanVersion(s.pool.QueryRow(ctx, versionSelect+` WHERE v.id = $1`, versionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return meta, nil
}

// ListVersions returns a table's versions, newest first. A non-empty
// statuses slice filters by approval status.
func (s *VersioningService) ListVersions(ctx context.Context, tableID uuid.UUID, statuses []ApprovalStatus) ([]VersionMeta, error) {
	var filter []string
	for _, st := range statuses {
		filter = append(filter, string(st))
	}

	rows, err := s.pool.Query(ctx, versionSelect+`
		WHERE v.table_id = $1
		  AND ($2::text[] IS NULL OR COALESCE(va.status, 'draft') = ANY($2))
		ORDER BY v.version_number DESC`,
		tableID, filter)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionMeta
	for rows.Next() {
		meta, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, *meta)
	}
	return out, rows.Err()
}

// CountVersions returns how many versions the table has.
func (s *VersioningService) CountVersions(ctx context.Context, tableID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM assumption_versions WHERE table_id = $1`, tableID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return n, nil
}

// GetVersionData returns a version's cells ordered by row then column.
func (s *VersioningService) GetVersionData(ctx context.Context, versionID uuid.UUID) ([]VersionCell, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT row_index, column_name, value
		FROM version_cells
		WHERE version_id = $1
		ORDER BY row_index, column_name`, versionID)
	if err != nil {
		return nil, fmt.Errorf("get version data: %w", err)
	}
	defer rows.Close()

	var cells []VersionCell
	for rows.Next() {
		var c VersionCell
		if err := rows.Scan(&c.RowIndex, &c.ColumnName, &c.Value); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// DeleteVersion removes a version and its approval records. This is a
// raw delete; the web layer refuses to delete approved versions or the
// only remaining version of a table before calling here.
func (s *VersioningService) DeleteVersion(ctx context.Context, versionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM assumption_versions WHERE id = $1`, versionID)
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	return nil
}

// RestoreVersion rewrites the table's live data from a snapshot, then
// records the result as a new draft version so the restore itself is
// reviewable. Once a table has an approved version, only approved
// snapshots may be restored.
func (s *VersioningService) RestoreVersion(ctx context.Context, tableID, versionID uuid.UUID, restoredBy uuid.UUID) (*VersionMeta, error) {
	target, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if target.TableID != tableID {
		return nil, fmt.Errorf("version %s on table %s: %w", versionID, tableID, ErrNotFound)
	}

	if target.Status != StatusApproved {
		var hasApproved bool
		err = s.pool.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM assumption_versions v
				JOIN version_approvals va ON va.version_id = v.id
				WHERE v.table_id = $1 AND va.status = 'approved'
			)`, tableID,
		).Scan(&hasApproved)
		if err != nil {
			return nil, fmt.Errorf("check approved versions: %w", err)
		}
		if hasApproved {
			return nil, NewStateError("table has an approved version, only approved versions can be restored")
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin restore transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockTable(ctx, tx, tableID); err != nil {
		return nil, err
	}

	columnIDs := make(map[string]uuid.UUID)
	colRows, err := tx.Query(ctx,
		`SELECT id, name FROM assumption_columns WHERE table_id = $1`, tableID)
	if err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}
	for colRows.Next() {
		var id uuid.UUID
		var name string
		if err := colRows.Scan(&id, &name); err != nil {
			colRows.Close()
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columnIDs[name] = id
	}
	colRows.Close()
	if err := colRows.Err(); err != nil {
		return nil, err
	}

	cells, err := s.GetVersionData(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM assumption_rows WHERE table_id = $1`, tableID); err != nil {
		return nil, fmt.Errorf("delete rows: %w", err)
	}

	rowIDs := make(map[int]uuid.UUID)
	for _, cell := range cells {
		rowID, ok := rowIDs[cell.RowIndex]
		if !ok {
			err = tx.QueryRow(ctx, `
				INSERT INTO assumption_rows (table_id, row_index)
				VALUES ($1, $2)
				RETURNING id`,
				tableID, cell.RowIndex,
			).Scan(&rowID)
			if err != nil {
				return nil, fmt.Errorf("insert row %d: %w", cell.RowIndex, err)
			}
			rowIDs[cell.RowIndex] = rowID
		}
		// Cells for columns the table no longer has are dropped.
		colID, ok := columnIDs[cell.ColumnName]
		if !ok || cell.Value == nil {
			continue
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO assumption_cells (row_id, column_id, value)
			VALUES ($1, $2, $3)`,
			rowID, colID, *cell.Value)
		if err != nil {
			return nil, fmt.Errorf("insert cell (%d, %s): %w", cell.RowIndex, cell.ColumnName, err)
		}
	}

	if err := touchTable(ctx, tx, tableID); err != nil {
		return nil, err
	}

	comment := fmt.Sprintf("Restored from version %d", target.VersionNumber)
	meta, err := createSnapshotTx(ctx, tx, tableID, comment, restoredBy)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit restore: %w", err)
	}
	return meta, nil
}

// LatestApprovedVersion returns the table's highest-numbered approved
// version, or ErrNotFound when none has been approved yet.
func (s *VersioningService) LatestApprovedVersion(ctx context.Context, tableID uuid.UUID) (*VersionMeta, error) {
	meta, err := scanVersion(s.pool.QueryRow(ctx, versionSelect+`
		WHERE v.table_id = $1 AND va.status = 'approved'
		ORDER BY v.version_number DESC
		LIMIT 1`, tableID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("approved version for table %s: %w", tableID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest approved version: %w", err)
	}
	return meta, nil
}

// GetTypedVersionData returns a version's cells cast to the table's
// live column types. Columns removed since the snapshot fall back to
// text.
func (s *VersioningService) GetTypedVersionData(ctx context.Context, versionID, tableID uuid.UUID) ([]TypedVersionCell, error) {
	types := make(map[string]DataType)
	rows, err := s.pool.Query(ctx,
		`SELECT name, data_type FROM assumption_columns WHERE table_id = $1`, tableID)
	if err != nil {
		return nil, fmt.Errorf("load column types: %w", err)
	}
	for rows.Next() {
		var name string
		var dt DataType
		if err := rows.Scan(&name, &dt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan column type: %w", err)
		}
		types[name] = dt
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cells, err := s.GetVersionData(ctx, versionID)
	if err != nil {
		return nil, err
	}

	out := make([]TypedVersionCell, 0, len(cells))
	for _, c := range cells {
		dt, ok := types[c.ColumnName]
		if !ok {
			dt = TypeText
		}
		out = append(out, TypedVersionCell{
			RowIndex:   c.RowIndex,
			ColumnName: c.ColumnName,
			Value:      CastStored(c.Value, dt),
		})
	}
	return out, nil
}

// GetAllColumnNames returns the distinct column names captured by any
// of the table's versions, sorted. Used to validate column filters
// before diffing; covers columns that have since been removed.
func (s *VersioningService) GetAllColumnNames(ctx context.Context, tableID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT vc.column_name
		FROM version_cells vc
		JOIN assumption_versions v ON v.id = vc.version_id
		WHERE v.table_id = $1
		ORDER BY vc.column_name`, tableID)
	if err != nil {
		return nil, fmt.Errorf("column names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
