package core

// tables.go manages assumption-table metadata. Cell data comes and
// goes through the import service; this service only touches the
// descriptive fields.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TablePatch is a partial update of table metadata. Nil fields are
// left unchanged; the Clear flags set their nullable field to NULL and
// take precedence over the corresponding value field.
type TablePatch struct {
	Name               *string `json:"name"`
	Description        *string `json:"description"`
	ClearDescription   bool    `json:"clear_description"`
	EffectiveDate      *string `json:"effective_date"`
	ClearEffectiveDate bool    `json:"clear_effective_date"`
}

func (p *TablePatch) validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return NewStateError("table name cannot be blank")
	}
	if p.EffectiveDate != nil {
		d := strings.TrimSpace(*p.EffectiveDate)
		if !datePattern.MatchString(d) || !isRealDate(d) {
			return NewStateError("invalid effective_date format, use YYYY-MM-DD")
		}
	}
	return nil
}

// TableService reads and updates assumption-table metadata.
type TableService struct {
	pool *pgxpool.Pool
}

// NewTableService creates a TableService backed by the pool.
func NewTableService(pool *pgxpool.Pool) *TableService {
	return &TableService{pool: pool}
}

const tableSelect = `
	SELECT id, tenant_id, name, description, effective_date, created_by, created_at, updated_at
	FROM assumption_tables`

func scanTable(row pgx.Row) (*TableMeta, error) {
	var t TableMeta
	err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Description, &t.EffectiveDate, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTable loads one table's metadata.
func (s *TableService) GetTable(ctx context.Context, tableID uuid.UUID) (*TableMeta, error) {
	t, err := scanTable(s.pool.QueryRow(ctx, tableSelect+` WHERE id = $1`, tableID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}
	return t, nil
}

// ListTables returns a tenant's tables, newest first.
func (s *TableService) ListTables(ctx context.Context, tenantID uuid.UUID) ([]TableMeta, error) {
	rows, err := s.pool.Query(ctx, tableSelect+`
		WHERE tenant_id = $1
		ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []TableMeta
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateTable applies a metadata patch. The update is one fixed
// statement; unset patch fields leave their columns untouched.
func (s *TableService) UpdateTable(ctx context.Context, tableID uuid.UUID, patch TablePatch) (*TableMeta, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	t, err := scanTable(s.pool.QueryRow(ctx, `
		UPDATE assumption_tables SET
			name = COALESCE($2, name),
			description = CASE
				WHEN $3 THEN NULL
				WHEN $4::text IS NOT NULL THEN $4
				ELSE description
			END,
			effective_date = CASE
				WHEN $5 THEN NULL
				WHEN $6::text IS NOT NULL THEN $6
				ELSE effective_date
			END,
			updated_at = now()
		WHERE id = $1
		RETURNING id, tenant_id, name, description, effective_date, created_by, created_at, updated_at`,
		tableID, patch.Name,
		patch.ClearDescription, patch.Description,
		patch.ClearEffectiveDate, patch.EffectiveDate,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update table: %w", err)
	}
	return t, nil
}

// DeleteTable removes a table with all rows, cells, versions, and
// approval records (cascaded by the schema).
func (s *TableService) DeleteTable(ctx context.Context, tableID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM assumption_tables WHERE id = $1`, tableID)
	if err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	return nil
}
