package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id  UUID NOT NULL,
    name       TEXT NOT NULL,
    email      TEXT NOT NULL UNIQUE,
    role       TEXT NOT NULL DEFAULT 'viewer',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_tenant ON users (tenant_id);

CREATE TABLE IF NOT EXISTS assumption_tables (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id      UUID NOT NULL,
    name           TEXT NOT NULL,
    description    TEXT,
    effective_date TEXT,
    created_by     UUID NOT NULL REFERENCES users (id),
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_assumption_tables_tenant ON assumption_tables (tenant_id);

CREATE TABLE IF NOT EXISTS assumption_columns (
    id        UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    table_id  UUID NOT NULL REFERENCES assumption_tables (id) ON DELETE CASCADE,
    name      TEXT NOT NULL,
    data_type TEXT NOT NULL,
    position  INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_assumption_columns_name
    ON assumption_columns (table_id, LOWER(name));

CREATE TABLE IF NOT EXISTS assumption_rows (
    id        UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    table_id  UUID NOT NULL REFERENCES assumption_tables (id) ON DELETE CASCADE,
    row_index INTEGER NOT NULL,
    UNIQUE (table_id, row_index)
);

CREATE TABLE IF NOT EXISTS assumption_cells (
    row_id    UUID NOT NULL REFERENCES assumption_rows (id) ON DELETE CASCADE,
    column_id UUID NOT NULL REFERENCES assumption_columns (id) ON DELETE CASCADE,
    value     TEXT NOT NULL,
    PRIMARY KEY (row_id, column_id)
);

CREATE TABLE IF NOT EXISTS assumption_versions (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    table_id       UUID NOT NULL REFERENCES assumption_tables (id) ON DELETE CASCADE,
    version_number INTEGER NOT NULL,
    comment        TEXT NOT NULL,
    created_by     UUID NOT NULL REFERENCES users (id),
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (table_id, version_number)
);

CREATE TABLE IF NOT EXISTS version_cells (
    version_id  UUID NOT NULL REFERENCES assumption_versions (id) ON DELETE CASCADE,
    row_index   INTEGER NOT NULL,
    column_name TEXT NOT NULL,
    value       TEXT NOT NULL,
    PRIMARY KEY (version_id, row_index, column_name)
);

CREATE TABLE IF NOT EXISTS version_approvals (
    version_id   UUID PRIMARY KEY REFERENCES assumption_versions (id) ON DELETE CASCADE,
    status       TEXT NOT NULL DEFAULT 'draft',
    submitted_by UUID REFERENCES users (id),
    submitted_at TIMESTAMPTZ,
    reviewed_by  UUID REFERENCES users (id),
    reviewed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS approval_history (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    version_id  UUID NOT NULL REFERENCES assumption_versions (id) ON DELETE CASCADE,
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    actor_id    UUID NOT NULL REFERENCES users (id),
    comment     TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_approval_history_version ON approval_history (version_id, created_at);
`

// EnsureSchema creates all tables and indexes if they do not exist.
// Statements are idempotent, so it is safe to run on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
