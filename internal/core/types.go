// Package core implements the assumptions-manager business logic:
// typed cell coercion, CSV import with type inference, immutable version
// snapshots with diffing, the approval workflow, and CSV export.
// This package has no HTTP dependencies and is invoked by the web layer.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DataType is the declared type of an assumption-table column.
// Cell values are persisted as text; DataType governs validation,
// coercion, and export formatting.
type DataType string

const (
	TypeText    DataType = "text"
	TypeInteger DataType = "integer"
	TypeDecimal DataType = "decimal"
	TypeDate    DataType = "date"
	TypeBoolean DataType = "boolean"
)

// ParseDataType validates a user-supplied type name.
func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case TypeText, TypeInteger, TypeDecimal, TypeDate, TypeBoolean:
		return DataType(s), nil
	}
	return "", fmt.Errorf("invalid data type %q: valid types are boolean, date, decimal, integer, text", s)
}

// Column is a typed column of an assumption table.
type Column struct {
	ID       uuid.UUID `json:"id"`
	TableID  uuid.UUID `json:"table_id"`
	Name     string    `json:"name"`
	DataType DataType  `json:"data_type"`
	Position int       `json:"position"`
}

// TableMeta is the descriptive metadata of an assumption table.
type TableMeta struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	EffectiveDate *string   `json:"effective_date,omitempty"`
	CreatedBy     uuid.UUID `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ApprovalStatus is the lifecycle status of a version snapshot.
type ApprovalStatus string

const (
	StatusDraft     ApprovalStatus = "draft"
	StatusSubmitted ApprovalStatus = "submitted"
	StatusApproved  ApprovalStatus = "approved"
	StatusRejected  ApprovalStatus = "rejected"
)

// ParseApprovalStatus validates a user-supplied status name.
func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	switch ApprovalStatus(s) {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return ApprovalStatus(s), nil
	}
	return "", fmt.Errorf("invalid approval status %q", s)
}

// VersionMeta is the metadata of a version snapshot, including the
// denormalized approval fields. Versions with no approval row (created
// before the workflow existed) report StatusDraft.
type VersionMeta struct {
	ID            uuid.UUID      `json:"id"`
	TableID       uuid.UUID      `json:"table_id"`
	VersionNumber int            `json:"version_number"`
	Comment       string         `json:"comment"`
	CreatedBy     uuid.UUID      `json:"created_by"`
	CreatedByName string         `json:"created_by_name"`
	CreatedAt     time.Time      `json:"created_at"`
	Status        ApprovalStatus `json:"approval_status"`
	SubmittedBy   *uuid.UUID     `json:"submitted_by,omitempty"`
	SubmittedAt   *time.Time     `json:"submitted_at,omitempty"`
	ReviewedBy    *uuid.UUID     `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time     `json:"reviewed_at,omitempty"`
}

// VersionCell is one denormalized cell of a snapshot. The column is
// identified by name, not id, so the snapshot stays readable after the
// live column is renamed or dropped.
type VersionCell struct {
	RowIndex   int     `json:"row_index"`
	ColumnName string  `json:"column_name"`
	Value      *string `json:"value"`
}

// TypedVersionCell is a snapshot cell with its value coerced to the
// column's live data type.
type TypedVersionCell struct {
	RowIndex   int    `json:"row_index"`
	ColumnName string `json:"column_name"`
	Value      Value  `json:"value"`
}
