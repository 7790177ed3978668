package core

// approval.go drives the version approval lifecycle:
//
//	draft -> submitted -> approved
//	          |    ^
//	          v    |
//	        rejected
//
// Approved is terminal. Rejected versions may be resubmitted. Every
// successful transition appends exactly one history row. The approval
// row is locked FOR UPDATE for the duration of the transition so two
// concurrent reviewers cannot both succeed.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalEvent is a requested transition.
type ApprovalEvent string

const (
	EventSubmit  ApprovalEvent = "submit"
	EventApprove ApprovalEvent = "approve"
	EventReject  ApprovalEvent = "reject"
)

// HistoryEntry is one recorded transition of a version.
type HistoryEntry struct {
	ID         uuid.UUID      `json:"id"`
	VersionID  uuid.UUID      `json:"version_id"`
	FromStatus ApprovalStatus `json:"from_status"`
	ToStatus   ApprovalStatus `json:"to_status"`
	ActorID    uuid.UUID      `json:"actor_id"`
	ActorName  string         `json:"actor_name"`
	Comment    *string        `json:"comment"`
	CreatedAt  time.Time      `json:"created_at"`
}

// planTransition validates an event against the current status and
// returns the resulting status.
func planTransition(current ApprovalStatus, event ApprovalEvent, comment string) (ApprovalStatus, error) {
	switch event {
	case EventSubmit:
		if current != StatusDraft && current != StatusRejected {
			return "", NewStateError("only draft or rejected versions can be submitted, current status is %s", current)
		}
		return StatusSubmitted, nil
	case EventApprove:
		if current != StatusSubmitted {
			return "", NewStateError("only submitted versions can be approved, current status is %s", current)
		}
		return StatusApproved, nil
	case EventReject:
		if current != StatusSubmitted {
			return "", NewStateError("only submitted versions can be rejected, current status is %s", current)
		}
		if strings.TrimSpace(comment) == "" {
			return "", NewStateError("a comment is required when rejecting a version")
		}
		return StatusRejected, nil
	default:
		return "", NewStateError("unknown approval event %q", event)
	}
}

// ApprovalService transitions versions through the approval workflow.
type ApprovalService struct {
	pool *pgxpool.Pool
}

// NewApprovalService creates an ApprovalService backed by the pool.
func NewApprovalService(pool *pgxpool.Pool) *ApprovalService {
	return &ApprovalService{pool: pool}
}

// Submit moves a draft or rejected version to submitted. Submitting
// clears any previous review so a resubmission starts clean.
func (s *ApprovalService) Submit(ctx context.Context, versionID, userID uuid.UUID, comment *string) (*VersionMeta, error) {
	return s.transition(ctx, versionID, userID, EventSubmit, comment)
}

// Approve moves a submitted version to approved.
func (s *ApprovalService) Approve(ctx context.Context, versionID, userID uuid.UUID, comment *string) (*VersionMeta, error) {
	return s.transition(ctx, versionID, userID, EventApprove, comment)
}

// Reject moves a submitted version back to rejected. The comment is
// mandatory and must not be blank.
func (s *ApprovalService) Reject(ctx context.Context, versionID, userID uuid.UUID, comment string) (*VersionMeta, error) {
	return s.transition(ctx, versionID, userID, EventReject, &comment)
}

func (s *ApprovalService) transition(ctx context.Context, versionID, userID uuid.UUID, event ApprovalEvent, comment *string) (*VersionMeta, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin approval transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockApproval(ctx, tx, versionID)
	if err != nil {
		return nil, err
	}

	var commentText string
	if comment != nil {
		commentText = *comment
	}
	next, err := planTransition(current, event, commentText)
	if err != nil {
		return nil, err
	}

	switch event {
	case EventSubmit:
		_, err = tx.Exec(ctx, `
			UPDATE version_approvals
			SET status = $2, submitted_by = $3, submitted_at = now(),
			    reviewed_by = NULL, reviewed_at = NULL
			WHERE version_id = $1`,
			versionID, next, userID)
	default:
		_, err = tx.Exec(ctx, `
			UPDATE version_approvals
			SET status = $2, reviewed_by = $3, reviewed_at = now()
			WHERE version_id = $1`,
			versionID, next, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("update approval: %w", err)
	}

	var recorded *string
	if comment != nil && strings.TrimSpace(*comment) != "" {
		recorded = comment
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO approval_history (version_id, from_status, to_status, actor_id, comment)
		VALUES ($1, $2, $3, $4, $5)`,
		versionID, current, next, userID, recorded)
	if err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}

	meta, err := scanVersion(tx.QueryRow(ctx, versionSelect+` WHERE v.id = $1`, versionID))
	if err != nil {
		return nil, fmt.Errorf("reload version: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit approval: %w", err)
	}
	return meta, nil
}

// lockApproval loads and row-locks the version's approval record,
// creating a draft record on the fly for versions that predate the
// workflow.
func lockApproval(ctx context.Context, tx DBTX, versionID uuid.UUID) (ApprovalStatus, error) {
	var status ApprovalStatus
	err := tx.QueryRow(ctx, `
		SELECT status FROM version_approvals
		WHERE version_id = $1
		FOR UPDATE`, versionID,
	).Scan(&status)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("lock approval: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM assumption_versions WHERE id = $1)`, versionID,
	).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("check version: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO version_approvals (version_id, status)
		VALUES ($1, $2)`,
		versionID, StatusDraft)
	if err != nil {
		return "", fmt.Errorf("create approval: %w", err)
	}
	return StatusDraft, nil
}

// GetHistory returns a version's transitions in chronological order.
func (s *ApprovalService) GetHistory(ctx context.Context, versionID uuid.UUID) ([]HistoryEntry, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM assumption_versions WHERE id = $1)`, versionID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check version: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT h.id, h.version_id, h.from_status, h.to_status, h.actor_id, COALESCE(u.name, ''), h.comment, h.created_at
		FROM approval_history h
		LEFT JOIN users u ON u.id = h.actor_id
		WHERE h.version_id = $1
		ORDER BY h.created_at, h.id`, versionID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.VersionID, &e.FromStatus, &e.ToStatus, &e.ActorID, &e.ActorName, &e.Comment, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
