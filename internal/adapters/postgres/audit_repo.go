package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hredge/portal/internal/domain/access"
	domainauth "github.com/hredge/portal/internal/domain/auth"
	apperrors "github.com/hredge/portal/internal/errors"
)

// DefaultAuditListLimit caps List when no limit is given.
const DefaultAuditListLimit = 100

// AuditRepository appends guard decisions to access_audit_events.
type AuditRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{DB: db, Now: time.Now}
}

// Record inserts one event. Events that are not audited are ignored.
func (r *AuditRepository) Record(ctx context.Context, ev access.AuditEvent) error {
	if r == nil || r.DB == nil {
		return errors.New("audit repository not configured")
	}
	if !ev.Decision.Audited() {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = r.now()
	}

	required := make([]string, len(ev.Required))
	for i, role := range ev.Required {
		required[i] = string(role)
	}

	const q = `
		INSERT INTO access_audit_events
			(id, session_id, identity_id, role, method, path, decision, reason, required_roles, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.DB.ExecContext(ctx, q,
		ev.ID, ev.SessionID, ev.IdentityID, string(ev.Role),
		ev.Method, ev.Path, ev.Decision.String(), ev.Reason, required, ev.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("insert audit event: %w", apperrors.MapDBError(err))
	}
	return nil
}

// AuditFilter narrows List.
type AuditFilter struct {
	IdentityID string
	Since      time.Time
	Limit      int
}

// AuditRecord is a stored audit row.
type AuditRecord struct {
	ID            string    `db:"id"`
	SessionID     string    `db:"session_id"`
	IdentityID    string    `db:"identity_id"`
	Role          string    `db:"role"`
	Method        string    `db:"method"`
	Path          string    `db:"path"`
	Decision      string    `db:"decision"`
	Reason        string    `db:"reason"`
	RequiredRoles []string  `db:"required_roles"`
	OccurredAt    time.Time `db:"occurred_at"`
}

// Required returns the stored role requirement as a RoleSet.
func (a AuditRecord) Required() access.RoleSet {
	roles := make([]domainauth.Role, len(a.RequiredRoles))
	for i, s := range a.RequiredRoles {
		roles[i] = domainauth.Role(s)
	}
	return access.Require(roles...)
}

// List returns the newest events first.
func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]AuditRecord, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = DefaultAuditListLimit
	}

	const q = `
		SELECT id::text AS id, session_id, identity_id, role, method, path, decision, reason, required_roles, occurred_at
		FROM access_audit_events
		WHERE ($1 = '' OR identity_id = $1)
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		ORDER BY occurred_at DESC
		LIMIT $3`

	var since *time.Time
	if !f.Since.IsZero() {
		s := f.Since.UTC()
		since = &s
	}

	var out []AuditRecord
	err := withPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, f.IdentityID, since, limit)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[AuditRecord])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// Prune deletes events older than cutoff and returns how many were removed.
func (r *AuditRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM access_audit_events WHERE occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return n, nil
}

func (r *AuditRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
