package errors

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// auditDecisionConstraint guards access_audit_events.decision.
const auditDecisionConstraint = "access_audit_events_decision_check"

// MapDBError maps database errors to AppErrors:
//   - context deadline and cancellation become timeout and canceled
//   - pgx.ErrNoRows becomes not_found
//   - a missing table means migrations have not run, which is misconfiguration
//   - check violations become validation, naming the decision column when its constraint fired
//   - connection failures become upstream
//
// Errors that are not recognized are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "database query timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "database query canceled", Cause: err}
	case errors.Is(err, pgx.ErrNoRows):
		return &AppError{Code: ErrCodeNotFound, Message: "record not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case pgErr.Code == pgerrcode.UndefinedTable:
		return &AppError{
			Code:    ErrCodeMisconfigured,
			Message: "audit schema is missing; run portal-admin migrate",
			Cause:   pgErr,
		}
	case pgErr.Code == pgerrcode.CheckViolation:
		field := pgErr.ColumnName
		if pgErr.ConstraintName == auditDecisionConstraint {
			field = "decision"
		}
		return &AppError{Code: ErrCodeValidation, Message: "value rejected by database", Field: field, Cause: pgErr}
	case pgErr.Code == pgerrcode.NotNullViolation:
		return &AppError{Code: ErrCodeValidation, Message: "required value missing", Field: pgErr.ColumnName, Cause: pgErr}
	case pgErr.Code == pgerrcode.UniqueViolation:
		return &AppError{Code: ErrCodeConflict, Message: "record already exists", Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.IsConnectionException(pgErr.Code):
		return &AppError{Code: ErrCodeUpstream, Message: "database is unavailable", Cause: pgErr}
	default:
		return &AppError{Code: ErrCodeInternal, Message: "database error", Cause: pgErr}
	}
}
