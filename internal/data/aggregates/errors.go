package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"gorm.io/gorm"
)

// Sentinel markers aggregate bodies join onto plain errors so executeWrite
// can classify them without the body knowing about error codes.
var (
	ErrValidation = errors.New("aggregate validation")
	ErrInvariant  = errors.New("aggregate invariant violation")
	ErrConflict   = errors.New("aggregate conflict")
	ErrRetryable  = errors.New("aggregate retryable")
)

func tagged(sentinel error, msg string) error {
	return errors.Join(sentinel, errors.New(strings.TrimSpace(msg)))
}

func ValidationError(msg string) error { return tagged(ErrValidation, msg) }

func InvariantError(msg string) error { return tagged(ErrInvariant, msg) }

func ConflictError(msg string) error { return tagged(ErrConflict, msg) }

func RetryableError(msg string) error { return tagged(ErrRetryable, msg) }

var sentinelCodes = []struct {
	sentinel error
	code     domainagg.ErrorCode
}{
	{ErrValidation, domainagg.CodeValidation},
	{ErrInvariant, domainagg.CodeInvariantViolation},
	{ErrConflict, domainagg.CodeConflict},
	{ErrRetryable, domainagg.CodeRetryable},
}

// sqlstateCodes maps the Postgres error classes the ingest path actually
// hits. 23505 is the session_id unique index losing a duplicate race; 23503
// is a child row racing a deleted parent; the 40x/55 class is transient.
var sqlstateCodes = map[string]domainagg.ErrorCode{
	"23505": domainagg.CodeConflict,
	"23503": domainagg.CodePreconditionFailed,
	"40001": domainagg.CodeRetryable,
	"40P01": domainagg.CodeRetryable,
	"55P03": domainagg.CodeRetryable,
}

// MapError folds infrastructure failures into aggregate error codes. Errors
// already shaped by an aggregate pass through untouched.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*domainagg.Error); ok {
		return err
	}

	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.sentinel) {
			return domainagg.Wrap(sc.code, op, err)
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainagg.Wrap(domainagg.CodeNotFound, op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := sqlstateCodes[strings.TrimSpace(pgErr.Code)]; ok {
			return domainagg.Wrap(code, op, err)
		}
	}

	// Driver wrappers sometimes swallow the PgError type; fall back to the
	// message before declaring the failure internal.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "already exists"):
		return domainagg.Wrap(domainagg.CodeConflict, op, err)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporar"):
		return domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}
	return domainagg.Wrap(domainagg.CodeInternal, op, err)
}
