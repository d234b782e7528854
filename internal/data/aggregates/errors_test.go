package aggregates

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"gorm.io/gorm"
)

func TestMapErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want domainagg.ErrorCode
	}{
		{"validation sentinel", ValidationError("bad input"), domainagg.CodeValidation},
		{"invariant sentinel", InvariantError("broken"), domainagg.CodeInvariantViolation},
		{"conflict sentinel", ConflictError("stale"), domainagg.CodeConflict},
		{"retryable sentinel", RetryableError("busy"), domainagg.CodeRetryable},
		{"gorm not found", gorm.ErrRecordNotFound, domainagg.CodeNotFound},
		{"wrapped not found", fmt.Errorf("loading device: %w", gorm.ErrRecordNotFound), domainagg.CodeNotFound},
		{"context canceled", context.Canceled, domainagg.CodeRetryable},
		{"context deadline", context.DeadlineExceeded, domainagg.CodeRetryable},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, domainagg.CodeConflict},
		{"pg fk violation", &pgconn.PgError{Code: "23503"}, domainagg.CodePreconditionFailed},
		{"pg serialization failure", &pgconn.PgError{Code: "40001"}, domainagg.CodeRetryable},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, domainagg.CodeRetryable},
		{"duplicate key by message", errors.New(`duplicate key value violates unique constraint "idx_session_id"`), domainagg.CodeConflict},
		{"deadlock by message", errors.New("deadlock detected"), domainagg.CodeRetryable},
		{"anything else", errors.New("connection reset by peer"), domainagg.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := MapError("telemetry.test", tc.in)
			if !domainagg.IsCode(out, tc.want) {
				t.Fatalf("code: want=%s got=%q (%v)", tc.want, domainagg.CodeOf(out), out)
			}
		})
	}
}

func TestMapErrorNilStaysNil(t *testing.T) {
	if out := MapError("telemetry.test", nil); out != nil {
		t.Fatalf("nil in, got %v", out)
	}
}

// Errors already shaped by an aggregate keep their code and details intact.
func TestMapErrorPassesAggregateErrorsThrough(t *testing.T) {
	in := domainagg.NewErrorWithDetails(domainagg.CodeConflict, "telemetry.ingest", "duplicate session",
		map[string]interface{}{domainagg.DetailExistingSessionID: "abc"}, errors.New("boom"))
	out := MapError("other.op", in)
	if out != in {
		t.Fatalf("aggregate error was rewrapped: %v", out)
	}
}
