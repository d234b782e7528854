package aggregates

import (
	"context"
	"strings"
	"time"

	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/platform/dbctx"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
	"gorm.io/gorm"
)

// BaseDeps is the shared wiring every aggregate write runs on. Runner and
// Hooks default when left nil so tests can inject either one alone.
type BaseDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Runner TxRunner
	Hooks  Hooks
}

func (d BaseDeps) normalize() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = nopHooks{}
	}
	return d
}

// executeWrite runs fn inside one transaction, maps whatever comes out into
// an aggregate error code, and reports the operation to the hooks. The hook
// status is the error code string so the metric labels line up with the API
// error envelope.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	deps = deps.normalize()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.write"
	}

	mapped := MapError(op, deps.Runner.InTx(ctx, fn))

	switch domainagg.CodeOf(mapped) {
	case domainagg.CodeConflict:
		deps.Hooks.IncConflict(op)
	case domainagg.CodeRetryable:
		deps.Hooks.IncRetry(op)
	}
	deps.Hooks.ObserveOperation(op, aggregateErrorStatus(mapped), time.Since(start))
	return mapped
}

// aggregateErrorStatus renders err as a hook status label. Raw errors that
// never went through MapError get classified on the fly so the label is a
// code rather than a bare "failure" wherever one can be derived.
func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	code := domainagg.CodeOf(err)
	if code == "" {
		code = domainagg.CodeOf(MapError("aggregate.status", err))
	}
	if s := strings.TrimSpace(string(code)); s != "" {
		return s
	}
	return "failure"
}
