package testutil

import (
	"context"
	"sync"

	"github.com/pawsense/pawsense-backend/internal/data/aggregates"
	"github.com/pawsense/pawsense-backend/internal/platform/dbctx"
)

// FakeTxRunner stands in for the gorm runner in tests that need commit
// and rollback accounting, or a failure injected at a chosen point in the
// transaction lifecycle. The zero value commits everything.
type FakeTxRunner struct {
	ErrBegin      error
	ErrBeforeBody error
	ErrCommit     error

	Begins    int
	Commits   int
	Rollbacks int

	mu sync.Mutex
}

var _ aggregates.TxRunner = (*FakeTxRunner)(nil)

func (r *FakeTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.Begins++
	errBegin, errBeforeBody, errCommit := r.ErrBegin, r.ErrBeforeBody, r.ErrCommit
	r.mu.Unlock()

	if errBegin != nil {
		return errBegin
	}
	if errBeforeBody != nil {
		return r.rollback(errBeforeBody)
	}

	var err error
	if fn != nil {
		err = fn(dbctx.Context{Ctx: ctx})
	}
	if err != nil {
		return r.rollback(err)
	}
	if errCommit != nil {
		return r.rollback(errCommit)
	}

	r.mu.Lock()
	r.Commits++
	r.mu.Unlock()
	return nil
}

func (r *FakeTxRunner) rollback(err error) error {
	r.mu.Lock()
	r.Rollbacks++
	r.mu.Unlock()
	return err
}
