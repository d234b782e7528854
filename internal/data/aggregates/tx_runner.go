package aggregates

import (
	"context"

	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/platform/dbctx"
	"gorm.io/gorm"
)

// TxRunner owns the transaction boundary for aggregate writes. Tests swap it
// to count begin/commit/rollback without a database.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

// InTx commits when fn returns nil and rolls back otherwise. The tx handle
// rides in dbctx.Context so repos never touch the root *gorm.DB mid-write.
func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "transaction runner has no database handle", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}
