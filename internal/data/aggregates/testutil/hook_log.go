// Package testutil carries in-memory doubles for the aggregate transaction
// runner and hooks, so write-path accounting is testable without Postgres.
package testutil

import (
	"sync"
	"time"

	"github.com/pawsense/pawsense-backend/internal/data/aggregates"
)

// ObservedOp is one ObserveOperation call as the hooks saw it.
type ObservedOp struct {
	Op     string
	Status string
	Took   time.Duration
}

// HookLog keeps every hook signal in arrival order.
type HookLog struct {
	Ops       []ObservedOp
	Conflicts []string
	Retries   []string

	mu sync.Mutex
}

var _ aggregates.Hooks = (*HookLog)(nil)

func (h *HookLog) ObserveOperation(name, status string, dur time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Ops = append(h.Ops, ObservedOp{Op: name, Status: status, Took: dur})
}

func (h *HookLog) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts = append(h.Conflicts, name)
}

func (h *HookLog) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Retries = append(h.Retries, name)
}
