package labflow

import (
	"context"
	"sync"
)

type memoryTxKey struct{}

// MemoryTxManager serializes transactions so the per-item lock taken by
// LockAcceptanceItem holds for the whole unit of work. Writes are not rolled
// back on error.
type MemoryTxManager struct {
	mu sync.Mutex
}

func NewMemoryTxManager() *MemoryTxManager {
	return &MemoryTxManager{}
}

func (m *MemoryTxManager) ReadCommitted(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, fn)
}

func (m *MemoryTxManager) RepeatableRead(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, fn)
}

func (m *MemoryTxManager) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return fn(context.WithValue(ctx, memoryTxKey{}, struct{}{}))
}
