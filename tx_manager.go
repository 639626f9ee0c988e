package labflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the query surface shared by *pgxpool.Pool and pgx.Tx.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TxManager interface {
	ReadCommitted(ctx context.Context, fn func(ctx context.Context) error) error
	RepeatableRead(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ TxManager = (*TxManagerImpl)(nil)

type TxManagerImpl struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManagerImpl {
	return &TxManagerImpl{pool: pool}
}

func (m *TxManagerImpl) ReadCommitted(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, pgx.ReadCommitted, fn)
}

func (m *TxManagerImpl) RepeatableRead(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, pgx.RepeatableRead, fn)
}

func (m *TxManagerImpl) run(ctx context.Context, level pgx.TxIsoLevel, fn func(ctx context.Context) error) error {
	// nested calls join the outer transaction
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: level})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}

		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return translatePgError("commit", err)
	}

	return nil
}
