//nolint:ireturn // it's ok here
package labflow

import (
	"context"
	"database/sql"
)

type txKey struct{}

type sqliteTxKey struct{}

func TxFromContext(ctx context.Context) Tx {
	if tx, ok := ctx.Value(txKey{}).(Tx); ok {
		return tx
	}

	return nil
}

func sqlTxFromContext(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(sqliteTxKey{}).(*sql.Tx); ok {
		return tx
	}

	return nil
}
