package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle owned by the storage backend
// (pgx.Tx for Postgres). Repositories MUST accept nil for the
// non-transactional path.
type Tx interface{}

// TransactionManager runs fn inside one storage transaction. If fn returns an
// error the transaction is rolled back, otherwise it is committed. Every write
// to codes, the ledger and the counters goes through here.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
