package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Repositories accept a nil Tx for the
// non-transactional path; the concrete type is infra-defined (pgx.Tx for
// Postgres).
type Tx interface{}

// NoTX marks the non-transactional path.
var NoTX Tx = nil

// TransactionManager executes a function within a database transaction,
// passing the transaction handle through so every repository call inside the
// callback shares it. Keeps use-case interfaces free of driver types while
// still allowing SELECT ... FOR UPDATE inside the callback.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
