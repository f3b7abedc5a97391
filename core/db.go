package core

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor runs single statements; satisfied by *sqlx.DB and *sqlx.Tx
	// so repositories work both inside and outside a transaction.
	DBExecutor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	// DB is the shared store handle services depend on. Atomic runs fn as a
	// single all-or-nothing unit: any error rolls the whole unit back.
	DB interface {
		Atomic(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
