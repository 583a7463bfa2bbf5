package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the handle every repository method receives. Both the pool and
// an open pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	// ReadWrite is the default scope for mutations.
	ReadWrite = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	// ReadOnly is used for single-request reads.
	ReadOnly = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}
	// Snapshot gives every read inside the scope the same view of the data.
	Snapshot = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

// Transactor opens explicit transaction scopes. The scope handle is passed to
// fn and must not be retained after fn returns.
type Transactor interface {
	InTx(ctx context.Context, opts pgx.TxOptions, fn func(q Querier) error) error
}

type poolTransactor struct {
	pool *pgxpool.Pool
}

func NewTransactor(pool *pgxpool.Pool) Transactor {
	return &poolTransactor{pool: pool}
}

func (t *poolTransactor) InTx(ctx context.Context, opts pgx.TxOptions, fn func(q Querier) error) error {
	err := pgx.BeginTxFunc(ctx, t.pool, opts, func(tx pgx.Tx) error {
		return fn(tx)
	})
	if err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	return nil
}

// NopTransactor runs fn with a nil handle. Used with in-memory repositories.
type NopTransactor struct{}

func (NopTransactor) InTx(_ context.Context, _ pgx.TxOptions, fn func(q Querier) error) error {
	return fn(nil)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a Postgres foreign key error.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
