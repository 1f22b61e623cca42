package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"optin-backend/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL implementation of store.Store
type Store struct {
	repos
	pool *pgxpool.Pool
}

// NewStore creates a new store backed by pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{repos: repos{db: pool}, pool: pool}
}

var _ store.Store = (*Store)(nil)

// InGroupTx runs fn in a transaction holding a transaction-scoped advisory lock on the group
func (s *Store) InGroupTx(ctx context.Context, groupID string, fn func(tx store.Repos) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "group:"+groupID); err != nil {
			return fmt.Errorf("failed to lock group %s: %w", groupID, err)
		}
		return fn(repos{db: tx})
	})
}

// Migrate applies the embedded schema; every statement is idempotent
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

type repos struct {
	db DBTX
}

func (r repos) OptIns() store.OptIns   { return NewOptInRepository(r.db) }
func (r repos) Matches() store.Matches { return NewMatchRepository(r.db) }
func (r repos) Groups() store.Groups   { return NewGroupRepository(r.db) }
func (r repos) Chats() store.Chats     { return NewChatRepository(r.db) }
func (r repos) PushSubscriptions() store.PushSubscriptions {
	return NewPushSubscriptionRepository(r.db)
}

// mapError translates driver errors into store sentinels
func mapError(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, store.ErrConflict)
	}
	return fmt.Errorf("failed to query %s: %w", what, err)
}
