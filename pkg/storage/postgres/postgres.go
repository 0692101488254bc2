// Package postgres implements the identity repository and token store on
// PostgreSQL through pgx. Schema migrations are embedded and applied with
// db.Migrate.
package postgres

import (
	"context"
	"embed"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the goose migration files rooted at the migrations directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles the user repository and token store over one connection source.
type Store struct {
	q Querier
}

// New creates a Store.
func New(q Querier) *Store {
	return &Store{q: q}
}

// Users returns the identity.Repository implementation.
func (s *Store) Users() *Users { return &Users{q: s.q} }

// Tokens returns the identity.TokenStore implementation.
func (s *Store) Tokens() *Tokens { return &Tokens{q: s.q} }
