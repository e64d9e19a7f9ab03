// Package postgres implements the repositories on PostgreSQL with sqlx
package postgres

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/planty/core/internal/infrastructure/database"
	"github.com/planty/core/internal/ports"
)

// Store implements ports.Transactor on a postgres connection pool
type Store struct {
	db *database.DB
}

// NewStore creates a new postgres store
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn with repositories bound to one SQL transaction
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	return s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		return fn(ctx, Repositories(tx))
	})
}

// Repositories binds every repository to q
func Repositories(q sqlx.ExtContext) ports.Repositories {
	return ports.Repositories{
		Users:    NewUserRepository(q),
		Sections: NewSectionRepository(q),
		Tasks:    NewTaskRepository(q),
		Auth:     NewAuthRepository(q),
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
