package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andy/tallybook/internal/db"
)

// ConfigRepo is a SQLite implementation of ConfigRepository
type ConfigRepo struct {
	q db.Querier
}

// NewConfigRepo creates a new ConfigRepo
func NewConfigRepo(database *db.DB) *ConfigRepo {
	return &ConfigRepo{q: database}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *ConfigRepo) WithTx(tx *sql.Tx) ConfigRepository {
	return &ConfigRepo{q: tx}
}

// Get returns the named config value, or "" when unset
func (r *ConfigRepo) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := r.q.QueryRowContext(ctx,
		"SELECT value FROM config WHERE name = ?", name,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get config %s: %w", name, err)
	}
	return value, nil
}

// Set stores the named config value, inserting or replacing as needed
func (r *ConfigRepo) Set(ctx context.Context, name, value string) error {
	if _, err := r.q.ExecContext(ctx,
		"INSERT INTO config (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value",
		name, value,
	); err != nil {
		return fmt.Errorf("failed to set config %s: %w", name, err)
	}
	return nil
}
