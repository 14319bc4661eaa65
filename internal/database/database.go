package database

import (
	"fmt"
	"strings"
)

const (
	sqlitePrefix = "sqlite:"
	memoryDSN    = ":memory:"
)

// Open returns the repository selected by dsn. A "sqlite:" prefix opens
// the gorm SQLite store at the remaining path, and a bare ":memory:" opens
// an in-memory one. Any other value is treated as a PostgreSQL connection
// string and migrated.
func Open(dsn string) (GoChatRepository, error) {
	if dsn == memoryDSN {
		return NewSQLiteGoChatRepository(memoryDSN)
	}
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		return NewSQLiteGoChatRepository(path)
	}

	repo, err := NewPgGoChatRepository(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, err
	}

	return repo, nil
}
