package store

import (
	"context"
	"fmt"
)

// ContactStore persists the whole contact collection as one unit. Every Load
// returns the full collection and every Save replaces it. Implementations do
// not serialise load-mutate-save sequences; callers own that.
type ContactStore interface {
	Load(ctx context.Context) ([]Contact, error)
	Save(ctx context.Context, contacts []Contact) error
	Close() error
}

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open returns the store for the given driver. path is a file path for the
// JSON driver and a data source name for SQLite.
func Open(driver, path string) (ContactStore, error) {
	switch driver {
	case DriverJSON, "":
		return NewFileStore(path), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
