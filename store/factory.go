package store

import (
	"fmt"
	"path/filepath"
)

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"   - one JSON file per top-level key in dataDir (default)
//	"sqlite" - SQLite database at dataDir/restdb.db
//	"memory" - In-memory (ephemeral, for testing)
func New(backend, dataDir string) (Store, error) {
	var (
		b   Backend
		err error
	)
	switch backend {
	case "json", "":
		b, err = NewJsonFileStore(dataDir)
	case "sqlite":
		b, err = NewSqliteStore(filepath.Join(dataDir, "restdb.db"))
	case "memory":
		b = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, memory)", backend)
	}
	if err != nil {
		return nil, err
	}
	return NewTree(b), nil
}
