package app

import (
	"os"
	"path/filepath"

	"github.com/mbolis/leadbox/config"
	"github.com/mbolis/leadbox/database"
	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/store"
)

// OpenBackend returns the persistence backend selected by sc.
func OpenBackend(sc config.StorageConfig) (store.Backend, error) {
	switch sc.Storage {
	case config.StorageSQLite:
		dbPath := sc.DBUrl
		if !filepath.IsAbs(dbPath) && filepath.Dir(dbPath) == "." {
			dbPath = filepath.Join(sc.DataDir, dbPath)
		}
		if err := os.MkdirAll(sc.DataDir, 0o755); err != nil {
			return nil, err
		}
		db, err := database.Open(dbPath)
		if err != nil {
			return nil, err
		}
		log.Infof("app.storage: sqlite %s", dbPath)
		return store.NewSQLBackend(db), nil
	default:
		backend, err := store.NewFileBackend(sc.DataDir)
		if err != nil {
			return nil, err
		}
		log.Infof("app.storage: files under %s", sc.DataDir)
		return backend, nil
	}
}

// OpenStores loads both stores from backend.
func OpenStores(backend store.Backend) (*store.SubmissionStore, *store.VisitCounter, error) {
	subs, err := store.OpenSubmissions(backend, store.SystemClock)
	if err != nil {
		return nil, nil, err
	}
	visits, err := store.OpenVisitCounter(backend, store.SystemClock)
	if err != nil {
		return nil, nil, err
	}
	return subs, visits, nil
}
