package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"zonewars.gg/internal/persistence/indexdb"
	"zonewars.gg/internal/persistence/snapshot"
	"zonewars.gg/internal/sim/match"
	"zonewars.gg/internal/sim/tuning"
)

type runtimeIndex interface {
	match.TickLogger
	Close() error
	UpsertConfig(matchID string, tune tuning.Tuning, layout any) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

// openRuntimeIndex opens the read-model index. It never affects the
// simulation; a nil index just means nothing gets indexed.
func openRuntimeIndex(matchDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("ZW_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(matchDir, "index", "match.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported ZW_INDEX_BACKEND: %s", backend)
	}
}
