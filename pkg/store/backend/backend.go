// Package backend opens the Store driver named in configuration.
package backend

import (
	"fmt"
	"log/slog"

	"github.com/mahaj/roomchat/pkg/config"
	"github.com/mahaj/roomchat/pkg/db"
	"github.com/mahaj/roomchat/pkg/snowflake"
	"github.com/mahaj/roomchat/pkg/store"
	"github.com/mahaj/roomchat/pkg/store/memory"
	"github.com/mahaj/roomchat/pkg/store/scylla"
	"github.com/mahaj/roomchat/pkg/store/sqlite"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverScylla = "scylla"
)

// Open returns the configured Store. Scylla tables are created when missing;
// the keyspace itself is provisioned by scripts/migrate.
func Open(cfg config.Store, ids *snowflake.Node, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "", DriverMemory:
		logger.Warn("using in-memory store; state is lost on restart")
		return memory.New(ids), nil
	case DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, ids)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", "path", cfg.SQLitePath)
		return s, nil
	case DriverScylla:
		session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
		if err != nil {
			return nil, fmt.Errorf("connect scylla: %w", err)
		}
		if err := db.EnsureSchema(session); err != nil {
			session.Close()
			return nil, err
		}
		return scylla.New(session, ids), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
