package sqlstore

import (
	"database/sql"
	"fmt"

	"dugtong/common/config"
	"dugtong/common/database"
	"dugtong/internal/query"

	"go.uber.org/zap"
)

// Open connects to the store described by cfg. The returned *sql.DB is nil for the remote
// driver; callers close it with database.Close.
func Open(cfg *config.DatabaseConfig, logger *zap.Logger) (Executor, *sql.DB, error) {
	switch cfg.Driver {
	case config.DriverRemote:
		if cfg.URL == "" {
			return nil, nil, fmt.Errorf("remote database URL is required")
		}
		return NewRemoteExecutor(cfg.URL, cfg.AuthToken, logger), nil, nil
	case config.DriverSQLite:
		db, err := database.NewSQLiteDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewDBExecutor(db, query.DialectSQLite, logger), db, nil
	case config.DriverPostgres, "":
		db, err := database.NewPostgresDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewDBExecutor(db, query.DialectPostgres, logger), db, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
