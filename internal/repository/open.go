package repository

import (
	"context"
	"fmt"
	"strings"

	"dugtong/common/config"
	"dugtong/common/database"
	"dugtong/internal/apiclient"
	"dugtong/internal/sqlstore"

	"go.uber.org/zap"
)

// Backend selects the persistence path.
type Backend string

const (
	// BackendSQL talks to the database directly (postgres, sqlite or hosted SQL).
	BackendSQL Backend = "sql"
	// BackendREST goes through the dugtong REST API.
	BackendREST Backend = "rest"
)

// ParseBackend defaults to sql when s is empty.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendSQL:
		return BackendSQL, nil
	case BackendREST:
		return BackendREST, nil
	}
	return "", fmt.Errorf("unknown data backend %q (want sql or rest)", s)
}

// NewSQLSet builds every repository over exec.
func NewSQLSet(exec sqlstore.Executor) *Set {
	return &Set{
		Donors:        NewSQLDonorRepository(exec),
		Registrations: NewSQLRegistrationRepository(exec),
		Users:         NewSQLUserRepository(exec),
		Preferences:   NewSQLPreferencesRepository(exec),
		Notifications: NewSQLNotificationRepository(exec),
		Alerts:        NewSQLAlertRepository(exec),
		Chat:          NewSQLChatRepository(exec),
	}
}

// NewRESTSet builds every repository over api.
func NewRESTSet(api *apiclient.Client) *Set {
	return &Set{
		Donors:        NewRESTDonorRepository(api),
		Registrations: NewRESTRegistrationRepository(api),
		Users:         NewRESTUserRepository(api),
		Preferences:   NewRESTPreferencesRepository(api),
		Notifications: NewRESTNotificationRepository(api),
		Alerts:        NewRESTAlertRepository(api),
		Chat:          NewRESTChatRepository(api),
	}
}

// Options for Open. Database is used by BackendSQL, API by BackendREST.
type Options struct {
	Backend  Backend
	Database *config.DatabaseConfig
	API      *apiclient.Client
	// Migrate applies the schema after connecting (sql backend only).
	Migrate bool
}

// Open returns exactly one backend's repositories and a func releasing its resources.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Set, func(), error) {
	switch opts.Backend {
	case BackendREST:
		if opts.API == nil {
			return nil, nil, fmt.Errorf("rest backend requires an API client")
		}
		logger.Info("Using REST data backend")
		return NewRESTSet(opts.API), func() {}, nil

	case BackendSQL, "":
		if opts.Database == nil {
			return nil, nil, fmt.Errorf("sql backend requires database config")
		}
		exec, db, err := sqlstore.Open(opts.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		closeFn := func() {
			if db != nil {
				if err := database.Close(db); err != nil {
					logger.Warn("Failed to close database", zap.Error(err))
				}
			}
		}
		if opts.Migrate {
			if err := sqlstore.Migrate(ctx, exec); err != nil {
				closeFn()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		logger.Info("Using SQL data backend", zap.String("driver", opts.Database.Driver))
		return NewSQLSet(exec), closeFn, nil
	}
	return nil, nil, fmt.Errorf("unknown data backend %q", opts.Backend)
}
