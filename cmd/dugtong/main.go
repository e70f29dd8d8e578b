// Command dugtong is the operator CLI for the donor registry. It talks to the database
// directly or to the REST API, depending on DATA_BACKEND.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"dugtong/common/config"
	"dugtong/common/database"
	"dugtong/common/logger"
	commonredis "dugtong/common/redis"
	"dugtong/internal/apiclient"
	appcfg "dugtong/internal/config"
	"dugtong/internal/repository"
	"dugtong/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	backend    string
	verbose    bool

	cli *app
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "dugtong",
	Short:             "Blood donor registry command line",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cli != nil {
			return cli.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "data backend: sql or rest (overrides DATA_BACKEND)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(migrateCmd, loginCmd, logoutCmd, menuCmd)
	rootCmd.AddCommand(donorsCmd, registrationsCmd, exportCmd, chatCmd)
}

// app process-wide handles, opened lazily.
type app struct {
	cfg     *appcfg.Config
	log     *zap.Logger
	cacheDB *sql.DB
	kv      store.KV
	redis   *commonredis.Client
	tokens  *apiclient.KVTokenStore
	api     *apiclient.Client

	repos      *repository.Set
	closeRepos func()
}

func setup(cmd *cobra.Command, args []string) error {
	if err := appcfg.LoadDotEnv(); err != nil {
		return err
	}
	v, err := appcfg.ReadFile(configFile)
	if err != nil {
		return err
	}
	cfg := appcfg.LoadWith(v)
	if backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.NewCLILogger(verbose)
	if err != nil {
		return err
	}

	// 本地缓存：离线聊天、待同步队列、登录令牌
	db, err := database.NewSQLiteDB(&config.DatabaseConfig{Driver: config.DriverSQLite, Path: cfg.CachePath})
	if err != nil {
		return fmt.Errorf("open local cache: %w", err)
	}
	kv, rc, err := sessionKV(cmd.Context(), cfg, db, log)
	if err != nil {
		_ = db.Close()
		return err
	}
	tokens := apiclient.NewKVTokenStore(kv, "")
	api := apiclient.New(cfg.APIBaseURL, tokens, log, apiclient.WithOnUnauthorized(func() {
		fmt.Fprintln(os.Stderr, "session expired or invalid; run `dugtong login`")
	}))

	cli = &app{cfg: cfg, log: log, cacheDB: db, kv: kv, redis: rc, tokens: tokens, api: api}
	return nil
}

// sessionKV keeps tokens and the chat queue in redis when it is enabled and reachable,
// otherwise in the local cache file.
func sessionKV(ctx context.Context, cfg *appcfg.Config, db *sql.DB, log *zap.Logger) (store.KV, *commonredis.Client, error) {
	if cfg.RedisEnabled {
		rc := commonredis.NewRedisClient(&cfg.Redis)
		err := commonredis.Ping(ctx, rc)
		if err == nil {
			return store.NewRedisKV(rc, "dugtong:cli:"), rc, nil
		}
		log.Warn("Redis unavailable, using local cache", zap.Error(err))
		_ = commonredis.Close(rc)
	}
	kv, err := store.NewSQLiteKV(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	return kv, nil, nil
}

// data opens the configured backend on first use.
func (a *app) data(ctx context.Context) (*repository.Set, error) {
	if a.repos != nil {
		return a.repos, nil
	}
	b, err := repository.ParseBackend(a.cfg.Backend)
	if err != nil {
		return nil, err
	}
	repos, closeFn, err := repository.Open(ctx, repository.Options{
		Backend:  b,
		Database: &a.cfg.Database,
		API:      a.api,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.repos, a.closeRepos = repos, closeFn
	return repos, nil
}

func (a *app) remote() bool {
	return a.cfg.Backend == string(repository.BackendREST)
}

func (a *app) Close() error {
	if a.closeRepos != nil {
		a.closeRepos()
	}
	if a.redis != nil {
		_ = commonredis.Close(a.redis)
	}
	_ = a.log.Sync()
	return database.Close(a.cacheDB)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
