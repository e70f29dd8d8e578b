package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "dugtong/common/config"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config dugtong 配置. Precedence: defaults, then the optional YAML file, then the environment.
type Config struct {
	HTTP struct {
		Addr string
	}
	// Backend "sql" or "rest" (DATA_BACKEND).
	Backend    string
	APIBaseURL string
	Database   commoncfg.DatabaseConfig

	RedisEnabled bool
	Redis        commoncfg.RedisConfig
	MQTTEnabled  bool
	MQTT         commoncfg.MQTTConfig

	Log struct {
		Level  string
		Format string
	}
	Auth struct {
		Secret     string
		AccessTTL  time.Duration
		RefreshTTL time.Duration
	}
	LLM struct {
		BaseURL string
		APIKeys []string
		Models  []string
	}
	// CachePath local sqlite file for the offline chat cache, queue and tokens.
	CachePath string
}

var defaultModels = []string{"gemini-2.0-flash", "gemini-1.5-flash"}

// LoadDotEnv reads .env files into the environment without overriding variables already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ReadFile parses a YAML config file. An empty path yields an empty viper.
func ReadFile(path string) (*viper.Viper, error) {
	v := viper.New()
	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

// Load builds the configuration from the environment only.
func Load() *Config {
	return LoadWith(viper.New())
}

// LoadWith layers file values from v under the environment.
func LoadWith(v *viper.Viper) *Config {
	src := source{v: v}
	cfg := &Config{}
	cfg.HTTP.Addr = src.str("http.addr", "HTTP_ADDR", ":8080")
	cfg.Backend = strings.ToLower(src.str("data.backend", "DATA_BACKEND", "sql"))
	cfg.APIBaseURL = src.str("api.base_url", "API_BASE_URL", "http://localhost:8080")

	cfg.Database.Driver = strings.ToLower(src.str("database.driver", "", commoncfg.DriverSQLite))
	cfg.Database.Host = src.str("database.host", "", "localhost")
	cfg.Database.Port = src.num("database.port", "", 5432)
	cfg.Database.User = src.str("database.user", "", "postgres")
	cfg.Database.Password = src.str("database.password", "", "")
	cfg.Database.Database = src.str("database.name", "", "dugtong")
	cfg.Database.SSLMode = src.str("database.sslmode", "", "disable")
	cfg.Database.MaxConns = src.num("database.max_conns", "DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = src.num("database.max_idle", "DB_MAX_IDLE", 5)
	cfg.Database.Path = src.str("database.path", "", "dugtong.db")
	cfg.Database.URL = src.str("database.url", "", "")
	cfg.Database.AuthToken = src.str("database.auth_token", "", "")
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = src.flag("redis.enabled", "REDIS_ENABLED", false)
	cfg.Redis.Addr = src.str("redis.addr", "", "localhost:6379")
	cfg.Redis.Password = src.str("redis.password", "", "")
	cfg.Redis.DB = src.num("redis.db", "", 0)
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTTEnabled = src.flag("mqtt.enabled", "MQTT_ENABLED", false)
	cfg.MQTT.Broker = src.str("mqtt.broker", "", "tcp://localhost:1883")
	cfg.MQTT.ClientID = src.str("mqtt.client_id", "", "dugtong-data")
	cfg.MQTT.Username = src.str("mqtt.username", "", "")
	cfg.MQTT.Password = src.str("mqtt.password", "", "")
	cfg.MQTT.QoS = byte(src.num("mqtt.qos", "MQTT_QOS", 1))
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Log.Level = src.str("log.level", "LOG_LEVEL", "info")
	cfg.Log.Format = src.str("log.format", "LOG_FORMAT", "json")

	cfg.Auth.Secret = src.str("auth.jwt_secret", "JWT_SECRET", "")
	cfg.Auth.AccessTTL = src.dur("auth.access_ttl", "JWT_ACCESS_TTL", time.Hour)
	cfg.Auth.RefreshTTL = src.dur("auth.refresh_ttl", "JWT_REFRESH_TTL", 7*24*time.Hour)

	cfg.LLM.BaseURL = src.str("llm.base_url", "LLM_BASE_URL", "")
	cfg.LLM.APIKeys = src.list("llm.api_keys", "LLM_API_KEYS", nil)
	cfg.LLM.Models = src.list("llm.models", "LLM_MODELS", defaultModels)

	cfg.CachePath = src.str("cache.path", "CACHE_PATH", "dugtong-cache.db")
	return cfg
}

// Validate checks what the API server needs to start.
func (c *Config) Validate() error {
	switch c.Backend {
	case "sql", "rest":
	default:
		return fmt.Errorf("DATA_BACKEND must be sql or rest, got %q", c.Backend)
	}
	if c.Backend == "rest" && c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required for the rest backend")
	}
	return nil
}

// ValidateServer additionally requires a signing secret.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Auth.Secret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	return nil
}

type source struct {
	v *viper.Viper
}

func (s source) raw(key, env string) (string, bool) {
	if env != "" {
		if val := os.Getenv(env); val != "" {
			return val, true
		}
	}
	if s.v != nil && s.v.IsSet(key) {
		return s.v.GetString(key), true
	}
	return "", false
}

func (s source) str(key, env, def string) string {
	if v, ok := s.raw(key, env); ok {
		return v
	}
	return def
}

func (s source) num(key, env string, def int) int {
	if v, ok := s.raw(key, env); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func (s source) flag(key, env string, def bool) bool {
	if v, ok := s.raw(key, env); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func (s source) dur(key, env string, def time.Duration) time.Duration {
	if v, ok := s.raw(key, env); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

// list comma-separated in the environment, a YAML sequence in the file.
func (s source) list(key, env string, def []string) []string {
	if env != "" {
		if val := os.Getenv(env); val != "" {
			return splitList(val)
		}
	}
	if s.v != nil && s.v.IsSet(key) {
		if out := s.v.GetStringSlice(key); len(out) > 0 {
			return out
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
