package config

import (
	"fmt"
	"os"
	"strings"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRemote   = "remote"
)

// DatabaseConfig describes the relational store. Driver selects between a postgres server,
// a local sqlite file and a hosted SQL endpoint reached over HTTP.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int

	// sqlite
	Path string

	// remote (hosted SQL over HTTP)
	URL       string
	AuthToken string
}

// RedisConfig Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT connection settings
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// GetDSN returns the driver-specific connection string.
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case DriverSQLite:
		path := c.Path
		if path == "" {
			path = "dugtong.db"
		}
		return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	case DriverRemote:
		return c.URL
	default:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	}
}

// LoadFromEnv overrides fields from PREFIX_* environment variables.
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	if driver := os.Getenv(prefix + "_DRIVER"); driver != "" {
		c.Driver = strings.ToLower(driver)
	}
	if host := os.Getenv(prefix + "_HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv(prefix + "_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Port)
	}
	if user := os.Getenv(prefix + "_USER"); user != "" {
		c.User = user
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if database := os.Getenv(prefix + "_NAME"); database != "" {
		c.Database = database
	}
	if sslMode := os.Getenv(prefix + "_SSLMODE"); sslMode != "" {
		c.SSLMode = sslMode
	}
	if path := os.Getenv(prefix + "_PATH"); path != "" {
		c.Path = path
	}
	if url := os.Getenv(prefix + "_URL"); url != "" {
		c.URL = url
	}
	if token := os.Getenv(prefix + "_AUTH_TOKEN"); token != "" {
		c.AuthToken = token
	}
}

// LoadFromEnv overrides Redis fields from PREFIX_* environment variables.
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		fmt.Sscanf(db, "%d", &c.DB)
	}
}

// LoadFromEnv overrides MQTT fields from PREFIX_* environment variables.
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	if broker := os.Getenv(prefix + "_BROKER"); broker != "" {
		c.Broker = broker
	}
	if clientID := os.Getenv(prefix + "_CLIENT_ID"); clientID != "" {
		c.ClientID = clientID
	}
	if username := os.Getenv(prefix + "_USERNAME"); username != "" {
		c.Username = username
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
}
