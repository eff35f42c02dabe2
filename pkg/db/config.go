package db

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by LoadConfig, applied after the file.
const (
	envHost      = "QUERYKIT_DB_HOST"
	envPort      = "QUERYKIT_DB_PORT"
	envDatabase  = "QUERYKIT_DB_NAME"
	envUsername  = "QUERYKIT_DB_USER"
	envPassword  = "QUERYKIT_DB_PASSWORD"
	envLogLevel  = "QUERYKIT_DB_LOG_LEVEL"
	envSlowQuery = "QUERYKIT_DB_SLOW_QUERY"
)

// DefaultConfig returns a configuration for a local MySQL server
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            3306,
		Collation:       "utf8mb4_unicode_ci",
		TimeZone:        "UTC",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		QueryTimeout:    30 * time.Second,
		Logging: LoggingConfig{
			Level:              "warn",
			SlowQueryThreshold: 200 * time.Millisecond,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig, then applies QUERYKIT_DB_*
// environment overrides. A missing file is not an error; an unreadable or
// malformed one is.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Host = getenv(envHost, c.Host)
	c.Database = getenv(envDatabase, c.Database)
	c.Username = getenv(envUsername, c.Username)
	c.Password = getenv(envPassword, c.Password)
	c.Logging.Level = getenv(envLogLevel, c.Logging.Level)

	if v := getenv(envPort, ""); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPort, err)
		}
		c.Port = port
	}
	if v := getenv(envSlowQuery, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envSlowQuery, err)
		}
		c.Logging.SlowQueryThreshold = d
	}
	return nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// Validate checks if the database configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Username == "" {
		return fmt.Errorf("database username is required")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns cannot be greater than max_open_conns")
	}
	if c.SSL.Enabled && !c.SSL.SkipVerify {
		if err := c.validateTLSFiles(); err != nil {
			return fmt.Errorf("TLS configuration error: %w", err)
		}
	}
	return nil
}

func (c *Config) validateTLSFiles() error {
	if c.SSL.CAFile != "" {
		if _, err := os.Stat(c.SSL.CAFile); err != nil {
			return fmt.Errorf("CA file not accessible: %w", err)
		}
	}
	if (c.SSL.CertFile == "") != (c.SSL.KeyFile == "") {
		return fmt.Errorf("both CertFile and KeyFile must be provided together")
	}
	for _, f := range []string{c.SSL.CertFile, c.SSL.KeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("client certificate material not accessible: %w", err)
		}
	}
	return nil
}

// GetDSN returns the MySQL data source name. ParseTime is always on so
// DATETIME columns scan into time.Time.
func (c *Config) GetDSN() (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.Collation = c.Collation
	cfg.Loc = parseLocation(c.TimeZone)
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true

	if c.SSL.Enabled {
		name, err := c.registerTLS()
		if err != nil {
			return "", err
		}
		cfg.TLSConfig = name
	}

	return cfg.FormatDSN(), nil
}

// registerTLS registers the TLS settings with the driver under a name derived
// from the certificate paths, so distinct configs never overwrite each other.
func (c *Config) registerTLS() (string, error) {
	if c.SSL.SkipVerify {
		return "skip-verify", nil
	}

	tlsConfig := &tls.Config{ServerName: c.SSL.ServerName}

	if c.SSL.CAFile != "" {
		caCert, err := os.ReadFile(c.SSL.CAFile)
		if err != nil {
			return "", fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return "", fmt.Errorf("invalid CA certificate in %s", c.SSL.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if c.SSL.CertFile != "" && c.SSL.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.SSL.CertFile, c.SSL.KeyFile)
		if err != nil {
			return "", fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	name := c.tlsConfigName()
	if err := mysql.RegisterTLSConfig(name, tlsConfig); err != nil {
		return "", fmt.Errorf("register TLS config: %w", err)
	}
	return name, nil
}

func (c *Config) tlsConfigName() string {
	h := sha256.New()
	h.Write([]byte(c.SSL.CAFile))
	h.Write([]byte(c.SSL.CertFile))
	h.Write([]byte(c.SSL.KeyFile))
	h.Write([]byte(c.SSL.ServerName))
	return "querykit_tls_" + hex.EncodeToString(h.Sum(nil))[:16]
}

func parseLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
