// Package config handles Metrix Studio configuration from a YAML file and
// environment variables.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then METRIX_* environment variables. Environment variables always win so a
// deployment can override a checked-in config file without editing it.
//
// Example Usage:
//
//	cfg, err := config.Load("metrix.yaml")
//	if err != nil {
//		log.Fatalf("load config: %v", err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
//	fmt.Printf("engine=%s http=%s\n", cfg.Engine.Name, cfg.Server.Addr())
//
// Environment Variables:
//
// Engine:
//   - METRIX_ENGINE="metrix", "kuzu" or "bolt"
//   - METRIX_BUFFER_POOL_SIZE="512MB" (kuzu)
//   - METRIX_MAX_THREADS=4 (kuzu)
//   - METRIX_READ_ONLY=false (kuzu)
//   - METRIX_BOLT_USER, METRIX_BOLT_PASSWORD, METRIX_BOLT_DATABASE
//   - METRIX_BOLT_CONNECT_TIMEOUT=10s, METRIX_BOLT_MAX_POOL_SIZE=10
//
// History:
//   - METRIX_HISTORY_ENABLED=true
//   - METRIX_HISTORY_DIR="./data/history"
//   - METRIX_HISTORY_IN_MEMORY=false
//   - METRIX_HISTORY_MAX_ENTRIES=1000, METRIX_HISTORY_MAX_RECENT=10
//
// Server:
//   - METRIX_ADDRESS="127.0.0.1", METRIX_PORT=7480
//   - METRIX_READ_TIMEOUT=30s, METRIX_WRITE_TIMEOUT=60s
//   - METRIX_MAX_REQUEST_SIZE="10MB"
//   - METRIX_CORS_ENABLED=true, METRIX_CORS_ORIGINS="*"
//
// Logging:
//   - METRIX_LOG_LEVEL="info", METRIX_LOG_FORMAT="text", METRIX_LOG_OUTPUT="stderr"
//   - METRIX_QUERY_LOG_ENABLED=false, METRIX_SLOW_QUERY_THRESHOLD=1s
//
// Audit:
//   - METRIX_AUDIT_ENABLED=false, METRIX_AUDIT_LOG_PATH="./logs/audit.log"
//   - METRIX_AUDIT_INCLUDE_QUERIES=true
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine names accepted by EngineConfig.Name.
const (
	EngineMetrix = "metrix"
	EngineKuzu   = "kuzu"
	EngineBolt   = "bolt"
)

// Config holds all Metrix Studio configuration.
//
// Sections:
//   - Engine: which native engine backs the connection and how it is tuned
//   - History: the persistent query history and recent connections store
//   - Server: the HTTP surface
//   - Logging: structured logging and query logging
//   - Audit: the JSON-lines driver event journal
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	History HistoryConfig `yaml:"history"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Audit   AuditConfig   `yaml:"audit"`
}

// EngineConfig selects and tunes the native engine.
type EngineConfig struct {
	// Name is the registered engine name: metrix, kuzu or bolt.
	Name string `yaml:"name"`

	// BufferPoolSize is a human-readable size ("512MB"); empty or "0" lets
	// the engine pick.
	BufferPoolSize string `yaml:"buffer_pool_size"`
	MaxThreads     int    `yaml:"max_threads"`
	ReadOnly       bool   `yaml:"read_only"`

	Bolt BoltConfig `yaml:"bolt"`
}

// BufferPoolBytes returns BufferPoolSize in bytes, or 0 when unset or invalid.
func (e EngineConfig) BufferPoolBytes() uint64 {
	n := parseMemorySize(e.BufferPoolSize)
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// BoltConfig holds Bolt client settings. The Bolt URI itself is the path
// passed to open or connect.
type BoltConfig struct {
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
}

// HistoryConfig configures the query history store.
type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DataDir    string `yaml:"data_dir"`
	InMemory   bool   `yaml:"in_memory"`
	MaxEntries int    `yaml:"max_entries"`
	MaxRecent  int    `yaml:"max_recent"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxRequestSize string        `yaml:"max_request_size"`
	EnableCORS     bool          `yaml:"enable_cors"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// MaxRequestBytes returns MaxRequestSize in bytes.
func (s ServerConfig) MaxRequestBytes() int64 {
	return parseMemorySize(s.MaxRequestSize)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
	// Output is stdout, stderr or a file path.
	Output string `yaml:"output"`
	// QueryLogEnabled logs every completed query with its text.
	QueryLogEnabled bool `yaml:"query_log_enabled"`
	// SlowQueryThreshold logs queries slower than this at warn level; 0 disables.
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
}

// AuditConfig configures the audit journal.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
	// IncludeQueries records query text in events; off keeps only outcomes.
	IncludeQueries bool `yaml:"include_queries"`
}

// Default returns the built-in configuration without consulting the
// environment.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Name: EngineMetrix,
			Bolt: BoltConfig{
				ConnectTimeout: 10 * time.Second,
				MaxPoolSize:    10,
			},
		},
		History: HistoryConfig{
			Enabled:    true,
			DataDir:    "./data/history",
			MaxEntries: 1000,
			MaxRecent:  10,
		},
		Server: ServerConfig{
			Address:        "127.0.0.1",
			Port:           7480,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			MaxRequestSize: "10MB",
			EnableCORS:     true,
			CORSOrigins:    []string{"*"},
		},
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "text",
			Output:             "stderr",
			SlowQueryThreshold: time.Second,
		},
		Audit: AuditConfig{
			LogPath:        "./logs/audit.log",
			IncludeQueries: true,
		},
	}
}

// LoadFromEnv returns the defaults with METRIX_* environment overrides.
func LoadFromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. An empty path skips the file.
//
// Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteFile writes the configuration to path as YAML. It refuses to
// overwrite an existing file unless force is set.
func (c *Config) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	data, err := c.YAML()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyEnv() {
	c.Engine.Name = getEnv("METRIX_ENGINE", c.Engine.Name)
	c.Engine.BufferPoolSize = getEnv("METRIX_BUFFER_POOL_SIZE", c.Engine.BufferPoolSize)
	c.Engine.MaxThreads = getEnvInt("METRIX_MAX_THREADS", c.Engine.MaxThreads)
	c.Engine.ReadOnly = getEnvBool("METRIX_READ_ONLY", c.Engine.ReadOnly)
	c.Engine.Bolt.Username = getEnv("METRIX_BOLT_USER", c.Engine.Bolt.Username)
	c.Engine.Bolt.Password = getEnv("METRIX_BOLT_PASSWORD", c.Engine.Bolt.Password)
	c.Engine.Bolt.Database = getEnv("METRIX_BOLT_DATABASE", c.Engine.Bolt.Database)
	c.Engine.Bolt.ConnectTimeout = getEnvDuration("METRIX_BOLT_CONNECT_TIMEOUT", c.Engine.Bolt.ConnectTimeout)
	c.Engine.Bolt.MaxPoolSize = getEnvInt("METRIX_BOLT_MAX_POOL_SIZE", c.Engine.Bolt.MaxPoolSize)

	c.History.Enabled = getEnvBool("METRIX_HISTORY_ENABLED", c.History.Enabled)
	c.History.DataDir = getEnv("METRIX_HISTORY_DIR", c.History.DataDir)
	c.History.InMemory = getEnvBool("METRIX_HISTORY_IN_MEMORY", c.History.InMemory)
	c.History.MaxEntries = getEnvInt("METRIX_HISTORY_MAX_ENTRIES", c.History.MaxEntries)
	c.History.MaxRecent = getEnvInt("METRIX_HISTORY_MAX_RECENT", c.History.MaxRecent)

	c.Server.Address = getEnv("METRIX_ADDRESS", c.Server.Address)
	c.Server.Port = getEnvInt("METRIX_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("METRIX_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("METRIX_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.MaxRequestSize = getEnv("METRIX_MAX_REQUEST_SIZE", c.Server.MaxRequestSize)
	c.Server.EnableCORS = getEnvBool("METRIX_CORS_ENABLED", c.Server.EnableCORS)
	c.Server.CORSOrigins = getEnvStringSlice("METRIX_CORS_ORIGINS", c.Server.CORSOrigins)

	c.Logging.Level = getEnv("METRIX_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("METRIX_LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("METRIX_LOG_OUTPUT", c.Logging.Output)
	c.Logging.QueryLogEnabled = getEnvBool("METRIX_QUERY_LOG_ENABLED", c.Logging.QueryLogEnabled)
	c.Logging.SlowQueryThreshold = getEnvDuration("METRIX_SLOW_QUERY_THRESHOLD", c.Logging.SlowQueryThreshold)

	c.Audit.Enabled = getEnvBool("METRIX_AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.LogPath = getEnv("METRIX_AUDIT_LOG_PATH", c.Audit.LogPath)
	c.Audit.IncludeQueries = getEnvBool("METRIX_AUDIT_INCLUDE_QUERIES", c.Audit.IncludeQueries)
}

// Validate checks the configuration for logical errors and invalid values.
//
// This method checks:
//   - The engine name is one of metrix, kuzu or bolt
//   - Sizes parse and are not negative
//   - The server port is in range
//   - History has a data directory unless it is in-memory
//   - The log level and format are known
//   - Audit has a log path when enabled
func (c *Config) Validate() error {
	switch c.Engine.Name {
	case EngineMetrix, EngineKuzu, EngineBolt:
	default:
		return fmt.Errorf("unknown engine %q (want metrix, kuzu or bolt)", c.Engine.Name)
	}
	if err := validateSize("engine.buffer_pool_size", c.Engine.BufferPoolSize); err != nil {
		return err
	}
	if c.Engine.MaxThreads < 0 {
		return fmt.Errorf("invalid max threads: %d", c.Engine.MaxThreads)
	}
	if c.Engine.Bolt.Password != "" && c.Engine.Bolt.Username == "" {
		return errors.New("bolt password set but no username provided")
	}

	if c.History.Enabled {
		if !c.History.InMemory && c.History.DataDir == "" {
			return errors.New("history enabled but no data directory provided")
		}
		if c.History.MaxEntries < 0 || c.History.MaxRecent < 0 {
			return fmt.Errorf("invalid history limits: entries=%d recent=%d", c.History.MaxEntries, c.History.MaxRecent)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.Port)
	}
	if err := validateSize("server.max_request_size", c.Server.MaxRequestSize); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	if c.Audit.Enabled && c.Audit.LogPath == "" {
		return errors.New("audit enabled but no log path provided")
	}
	return nil
}

func validateSize(field, s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" || strings.EqualFold(s, "unlimited") {
		return nil
	}
	if parseMemorySize(s) <= 0 {
		return fmt.Errorf("invalid %s: %q", field, s)
	}
	return nil
}

// String returns a safe string representation of the Config.
//
// Credentials are NOT included in the output, making this safe for logging.
//
// Example:
//
//	log.Printf("Starting with config: %s", cfg)
//	// Output: Config{Engine: metrix, HTTP: 127.0.0.1:7480, History: ./data/history, Audit: false}
func (c *Config) String() string {
	history := "disabled"
	switch {
	case c.History.Enabled && c.History.InMemory:
		history = "memory"
	case c.History.Enabled:
		history = c.History.DataDir
	}
	return fmt.Sprintf(
		"Config{Engine: %s, HTTP: %s, History: %s, Audit: %v}",
		c.Engine.Name,
		c.Server.Addr(),
		history,
		c.Audit.Enabled,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1KB", "1MB", "1GB", "1TB", "0", "unlimited"
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}

// FormatMemorySize formats bytes as human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
