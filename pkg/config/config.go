package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Config represents the complete configuration for the ContractIndexor.
type Config struct {
	// Node contains the node gateway connection configuration
	Node NodeConfig `yaml:"node" json:"node" toml:"node"`

	// DB contains the database configuration for the contract store
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Import contains the import driver configuration
	Import ImportConfig `yaml:"import" json:"import" toml:"import"`

	// Maintenance contains optional database maintenance settings
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`

	// Accounts contains the account id lookup cache configuration
	Accounts AccountsConfig `yaml:"accounts" json:"accounts" toml:"accounts"`

	// Notifications contains the balance-changed notification configuration
	Notifications NotificationsConfig `yaml:"notifications" json:"notifications" toml:"notifications"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// NodeConfig represents the configuration of the node gateway client.
type NodeConfig struct {
	// RPCURL is the JSON-RPC endpoint of the node gateway
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// RequestTimeout bounds a single RPC call
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional node configuration fields.
func (n *NodeConfig) ApplyDefaults() {
	if n.RequestTimeout.Duration == 0 {
		n.RequestTimeout = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if n.Retry != nil {
		n.Retry.ApplyDefaults()
	}
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

// Validate checks the database configuration.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path is required")
	}

	if d.JournalMode != "" &&
		!slices.Contains([]string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}, d.JournalMode) {
		return fmt.Errorf("journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	if d.Synchronous != "" && !slices.Contains([]string{"FULL", "NORMAL", "OFF"}, d.Synchronous) {
		return fmt.Errorf("synchronous must be one of: FULL, NORMAL, OFF")
	}

	return nil
}

// ImportConfig configures the contract import driver.
type ImportConfig struct {
	// Source names the import source recorded in the checkpoint ledger
	Source string `yaml:"source" json:"source" toml:"source"`

	// StartHeight is the first block height to import when no checkpoint exists
	StartHeight uint64 `yaml:"start_height" json:"start_height" toml:"start_height"`

	// PollInterval is how long to wait when no new finalized block is available
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// RetryDelay is the fixed delay between retries of a failed import cycle
	RetryDelay common.Duration `yaml:"retry_delay" json:"retry_delay" toml:"retry_delay"`

	// MaxRetryAttempts is the number of retries before the importer gives up
	MaxRetryAttempts uint64 `yaml:"max_retry_attempts" json:"max_retry_attempts" toml:"max_retry_attempts"`
}

// ApplyDefaults sets default values for optional import configuration fields.
func (i *ImportConfig) ApplyDefaults() {
	if i.Source == "" {
		i.Source = "node"
	}
	if i.PollInterval.Duration == 0 {
		i.PollInterval = common.NewDuration(2 * time.Second) //nolint:mnd
	}
	if i.RetryDelay.Duration == 0 {
		i.RetryDelay = common.NewDuration(10 * time.Second) //nolint:mnd
	}
	if i.MaxRetryAttempts == 0 {
		i.MaxRetryAttempts = 10
	}
}

// MaintenanceConfig configures database maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval common.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs one maintenance pass before the importer starts
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`

	// VacuumFreeRatio is the share of free pages above which a pass also runs VACUUM
	VacuumFreeRatio float64 `yaml:"vacuum_free_ratio" json:"vacuum_free_ratio" toml:"vacuum_free_ratio"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
	if m.VacuumFreeRatio == 0 {
		m.VacuumFreeRatio = 0.2 //nolint:mnd
	}
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if m.WALCheckpointMode != "" {
		validModes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
		if !slices.Contains(validModes, m.WALCheckpointMode) {
			return fmt.Errorf("maintenance.wal_checkpoint_mode: must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
		}
	}

	if m.VacuumFreeRatio < 0 || m.VacuumFreeRatio > 1 {
		return fmt.Errorf("maintenance.vacuum_free_ratio: must be between 0 and 1")
	}

	return nil
}

// AccountsConfig configures the account address to account id lookup.
type AccountsConfig struct {
	// CacheTTL is the expiry of cached bindings in Redis; bindings never change once created
	CacheTTL common.Duration `yaml:"cache_ttl" json:"cache_ttl" toml:"cache_ttl"`

	// RefillWorkers bounds the background cache refill pool
	RefillWorkers int `yaml:"refill_workers" json:"refill_workers" toml:"refill_workers"`

	// Redis enables the shared second-level cache
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty" toml:"redis,omitempty"`
}

// ApplyDefaults sets default values for optional accounts configuration fields.
func (a *AccountsConfig) ApplyDefaults() {
	if a.CacheTTL.Duration == 0 {
		a.CacheTTL = common.NewDuration(7 * 24 * time.Hour) //nolint:mnd
	}
	if a.RefillWorkers == 0 {
		a.RefillWorkers = 4
	}
	if a.Redis != nil {
		a.Redis.ApplyDefaults()
	}
}

// RedisConfig holds a Redis connection configuration.
type RedisConfig struct {
	// Address is the "host:port" of the Redis server
	Address string `yaml:"address" json:"address" toml:"address"`

	// Password is the optional Redis password
	Password string `yaml:"password" json:"password" toml:"password"`

	// DB is the Redis database number
	DB int `yaml:"db" json:"db" toml:"db"`

	// KeyPrefix namespaces every key written by this process
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" toml:"key_prefix"`
}

// ApplyDefaults sets default values for optional redis configuration fields.
func (r *RedisConfig) ApplyDefaults() {
	if r.Address == "" {
		r.Address = "localhost:6379"
	}
	if r.KeyPrefix == "" {
		r.KeyPrefix = "contracts"
	}
}

// Options returns the go-redis client options for this configuration.
func (r *RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:         r.Address,
		Password:     r.Password,
		DB:           r.DB,
		DialTimeout:  5 * time.Second, //nolint:mnd
		ReadTimeout:  3 * time.Second, //nolint:mnd
		WriteTimeout: 3 * time.Second, //nolint:mnd
	}
}

// Notification backends.
const (
	NotificationBackendNone  = "none"
	NotificationBackendRedis = "redis"
	NotificationBackendNATS  = "nats"
)

// NotificationsConfig configures balance-changed notifications.
type NotificationsConfig struct {
	// Backend is one of "none", "redis", "nats"
	Backend string `yaml:"backend" json:"backend" toml:"backend"`

	// Topic is the Redis channel or NATS subject notifications are published to
	Topic string `yaml:"topic" json:"topic" toml:"topic"`

	// URL is the NATS server URL (nats backend)
	URL string `yaml:"url" json:"url" toml:"url"`

	// Redis is the Redis connection (redis backend)
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty" toml:"redis,omitempty"`

	// Workers bounds the number of in-flight publishes
	Workers int `yaml:"workers" json:"workers" toml:"workers"`
}

// ApplyDefaults sets default values for optional notification configuration fields.
func (n *NotificationsConfig) ApplyDefaults() {
	if n.Backend == "" {
		n.Backend = NotificationBackendNone
	}
	if n.Topic == "" {
		switch n.Backend {
		case NotificationBackendNATS:
			n.Topic = "contracts.account.balance-changed"
		default:
			n.Topic = "contracts:account-balance-changed"
		}
	}
	if n.Workers == 0 {
		n.Workers = 4
	}
	if n.Redis != nil {
		n.Redis.ApplyDefaults()
	}
}

// Validate checks if the notification configuration is valid.
func (n *NotificationsConfig) Validate() error {
	switch n.Backend {
	case NotificationBackendNone:
	case NotificationBackendRedis:
		if n.Redis == nil {
			return fmt.Errorf("redis is required when backend is redis")
		}
	case NotificationBackendNATS:
		if n.URL == "" {
			return fmt.Errorf("url is required when backend is nats")
		}
	default:
		return fmt.Errorf("backend must be one of: none, redis, nats")
	}
	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - importer: import driver state machine
	//   - classifier: block effect classification
	//   - token-aggregator: CIS-2 token supply and balance aggregation
	//   - snapshot-folder: contract snapshot folding
	//   - checkpoint: checkpoint ledger
	//   - node-client: node gateway RPC client
	//   - account-resolver: account id lookup cache
	//   - notifier: balance-changed notifications
	//   - store: contract store
	//   - maintenance: database maintenance
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return common.ToLowerWithTrim(level)
	}
	return l.GetDefaultLevel()
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	if l.DefaultLevel == "" {
		return "info"
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// IsNil reports whether the receiver is a nil pointer.
func (l *LoggingConfig) IsNil() bool {
	return l == nil
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Node.ApplyDefaults()
	c.DB.ApplyDefaults()
	c.Import.ApplyDefaults()
	c.Accounts.ApplyDefaults()
	c.Notifications.ApplyDefaults()

	if c.Maintenance != nil {
		c.Maintenance.ApplyDefaults()
	}

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Node.RPCURL == "" {
		return fmt.Errorf("node.rpc_url is required")
	}
	if _, err := url.Parse(c.Node.RPCURL); err != nil {
		return fmt.Errorf("node.rpc_url: %w", err)
	}

	if err := c.DB.Validate(); err != nil {
		return fmt.Errorf("db.%w", err)
	}

	if c.Import.Source == "" {
		return fmt.Errorf("import.source is required")
	}

	if c.Maintenance != nil {
		if err := c.Maintenance.Validate(); err != nil {
			return err
		}
	}

	if err := c.Notifications.Validate(); err != nil {
		return fmt.Errorf("notifications: %w", err)
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}
