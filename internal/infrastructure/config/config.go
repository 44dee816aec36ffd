package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Tado Direct.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Vendor    VendorConfig    `yaml:"vendor"`
	Auth      AuthConfig      `yaml:"auth"`
	Poll      PollConfig      `yaml:"poll"`
	Command   CommandConfig   `yaml:"command"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// VendorConfig contains the Tado cloud endpoints. Defaults point at the
// production service; overriding them is only useful for tests and staging.
type VendorConfig struct {
	OAuthBaseURL string `yaml:"oauth_base_url"`
	APIBaseURL   string `yaml:"api_base_url"`
	HopsBaseURL  string `yaml:"hops_base_url"`
	// TimeoutSeconds is the per-request HTTP timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// AuthConfig contains OAuth2 device-authorization settings.
type AuthConfig struct {
	// Clients are the OAuth client profiles to try, in order. The first
	// profile accepted by the authorization endpoint wins and is persisted
	// alongside the token set for later refreshes.
	Clients []OAuthClientConfig `yaml:"clients"`

	// RefreshBufferSeconds is how long before expiry an access token is
	// considered stale and refreshed. The vendor issues ~10 minute tokens.
	RefreshBufferSeconds int `yaml:"refresh_buffer_seconds"`

	// DeviceFlowTimeoutSeconds bounds how long the engine waits for the
	// user to complete login in a browser before the attempt is abandoned.
	DeviceFlowTimeoutSeconds int `yaml:"device_flow_timeout_seconds"`
}

// OAuthClientConfig identifies one OAuth client profile.
type OAuthClientConfig struct {
	ID    string `yaml:"id"`
	Scope string `yaml:"scope"`
}

// PollConfig contains state-polling cadence settings.
type PollConfig struct {
	// IntervalSeconds is the base cadence per home. The vendor tolerates
	// roughly one poll per 10-30 seconds per home on app-tier credentials.
	IntervalSeconds int `yaml:"interval_seconds"`

	// MaxIntervalSeconds caps the backoff cadence after throttling.
	MaxIntervalSeconds int `yaml:"max_interval_seconds"`

	// RecoverySuccesses is how many consecutive successful polls are needed
	// before a backed-off cadence starts decaying toward the base interval.
	RecoverySuccesses int `yaml:"recovery_successes"`
}

// CommandConfig contains command-dispatch settings.
type CommandConfig struct {
	// ConfirmCycles is how many poll cycles a submitted command waits for a
	// confirming snapshot before it is reported as expired.
	ConfirmCycles int `yaml:"confirm_cycles"`

	// MaxResends bounds safe re-sends of a command whose first attempt had
	// an unknown outcome (connection dropped mid-request).
	MaxResends int `yaml:"max_resends"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the local HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains the optional MQTT event-sink settings.
type MQTTConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	QoS     int              `yaml:"qos"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains the optional telemetry recorder settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains local API security settings.
type SecurityConfig struct {
	// APIKey protects every local endpoint except health. Required.
	APIKey string `yaml:"api_key"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TADODIRECT_SECTION_KEY
// For example: TADODIRECT_DATABASE_PATH, TADODIRECT_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default OAuth client profiles. The webapp client is first-party and is
// tried first; the device client is the widely used fallback.
const (
	webappClientID = "af44f89e-ae86-4ebe-905f-6bf759cf6473"
	webappScope    = "home.user offline_access"
	deviceClientID = "1bb50063-6b0c-4d11-bd99-387f4a91cc46"
	deviceScope    = "offline_access"
)

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Vendor: VendorConfig{
			OAuthBaseURL:   "https://login.tado.com",
			APIBaseURL:     "https://my.tado.com/api/v2",
			HopsBaseURL:    "https://hops.tado.com",
			TimeoutSeconds: 30,
		},
		Auth: AuthConfig{
			Clients: []OAuthClientConfig{
				{ID: webappClientID, Scope: webappScope},
				{ID: deviceClientID, Scope: deviceScope},
			},
			RefreshBufferSeconds:     30,
			DeviceFlowTimeoutSeconds: 300,
		},
		Poll: PollConfig{
			IntervalSeconds:    15,
			MaxIntervalSeconds: 300,
			RecoverySuccesses:  3,
		},
		Command: CommandConfig{
			ConfirmCycles: 3,
			MaxResends:    2,
		},
		Database: DatabaseConfig{
			Path:        "./data/tadodirect.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8099,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tadodirect",
			},
			QoS: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TADODIRECT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TADODIRECT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TADODIRECT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TADODIRECT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("TADODIRECT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TADODIRECT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TADODIRECT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TADODIRECT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("TADODIRECT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - API key (always override in production)
	if v := os.Getenv("TADODIRECT_API_KEY"); v != "" {
		cfg.Security.APIKey = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Vendor.OAuthBaseURL == "" {
		errs = append(errs, "vendor.oauth_base_url is required")
	}
	if c.Vendor.APIBaseURL == "" {
		errs = append(errs, "vendor.api_base_url is required")
	}
	if len(c.Auth.Clients) == 0 {
		errs = append(errs, "auth.clients must list at least one OAuth client profile")
	}
	for i, client := range c.Auth.Clients {
		if client.ID == "" {
			errs = append(errs, fmt.Sprintf("auth.clients[%d].id is required", i))
		}
	}
	if c.Poll.IntervalSeconds < 1 {
		errs = append(errs, "poll.interval_seconds must be at least 1")
	}
	if c.Poll.MaxIntervalSeconds < c.Poll.IntervalSeconds {
		errs = append(errs, "poll.max_interval_seconds must be >= poll.interval_seconds")
	}
	if c.Command.ConfirmCycles < 1 {
		errs = append(errs, "command.confirm_cycles must be at least 1")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API key is REQUIRED. The local API submits heating commands; an
	// unauthenticated endpoint on a shared host would let anything on the
	// machine drive the boiler.
	const minAPIKeyLength = 16
	if c.Security.APIKey == "" {
		errs = append(errs, "security.api_key is required (set TADODIRECT_API_KEY environment variable)")
	} else if len(c.Security.APIKey) < minAPIKeyLength {
		errs = append(errs, "security.api_key must be at least 16 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// VendorTimeout returns the vendor HTTP timeout as a Duration.
func (c *Config) VendorTimeout() time.Duration {
	return time.Duration(c.Vendor.TimeoutSeconds) * time.Second
}

// RefreshBuffer returns the token refresh safety margin as a Duration.
func (c *Config) RefreshBuffer() time.Duration {
	return time.Duration(c.Auth.RefreshBufferSeconds) * time.Second
}

// DeviceFlowTimeout returns the device-authorization deadline as a Duration.
func (c *Config) DeviceFlowTimeout() time.Duration {
	return time.Duration(c.Auth.DeviceFlowTimeoutSeconds) * time.Second
}

// PollInterval returns the base poll cadence as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// MaxPollInterval returns the backoff cadence ceiling as a Duration.
func (c *Config) MaxPollInterval() time.Duration {
	return time.Duration(c.Poll.MaxIntervalSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
