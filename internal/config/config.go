package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	Environments  []EnvironmentConfig `mapstructure:"environments"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MonitoringConfig drives the alert pipeline: how often the evaluation cycle
// runs and the correlation/suppression policy applied to firings.
type MonitoringConfig struct {
	EvaluationInterval time.Duration    `mapstructure:"evaluation_interval"`
	SuppressionWindow  time.Duration    `mapstructure:"suppression_window"`
	CorrelationWindow  time.Duration    `mapstructure:"correlation_window"`
	Relations          []RelationConfig `mapstructure:"relations"`
}

// RelationConfig declares that alerts of two different types share a root
// cause when seen close together (e.g. cpu_high and blocking_chains_high).
type RelationConfig struct {
	TypeA string `mapstructure:"type_a"`
	TypeB string `mapstructure:"type_b"`
}

// EnvironmentConfig describes one monitored AX environment. Environments run
// their evaluation cycles independently of each other.
type EnvironmentConfig struct {
	Name          string        `mapstructure:"name"`
	Enabled       bool          `mapstructure:"enabled"`
	SQLServerDSN  string        `mapstructure:"sqlserver_dsn"`
	QueryTimeout  time.Duration `mapstructure:"query_timeout"`
	HostMetrics   bool          `mapstructure:"host_metrics"`
	AutoRemediate bool          `mapstructure:"auto_remediate"`
}

type NotificationsConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type WebSocketConfig struct {
	PingInterval int `mapstructure:"ping_interval"`
	PongTimeout  int `mapstructure:"pong_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// Load reads configuration from config.yaml with environment overrides.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/axmon")

	v.SetEnvPrefix("AXMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file falls back to defaults plus env; a malformed one is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3301)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.mode", "production")

	v.SetDefault("database.path", "./data/axmon.db")
	v.SetDefault("database.migrations_path", "./migrations")
	v.SetDefault("database.max_connections", 25)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("monitoring.evaluation_interval", 30*time.Second)
	v.SetDefault("monitoring.suppression_window", 15*time.Minute)
	v.SetDefault("monitoring.correlation_window", 5*time.Minute)

	v.SetDefault("notifications.timeout", 10*time.Second)

	v.SetDefault("websocket.ping_interval", 30)
	v.SetDefault("websocket.pong_timeout", 60)
	v.SetDefault("websocket.write_timeout", 10)
}
