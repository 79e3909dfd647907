package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SUBSYNC"

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Server    ServerConfig
	SMTP      SMTPConfig
	Slack     SlackConfig
	StreamOne StreamOneConfig
	VMM       VMMConfig
	Reconcile ReconcileConfig
	Scheduler SchedulerConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Version     string
	NodeID      int64
}

// DatabaseConfig selects the gorm dialector. Driver is one of postgres, mysql or sqlite.
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type TelemetryConfig struct {
	Enabled      bool
	Endpoint     string
	Insecure     bool
	ServiceName  string
	SamplingRate float64
	DBTrace      bool
}

type ServerConfig struct {
	Addr string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// UseTLS dials with implicit TLS (port 465). STARTTLS is attempted otherwise.
	UseTLS bool
}

func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.From) != ""
}

type SlackConfig struct {
	WebhookURL string
}

type StreamOneConfig struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

type VMMConfig struct {
	SnapshotRetentionDays int
}

type ReconcileConfig struct {
	// OpsEmail receives error reports for every run.
	OpsEmail string
	// FallbackEmail receives change reports when the customer has no salesperson on file.
	FallbackEmail      string
	CloudProductNumber string
	CloudGroupID       int64
	WriteRetries       int
}

type SchedulerConfig struct {
	Interval   time.Duration
	Jobs       []string
	JobTimeout time.Duration
}

// Load reads configuration from an optional config.yaml, a .env file and
// SUBSYNC_ prefixed environment variables, in increasing priority.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/subsync")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		App: AppConfig{
			Name:        v.GetString("app.name"),
			Environment: v.GetString("app.environment"),
			Version:     v.GetString("app.version"),
			NodeID:      v.GetInt64("app.node_id"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      v.GetBool("telemetry.enabled"),
			Endpoint:     v.GetString("telemetry.endpoint"),
			Insecure:     v.GetBool("telemetry.insecure"),
			ServiceName:  v.GetString("telemetry.service_name"),
			SamplingRate: v.GetFloat64("telemetry.sampling_rate"),
			DBTrace:      v.GetBool("telemetry.db_trace"),
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
			UseTLS:   v.GetBool("smtp.use_tls"),
		},
		Slack: SlackConfig{
			WebhookURL: v.GetString("slack.webhook_url"),
		},
		StreamOne: StreamOneConfig{
			BaseURL:           strings.TrimRight(v.GetString("streamone.base_url"), "/"),
			Token:             v.GetString("streamone.token"),
			Timeout:           v.GetDuration("streamone.timeout"),
			RequestsPerSecond: v.GetFloat64("streamone.requests_per_second"),
		},
		VMM: VMMConfig{
			SnapshotRetentionDays: v.GetInt("vmm.snapshot_retention_days"),
		},
		Reconcile: ReconcileConfig{
			OpsEmail:           v.GetString("reconcile.ops_email"),
			FallbackEmail:      v.GetString("reconcile.fallback_email"),
			CloudProductNumber: v.GetString("reconcile.cloud_product_number"),
			CloudGroupID:       v.GetInt64("reconcile.cloud_group_id"),
			WriteRetries:       v.GetInt("reconcile.write_retries"),
		},
		Scheduler: SchedulerConfig{
			Interval:   v.GetDuration("scheduler.interval"),
			Jobs:       v.GetStringSlice("scheduler.jobs"),
			JobTimeout: v.GetDuration("scheduler.job_timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "subsync")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.node_id", 1)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres dbname=subsync sslmode=disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("telemetry.service_name", "subsync")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("streamone.timeout", 30*time.Second)
	v.SetDefault("streamone.requests_per_second", 6)

	v.SetDefault("vmm.snapshot_retention_days", 90)

	v.SetDefault("reconcile.cloud_product_number", "40011000")
	v.SetDefault("reconcile.cloud_group_id", 13)
	v.SetDefault("reconcile.write_retries", 1)

	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("scheduler.jobs", []string{"reconcile_vmm", "reconcile_streamone", "catalog_price_sync", "vmm_snapshot_retention"})
	v.SetDefault("scheduler.job_timeout", 30*time.Minute)
}

// Validate rejects configurations the services cannot run with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database dsn is required")
	}
	if c.StreamOne.RequestsPerSecond < 0 {
		return errors.New("streamone requests_per_second must not be negative")
	}
	if c.Reconcile.WriteRetries < 0 {
		return errors.New("reconcile write_retries must not be negative")
	}
	if c.Scheduler.Interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	return nil
}

// JobEnabled reports whether the scheduler should run the named job.
func (c SchedulerConfig) JobEnabled(name string) bool {
	for _, job := range c.Jobs {
		if strings.EqualFold(strings.TrimSpace(job), name) {
			return true
		}
	}
	return false
}
