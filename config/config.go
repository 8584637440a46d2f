package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/status-dashboard/internal/httpserver"
	"github.com/angeloszaimis/status-dashboard/internal/sections"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type PollingConfig struct {
	Interval     string `mapstructure:"interval"`
	ProbeTimeout string `mapstructure:"probe_timeout"`
	HealthPath   string `mapstructure:"health_path"`
}

type SectionsConfig struct {
	Timeout      string `mapstructure:"timeout"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

// ServiceConfig describes one monitored service.
type ServiceConfig struct {
	ID       string   `mapstructure:"id"`
	Scheme   string   `mapstructure:"scheme"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Label    string   `mapstructure:"label"`
	Sections []string `mapstructure:"sections"`
}

// Address returns the base URL of the service.
func (s ServiceConfig) Address() string {
	return s.Scheme + "://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Polling  PollingConfig   `mapstructure:"polling"`
	Sections SectionsConfig  `mapstructure:"sections"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Services []ServiceConfig `mapstructure:"services"`
}

func (c *Config) PollInterval() time.Duration {
	return mustDuration(c.Polling.Interval)
}

func (c *Config) ProbeTimeout() time.Duration {
	return mustDuration(c.Polling.ProbeTimeout)
}

func (c *Config) SectionTimeout() time.Duration {
	return mustDuration(c.Sections.Timeout)
}

// Load reads config.yaml from ./config or the working directory. A missing
// file is not an error; defaults and environment variables apply.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	return decode(v)
}

// LoadFile reads the configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("polling.interval", "30s")
	v.SetDefault("polling.probe_timeout", "5s")
	v.SetDefault("polling.health_path", "/health")
	v.SetDefault("sections.timeout", "10s")
	v.SetDefault("sections.max_body_bytes", 1<<20)
	v.SetDefault("metrics.buffer_size", 1024)
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.add_source", false)
	v.SetDefault("services", DefaultServices())

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

// DefaultServices returns the weight, billing and devops services on localhost.
func DefaultServices() []map[string]any {
	return []map[string]any{
		{
			"id":       "weight",
			"scheme":   "http",
			"host":     "localhost",
			"port":     5000,
			"label":    "Weight Station",
			"sections": []string{"primary-records", "unknown-items", "recent-summary"},
		},
		{
			"id":       "billing",
			"scheme":   "http",
			"host":     "localhost",
			"port":     5001,
			"label":    "Billing",
			"sections": []string{"rate-table"},
		},
		{
			"id":       "devops",
			"scheme":   "http",
			"host":     "localhost",
			"port":     5002,
			"label":    "DevOps",
			"sections": []string{},
		},
	}
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(httpserver.ValidateAddress),
					),
				)
			}),
		),
		validation.Field(&c.Polling,
			validation.Required,
			validation.By(func(value interface{}) error {
				pc, ok := value.(PollingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a PollingConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&pc.ProbeTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&pc.HealthPath,
						validation.Required,
						validation.By(validatePath),
					),
				)
			}),
		),
		validation.Field(&c.Sections,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(SectionsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a SectionsConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&sc.MaxBodyBytes,
						validation.Required,
						validation.Min(int64(1)),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.Required,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Services,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateServiceConfig)),
			validation.By(validateUniqueIDs),
		),
	)
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validatePath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(path, "/") {
		return validation.NewError("validation_invalid_path", "must start with /")
	}

	return nil
}

func validateServiceConfig(value interface{}) error {
	svc, ok := value.(ServiceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ServiceConfig")
	}

	return validation.ValidateStruct(&svc,
		validation.Field(&svc.ID, validation.Required, is.Alphanumeric),
		validation.Field(&svc.Scheme, validation.Required, validation.In("http", "https")),
		validation.Field(&svc.Host, validation.Required, is.Host),
		validation.Field(&svc.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&svc.Label, validation.Required),
		validation.Field(&svc.Sections, validation.Each(validation.By(validateSectionKind))),
	)
}

func validateSectionKind(value interface{}) error {
	kind, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !sections.KnownKind(kind) {
		return validation.NewError("validation_unknown_section", "unknown section kind "+kind)
	}

	return nil
}

func validateUniqueIDs(value interface{}) error {
	services, ok := value.([]ServiceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a list of ServiceConfig")
	}

	ids := lo.Map(services, func(s ServiceConfig, _ int) string { return s.ID })
	if dups := lo.FindDuplicates(ids); len(dups) > 0 {
		return validation.NewError("validation_duplicate_id", "duplicate service id "+strings.Join(dups, ", "))
	}

	return nil
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
