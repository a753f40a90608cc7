package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
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

type ClientConfig struct {
	PoolSize       int    `mapstructure:"pool_size"`
	RequestTimeout string `mapstructure:"request_timeout"`
	RetryAttempts  int    `mapstructure:"retry_attempts"`
	PollInterval   string `mapstructure:"poll_interval"`
}

type BreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	ResetTimeout     string `mapstructure:"reset_timeout"`
	HalfOpenTimeout  string `mapstructure:"half_open_timeout"`
}

type TelemetryConfig struct {
	Address string `mapstructure:"address"`
}

type UpstreamConfig struct {
	URL string `mapstructure:"url"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Environment string           `mapstructure:"environment"`
	Client      ClientConfig     `mapstructure:"client"`
	Breaker     BreakerConfig    `mapstructure:"breaker"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
	Upstreams   []UpstreamConfig `mapstructure:"upstreams"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

func Load() (*Config, error) {
	viper.SetDefault("environment", EnvDev)
	viper.SetDefault("client.pool_size", 10)
	viper.SetDefault("client.request_timeout", "30s")
	viper.SetDefault("client.retry_attempts", 3)
	viper.SetDefault("client.poll_interval", "10s")
	viper.SetDefault("breaker.failure_threshold", 5)
	viper.SetDefault("breaker.reset_timeout", "60s")
	viper.SetDefault("breaker.half_open_timeout", "30s")
	viper.SetDefault("telemetry.address", ":9090")
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	cfg.warnTimeoutOrdering()

	return &cfg, nil
}

// warnTimeoutOrdering flags a half-open window that never opens before the
// full reset. The values are kept as configured.
func (c *Config) warnTimeoutOrdering() {
	reset, err1 := time.ParseDuration(c.Breaker.ResetTimeout)
	halfOpen, err2 := time.ParseDuration(c.Breaker.HalfOpenTimeout)
	if err1 != nil || err2 != nil {
		return
	}

	if halfOpen >= reset {
		slog.Warn("breaker half_open_timeout is not shorter than reset_timeout; the probe window will never apply",
			slog.String("half_open_timeout", c.Breaker.HalfOpenTimeout),
			slog.String("reset_timeout", c.Breaker.ResetTimeout))
	}
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Environment,
			validation.Required,
			validation.In(EnvDev, EnvStaging, EnvProd),
		),
		validation.Field(&c.Client,
			validation.Required,
			validation.By(func(value interface{}) error {
				cc, ok := value.(ClientConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ClientConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.PoolSize,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&cc.RequestTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&cc.RetryAttempts,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&cc.PollInterval,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Breaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.FailureThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&bc.ResetTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&bc.HalfOpenTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Telemetry,
			validation.Required,
			validation.By(func(value interface{}) error {
				tc, ok := value.(TelemetryConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a TelemetryConfig")
				}
				return validation.ValidateStruct(&tc,
					validation.Field(&tc.Address,
						validation.Required,
						validation.By(validateHostPort),
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
		validation.Field(&c.Upstreams,
			validation.Each(validation.By(validateUpstreamConfig)),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateUpstreamConfig(value interface{}) error {
	upstream, ok := value.(UpstreamConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
	}

	if upstream.URL == "" {
		return validation.NewError("validation_empty_url", "upstream URL cannot be empty")
	}

	parsedURL, err := url.Parse(upstream.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
