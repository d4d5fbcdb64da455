package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the configuration for the shipment server.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	// Environment specifies the runtime environment (e.g., development, production).
	Environment string `mapstructure:"APP_ENV" default:"development"`
	// LogLevel defines the logging verbosity (e.g., debug, info, error).
	LogLevel string `mapstructure:"LOG_LEVEL" default:"info"`

	// FTP holds the control and data channel settings.
	FTP FTPConfig `mapstructure:",squash"`

	// Storage holds the shipment storage settings.
	Storage StorageConfig `mapstructure:",squash"`

	// HTTP holds the read-only tracking API settings.
	HTTP HTTPConfig `mapstructure:",squash"`

	// Redis holds the optional status mirror settings.
	Redis RedisConfig `mapstructure:",squash"`
}

// FTPConfig holds the control listener and passive data channel settings.
type FTPConfig struct {
	// Host is the interface the control listener binds to. Empty means all interfaces.
	Host string `mapstructure:"SERVER_HOST"`
	// Port is the control channel port.
	Port int `mapstructure:"SERVER_PORT" default:"2121"`
	// PassiveHost overrides the IPv4 address advertised in PASV replies.
	PassiveHost string `mapstructure:"PASSIVE_HOST"`
	// DataTimeout bounds how long a passive listener waits for its peer.
	DataTimeout time.Duration `mapstructure:"DATA_TIMEOUT" default:"30s"`
	// IdleTimeout closes control connections that stay silent for too long.
	IdleTimeout time.Duration `mapstructure:"IDLE_TIMEOUT" default:"5m"`
	// MaxSessions is the number of control connections served at once.
	MaxSessions int `mapstructure:"MAX_SESSIONS" default:"64"`
	// ShutdownGrace is how long in-flight sessions may drain on shutdown.
	ShutdownGrace time.Duration `mapstructure:"SHUTDOWN_GRACE" default:"5s"`
}

// Addr returns the host:port the control listener binds to.
func (c FTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StorageConfig holds where shipment files live.
type StorageConfig struct {
	// Dir is the directory holding one file per shipment.
	Dir string `mapstructure:"STORAGE_DIR" default:"uploads" required:"true"`
}

// HTTPConfig holds the tracking API settings.
type HTTPConfig struct {
	// Port is where the tracking API listens. Zero disables it.
	Port int `mapstructure:"HTTP_PORT" default:"0"`
}

// RedisConfig holds the status mirror connection.
type RedisConfig struct {
	// URL is a redis:// URL. Empty disables the mirror.
	URL string `mapstructure:"REDIS_URL"`
}

// Load loads configuration from .env files and environment variables.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	if config.FTP.Port <= 0 || config.FTP.Port > 65535 {
		return nil, fmt.Errorf("invalid configuration: SERVER_PORT %d out of range", config.FTP.Port)
	}
	if config.FTP.MaxSessions <= 0 {
		return nil, fmt.Errorf("invalid configuration: MAX_SESSIONS must be positive")
	}

	return &config, nil
}

// processTags binds every tagged field to its env var and registers its default.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}

		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}

		if defaultValue := field.Tag.Get("default"); defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("required") == "true" && isZero(val.Field(i)) {
			return fmt.Errorf("missing required configuration: %s", field.Tag.Get("mapstructure"))
		}
	}
	return nil
}

// isZero checks if a reflect.Value is the zero value for its type.
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Bool:
		return !v.Bool()
	default:
		return v.IsZero()
	}
}
