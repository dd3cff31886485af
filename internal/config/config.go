// Package config resolves run settings from flags, SAFARI_BINGO_* environment variables and an
// optional YAML file, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/alanorth/safari-bingo/internal/images"
	"github.com/alanorth/safari-bingo/internal/storage"
)

// EnvPrefix is prepended to every environment variable, e.g. SAFARI_BINGO_IMAGES_DIR
const EnvPrefix = "SAFARI_BINGO"

// Keys
const (
	KeyImagesDir      = "images_dir"
	KeyUserAgent      = "user_agent"
	KeyRequestTimeout = "request_timeout"
	KeyRateLimit      = "rate_limit"
	KeyJobs           = "jobs"
	KeyDebug          = "debug"
)

// Config holds settings shared by every command
type Config struct {
	ImagesDir      string        `json:"images_dir" mapstructure:"images_dir"`
	UserAgent      string        `json:"user_agent" mapstructure:"user_agent"`
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	RateLimit      float64       `json:"rate_limit" mapstructure:"rate_limit"`
	Jobs           int           `json:"jobs" mapstructure:"jobs"`
	Debug          bool          `json:"debug" mapstructure:"debug"`
}

// New returns a viper instance with defaults and environment lookup configured
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyImagesDir, storage.DefaultDir)
	v.SetDefault(KeyUserAgent, images.DefaultUserAgent)
	v.SetDefault(KeyRequestTimeout, images.DefaultTimeout)
	v.SetDefault(KeyRateLimit, images.DefaultRateLimit)
	v.SetDefault(KeyJobs, 1)
	v.SetDefault(KeyDebug, false)
}

// BindFlags maps flag names onto config keys. Flags that are not defined are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		KeyImagesDir:      "images-dir",
		KeyUserAgent:      "user-agent",
		KeyRequestTimeout: "timeout",
		KeyRateLimit:      "rate-limit",
		KeyJobs:           "jobs",
		KeyDebug:          "debug",
	}
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the optional config file and decodes v into a validated Config
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ImagesDir, validation.Required),
		validation.Field(&c.UserAgent, validation.Required),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.Jobs, validation.Required, validation.Min(1), validation.Max(32)),
	)
}
