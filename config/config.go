// Package config loads service and CLI settings through viper: defaults,
// an optional YAML file, FORMATCONV_* environment variables and bound flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "FORMATCONV"

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	SessionTTL      time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	SweepSchedule   string        `mapstructure:"sweep_schedule" yaml:"sweep_schedule"`
	JWTSecret       string        `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`
	AllowOrigin     string        `mapstructure:"allow_origin" yaml:"allow_origin"`
}

type UploadConfig struct {
	// MaxFileSize applies to every multi-format converter. The SVG
	// converter is never size-limited.
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size"`
	MaxFiles    int   `mapstructure:"max_files" yaml:"max_files"`
}

type RenderConfig struct {
	// Backend is "fitz" or "pdftoppm".
	Backend string `mapstructure:"backend" yaml:"backend"`
}

type CodecsConfig struct {
	// Order lists external codecs tried for HEIC and WebP, first wins.
	Order []string `mapstructure:"order" yaml:"order"`
}

type PublishConfig struct {
	// Backend is "memory" or "gcs".
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	GCSBucket    string        `mapstructure:"gcs_bucket" yaml:"gcs_bucket,omitempty"`
	GCSPrefix    string        `mapstructure:"gcs_prefix" yaml:"gcs_prefix,omitempty"`
	SigningEmail string        `mapstructure:"signing_email" yaml:"signing_email,omitempty"`
	SigningKey   string        `mapstructure:"signing_key" yaml:"-"`
	SignedURLTTL time.Duration `mapstructure:"signed_url_ttl" yaml:"signed_url_ttl"`
	AutoDownload bool          `mapstructure:"auto_download" yaml:"auto_download"`
}

type PrefsConfig struct {
	// Driver is "sqlite3", "postgres" or "memory".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Upload  UploadConfig  `mapstructure:"upload" yaml:"upload"`
	Render  RenderConfig  `mapstructure:"render" yaml:"render"`
	Codecs  CodecsConfig  `mapstructure:"codecs" yaml:"codecs"`
	Publish PublishConfig `mapstructure:"publish" yaml:"publish"`
	Prefs   PrefsConfig   `mapstructure:"prefs" yaml:"prefs"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// SetDefaults registers every default on v so that environment variables
// for nested keys are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.session_ttl", 30*time.Minute)
	v.SetDefault("server.sweep_schedule", "@every 1m")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.allow_origin", "*")
	v.SetDefault("upload.max_file_size", 20*1024*1024)
	v.SetDefault("upload.max_files", 50)
	v.SetDefault("render.backend", "fitz")
	v.SetDefault("codecs.order", []string{"vips", "magick"})
	v.SetDefault("publish.backend", "memory")
	v.SetDefault("publish.base_url", "")
	v.SetDefault("publish.gcs_bucket", "")
	v.SetDefault("publish.gcs_prefix", "results")
	v.SetDefault("publish.signing_email", "")
	v.SetDefault("publish.signing_key", "")
	v.SetDefault("publish.signed_url_ttl", 15*time.Minute)
	v.SetDefault("publish.auto_download", false)
	v.SetDefault("prefs.driver", "sqlite3")
	v.SetDefault("prefs.dsn", "formatconv.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Upload.MaxFileSize < 0 {
		return fmt.Errorf("upload.max_file_size must not be negative")
	}
	switch c.Render.Backend {
	case "fitz", "pdftoppm":
	default:
		return fmt.Errorf("render.backend must be fitz or pdftoppm, got %q", c.Render.Backend)
	}
	for _, name := range c.Codecs.Order {
		if name != "vips" && name != "magick" {
			return fmt.Errorf("codecs.order: unknown codec %q", name)
		}
	}
	switch c.Publish.Backend {
	case "memory":
	case "gcs":
		if c.Publish.GCSBucket == "" {
			return fmt.Errorf("publish.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("publish.backend must be memory or gcs, got %q", c.Publish.Backend)
	}
	switch c.Prefs.Driver {
	case "sqlite3", "postgres", "memory":
	default:
		return fmt.Errorf("prefs.driver must be sqlite3, postgres or memory, got %q", c.Prefs.Driver)
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("server.session_ttl must be positive")
	}
	return nil
}
