package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "FILEPIPE"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file when path is
// non-empty instead of searching the working directory.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.max_upload_bytes", 5*1024*1024)

	v.SetDefault("database.url", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.name", "fileQueue")
	v.SetDefault("queue.worker_count", 5)
	v.SetDefault("queue.wait_timeout", "5s")
	v.SetDefault("queue.result_ttl", "24h")
	v.SetDefault("queue.backend", "redis")

	v.SetDefault("storage.default_provider", "local")
	v.SetDefault("storage.temp_dir", "tmp")
	v.SetDefault("storage.compress_width", 300)
	v.SetDefault("storage.local.root", "public")
	v.SetDefault("storage.local.public_base_url", "")

	v.SetDefault("storage.object.backend", "s3")
	v.SetDefault("storage.object.bucket", "")
	v.SetDefault("storage.object.region", "us-east-1")
	v.SetDefault("storage.object.endpoint", "")
	v.SetDefault("storage.object.access_key", "")
	v.SetDefault("storage.object.secret_key", "")
	v.SetDefault("storage.object.use_ssl", true)
	v.SetDefault("storage.object.public_base_url", "")

	v.SetDefault("auth.jwt_secret", "")
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Storage.DefaultProvider == "s3" && !cfg.Storage.Object.Enabled() {
		return fmt.Errorf("config validation failed: storage.object.bucket is required when the default provider is s3")
	}
	return nil
}
