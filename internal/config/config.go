package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// MaxUploadBytes bounds a single uploaded file.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// DatabaseConfig configures the job record store. An empty URL keeps job
// records in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// RedisConfig configures the queue broker connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// QueueConfig configures the job queue, the producer wait and the worker pool.
type QueueConfig struct {
	Name        string        `mapstructure:"name" validate:"required"`
	WorkerCount int           `mapstructure:"worker_count" validate:"gt=0"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout" validate:"gt=0"`
	// ResultTTL bounds how long job results stay retrievable in the broker.
	ResultTTL time.Duration `mapstructure:"result_ttl" validate:"gt=0"`
	// Backend selects the queue implementation: redis for multi-process
	// deployments, memory for a single process.
	Backend string `mapstructure:"backend" validate:"required,oneof=redis memory"`
}

// StorageConfig configures staging and the storage providers.
type StorageConfig struct {
	DefaultProvider string             `mapstructure:"default_provider" validate:"required,oneof=local s3"`
	TempDir         string             `mapstructure:"temp_dir" validate:"required"`
	CompressWidth   int                `mapstructure:"compress_width" validate:"gt=0"`
	Local           LocalStorageConfig `mapstructure:"local" validate:"required"`
	Object          ObjectStoreConfig  `mapstructure:"object"`
}

// LocalStorageConfig configures the filesystem provider.
type LocalStorageConfig struct {
	Root          string `mapstructure:"root" validate:"required"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// ObjectStoreConfig configures the object-store provider.
type ObjectStoreConfig struct {
	// Backend selects the client library: s3 (aws-sdk-go-v2) or minio.
	Backend   string `mapstructure:"backend" validate:"omitempty,oneof=s3 minio"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	// PublicBaseURL overrides the URL prefix of stored objects.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// Enabled reports whether an object store is configured.
func (c ObjectStoreConfig) Enabled() bool {
	return c.Bucket != ""
}

// AuthConfig contains authentication settings. An empty secret disables
// bearer-token checks on the API.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}
