package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// defaultSignerSecret is the development-only token secret. Refused in production.
const defaultSignerSecret = "vaultstream-dev-secret-do-not-use-in-prod"

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Signer   SignerConfig
	Upload   UploadConfig
	HLS      HLSConfig
	Storage  StorageConfig
	Worker   WorkerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
}

type AppConfig struct {
	Env string `envconfig:"APP_ENV" default:"development"`
}

func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	RateLimit       int           `envconfig:"API_RATE_LIMIT" default:"100"`
	RateLimitWindow time.Duration `envconfig:"API_RATE_LIMIT_WINDOW" default:"1m"`
}

type SignerConfig struct {
	Secret   string        `envconfig:"SIGNER_SECRET" default:"vaultstream-dev-secret-do-not-use-in-prod"`
	TokenTTL time.Duration `envconfig:"SIGNER_TOKEN_TTL" default:"1h"`
}

type UploadConfig struct {
	ScratchDir        string   `envconfig:"UPLOAD_SCRATCH_DIR" default:"/tmp/vaultstream/uploads"`
	MaxSizeMiB        int64    `envconfig:"UPLOAD_MAX_SIZE_MIB" default:"2048"`
	AllowedExtensions []string `envconfig:"UPLOAD_ALLOWED_EXTENSIONS" default:"mp4,mov,avi,mkv,webm"`
	PassphraseCost    int      `envconfig:"UPLOAD_PASSPHRASE_COST" default:"12"`
}

func (c UploadConfig) MaxSizeBytes() int64 {
	return c.MaxSizeMiB << 20
}

type HLSConfig struct {
	FFmpegPath       string        `envconfig:"HLS_FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath      string        `envconfig:"HLS_FFPROBE_PATH" default:"ffprobe"`
	SegmentDuration  int           `envconfig:"HLS_SEGMENT_DURATION" default:"4"`
	VideoPreset      string        `envconfig:"HLS_VIDEO_PRESET" default:"fast"`
	RenditionTimeout time.Duration `envconfig:"HLS_RENDITION_TIMEOUT" default:"1h"`
}

type StorageConfig struct {
	// Backend selects the blob store implementation: "local" or "s3".
	Backend   string `envconfig:"STORAGE_BACKEND" default:"local"`
	LocalRoot string `envconfig:"STORAGE_LOCAL_ROOT" default:"/var/lib/vaultstream/storage"`
	MinIO     MinIOConfig
}

type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"vaultstream"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type WorkerConfig struct {
	TempDir              string        `envconfig:"WORKER_TEMP_DIR" default:"/tmp/vaultstream/work"`
	Concurrency          int           `envconfig:"WORKER_CONCURRENCY" default:"2"`
	ShutdownTimeout      time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	StaleProcessingAfter time.Duration `envconfig:"WORKER_STALE_PROCESSING_AFTER" default:"2h"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"vaultstream"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"vaultstream"`
	DBName   string `envconfig:"POSTGRES_DB" default:"vaultstream"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"vaultstream"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"vaultstream"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces invariants that envconfig tags cannot express.
func (c *Config) Validate() error {
	if len(c.Signer.Secret) < 32 {
		return fmt.Errorf("signer secret must be at least 32 bytes, got %d", len(c.Signer.Secret))
	}
	if c.App.IsProduction() && c.Signer.Secret == defaultSignerSecret {
		return fmt.Errorf("refusing to run in production with the default signer secret")
	}
	switch c.Storage.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.HLS.SegmentDuration <= 0 {
		return fmt.Errorf("HLS segment duration must be positive")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1")
	}
	return nil
}
