package models

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Log        LogConfig       `yaml:"log"`
	Database   DatabaseConfig  `yaml:"database"`
	Blob       BlobConfig      `yaml:"blob"`
	Queue      QueueConfig     `yaml:"queue"`
	Worker     WorkerConfig    `yaml:"worker"`
	Upload     UploadConfig    `yaml:"upload"`
	Thumbnails ThumbnailConfig `yaml:"thumbnails"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	PublicURL string `yaml:"public_url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type BlobConfig struct {
	Driver     string          `yaml:"driver"`
	Buckets    BucketsConfig   `yaml:"buckets"`
	PresignTTL string          `yaml:"presign_ttl"`
	S3         S3Config        `yaml:"s3"`
	Local      LocalBlobConfig `yaml:"local"`

	presignTTL time.Duration
}

type BucketsConfig struct {
	Originals  string `yaml:"originals"`
	Thumbnails string `yaml:"thumbnails"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type LocalBlobConfig struct {
	Path       string `yaml:"path"`
	SigningKey string `yaml:"signing_key"`
}

type QueueConfig struct {
	Driver string      `yaml:"driver"`
	Kafka  KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	QueueSize   int `yaml:"queue_size"`
	// StaleAfter is how long a photo may stay PROCESSING before a starting
	// process schedules it again.
	StaleAfter string `yaml:"stale_after"`

	staleAfter time.Duration
}

type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// ThumbnailConfig holds the max dimension per size class and the JPEG
// quality as a fraction in (0,1].
type ThumbnailConfig struct {
	Small   int     `yaml:"small"`
	Medium  int     `yaml:"medium"`
	Large   int     `yaml:"large"`
	Quality float64 `yaml:"quality"`
}

func (t ThumbnailConfig) MaxDimension(c SizeClass) int {
	switch c {
	case SizeSmall:
		return t.Small
	case SizeMedium:
		return t.Medium
	case SizeLarge:
		return t.Large
	}
	return 0
}

func (w WorkerConfig) StaleAfterDuration() time.Duration {
	if w.staleAfter == 0 {
		return 10 * time.Minute
	}
	return w.staleAfter
}

func (b BlobConfig) PresignTTLDuration() time.Duration {
	if b.presignTTL == 0 {
		return time.Hour
	}
	return b.presignTTL
}

func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, path, err)
	}
	return cfg, nil
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost" + c.Server.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = "local"
	}
	if c.Blob.Buckets.Originals == "" {
		c.Blob.Buckets.Originals = "photobook-originals"
	}
	if c.Blob.Buckets.Thumbnails == "" {
		c.Blob.Buckets.Thumbnails = "photobook-thumbnails"
	}
	if c.Blob.PresignTTL == "" {
		c.Blob.PresignTTL = "1h"
	}
	if c.Blob.S3.Region == "" {
		c.Blob.S3.Region = "us-east-1"
	}
	if c.Blob.Local.Path == "" {
		c.Blob.Local.Path = "./data"
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Kafka.Topic == "" {
		c.Queue.Kafka.Topic = "photo-derivation"
	}
	if c.Queue.Kafka.GroupID == "" {
		c.Queue.Kafka.GroupID = "photo-derivation-workers"
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = 64
	}
	if c.Worker.StaleAfter == "" {
		c.Worker.StaleAfter = "10m"
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		c.Upload.AllowedExtensions = []string{"jpg", "jpeg", "png", "gif", "webp", "heic", "heif"}
	}
	if c.Thumbnails.Small == 0 {
		c.Thumbnails.Small = 300
	}
	if c.Thumbnails.Medium == 0 {
		c.Thumbnails.Medium = 800
	}
	if c.Thumbnails.Large == 0 {
		c.Thumbnails.Large = 1600
	}
	if c.Thumbnails.Quality == 0 {
		c.Thumbnails.Quality = 0.85
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	switch c.Blob.Driver {
	case "s3":
		if c.Blob.S3.Endpoint == "" {
			return fmt.Errorf("blob.s3.endpoint is required for the s3 driver")
		}
	case "local":
		if c.Blob.Local.SigningKey == "" {
			return fmt.Errorf("blob.local.signing_key is required for the local driver")
		}
	default:
		return fmt.Errorf("unsupported blob driver: %q", c.Blob.Driver)
	}
	if c.Blob.Buckets.Originals == c.Blob.Buckets.Thumbnails {
		return fmt.Errorf("originals and thumbnails must use separate buckets")
	}
	ttl, err := time.ParseDuration(c.Blob.PresignTTL)
	if err != nil || ttl <= 0 {
		return fmt.Errorf("invalid blob.presign_ttl %q", c.Blob.PresignTTL)
	}
	c.Blob.presignTTL = ttl

	switch c.Queue.Driver {
	case "memory":
	case "kafka":
		if len(c.Queue.Kafka.Brokers) == 0 {
			return fmt.Errorf("queue.kafka.brokers is required for the kafka driver")
		}
	default:
		return fmt.Errorf("unsupported queue driver: %q", c.Queue.Driver)
	}

	if c.Worker.Concurrency < 0 || c.Worker.QueueSize < 0 {
		return fmt.Errorf("worker.concurrency and worker.queue_size must be positive")
	}
	stale, err := time.ParseDuration(c.Worker.StaleAfter)
	if err != nil || stale <= 0 {
		return fmt.Errorf("invalid worker.stale_after %q", c.Worker.StaleAfter)
	}
	c.Worker.staleAfter = stale

	for i, ext := range c.Upload.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			return fmt.Errorf("upload.allowed_extensions[%d] is empty", i)
		}
		c.Upload.AllowedExtensions[i] = ext
	}

	for _, size := range SizeClasses {
		if c.Thumbnails.MaxDimension(size) <= 0 {
			return fmt.Errorf("thumbnails.%s must be a positive integer", size.Lower())
		}
	}
	if c.Thumbnails.Quality <= 0 || c.Thumbnails.Quality > 1 {
		return fmt.Errorf("thumbnails.quality must be in (0,1], got %v", c.Thumbnails.Quality)
	}
	return nil
}
