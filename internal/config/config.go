package config

import (
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/compress-service/internal/pipeline"
	"github.com/weiawesome/wes-io-live/compress-service/internal/transcoder"
	pkgconfig "github.com/weiawesome/wes-io-live/compress-service/pkg/config"
	"github.com/weiawesome/wes-io-live/compress-service/pkg/storage"
)

// Event sources.
const (
	SourceKafka = "kafka"
	SourceHTTP  = "http"
)

// Storage backends.
const (
	StorageS3    = "s3"
	StorageGCS   = "gcs"
	StorageLocal = "local"
)

// StorageConfig mirrors the nested structure used by other services.
type StorageConfig struct {
	Type  string              `mapstructure:"type"`
	S3    storage.S3Config    `mapstructure:"s3"`
	GCS   storage.GCSConfig   `mapstructure:"gcs"`
	Local storage.LocalConfig `mapstructure:"local"`
}

type Config struct {
	Log        LogConfig          `mapstructure:"log"`
	Source     SourceConfig       `mapstructure:"source"`
	Server     ServerConfig       `mapstructure:"server"`
	Kafka      KafkaConfig        `mapstructure:"kafka"`
	Storage    StorageConfig      `mapstructure:"storage"`
	Pipeline   pipeline.Config    `mapstructure:"pipeline"`
	Transcoder transcoder.Options `mapstructure:"transcoder"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type SourceConfig struct {
	Type string `mapstructure:"type"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type KafkaConfig struct {
	Brokers            string   `mapstructure:"brokers"`
	ConsumerTopic      string   `mapstructure:"consumer_topic"`
	ConsumerGroupID    string   `mapstructure:"consumer_group_id"`
	ProducerTopic      string   `mapstructure:"producer_topic"` // empty disables result events
	EventNameFilters   []string `mapstructure:"event_name_filters"`
	BucketFilter       string   `mapstructure:"bucket_filter"`
	PrefixFilter       string   `mapstructure:"prefix_filter"`
	RedeliverOnFailure bool     `mapstructure:"redeliver_on_failure"`
}

// Load reads ./config/config.yaml (optional) and the environment.
func Load() (*Config, error) {
	return LoadFrom("./config")
}

// LoadFrom is Load with an explicit config directory.
func LoadFrom(configPath string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, "config")
	if err != nil {
		return nil, err
	}

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("source.type", SourceHTTP)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.consumer_topic", "minio-events")
	v.SetDefault("kafka.consumer_group_id", "compress-service")
	v.SetDefault("kafka.producer_topic", "")
	v.SetDefault("kafka.event_name_filters", []string{"s3:ObjectCreated:*", "ObjectCreated:*"})
	v.SetDefault("kafka.bucket_filter", "")
	v.SetDefault("kafka.prefix_filter", "")
	v.SetDefault("kafka.redeliver_on_failure", false)
	v.SetDefault("storage.type", StorageGCS)
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_path_style", true)
	v.SetDefault("storage.local.base_path", "./data/storage")
	v.SetDefault("pipeline.destination_folder", "compressed")
	v.SetDefault("pipeline.scratch_dir", "")
	v.SetDefault("pipeline.conditional_upload", false)

	opts := transcoder.DefaultOptions()
	v.SetDefault("transcoder.jpeg_quality", opts.JPEGQuality)
	v.SetDefault("transcoder.png_compression_level", opts.PNGCompressionLevel)
	v.SetDefault("transcoder.webp_quality", opts.WebPQuality)
	v.SetDefault("transcoder.avatar_size", opts.AvatarSize)

	// Env bindings
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("source.type", "SOURCE_TYPE")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.consumer_topic", "KAFKA_CONSUMER_TOPIC")
	v.BindEnv("kafka.consumer_group_id", "KAFKA_CONSUMER_GROUP_ID")
	v.BindEnv("kafka.producer_topic", "KAFKA_PRODUCER_TOPIC")
	v.BindEnv("kafka.event_name_filters", "KAFKA_EVENT_NAME_FILTERS")
	v.BindEnv("kafka.bucket_filter", "KAFKA_BUCKET_FILTER")
	v.BindEnv("kafka.prefix_filter", "KAFKA_PREFIX_FILTER")
	v.BindEnv("kafka.redeliver_on_failure", "KAFKA_REDELIVER_ON_FAILURE")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.s3.region", "S3_REGION")
	v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("storage.gcs.project_id", "GOOGLE_CLOUD_PROJECT")
	v.BindEnv("storage.gcs.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
	v.BindEnv("storage.gcs.endpoint", "GCS_ENDPOINT")
	v.BindEnv("storage.local.base_path", "LOCAL_STORAGE_PATH")
	v.BindEnv("pipeline.destination_bucket", "COMPRESSED_IMAGES_BUCKET")
	v.BindEnv("pipeline.destination_folder", "COMPRESSED_IMAGES_FOLDER")
	v.BindEnv("pipeline.scratch_dir", "SCRATCH_DIR")
	v.BindEnv("pipeline.conditional_upload", "CONDITIONAL_UPLOAD")

	if err := pkgconfig.Required(v, "pipeline.destination_bucket"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Pipeline.DestinationBucket == "" {
		return fmt.Errorf("pipeline.destination_bucket is required")
	}

	switch c.Source.Type {
	case SourceHTTP:
	case SourceKafka:
		if c.Kafka.Brokers == "" || c.Kafka.ConsumerTopic == "" {
			return fmt.Errorf("kafka source requires kafka.brokers and kafka.consumer_topic")
		}
	default:
		return fmt.Errorf("unsupported source type: %q", c.Source.Type)
	}

	switch c.Storage.Type {
	case StorageS3, StorageGCS, StorageLocal:
	default:
		return fmt.Errorf("unsupported storage type: %q", c.Storage.Type)
	}

	q := c.Transcoder
	if q.JPEGQuality < 1 || q.JPEGQuality > 100 {
		return fmt.Errorf("transcoder.jpeg_quality must be within 1..100, got %d", q.JPEGQuality)
	}
	if q.PNGCompressionLevel < 0 || q.PNGCompressionLevel > 9 {
		return fmt.Errorf("transcoder.png_compression_level must be within 0..9, got %d", q.PNGCompressionLevel)
	}
	if q.WebPQuality < 0 || q.WebPQuality > 100 {
		return fmt.Errorf("transcoder.webp_quality must be within 0..100, got %v", q.WebPQuality)
	}
	if q.AvatarSize <= 0 {
		return fmt.Errorf("transcoder.avatar_size must be positive, got %d", q.AvatarSize)
	}
	return nil
}
