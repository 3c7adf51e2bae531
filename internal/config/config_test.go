package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/weiawesome/wes-io-live/compress-service/internal/pipeline"
	"github.com/weiawesome/wes-io-live/compress-service/internal/transcoder"
)

func TestLoadRequiresDestinationBucket(t *testing.T) {
	t.Setenv("COMPRESSED_IMAGES_BUCKET", "")

	_, err := LoadFrom(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "pipeline.destination_bucket") {
		t.Fatalf("expected missing bucket error, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMPRESSED_IMAGES_BUCKET", "out")

	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.DestinationBucket != "out" || cfg.Pipeline.DestinationFolder != "compressed" {
		t.Fatalf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Source.Type != SourceHTTP || cfg.Storage.Type != StorageGCS || cfg.Server.Port != 8080 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Fatalf("shutdown timeout = %v", cfg.Server.ShutdownTimeout)
	}
	tr := cfg.Transcoder
	if tr.JPEGQuality != 40 || tr.PNGCompressionLevel != 4 || tr.WebPQuality != 80 || tr.AvatarSize != 100 {
		t.Fatalf("transcoder = %+v", tr)
	}
	if cfg.Kafka.ProducerTopic != "" || cfg.Kafka.RedeliverOnFailure {
		t.Fatalf("kafka = %+v", cfg.Kafka)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COMPRESSED_IMAGES_BUCKET", "out")
	t.Setenv("SOURCE_TYPE", "kafka")
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("KAFKA_EVENT_NAME_FILTERS", "s3:ObjectCreated:Put,s3:ObjectCreated:Post")
	t.Setenv("KAFKA_REDELIVER_ON_FAILURE", "true")

	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.Type != SourceKafka || cfg.Server.Port != 9090 || cfg.Storage.Type != StorageS3 {
		t.Fatalf("cfg = %+v", cfg)
	}
	want := []string{"s3:ObjectCreated:Put", "s3:ObjectCreated:Post"}
	if !reflect.DeepEqual(cfg.Kafka.EventNameFilters, want) {
		t.Fatalf("filters = %v, want %v", cfg.Kafka.EventNameFilters, want)
	}
	if !cfg.Kafka.RedeliverOnFailure {
		t.Fatal("redeliver_on_failure not applied")
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("COMPRESSED_IMAGES_BUCKET", "")
	dir := t.TempDir()
	yaml := `
pipeline:
  destination_bucket: from-file
  destination_folder: small
storage:
  type: local
  local:
    base_path: /srv/objects
transcoder:
  webp_quality: 60
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.DestinationBucket != "from-file" || cfg.Pipeline.DestinationFolder != "small" {
		t.Fatalf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Storage.Type != StorageLocal || cfg.Storage.Local.BasePath != "/srv/objects" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Transcoder.WebPQuality != 60 || cfg.Transcoder.JPEGQuality != 40 {
		t.Fatalf("transcoder = %+v", cfg.Transcoder)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Source:     SourceConfig{Type: SourceHTTP},
			Storage:    StorageConfig{Type: StorageLocal},
			Kafka:      KafkaConfig{Brokers: "localhost:9092", ConsumerTopic: "minio-events"},
			Pipeline:   pipeline.Config{DestinationBucket: "out", DestinationFolder: "compressed"},
			Transcoder: transcoder.DefaultOptions(),
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"kafka source", func(c *Config) { c.Source.Type = SourceKafka }, true},
		{"missing bucket", func(c *Config) { c.Pipeline.DestinationBucket = "" }, false},
		{"unknown source", func(c *Config) { c.Source.Type = "sqs" }, false},
		{"kafka without topic", func(c *Config) { c.Source.Type = SourceKafka; c.Kafka.ConsumerTopic = "" }, false},
		{"unknown storage", func(c *Config) { c.Storage.Type = "azure" }, false},
		{"jpeg quality", func(c *Config) { c.Transcoder.JPEGQuality = 0 }, false},
		{"png level", func(c *Config) { c.Transcoder.PNGCompressionLevel = 10 }, false},
		{"webp quality", func(c *Config) { c.Transcoder.WebPQuality = 101 }, false},
		{"avatar size", func(c *Config) { c.Transcoder.AvatarSize = 0 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
