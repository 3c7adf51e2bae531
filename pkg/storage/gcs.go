package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSStorage implements Gateway for Google Cloud Storage.
type GCSStorage struct {
	client *gcs.Client
}

// GCSConfig holds configuration for GCS storage. With no credentials file
// the client uses Application Default Credentials. Endpoint points the
// client at an emulator (fake-gcs-server) and disables authentication.
type GCSConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
}

// NewGCSStorage creates a new GCSStorage instance.
func NewGCSStorage(ctx context.Context, cfg GCSConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCSStorage{client: client}, nil
}

// Metadata returns the custom metadata map of an object.
func (s *GCSStorage) Metadata(ctx context.Context, bucket, key string) (map[string]string, error) {
	attrs, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("%w: attrs %s/%s: %w", ErrAccess, bucket, key, err)
	}

	md := make(map[string]string, len(attrs.Metadata))
	for k, v := range attrs.Metadata {
		md[k] = v
	}
	return md, nil
}

// Exists checks if an object exists.
func (s *GCSStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: attrs %s/%s: %w", ErrAccess, bucket, key, err)
	}
	return true, nil
}

// Download streams the object into localPath.
func (s *GCSStorage) Download(ctx context.Context, bucket, key, localPath string) error {
	err := writeLocalFile(localPath, func(f *os.File) error {
		r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(f, r)
		return err
	})
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("%w: %w: %s/%s", ErrDownload, ErrNotFound, bucket, key)
		}
		return fmt.Errorf("%w: %s/%s: %w", ErrDownload, bucket, key, err)
	}
	return nil
}

// Upload writes localPath to the bucket. IfAbsent maps to the DoesNotExist
// precondition.
func (s *GCSStorage) Upload(ctx context.Context, localPath, bucket, key string, opts UploadOptions) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrUpload, localPath, err)
	}
	defer f.Close()

	obj := s.client.Bucket(bucket).Object(key)
	if opts.IfAbsent {
		obj = obj.If(gcs.Conditions{DoesNotExist: true})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := obj.NewWriter(ctx)
	w.ContentType = contentTypeFor(localPath, opts.ContentType)

	if _, err := io.Copy(w, f); err != nil {
		// Cancelling the context aborts the upload; Close then reports the cancellation.
		cancel()
		w.Close()
		return fmt.Errorf("%w: %s/%s: %w", ErrUpload, bucket, key, err)
	}
	if err := w.Close(); err != nil {
		if isGCSPreconditionFailed(err) {
			return fmt.Errorf("%w: %w: %s/%s", ErrUpload, ErrPreconditionFailed, bucket, key)
		}
		return fmt.Errorf("%w: %s/%s: %w", ErrUpload, bucket, key, err)
	}
	return nil
}

// Delete removes an object. A missing object is not an error.
func (s *GCSStorage) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.Bucket(bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s/%s: %w", ErrDelete, bucket, key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func isGCSPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

var _ Gateway = (*GCSStorage)(nil)
