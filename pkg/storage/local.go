package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const metadataDir = ".metadata"

// LocalStorage implements Gateway on the local filesystem. Buckets are
// directories under the base path; custom metadata lives in JSON sidecar
// files under <base>/.metadata/<bucket>/<key>.json.
type LocalStorage struct {
	basePath string
}

// LocalConfig holds configuration for local storage.
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	absPath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	return &LocalStorage{basePath: absPath}, nil
}

// cleanRel cleans a bucket or key and rejects values escaping the base path.
func cleanRel(p string) (string, error) {
	c := filepath.Clean(filepath.FromSlash(p))
	if c == "." || c == ".." || filepath.IsAbs(c) || strings.HasPrefix(c, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid path %q", p)
	}
	return c, nil
}

func (s *LocalStorage) objectPath(bucket, key string) (string, error) {
	b, err := cleanRel(bucket)
	if err != nil {
		return "", err
	}
	if b == metadataDir {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	k, err := cleanRel(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, b, k), nil
}

func (s *LocalStorage) metadataPath(bucket, key string) (string, error) {
	b, err := cleanRel(bucket)
	if err != nil {
		return "", err
	}
	k, err := cleanRel(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, metadataDir, b, k+".json"), nil
}

// Put stores content and optional metadata. It is used to seed buckets for
// local runs and tests.
func (s *LocalStorage) Put(ctx context.Context, bucket, key string, r io.Reader, metadata map[string]string) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if err := writeLocalFile(path, func(f *os.File) error {
		_, err := io.Copy(f, r)
		return err
	}); err != nil {
		return fmt.Errorf("%w: put %s/%s: %w", ErrUpload, bucket, key, err)
	}
	return s.putMetadata(bucket, key, metadata)
}

func (s *LocalStorage) putMetadata(bucket, key string, metadata map[string]string) error {
	path, err := s.metadataPath(bucket, key)
	if err != nil {
		return err
	}
	if len(metadata) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear metadata: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return writeLocalFile(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// Metadata returns the sidecar metadata of an object.
func (s *LocalStorage) Metadata(ctx context.Context, bucket, key string) (map[string]string, error) {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccess, err)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("%w: stat %s/%s: %w", ErrAccess, bucket, key, err)
	}

	mdPath, err := s.metadataPath(bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccess, err)
	}
	data, err := os.ReadFile(mdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: read metadata %s/%s: %w", ErrAccess, bucket, key, err)
	}

	md := map[string]string{}
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("%w: decode metadata %s/%s: %w", ErrAccess, bucket, key, err)
	}
	return md, nil
}

// Exists checks if an object exists.
func (s *LocalStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAccess, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: stat %s/%s: %w", ErrAccess, bucket, key, err)
	}
	return !info.IsDir(), nil
}

// Download copies an object to localPath.
func (s *LocalStorage) Download(ctx context.Context, bucket, key, localPath string) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}

	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %w: %s/%s", ErrDownload, ErrNotFound, bucket, key)
		}
		return fmt.Errorf("%w: open %s/%s: %w", ErrDownload, bucket, key, err)
	}
	defer src.Close()

	if err := writeLocalFile(localPath, func(f *os.File) error {
		_, err := io.Copy(f, src)
		return err
	}); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrDownload, bucket, key, err)
	}
	return nil
}

// Upload copies localPath into the bucket. With IfAbsent the final step is a
// hard link, which fails if the destination already exists.
func (s *LocalStorage) Upload(ctx context.Context, localPath, bucket, key string, opts UploadOptions) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrUpload, localPath, err)
	}
	defer src.Close()

	if !opts.IfAbsent {
		if err := writeLocalFile(path, func(f *os.File) error {
			_, err := io.Copy(f, src)
			return err
		}); err != nil {
			return fmt.Errorf("%w: %s/%s: %w", ErrUpload, bucket, key, err)
		}
		return nil
	}

	staged := path + ".staged"
	if err := writeLocalFile(staged, func(f *os.File) error {
		_, err := io.Copy(f, src)
		return err
	}); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrUpload, bucket, key, err)
	}
	defer os.Remove(staged)

	if err := os.Link(staged, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %w: %s/%s", ErrUpload, ErrPreconditionFailed, bucket, key)
		}
		return fmt.Errorf("%w: link %s/%s: %w", ErrUpload, bucket, key, err)
	}
	return nil
}

// Delete removes an object and its metadata sidecar.
func (s *LocalStorage) Delete(ctx context.Context, bucket, key string) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %s/%s: %w", ErrDelete, bucket, key, err)
	}
	if mdPath, err := s.metadataPath(bucket, key); err == nil {
		os.Remove(mdPath)
	}
	return nil
}

// Close is a no-op for local storage.
func (s *LocalStorage) Close() error { return nil }

// GetBasePath returns the base path for the storage.
func (s *LocalStorage) GetBasePath() string {
	return s.basePath
}

var _ Gateway = (*LocalStorage)(nil)
