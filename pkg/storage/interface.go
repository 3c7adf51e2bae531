package storage

import (
	"context"
	"errors"
)

// Error kinds returned by Gateway implementations. They are wrapped with the
// object identity and the underlying cause; match them with errors.Is.
var (
	ErrNotFound           = errors.New("object not found")
	ErrAccess             = errors.New("storage access failed")
	ErrDownload           = errors.New("download failed")
	ErrUpload             = errors.New("upload failed")
	ErrDelete             = errors.New("delete failed")
	ErrPreconditionFailed = errors.New("object already exists")
)

// UploadOptions controls how a local file is written to a bucket.
type UploadOptions struct {
	// ContentType is the MIME type stored with the object. Empty lets the
	// backend decide.
	ContentType string

	// IfAbsent requests a create-if-absent write. When another writer got
	// there first the upload fails with ErrPreconditionFailed.
	IfAbsent bool
}

// Gateway is the storage capability used by the compression pipeline.
// Every operation addresses an object by bucket and key.
type Gateway interface {
	// Metadata returns the custom string metadata of an object.
	// Fails with ErrNotFound if the object is absent, ErrAccess otherwise.
	Metadata(ctx context.Context, bucket, key string) (map[string]string, error)

	// Exists reports whether an object is present. A missing object is not
	// an error; transport and permission failures wrap ErrAccess.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Download writes the full object to localPath. On failure nothing is
	// left at localPath. Errors wrap ErrDownload.
	Download(ctx context.Context, bucket, key, localPath string) error

	// Upload writes the file at localPath to bucket/key. Errors wrap ErrUpload.
	Upload(ctx context.Context, localPath, bucket, key string, opts UploadOptions) error

	// Delete removes an object. Deleting a missing object succeeds.
	// Errors wrap ErrDelete.
	Delete(ctx context.Context, bucket, key string) error

	// Close releases backend resources.
	Close() error
}
