// Package transcoder re-encodes JPEG and PNG images to webp, optionally
// cropping them to a fixed square for avatars.
package transcoder

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// VariantAvatar selects the fixed-size cover crop.
const VariantAvatar = "avatar"

// Options holds the encoder settings.
type Options struct {
	JPEGQuality         int     `mapstructure:"jpeg_quality"`
	PNGCompressionLevel int     `mapstructure:"png_compression_level"`
	WebPQuality         float32 `mapstructure:"webp_quality"`
	AvatarSize          int     `mapstructure:"avatar_size"`
}

// DefaultOptions returns the production encoder settings.
func DefaultOptions() Options {
	return Options{
		JPEGQuality:         40,
		PNGCompressionLevel: 4,
		WebPQuality:         80,
		AvatarSize:          100,
	}
}

// Transcoder turns a local image into a local webp file.
type Transcoder struct {
	opts    Options
	backend Backend
}

// New creates a Transcoder on the goroutine backend.
func New(opts Options) *Transcoder {
	return NewWithBackend(opts, NewAsyncBackend(opts))
}

// NewWithBackend creates a Transcoder on a custom backend.
func NewWithBackend(opts Options, backend Backend) *Transcoder {
	return &Transcoder{opts: opts, backend: backend}
}

// OutputPath returns where the webp for inputPath is written.
func OutputPath(inputPath string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(inputPath), name+"-compressed.webp")
}

// Transcode encodes inputPath and blocks until the backend reports. It
// returns the output path once the file is complete on disk. If ctx is
// cancelled first the call is abandoned and ctx.Err() is returned.
func (t *Transcoder) Transcode(ctx context.Context, inputPath string, format imaging.Format, variant string) (string, error) {
	if format != imaging.JPEG && format != imaging.PNG {
		return "", ErrUnsupportedFormat
	}

	job := Job{
		Input:  inputPath,
		Output: OutputPath(inputPath),
		Format: format,
	}
	if variant == VariantAvatar {
		job.Size = t.opts.AvatarSize
	}

	res := newResult()
	t.backend.Process(job, res.complete)

	select {
	case err := <-res.ch:
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrTranscode, err)
		}
		return job.Output, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// result is a single-fire completion signal. Only the first call to
// complete is delivered.
type result struct {
	once sync.Once
	ch   chan error
}

func newResult() *result {
	return &result{ch: make(chan error, 1)}
}

func (r *result) complete(err error) {
	r.once.Do(func() {
		r.ch <- err
	})
}
