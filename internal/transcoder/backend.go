package transcoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Job describes one encode: read Input, apply the source-format stage,
// optionally cover-fit to Size×Size, and write webp to Output.
type Job struct {
	Input  string
	Output string
	Format imaging.Format
	Size   int // 0 keeps the natural dimensions
}

// Backend runs jobs asynchronously and reports through done.
// Implementations must call done exactly once per job.
type Backend interface {
	Process(job Job, done func(err error))
}

// AsyncBackend runs each job on its own goroutine.
type AsyncBackend struct {
	opts Options
}

// NewAsyncBackend creates a backend encoding with opts.
func NewAsyncBackend(opts Options) *AsyncBackend {
	return &AsyncBackend{opts: opts}
}

// Process starts the job and returns immediately.
func (b *AsyncBackend) Process(job Job, done func(err error)) {
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("encoder panic: %v", r)
			}
			done(err)
		}()
		err = b.run(job)
	}()
}

func (b *AsyncBackend) run(job Job) error {
	img, err := imaging.Open(job.Input)
	if err != nil {
		return fmt.Errorf("decode %s: %w", job.Input, err)
	}

	img, err = b.quantize(img, job.Format)
	if err != nil {
		return err
	}

	if job.Size > 0 {
		img = imaging.Fill(img, job.Size, job.Size, imaging.Center, imaging.Lanczos)
	}

	return writeWebP(job.Output, img, b.opts.WebPQuality)
}

// quantize round-trips the image through its source codec with the
// configured compression settings.
func (b *AsyncBackend) quantize(img image.Image, format imaging.Format) (image.Image, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case imaging.JPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(b.opts.JPEGQuality))
	case imaging.PNG:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(pngLevel(b.opts.PNGCompressionLevel)))
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", format, err)
	}

	out, err := imaging.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("%s stage decode: %w", format, err)
	}
	return out, nil
}

// pngLevel maps a zlib-style 0-9 level onto the encoder's presets.
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func writeWebP(path string, img image.Image, quality float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	if err := webp.Encode(f, img, &webp.Options{Lossless: false, Quality: quality}); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode webp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
