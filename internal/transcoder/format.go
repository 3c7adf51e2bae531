package transcoder

import (
	"errors"

	"github.com/disintegration/imaging"
)

var (
	// ErrUnsupportedFormat marks inputs this service does not compress. It is
	// a control signal: callers treat it as "nothing to do".
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrTranscode wraps every backend failure.
	ErrTranscode = errors.New("transcode failed")
)

// FormatFromKey resolves the source format from an object key's extension.
// Only JPEG (.jpg, .jpeg) and PNG (.png) are accepted, case-insensitively.
func FormatFromKey(key string) (imaging.Format, error) {
	f, err := imaging.FormatFromFilename(key)
	if err != nil {
		return 0, ErrUnsupportedFormat
	}
	switch f {
	case imaging.JPEG, imaging.PNG:
		return f, nil
	default:
		return 0, ErrUnsupportedFormat
	}
}
