package pipeline

import (
	"errors"
	"fmt"

	"github.com/weiawesome/wes-io-live/compress-service/internal/transcoder"
	"github.com/weiawesome/wes-io-live/compress-service/pkg/storage"
)

// Step names a pipeline stage in errors and logs.
type Step string

const (
	StepMetadata     Step = "metadata"
	StepExistence    Step = "existence_check"
	StepDownload     Step = "download"
	StepTranscode    Step = "transcode"
	StepUpload       Step = "upload"
	StepSourceDelete Step = "source_delete"
)

// Error kinds. Every error returned by Process unwraps to exactly one of
// these and to the underlying cause.
var (
	ErrMetadata  = errors.New("metadata lookup failed")
	ErrAccess    = storage.ErrAccess
	ErrDownload  = storage.ErrDownload
	ErrTranscode = transcoder.ErrTranscode
	ErrUpload    = storage.ErrUpload
	ErrDelete    = storage.ErrDelete
)

// Error reports which step failed for which object.
type Error struct {
	Step   Step
	Kind   error
	Bucket string
	Key    string
	Err    error
}

func newError(step Step, kind error, bucket, key string, err error) *Error {
	return &Error{Step: step, Kind: kind, Bucket: bucket, Key: key, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Step, e.Bucket, e.Key, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
