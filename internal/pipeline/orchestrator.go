// Package pipeline runs the per-object compression sequence: metadata
// lookup, idempotency check, download, transcode, upload, source delete
// and scratch cleanup.
//
// The destination existence check is the only deduplication. It is not a
// lock: two first deliveries of the same object running at the same time
// both transcode, and the later upload replaces the earlier one. Setting
// Config.ConditionalUpload turns the upload into a create-if-absent write
// on backends that support it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/compress-service/internal/mq"
	"github.com/weiawesome/wes-io-live/compress-service/internal/transcoder"
	pkglog "github.com/weiawesome/wes-io-live/compress-service/pkg/log"
	"github.com/weiawesome/wes-io-live/compress-service/pkg/storage"
)

const webpContentType = "image/webp"

// Outcome is how a successful invocation ended.
type Outcome string

const (
	OutcomeCompressed  Outcome = "compressed"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeFailed      Outcome = "failed"
)

// Result describes a finished invocation.
type Result struct {
	InvocationID string
	Request      ProcessingRequest
	Outcome      Outcome
}

// Transcoder converts a local image file into a local webp file.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath string, format imaging.Format, variant string) (string, error)
}

// Config holds the orchestrator settings.
type Config struct {
	DestinationBucket string `mapstructure:"destination_bucket"`
	DestinationFolder string `mapstructure:"destination_folder"`
	ScratchDir        string `mapstructure:"scratch_dir"`
	ConditionalUpload bool   `mapstructure:"conditional_upload"`
}

// Orchestrator implements mq.EventHandler.
type Orchestrator struct {
	store      storage.Gateway
	transcoder Transcoder
	publisher  mq.ResultPublisher // optional
	cfg        Config
	newID      func() string
}

// NewOrchestrator constructs an Orchestrator. publisher may be nil.
func NewOrchestrator(store storage.Gateway, tr Transcoder, publisher mq.ResultPublisher, cfg Config) *Orchestrator {
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	return &Orchestrator{
		store:      store,
		transcoder: tr,
		publisher:  publisher,
		cfg:        cfg,
		newID:      func() string { return uuid.New().String() },
	}
}

// HandleObjectEvent adapts a bucket notification to Process.
func (o *Orchestrator) HandleObjectEvent(ctx context.Context, event *mq.ObjectEvent) error {
	_, err := o.Process(ctx, ChangeEvent{Bucket: event.Bucket, Key: event.Key})
	return err
}

// Process runs the pipeline for one object. A nil error means the
// invocation succeeded; Result.Outcome says whether anything was written.
func (o *Orchestrator) Process(ctx context.Context, ev ChangeEvent) (res Result, err error) {
	res.InvocationID = o.newID()
	res.Request = ProcessingRequest{SourceBucket: ev.Bucket, SourceKey: ev.Key}

	ctx, l := pkglog.WithObject(ctx, res.InvocationID, ev.Bucket, ev.Key)
	defer func() {
		if err != nil {
			res.Outcome = OutcomeFailed
			evt := l.Error().Err(err)
			var perr *Error
			if errors.As(err, &perr) {
				evt = evt.Str(pkglog.FieldStep, string(perr.Step))
			}
			evt.Msg("failed to compress object")
		}
		l.Debug().Str(pkglog.FieldOutcome, string(res.Outcome)).Msg("invocation finished")
		o.report(ctx, l, res, err)
	}()

	// 1. Metadata. Everything after this reads the variant from the request.
	md, err := o.store.Metadata(ctx, ev.Bucket, ev.Key)
	if err != nil {
		return res, newError(StepMetadata, ErrMetadata, ev.Bucket, ev.Key, err)
	}
	req := NewRequest(ev, md, o.cfg.DestinationBucket, o.cfg.DestinationFolder)
	res.Request = req
	l = l.With().Str(pkglog.FieldDestination, req.DestinationKey).Str(pkglog.FieldVariant, req.VariantHint).Logger()

	// 2. Idempotency check on the destination.
	exists, err := o.store.Exists(ctx, req.DestinationBucket, req.DestinationKey)
	if err != nil {
		return res, newError(StepExistence, ErrAccess, req.DestinationBucket, req.DestinationKey, err)
	}
	if exists {
		l.Info().Msg("compressed file already exists, skipping")
		res.Outcome = OutcomeSkipped
		return res, nil
	}

	format, err := transcoder.FormatFromKey(req.SourceKey)
	if err != nil {
		l.Info().Str("ext", path.Ext(req.SourceKey)).Msg("unsupported format, nothing to do")
		res.Outcome = OutcomeUnsupported
		return res, nil
	}

	// 3. Download into a scratch dir owned by this invocation.
	scratch := filepath.Join(o.cfg.ScratchDir, res.InvocationID)
	inputPath := filepath.Join(scratch, path.Base(req.SourceKey))
	outputPath := transcoder.OutputPath(inputPath)
	defer cleanup(l, scratch, inputPath, outputPath)

	l.Info().Msg("compressing file")
	if err := o.store.Download(ctx, req.SourceBucket, req.SourceKey, inputPath); err != nil {
		return res, newError(StepDownload, ErrDownload, req.SourceBucket, req.SourceKey, err)
	}
	l.Debug().Str(pkglog.FieldLocalPath, inputPath).Msg("downloaded source object")

	// 4. Transcode.
	out, err := o.transcoder.Transcode(ctx, inputPath, format, req.VariantHint)
	if err != nil {
		if errors.Is(err, transcoder.ErrUnsupportedFormat) {
			l.Info().Msg("unsupported format, nothing to do")
			res.Outcome = OutcomeUnsupported
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, newError(StepTranscode, ErrTranscode, req.SourceBucket, req.SourceKey, err)
	}
	if err := checkWebP(out); err != nil {
		return res, newError(StepTranscode, ErrTranscode, req.SourceBucket, req.SourceKey, err)
	}
	l.Debug().Str(pkglog.FieldLocalPath, out).Msg("compressed image")

	// 5. Upload. The source is only touched after this succeeds.
	err = o.store.Upload(ctx, out, req.DestinationBucket, req.DestinationKey, storage.UploadOptions{
		ContentType: webpContentType,
		IfAbsent:    o.cfg.ConditionalUpload,
	})
	if err != nil {
		if errors.Is(err, storage.ErrPreconditionFailed) {
			l.Info().Msg("compressed file was written concurrently, skipping")
			res.Outcome = OutcomeSkipped
			return res, nil
		}
		return res, newError(StepUpload, ErrUpload, req.DestinationBucket, req.DestinationKey, err)
	}
	l.Info().Str("destination_bucket", req.DestinationBucket).Msg("uploaded compressed image")

	// 6. Remove the source if it is still there.
	srcExists, err := o.store.Exists(ctx, req.SourceBucket, req.SourceKey)
	if err != nil {
		return res, newError(StepSourceDelete, ErrDelete, req.SourceBucket, req.SourceKey, err)
	}
	if srcExists {
		if err := o.store.Delete(ctx, req.SourceBucket, req.SourceKey); err != nil {
			return res, newError(StepSourceDelete, ErrDelete, req.SourceBucket, req.SourceKey, err)
		}
		l.Info().Msg("deleted original image")
	} else {
		l.Info().Msg("original image no longer exists")
	}

	res.Outcome = OutcomeCompressed
	return res, nil
}

// checkWebP verifies the artifact really is webp before it is published.
func checkWebP(localPath string) error {
	mt, err := mimetype.DetectFile(localPath)
	if err != nil {
		return err
	}
	if !mt.Is(webpContentType) {
		return fmt.Errorf("transcoder produced %s, want %s", mt.String(), webpContentType)
	}
	return nil
}

// cleanup removes the scratch files and directory. Failures are logged only.
func cleanup(l zerolog.Logger, dir string, files ...string) {
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			l.Warn().Err(err).Str(pkglog.FieldLocalPath, f).Msg("failed to remove scratch file")
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		l.Warn().Err(err).Str(pkglog.FieldLocalPath, dir).Msg("failed to remove scratch dir")
	}
}

// report publishes the invocation result when a publisher is configured.
// Publishing is best-effort and never changes the invocation's result.
func (o *Orchestrator) report(ctx context.Context, l zerolog.Logger, res Result, procErr error) {
	if o.publisher == nil {
		return
	}

	event := &mq.CompressionResultEvent{
		InvocationID: res.InvocationID,
		Source:       mq.ObjectRef{Bucket: res.Request.SourceBucket, Key: res.Request.SourceKey},
		Outcome:      string(res.Outcome),
		Variant:      res.Request.VariantHint,
		Timestamp:    time.Now().Unix(),
	}
	if res.Request.DestinationKey != "" {
		event.Destination = mq.ObjectRef{Bucket: res.Request.DestinationBucket, Key: res.Request.DestinationKey}
	}
	if procErr != nil {
		event.Error = procErr.Error()
	}

	if err := o.publisher.PublishCompressionResult(context.WithoutCancel(ctx), event); err != nil {
		l.Warn().Err(err).Msg("failed to publish compression result")
	}
}
