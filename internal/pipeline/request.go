package pipeline

import (
	"path"
	"strings"
)

const (
	// MetadataTypeKey is the custom metadata entry carrying the variant hint.
	MetadataTypeKey = "type"

	compressedExt = ".webp"
)

// ChangeEvent identifies the object a notification is about.
type ChangeEvent struct {
	Bucket string
	Key    string
}

// ProcessingRequest is everything one invocation needs, derived from the
// event and the source object's metadata.
type ProcessingRequest struct {
	SourceBucket      string
	SourceKey         string
	DestinationBucket string
	DestinationFolder string
	DestinationKey    string
	VariantHint       string
}

// NewRequest derives the processing request. The destination key is
// "<folder>/<basename without extension>.webp".
func NewRequest(ev ChangeEvent, metadata map[string]string, destBucket, destFolder string) ProcessingRequest {
	return ProcessingRequest{
		SourceBucket:      ev.Bucket,
		SourceKey:         ev.Key,
		DestinationBucket: destBucket,
		DestinationFolder: destFolder,
		DestinationKey:    DestinationKey(destFolder, ev.Key),
		VariantHint:       metadata[MetadataTypeKey],
	}
}

// DestinationKey maps a source key to its compressed artifact key,
// e.g. ("compressed", "photos/cat.jpg") → "compressed/cat.webp".
func DestinationKey(folder, sourceKey string) string {
	base := path.Base(sourceKey)
	name := strings.TrimSuffix(base, path.Ext(base)) + compressedExt
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
