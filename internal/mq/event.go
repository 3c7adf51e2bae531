package mq

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// s3EventRaw is the S3 / MinIO bucket notification structure.
type s3EventRaw struct {
	EventName string `json:"EventName"`
	Records   []struct {
		EventName string    `json:"eventName"`
		EventTime time.Time `json:"eventTime"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key         string `json:"key"`
				Size        int64  `json:"size"`
				ContentType string `json:"contentType"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseS3Notification decodes a bucket notification into one ObjectEvent
// per record. Object keys arrive URL-encoded and are decoded here.
func ParseS3Notification(value []byte) ([]*ObjectEvent, error) {
	var raw s3EventRaw
	if err := json.Unmarshal(value, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bucket notification: %w", err)
	}

	events := make([]*ObjectEvent, 0, len(raw.Records))
	for _, rec := range raw.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to url-decode key %q: %w", rec.S3.Object.Key, err)
		}
		if rec.S3.Bucket.Name == "" || key == "" {
			return nil, fmt.Errorf("notification record without bucket or key")
		}
		events = append(events, &ObjectEvent{
			Bucket:      rec.S3.Bucket.Name,
			Key:         key,
			EventName:   rec.EventName,
			Size:        rec.S3.Object.Size,
			ContentType: rec.S3.Object.ContentType,
			EventTime:   rec.EventTime,
		})
	}
	return events, nil
}

// EventFilter selects which notifications reach the handler. Empty
// fields match everything. An event name ending in "*" matches by prefix.
type EventFilter struct {
	EventNames []string
	Bucket     string
	Prefix     string
}

// Match reports whether the event passes the filter.
func (f EventFilter) Match(e *ObjectEvent) bool {
	if f.Bucket != "" && e.Bucket != f.Bucket {
		return false
	}
	if !strings.HasPrefix(e.Key, f.Prefix) {
		return false
	}
	if len(f.EventNames) == 0 {
		return true
	}
	for _, name := range f.EventNames {
		if p, ok := strings.CutSuffix(name, "*"); ok {
			if strings.HasPrefix(e.EventName, p) {
				return true
			}
		} else if e.EventName == name {
			return true
		}
	}
	return false
}
