package handler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weiawesome/wes-io-live/compress-service/internal/pipeline"
)

// ErrMalformedEvent is returned when a push body names no object.
var ErrMalformedEvent = errors.New("malformed event")

// objectPayload is the part of a GCS object resource the pipeline needs.
type objectPayload struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// pushEnvelope covers the three accepted body shapes:
// a binary-mode CloudEvent (the object resource itself),
// a structured CloudEvent ({"data": {...}}),
// and a Pub/Sub push message ({"message": {"data": "<base64>"}}).
type pushEnvelope struct {
	objectPayload
	Data    json.RawMessage `json:"data"`
	Message *struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
}

// DecodeChangeEvent extracts the bucket and object name from a push body.
func DecodeChangeEvent(body []byte) (pipeline.ChangeEvent, error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return pipeline.ChangeEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	obj := env.objectPayload
	switch {
	case env.Message != nil:
		obj = objectPayload{}
		if len(env.Message.Data) > 0 {
			if err := json.Unmarshal(env.Message.Data, &obj); err != nil {
				return pipeline.ChangeEvent{}, fmt.Errorf("%w: pubsub data: %w", ErrMalformedEvent, err)
			}
		}
		// GCS notifications also carry the object in the message attributes.
		if obj.Bucket == "" {
			obj.Bucket = env.Message.Attributes["bucketId"]
		}
		if obj.Name == "" {
			obj.Name = env.Message.Attributes["objectId"]
		}
	case len(env.Data) > 0 && string(env.Data) != "null":
		if err := json.Unmarshal(env.Data, &obj); err != nil {
			return pipeline.ChangeEvent{}, fmt.Errorf("%w: cloudevent data: %w", ErrMalformedEvent, err)
		}
	}

	if obj.Bucket == "" || obj.Name == "" {
		return pipeline.ChangeEvent{}, fmt.Errorf("%w: bucket and name are required", ErrMalformedEvent)
	}
	return pipeline.ChangeEvent{Bucket: obj.Bucket, Key: obj.Name}, nil
}
