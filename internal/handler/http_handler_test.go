package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/compress-service/internal/pipeline"
	"github.com/weiawesome/wes-io-live/compress-service/pkg/response"
)

type fakeProcessor struct {
	got []pipeline.ChangeEvent
	err error
}

func (p *fakeProcessor) Process(_ context.Context, ev pipeline.ChangeEvent) (pipeline.Result, error) {
	p.got = append(p.got, ev)
	if p.err != nil {
		return pipeline.Result{Outcome: pipeline.OutcomeFailed}, p.err
	}
	return pipeline.Result{InvocationID: "inv", Outcome: pipeline.OutcomeCompressed}, nil
}

func newRouter(p Processor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(p, "test").RegisterRoutes(r)
	return r
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHandleEventPayloadShapes(t *testing.T) {
	pubsubData := base64.StdEncoding.EncodeToString([]byte(`{"bucket":"raw","name":"users/42/pic.png"}`))

	cases := map[string]string{
		"binary cloudevent":     `{"kind":"storage#object","bucket":"raw","name":"users/42/pic.png","contentType":"image/png"}`,
		"structured cloudevent": `{"specversion":"1.0","type":"google.cloud.storage.object.v1.finalized","data":{"bucket":"raw","name":"users/42/pic.png"}}`,
		"pubsub push":           `{"message":{"data":"` + pubsubData + `","messageId":"1"},"subscription":"projects/p/subscriptions/s"}`,
		"pubsub attributes":     `{"message":{"attributes":{"bucketId":"raw","objectId":"users/42/pic.png"}}}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := &fakeProcessor{}
			w := post(newRouter(p), body)
			if w.Code != http.StatusNoContent {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			want := pipeline.ChangeEvent{Bucket: "raw", Key: "users/42/pic.png"}
			if len(p.got) != 1 || p.got[0] != want {
				t.Fatalf("processed %+v, want %+v", p.got, want)
			}
		})
	}
}

func TestHandleEventMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"bucket":`,
		"missing name":   `{"bucket":"raw"}`,
		"empty data":     `{"data":{}}`,
		"bad pubsub":     `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte("nope")) + `"}}`,
		"empty envelope": `{}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := &fakeProcessor{}
			w := post(newRouter(p), body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if len(p.got) != 0 {
				t.Fatal("processor called for malformed event")
			}
		})
	}
}

func TestHandleEventPipelineFailure(t *testing.T) {
	perr := &pipeline.Error{
		Step:   pipeline.StepUpload,
		Kind:   pipeline.ErrUpload,
		Bucket: "out",
		Key:    "compressed/pic.webp",
		Err:    errors.New("boom"),
	}
	w := post(newRouter(&fakeProcessor{err: perr}), `{"bucket":"raw","name":"pic.png"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != "UPLOAD_FAILED" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestHandleEventCancelled(t *testing.T) {
	w := post(newRouter(&fakeProcessor{err: context.Canceled}), `{"bucket":"raw","name":"pic.png"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestHealth(t *testing.T) {
	r := newRouter(&fakeProcessor{})
	for _, path := range []string{"/health", "/healthz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"status":"ok"`) {
			t.Fatalf("%s body = %s", path, w.Body.String())
		}
	}
}
