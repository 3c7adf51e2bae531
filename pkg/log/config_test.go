package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithObjectCarriesIdentity(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(Config{Level: "info", ServiceName: "compress-service"}, &buf)

	ctx := WithLogger(context.Background(), base)
	ctx, _ = WithObject(ctx, "inv-1", "raw", "users/42/pic.png")

	l := Ctx(ctx)
	l.Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	want := map[string]string{
		FieldService:      "compress-service",
		FieldInvocationID: "inv-1",
		FieldBucket:       "raw",
		FieldKey:          "users/42/pic.png",
		"message":         "hello",
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("field %s = %v, want %q", k, line[k], v)
		}
	}
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	l := Ctx(context.Background())
	if l.GetLevel() != L().GetLevel() {
		t.Fatalf("expected global logger level %v, got %v", L().GetLevel(), l.GetLevel())
	}
}
