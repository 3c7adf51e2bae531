package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}
	return s
}

func TestLocalMetadata(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	if err := s.Put(ctx, "raw", "users/42/pic.png", strings.NewReader("png"), map[string]string{"type": "avatar"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "raw", "plain.jpg", strings.NewReader("jpg"), nil); err != nil {
		t.Fatalf("put: %v", err)
	}

	md, err := s.Metadata(ctx, "raw", "users/42/pic.png")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if md["type"] != "avatar" {
		t.Fatalf("type = %q", md["type"])
	}

	md, err = s.Metadata(ctx, "raw", "plain.jpg")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if len(md) != 0 {
		t.Fatalf("expected empty metadata, got %v", md)
	}

	_, err = s.Metadata(ctx, "raw", "missing.jpg")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalExists(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	ok, err := s.Exists(ctx, "raw", "a.jpg")
	if err != nil || ok {
		t.Fatalf("exists before put = %v, %v", ok, err)
	}
	if err := s.Put(ctx, "raw", "a.jpg", strings.NewReader("x"), nil); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Exists(ctx, "raw", "a.jpg")
	if err != nil || !ok {
		t.Fatalf("exists after put = %v, %v", ok, err)
	}
}

func TestLocalDownload(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)
	if err := s.Put(ctx, "raw", "photos/cat.jpg", strings.NewReader("meow"), nil); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "scratch", "cat.jpg")
	if err := s.Download(ctx, "raw", "photos/cat.jpg", dst); err != nil {
		t.Fatalf("download: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil || string(b) != "meow" {
		t.Fatalf("downloaded %q, %v", b, err)
	}
}

func TestLocalDownloadMissingLeavesNoFile(t *testing.T) {
	s := newLocal(t)
	dir := t.TempDir()
	dst := filepath.Join(dir, "cat.jpg")

	err := s.Download(context.Background(), "raw", "nope.jpg", dst)
	if !errors.Is(err, ErrDownload) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrDownload+ErrNotFound, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected empty scratch dir, found %d entries", len(entries))
	}
}

func TestLocalUploadAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	src := filepath.Join(t.TempDir(), "cat-compressed.webp")
	if err := os.WriteFile(src, []byte("webp"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Upload(ctx, src, "out", "compressed/cat.webp", UploadOptions{}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(s.GetBasePath(), "out", "compressed", "cat.webp"))
	if err != nil || string(b) != "webp" {
		t.Fatalf("uploaded %q, %v", b, err)
	}

	if err := s.Delete(ctx, "out", "compressed/cat.webp"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := s.Exists(ctx, "out", "compressed/cat.webp"); ok {
		t.Fatal("object still exists after delete")
	}
	if err := s.Delete(ctx, "out", "compressed/cat.webp"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestLocalUploadIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	src := filepath.Join(t.TempDir(), "a.webp")
	if err := os.WriteFile(src, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Upload(ctx, src, "out", "compressed/a.webp", UploadOptions{IfAbsent: true}); err != nil {
		t.Fatalf("first upload: %v", err)
	}

	if err := os.WriteFile(src, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := s.Upload(ctx, src, "out", "compressed/a.webp", UploadOptions{IfAbsent: true})
	if !errors.Is(err, ErrPreconditionFailed) || !errors.Is(err, ErrUpload) {
		t.Fatalf("expected precondition failure, got %v", err)
	}

	b, _ := os.ReadFile(filepath.Join(s.GetBasePath(), "out", "compressed", "a.webp"))
	if string(b) != "v1" {
		t.Fatalf("object overwritten: %q", b)
	}
	if _, err := os.Stat(filepath.Join(s.GetBasePath(), "out", "compressed", "a.webp.staged")); !os.IsNotExist(err) {
		t.Fatalf("staged file left behind: %v", err)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	cases := []struct{ bucket, key string }{
		{"raw", "../../etc/passwd"},
		{"..", "x"},
		{".metadata", "x"},
		{"raw", ""},
	}
	for _, c := range cases {
		if _, err := s.Exists(ctx, c.bucket, c.key); !errors.Is(err, ErrAccess) {
			t.Errorf("Exists(%q, %q) = %v, want ErrAccess", c.bucket, c.key, err)
		}
	}
}

func TestWriteLocalFileRemovesTempOnFailure(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.bin")

	boom := errors.New("boom")
	err := writeLocalFile(dst, func(f *os.File) error {
		f.Write([]byte("partial"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files, found %v", entries)
	}
}

func TestContentTypeFor(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x.bin")
	if err := os.WriteFile(p, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := contentTypeFor(p, ""); got != "image/png" {
		t.Fatalf("sniffed %q", got)
	}
	if got := contentTypeFor(p, "image/webp"); got != "image/webp" {
		t.Fatalf("explicit %q", got)
	}
}
