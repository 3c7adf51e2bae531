package pipeline

import "testing"

func TestDestinationKey(t *testing.T) {
	cases := []struct {
		folder, key, want string
	}{
		{"compressed", "photos/cat.jpg", "compressed/cat.webp"},
		{"compressed", "users/42/pic.png", "compressed/pic.webp"},
		{"compressed/", "a.b.JPEG", "compressed/a.b.webp"},
		{"", "cat.jpg", "cat.webp"},
		{"compressed", "noext", "compressed/noext.webp"},
	}
	for _, c := range cases {
		if got := DestinationKey(c.folder, c.key); got != c.want {
			t.Errorf("DestinationKey(%q, %q) = %q, want %q", c.folder, c.key, got, c.want)
		}
	}
}

func TestNewRequest(t *testing.T) {
	ev := ChangeEvent{Bucket: "raw", Key: "users/42/pic.png"}

	req := NewRequest(ev, map[string]string{"type": "avatar"}, "out", "compressed")
	want := ProcessingRequest{
		SourceBucket:      "raw",
		SourceKey:         "users/42/pic.png",
		DestinationBucket: "out",
		DestinationFolder: "compressed",
		DestinationKey:    "compressed/pic.webp",
		VariantHint:       "avatar",
	}
	if req != want {
		t.Fatalf("NewRequest = %+v, want %+v", req, want)
	}

	if req := NewRequest(ev, nil, "out", "compressed"); req.VariantHint != "" {
		t.Fatalf("variant from nil metadata = %q", req.VariantHint)
	}
}
