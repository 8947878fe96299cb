package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/pkg/media"
)

func TestSupported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", true},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", true},
		{"https://www.instagram.com/reel/Cxyz123AbCd/", true},
		{"https://www.instagram.com/reels/Cxyz123AbCd/", true},
		{"https://www.instagram.com/p/Cxyz123AbCd/", true},
		{"https://www.instagram.com/tv/Cxyz123AbCd/", true},
		{"https://instagram.com/stories/someuser/123456/", true},
		{"https://youtu.be/short", false}, // video ids are 11 chars
		{"https://vimeo.com/12345", false},
		{"https://example.com/watch?v=dQw4w9WgXcQ", false},
		{"not a url", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Supported(tt.url); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestIngestRejectsUnsupportedURL(t *testing.T) {
	t.Parallel()

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sid, _ := store.Create("")

	ing := New(store)
	_, err = ing.Ingest(context.Background(), "https://vimeo.com/12345", sid)
	if !errors.Is(err, ErrUnsupportedURL) {
		t.Errorf("err = %v, want ErrUnsupportedURL", err)
	}
}

func TestIngestFallsBackToSilentPlaceholder(t *testing.T) {
	t.Parallel()

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sid, _ := store.Create("")

	// A yt-dlp binary that always fails pushes the cascade to the silent
	// placeholder rung.
	ing := New(store, WithYtDlpPath("/nonexistent/yt-dlp"))
	path, err := ing.Ingest(context.Background(), "https://youtu.be/dQw4w9WgXcQ", sid)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	clip, err := media.ReadAudioFile(path)
	if err != nil {
		t.Fatalf("placeholder unreadable: %v", err)
	}
	if clip.Duration() < 29 || clip.Duration() > 31 {
		t.Errorf("placeholder duration = %f, want ≈30s", clip.Duration())
	}

	// The substitution is recorded on the session.
	raw, err := store.GetField(sid, "ingest", nil)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := raw.(map[string]any)
	if !ok || m["fallback"] != true {
		t.Errorf("ingest section = %v, want fallback=true", raw)
	}
}
