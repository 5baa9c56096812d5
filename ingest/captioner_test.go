package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type countingCaptioner struct {
	mu      sync.Mutex
	calls   int
	caption string
	err     error
}

func (c *countingCaptioner) Caption(_ context.Context, _ []byte, mimeType string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.caption, nil
}
func (c *countingCaptioner) Name() string { return "counting" }

func TestCaptionerCachesByContentHash(t *testing.T) {
	provider := &countingCaptioner{caption: "A schematic."}
	ic := NewImageCaptioner(provider)
	img := []byte("same image bytes")

	first, hash1 := ic.Caption(context.Background(), img)
	second, hash2 := ic.Caption(context.Background(), img)

	if provider.calls != 1 {
		t.Fatalf("provider called %d times, want 1", provider.calls)
	}
	if first != "A schematic." || second != first {
		t.Errorf("captions = %q / %q", first, second)
	}
	if hash1 != hash2 || len(hash1) != 64 {
		t.Errorf("hashes = %q / %q", hash1, hash2)
	}
}

func TestCaptionerDistinctImages(t *testing.T) {
	provider := &countingCaptioner{caption: "Something."}
	ic := NewImageCaptioner(provider)

	_, h1 := ic.Caption(context.Background(), []byte("image one"))
	_, h2 := ic.Caption(context.Background(), []byte("image two"))

	if provider.calls != 2 {
		t.Errorf("provider called %d times, want 2", provider.calls)
	}
	if h1 == h2 {
		t.Error("different bytes hashed identically")
	}
}

func TestCaptionerFailureYieldsPlaceholder(t *testing.T) {
	provider := &countingCaptioner{err: errors.New("vision model down")}
	ic := NewImageCaptioner(provider)

	caption, _ := ic.Caption(context.Background(), []byte("img"))
	if caption != PlaceholderCaption {
		t.Errorf("caption = %q, want placeholder", caption)
	}
	// The placeholder is cached too; no retry storm within a run.
	ic.Caption(context.Background(), []byte("img"))
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestCaptionerNilProvider(t *testing.T) {
	ic := NewImageCaptioner(nil)
	caption, hash := ic.Caption(context.Background(), []byte("img"))
	if caption != PlaceholderCaption {
		t.Errorf("caption = %q, want placeholder", caption)
	}
	if hash == "" {
		t.Error("hash missing")
	}
}

func TestCaptionerEmptyCaptionFallsBack(t *testing.T) {
	ic := NewImageCaptioner(&countingCaptioner{caption: ""})
	caption, _ := ic.Caption(context.Background(), []byte("img"))
	if caption != PlaceholderCaption {
		t.Errorf("caption = %q, want placeholder for empty provider output", caption)
	}
}
