package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"

	lode "github.com/lodekb/lode"
)

// PlaceholderCaption is indexed for an image whose captioning failed
// after retries, so the image stays linked to its document and a later
// re-ingest can replace the text.
const PlaceholderCaption = "Image (caption unavailable)"

// ImageCaptioner captions raw images through a vision provider, caching
// results by content hash so the same image is never captioned twice in
// a run. A nil provider or a captioning failure yields the placeholder;
// captioning never fails a document.
type ImageCaptioner struct {
	provider lode.Captioner
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]string // content hash → caption
}

// CaptionerOption configures an ImageCaptioner.
type CaptionerOption func(*ImageCaptioner)

// WithCaptionLogger sets the structured logger (default: discard).
func WithCaptionLogger(l *slog.Logger) CaptionerOption {
	return func(c *ImageCaptioner) { c.logger = l }
}

// NewImageCaptioner creates an ImageCaptioner. provider may be nil, in
// which case every image gets the placeholder caption.
func NewImageCaptioner(provider lode.Captioner, opts ...CaptionerOption) *ImageCaptioner {
	c := &ImageCaptioner{
		provider: provider,
		cache:    make(map[string]string),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = nopLogger
	}
	return c
}

// Caption returns the caption and the hex SHA-256 content hash for the
// image bytes.
func (c *ImageCaptioner) Caption(ctx context.Context, data []byte) (caption, hash string) {
	sum := sha256.Sum256(data)
	hash = hex.EncodeToString(sum[:])

	c.mu.Lock()
	cached, ok := c.cache[hash]
	c.mu.Unlock()
	if ok {
		return cached, hash
	}

	caption = PlaceholderCaption
	if c.provider != nil {
		got, err := c.provider.Caption(ctx, data, http.DetectContentType(data))
		if err != nil {
			c.logger.Warn("captioning failed, using placeholder",
				"hash", hash,
				"error", err)
		} else if got != "" {
			caption = got
		}
	}

	c.mu.Lock()
	c.cache[hash] = caption
	c.mu.Unlock()
	return caption, hash
}
