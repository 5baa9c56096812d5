package lode

import (
	"context"
	"sync"
	"time"
)

// rateLimiter tracks sliding-window request and token budgets. Requests
// block until both budgets allow them to proceed.
type rateLimiter struct {
	mu sync.Mutex

	// RPM state: sliding window of request timestamps.
	rpm       int
	rpmWindow []time.Time

	// TPM state: sliding window of (timestamp, tokenCount) pairs.
	tpm       int
	tpmWindow []tpmEntry
}

type tpmEntry struct {
	at     time.Time
	tokens int
}

// RateLimitOption configures a rate-limited provider wrapper.
type RateLimitOption func(*rateLimiter)

// RPM sets the maximum requests per minute.
func RPM(n int) RateLimitOption {
	return func(r *rateLimiter) { r.rpm = n }
}

// TPM sets the maximum tokens per minute (input + output combined).
// Token counts are recorded after each request completes. This is a
// soft limit: the request that exceeds the budget completes, but
// subsequent requests block until the window slides.
func TPM(n int) RateLimitOption {
	return func(r *rateLimiter) { r.tpm = n }
}

// waitForBudget blocks until both RPM and TPM budgets allow a request.
// Returns ctx.Err() if the context is cancelled while waiting.
func (r *rateLimiter) waitForBudget(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-time.Minute)

		r.rpmWindow = pruneTime(r.rpmWindow, cutoff)
		r.tpmWindow = pruneTpm(r.tpmWindow, cutoff)

		rpmOK := r.rpm <= 0 || len(r.rpmWindow) < r.rpm

		tpmOK := true
		if r.tpm > 0 {
			var total int
			for _, e := range r.tpmWindow {
				total += e.tokens
			}
			tpmOK = total < r.tpm
		}

		if rpmOK && tpmOK {
			if r.rpm > 0 {
				r.rpmWindow = append(r.rpmWindow, now)
			}
			r.mu.Unlock()
			return nil
		}

		// Wait until the oldest entry in the blocking window expires.
		var wait time.Duration
		if !rpmOK && len(r.rpmWindow) > 0 {
			wait = r.rpmWindow[0].Add(time.Minute).Sub(now)
		}
		if !tpmOK && len(r.tpmWindow) > 0 {
			w := r.tpmWindow[0].at.Add(time.Minute).Sub(now)
			if wait == 0 || w < wait {
				wait = w
			}
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// recordTokens adds a token count to the TPM sliding window.
func (r *rateLimiter) recordTokens(n int) {
	if r.tpm <= 0 || n <= 0 {
		return
	}
	r.mu.Lock()
	r.tpmWindow = append(r.tpmWindow, tpmEntry{at: time.Now(), tokens: n})
	r.mu.Unlock()
}

// pruneTime removes entries older than cutoff from a sorted time slice.
func pruneTime(s []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(s) && s[i].Before(cutoff) {
		i++
	}
	return s[i:]
}

// pruneTpm removes entries older than cutoff from a sorted tpmEntry slice.
func pruneTpm(s []tpmEntry, cutoff time.Time) []tpmEntry {
	i := 0
	for i < len(s) && s[i].at.Before(cutoff) {
		i++
	}
	return s[i:]
}

// --- Chat provider wrapper ---

// rateLimitProvider wraps a Provider with proactive rate limiting.
type rateLimitProvider struct {
	inner   Provider
	limiter rateLimiter
}

// WithRateLimit wraps p with proactive rate limiting. Compose with other wrappers:
//
//	chat = lode.WithRateLimit(provider, lode.RPM(60))
//	chat = lode.WithRateLimit(lode.WithRetry(provider), lode.RPM(60), lode.TPM(100000))
func WithRateLimit(p Provider, opts ...RateLimitOption) Provider {
	r := &rateLimitProvider{inner: p}
	for _, opt := range opts {
		opt(&r.limiter)
	}
	return r
}

func (r *rateLimitProvider) Name() string { return r.inner.Name() }

func (r *rateLimitProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := r.limiter.waitForBudget(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := r.inner.Chat(ctx, req)
	if err == nil {
		r.limiter.recordTokens(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	}
	return resp, err
}

// --- Embedding provider wrapper ---

// rateLimitEmbedding wraps an EmbeddingProvider with proactive rate
// limiting. Embedding responses carry no usage counts, so the TPM window
// records an input-size estimate (one token per four characters).
type rateLimitEmbedding struct {
	inner   EmbeddingProvider
	limiter rateLimiter
}

// WithEmbeddingRateLimit wraps e with proactive rate limiting.
func WithEmbeddingRateLimit(e EmbeddingProvider, opts ...RateLimitOption) EmbeddingProvider {
	r := &rateLimitEmbedding{inner: e}
	for _, opt := range opts {
		opt(&r.limiter)
	}
	return r
}

func (r *rateLimitEmbedding) Name() string    { return r.inner.Name() }
func (r *rateLimitEmbedding) Dimensions() int { return r.inner.Dimensions() }

func (r *rateLimitEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.waitForBudget(ctx); err != nil {
		return nil, err
	}
	vecs, err := r.inner.Embed(ctx, texts)
	if err == nil {
		var chars int
		for _, t := range texts {
			chars += len(t)
		}
		r.limiter.recordTokens(chars / 4)
	}
	return vecs, err
}

// compile-time checks
var (
	_ Provider          = (*rateLimitProvider)(nil)
	_ EmbeddingProvider = (*rateLimitEmbedding)(nil)
)
