package lode

import (
	"context"
	"strings"
	"testing"
	"time"
)

// usageProvider returns a fixed response with usage counts and counts calls.
type usageProvider struct {
	usage Usage
	calls int
}

func (p *usageProvider) Name() string { return "usage-stub" }
func (p *usageProvider) Chat(_ context.Context, _ ChatRequest) (ChatResponse, error) {
	p.calls++
	return ChatResponse{Content: "ok", Usage: p.usage}, nil
}

func TestWithRateLimitRPMAllowsWithinLimit(t *testing.T) {
	stub := &usageProvider{}
	p := WithRateLimit(stub, RPM(60))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("got %q, want %q", resp.Content, "ok")
	}
}

func TestWithRateLimitRPMBlocksWhenExceeded(t *testing.T) {
	stub := &usageProvider{}
	// RPM(1) = 1 request per minute. Second call should block.
	p := WithRateLimit(stub, RPM(1))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatal(err)
	}

	// Second call with a short-lived context should time out waiting.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, ChatRequest{}); err == nil {
		t.Fatal("expected context deadline exceeded, got nil")
	}
	if stub.calls != 1 {
		t.Errorf("inner provider called %d times, want 1", stub.calls)
	}
}

func TestWithRateLimitName(t *testing.T) {
	p := WithRateLimit(&usageProvider{}, RPM(10))
	if p.Name() != "usage-stub" {
		t.Errorf("Name() = %q, want %q", p.Name(), "usage-stub")
	}
}

func TestWithRateLimitTPMAllowsWithinLimit(t *testing.T) {
	stub := &usageProvider{usage: Usage{InputTokens: 100, OutputTokens: 50}}
	p := WithRateLimit(stub, TPM(1000))

	// Two calls at 150 tokens each stay inside the 1000 TPM budget.
	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatal(err)
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRateLimitTPMBlocksWhenExceeded(t *testing.T) {
	stub := &usageProvider{usage: Usage{InputTokens: 500, OutputTokens: 500}}
	// First call uses 1000 tokens, exhausting the budget.
	p := WithRateLimit(stub, TPM(1000))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, ChatRequest{}); err == nil {
		t.Fatal("expected context deadline exceeded, got nil")
	}
}

func TestWithRateLimitRPMAndTPM(t *testing.T) {
	stub := &usageProvider{usage: Usage{InputTokens: 10, OutputTokens: 10}}
	// RPM high, TPM low: TPM is the bottleneck after the first call.
	p := WithRateLimit(stub, RPM(100), TPM(20))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, ChatRequest{}); err == nil {
		t.Fatal("expected timeout due to TPM limit")
	}
}

func TestWithEmbeddingRateLimitRPM(t *testing.T) {
	stub := stubEmbedder{dims: 3}
	e := WithEmbeddingRateLimit(stub, RPM(1))

	if _, err := e.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := e.Embed(ctx, []string{"b"}); err == nil {
		t.Fatal("expected context deadline exceeded, got nil")
	}
}

func TestWithEmbeddingRateLimitTPMEstimatesTokens(t *testing.T) {
	stub := stubEmbedder{dims: 3}
	// 400 characters estimate to 100 tokens, exhausting a 100 TPM budget.
	e := WithEmbeddingRateLimit(stub, TPM(100))

	long := strings.Repeat("x", 400)
	if _, err := e.Embed(context.Background(), []string{long}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := e.Embed(ctx, []string{"more"}); err == nil {
		t.Fatal("expected timeout due to TPM limit")
	}
}

func TestWithEmbeddingRateLimitPassthrough(t *testing.T) {
	stub := stubEmbedder{dims: 4}
	e := WithEmbeddingRateLimit(stub, RPM(100))

	if e.Dimensions() != 4 {
		t.Errorf("Dimensions() = %d, want 4", e.Dimensions())
	}
	if e.Name() != "stub-embed" {
		t.Errorf("Name() = %q, want %q", e.Name(), "stub-embed")
	}
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Errorf("got %d vectors, want 2", len(vecs))
	}
}
