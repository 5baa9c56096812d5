package lode

import (
	"errors"
	"testing"
	"time"
)

func TestErrLLMError(t *testing.T) {
	tests := []struct {
		provider string
		message  string
		want     string
	}{
		{"openai", "rate limited", "openai: rate limited"},
		{"openai", "context length exceeded", "openai: context length exceeded"},
	}
	for _, tt := range tests {
		e := &ErrLLM{Provider: tt.provider, Message: tt.message}
		if got := e.Error(); got != tt.want {
			t.Errorf("ErrLLM{%q, %q}.Error() = %q, want %q", tt.provider, tt.message, got, tt.want)
		}
	}
}

func TestErrHTTPError(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{429, "too many requests", "http 429: too many requests"},
		{500, "internal server error", "http 500: internal server error"},
	}
	for _, tt := range tests {
		e := &ErrHTTP{Status: tt.status, Body: tt.body}
		if got := e.Error(); got != tt.want {
			t.Errorf("ErrHTTP{%d, %q}.Error() = %q, want %q", tt.status, tt.body, got, tt.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "30", 30 * time.Second},
		{"zero seconds", "0", 0},
		{"negative", "-5", 0},
		{"garbage", "soon", 0},
		{"past date", "Mon, 02 Jan 2006 15:04:05 GMT", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetryAfter(tt.in); got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfterFutureDate(t *testing.T) {
	v := time.Now().Add(2 * time.Minute).UTC().Format(time.RFC1123)
	got := ParseRetryAfter(v)
	if got <= 0 || got > 2*time.Minute {
		t.Errorf("ParseRetryAfter(%q) = %v, want ~2m", v, got)
	}
}

func TestParseErrorUnwraps(t *testing.T) {
	inner := errors.New("bad xml")
	e := &ParseError{Path: "docs/a.docx", Err: inner}
	if !errors.Is(e, inner) {
		t.Error("ParseError must unwrap to inner error")
	}
	want := "parse docs/a.docx: bad xml"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestEmbedErrorUnwraps(t *testing.T) {
	inner := &ErrHTTP{Status: 429, Body: "quota"}
	e := &EmbedError{Path: "docs/b.md", Err: inner}
	var httpErr *ErrHTTP
	if !errors.As(e, &httpErr) {
		t.Error("EmbedError must unwrap to ErrHTTP")
	}
}
