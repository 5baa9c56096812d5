package lode

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrNoKnowledge is returned by Engine.Query when the index holds no
// documents at all.
var ErrNoKnowledge = errors.New("knowledge base is empty")

// ErrIndexConsistency is returned when the dense and sparse indices have
// drifted apart; RebuildKeywordIndex repairs it.
var ErrIndexConsistency = errors.New("dense and keyword indices are inconsistent")

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed Retry-After header, 0 if absent
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value, either delay-seconds
// or an HTTP-date. Returns 0 for empty, malformed, or past values.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ParseError marks a document that could not be parsed. Ingestion records
// it and moves on to the next document.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmbedError marks a document whose chunks could not be embedded. Nothing
// from the document is written to the index; the run continues.
type EmbedError struct {
	Path string
	Err  error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embed %s: %v", e.Path, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }
