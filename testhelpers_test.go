package lode

import (
	"context"
	"errors"
)

// nopStore satisfies the Store interface with no-ops.
// Embed this in test-specific store structs to avoid implementing every method.
type nopStore struct{}

func (nopStore) ReplaceDocument(_ context.Context, _ Document, _ []Chunk, _ []ImageRecord) error {
	return nil
}
func (nopStore) DeleteDocument(_ context.Context, _ string) error { return nil }
func (nopStore) GetDocumentByPath(_ context.Context, _ string) (Document, bool, error) {
	return Document{}, false, nil
}
func (nopStore) GetDocumentsByIDs(_ context.Context, _ []string) ([]Document, error) {
	return nil, nil
}
func (nopStore) ListDocuments(_ context.Context) ([]Document, error)         { return nil, nil }
func (nopStore) GetChunksByIDs(_ context.Context, _ []string) ([]Chunk, error) { return nil, nil }
func (nopStore) SearchChunks(_ context.Context, _ []float32, _ int) ([]ScoredChunk, error) {
	return nil, nil
}
func (nopStore) SearchChunksKeyword(_ context.Context, _ string, _ int) ([]ScoredChunk, error) {
	return nil, nil
}
func (nopStore) GetImagesByChunkIDs(_ context.Context, _ []string) ([]ImageRecord, error) {
	return nil, nil
}
func (nopStore) Stats(_ context.Context) (Stats, error)    { return Stats{}, nil }
func (nopStore) CheckConsistency(_ context.Context) error  { return nil }
func (nopStore) RebuildKeywordIndex(_ context.Context) error { return nil }
func (nopStore) Init(_ context.Context) error              { return nil }
func (nopStore) Close() error                              { return nil }

// searchStore returns canned rankings and records lookups.
type searchStore struct {
	nopStore
	dense    []ScoredChunk
	keyword  []ScoredChunk
	chunks   map[string]Chunk
	docs     map[string]Document
	images   map[string][]ImageRecord // by chunk ID
	denseErr error
	kwErr    error
	stats    Stats
}

func (s *searchStore) SearchChunks(_ context.Context, _ []float32, topK int) ([]ScoredChunk, error) {
	if s.denseErr != nil {
		return nil, s.denseErr
	}
	return trimScored(s.dense, topK), nil
}

func (s *searchStore) SearchChunksKeyword(_ context.Context, _ string, topK int) ([]ScoredChunk, error) {
	if s.kwErr != nil {
		return nil, s.kwErr
	}
	return trimScored(s.keyword, topK), nil
}

func (s *searchStore) GetChunksByIDs(_ context.Context, ids []string) ([]Chunk, error) {
	var out []Chunk
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *searchStore) GetDocumentsByIDs(_ context.Context, ids []string) ([]Document, error) {
	var out []Document
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *searchStore) GetImagesByChunkIDs(_ context.Context, ids []string) ([]ImageRecord, error) {
	var out []ImageRecord
	for _, id := range ids {
		out = append(out, s.images[id]...)
	}
	return out, nil
}

func (s *searchStore) Stats(_ context.Context) (Stats, error) { return s.stats, nil }

func trimScored(in []ScoredChunk, topK int) []ScoredChunk {
	if len(in) > topK {
		return in[:topK]
	}
	return in
}

// stubEmbedder returns a fixed vector for every input.
type stubEmbedder struct {
	dims int
	err  error
}

func (s stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dims)
		out[i][0] = 1
	}
	return out, nil
}

func (s stubEmbedder) Dimensions() int { return s.dims }
func (s stubEmbedder) Name() string    { return "stub-embed" }

// scriptedProvider replies with canned responses in order, then repeats
// the last one.
type scriptedProvider struct {
	replies []string
	errs    []error
	calls   int
	lastReq ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	p.lastReq = req
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return ChatResponse{}, p.errs[i]
	}
	if len(p.replies) == 0 {
		return ChatResponse{}, errors.New("no scripted reply")
	}
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	return ChatResponse{Content: p.replies[i]}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func sc(id string, score float32) ScoredChunk {
	return ScoredChunk{Chunk: Chunk{ID: id, Content: "chunk " + id}, Score: score}
}
