package lode

import "context"

// Store abstracts the persistent index: document records, parent and
// child chunks, extracted images, and the paired dense/keyword search
// indices over the children.
//
// ReplaceDocument and DeleteDocument must keep the dense and keyword
// indices in lock-step: a child is searchable in both or in neither.
type Store interface {
	// --- Documents ---
	ReplaceDocument(ctx context.Context, doc Document, chunks []Chunk, images []ImageRecord) error
	DeleteDocument(ctx context.Context, documentID string) error
	GetDocumentByPath(ctx context.Context, path string) (Document, bool, error)
	GetDocumentsByIDs(ctx context.Context, ids []string) ([]Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)

	// --- Chunks ---
	GetChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error)
	// SearchChunks ranks embedded chunks by cosine similarity.
	SearchChunks(ctx context.Context, embedding []float32, topK int) ([]ScoredChunk, error)
	// SearchChunksKeyword ranks embedded chunks by BM25 relevance.
	SearchChunksKeyword(ctx context.Context, query string, topK int) ([]ScoredChunk, error)

	// --- Images ---
	GetImagesByChunkIDs(ctx context.Context, chunkIDs []string) ([]ImageRecord, error)

	// --- Maintenance ---
	Stats(ctx context.Context) (Stats, error)
	// CheckConsistency returns ErrIndexConsistency if the dense and
	// keyword indices have drifted apart.
	CheckConsistency(ctx context.Context) error
	// RebuildKeywordIndex drops and repopulates the keyword index from
	// the embedded chunks.
	RebuildKeywordIndex(ctx context.Context) error

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
