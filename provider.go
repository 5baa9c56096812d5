package lode

import "context"

// Provider abstracts the chat LLM backend used for answer synthesis.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai").
	Name() string
}

// EmbeddingProvider abstracts text embedding.
type EmbeddingProvider interface {
	// Embed returns embedding vectors for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}

// Captioner abstracts a vision model that describes an image in prose.
type Captioner interface {
	// Caption returns a textual description of the image bytes.
	Caption(ctx context.Context, data []byte, mimeType string) (string, error)
	// Name returns the provider name.
	Name() string
}
