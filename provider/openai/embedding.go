package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	lode "github.com/lodekb/lode"
)

// Embedding implements lode.EmbeddingProvider over the OpenAI embeddings
// endpoint. A whole batch travels as one request; the response vectors
// are re-ordered by index so callers can rely on positional alignment.
type Embedding struct {
	apiKey  string
	model   string
	baseURL string
	dims    int
	client  *http.Client
	name    string
}

// NewEmbedding creates an OpenAI-compatible embedding provider. dims is
// the vector size the model produces; models that support shortening
// (e.g. text-embedding-3-*) receive it as the dimensions parameter.
func NewEmbedding(apiKey, model, baseURL string, dims int, opts ...Option) *Embedding {
	s := settings{
		client: &http.Client{},
		name:   "openai",
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Embedding{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		dims:    dims,
		client:  s.client,
		name:    s.name,
	}
}

// Name returns the provider name.
func (e *Embedding) Name() string { return e.name }

// Dimensions returns the embedding vector size.
func (e *Embedding) Dimensions() int { return e.dims }

// Embed returns one vector per input text, in input order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body := embeddingRequest{
		Model:      e.model,
		Input:      texts,
		Dimensions: e.dims,
	}

	resp, err := postJSON(ctx, e.client, e.baseURL+"/embeddings", e.apiKey, e.name, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpErr(resp)
	}

	var er embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, &lode.ErrLLM{Provider: e.name, Message: fmt.Sprintf("decode response: %v", err)}
	}

	if len(er.Data) != len(texts) {
		return nil, &lode.ErrLLM{
			Provider: e.name,
			Message:  fmt.Sprintf("embeddings: got %d vectors for %d inputs", len(er.Data), len(texts)),
		}
	}

	sort.Slice(er.Data, func(i, j int) bool { return er.Data[i].Index < er.Data[j].Index })

	out := make([][]float32, len(er.Data))
	for i, d := range er.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

var _ lode.EmbeddingProvider = (*Embedding)(nil)
