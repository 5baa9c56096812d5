// Package openai talks to any OpenAI-compatible API: chat completions
// for answer synthesis and image captioning, and the embeddings endpoint
// for dense vectors. Works with OpenAI, Groq, Together, Mistral, Ollama,
// vLLM, LM Studio, and anything else speaking the same wire format.
package openai

// --- Request types ---

// chatRequest is the OpenAI chat completions request body.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Seed        *int      `json:"seed,omitempty"`
}

// message is a single message in the OpenAI chat format.
// Content is a string for plain text or []contentBlock for multimodal input.
type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// contentBlock is a typed content block for multimodal messages.
type contentBlock struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

// imageURL holds the URL (or data URI) for an image content block.
type imageURL struct {
	URL string `json:"url"`
}

// --- Response types ---

// chatResponse is the OpenAI chat completions response.
type chatResponse struct {
	ID      string   `json:"id"`
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

type choice struct {
	Index        int            `json:"index"`
	Message      *choiceMessage `json:"message,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

type choiceMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Embeddings types ---

// embeddingRequest is the OpenAI embeddings request body.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI embeddings response.
type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage *usage          `json:"usage,omitempty"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}
