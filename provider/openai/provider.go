package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	lode "github.com/lodekb/lode"
)

// defaultCaptionPrompt asks the vision model for a caption that works as
// retrievable index text rather than alt text.
const defaultCaptionPrompt = "Describe this image in two or three sentences for a search index. " +
	"Transcribe any visible text, labels, and numeric values exactly."

// Provider implements lode.Provider and lode.Captioner over the OpenAI
// chat completions API. Captioning sends the image as an image_url
// content block (data URI), so the same endpoint and model settings
// serve both answer synthesis and image description.
type Provider struct {
	apiKey        string
	model         string
	baseURL       string
	client        *http.Client
	name          string
	temperature   *float64
	topP          *float64
	maxTokens     int
	seed          *int
	captionPrompt string
}

// Option configures a Provider or an Embedding.
type Option func(*settings)

// settings is the shared option target for Provider and Embedding.
type settings struct {
	client        *http.Client
	name          string
	temperature   *float64
	topP          *float64
	maxTokens     int
	seed          *int
	captionPrompt string
}

// WithName sets the name returned by Name() (default "openai"). Use it
// to tell providers apart in logs when several backends are configured.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithHTTPClient sets a custom HTTP client (e.g. for timeouts or proxies).
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.client = c }
}

// WithTemperature sets the sampling temperature applied to every request.
func WithTemperature(t float64) Option {
	return func(s *settings) { s.temperature = &t }
}

// WithTopP sets nucleus sampling top-p applied to every request.
func WithTopP(p float64) Option {
	return func(s *settings) { s.topP = &p }
}

// WithMaxTokens caps the output tokens per request.
func WithMaxTokens(n int) Option {
	return func(s *settings) { s.maxTokens = n }
}

// WithSeed sets a deterministic seed for reproducible outputs.
func WithSeed(n int) Option {
	return func(s *settings) { s.seed = &n }
}

// WithCaptionPrompt overrides the instruction sent alongside images.
func WithCaptionPrompt(prompt string) Option {
	return func(s *settings) { s.captionPrompt = prompt }
}

// NewProvider creates an OpenAI-compatible chat provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"). The /chat/completions path is appended
// automatically.
func NewProvider(apiKey, model, baseURL string, opts ...Option) *Provider {
	s := settings{
		client:        &http.Client{},
		name:          "openai",
		captionPrompt: defaultCaptionPrompt,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Provider{
		apiKey:        apiKey,
		model:         model,
		baseURL:       baseURL,
		client:        s.client,
		name:          s.name,
		temperature:   s.temperature,
		topP:          s.topP,
		maxTokens:     s.maxTokens,
		seed:          s.seed,
		captionPrompt: s.captionPrompt,
	}
}

// Name returns the provider name (default "openai", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// Chat sends a non-streaming chat request and returns the complete response.
func (p *Provider) Chat(ctx context.Context, req lode.ChatRequest) (lode.ChatResponse, error) {
	body := chatRequest{
		Model:       p.model,
		Messages:    buildMessages(req.Messages),
		Temperature: p.temperature,
		TopP:        p.topP,
		MaxTokens:   p.maxTokens,
		Seed:        p.seed,
	}

	resp, err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", p.apiKey, p.name, body)
	if err != nil {
		return lode.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return lode.ChatResponse{}, httpErr(resp)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return lode.ChatResponse{}, &lode.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}

	return parseResponse(cr), nil
}

// Caption describes the given image bytes using the chat model. The image
// travels as a base64 data URI in an image_url content block.
func (p *Provider) Caption(ctx context.Context, data []byte, mimeType string) (string, error) {
	uri := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	body := chatRequest{
		Model: p.model,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{Type: "text", Text: p.captionPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: uri}},
			},
		}},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}

	resp, err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", p.apiKey, p.name, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", httpErr(resp)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", &lode.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}

	parsed := parseResponse(cr)
	if parsed.Content == "" {
		return "", &lode.ErrLLM{Provider: p.name, Message: "empty caption response"}
	}
	return parsed.Content, nil
}

// buildMessages converts lode messages into the OpenAI wire format.
// Messages carrying images become multimodal content-block arrays.
func buildMessages(msgs []lode.ChatMessage) []message {
	out := make([]message, 0, len(msgs))
	for _, m := range msgs {
		if len(m.Images) == 0 {
			out = append(out, message{Role: m.Role, Content: m.Content})
			continue
		}
		var blocks []contentBlock
		if m.Content != "" {
			blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
		}
		for _, img := range m.Images {
			uri := fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Base64)
			blocks = append(blocks, contentBlock{Type: "image_url", ImageURL: &imageURL{URL: uri}})
		}
		out = append(out, message{Role: m.Role, Content: blocks})
	}
	return out
}

// parseResponse extracts content and usage from choices[0].
func parseResponse(resp chatResponse) lode.ChatResponse {
	var out lode.ChatResponse
	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		out.Content = resp.Choices[0].Message.Content
	}
	if resp.Usage != nil {
		out.Usage = lode.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out
}

// postJSON marshals body and POSTs it with bearer auth.
func postJSON(ctx context.Context, client *http.Client, url, apiKey, name string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &lode.ErrLLM{Provider: name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &lode.ErrLLM{Provider: name, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	return client.Do(req)
}

// httpErr reads the response body and returns an ErrHTTP for the retry
// layer. Parses the Retry-After header when present (429/503 responses).
func httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &lode.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: lode.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Compile-time interface checks.
var (
	_ lode.Provider  = (*Provider)(nil)
	_ lode.Captioner = (*Provider)(nil)
)
