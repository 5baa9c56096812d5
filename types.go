package lode

// --- Domain types (database records) ---

// Format identifies the source format a document was parsed from.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatImage    Format = "image"
)

type Document struct {
	ID          string `json:"id"`
	Path        string `json:"path"` // relative to the source root, unique
	Format      Format `json:"format"`
	ContentHash string `json:"content_hash"` // hex SHA-256 of the file bytes
	PageCount   int    `json:"page_count"`
	CreatedAt   int64  `json:"created_at"`
}

// Chunk is one node of the two-tier hierarchy. Parents carry the full
// context window text and no embedding. Children carry an embedding and,
// unless synthesized from an image caption, a ParentID plus the byte
// range [Start, End) of their text within the parent's Content.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Seq        int       `json:"seq"`
	Content    string    `json:"content"`
	PageStart  int       `json:"page_start"`
	PageEnd    int       `json:"page_end"`
	Table      bool      `json:"table"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Embedding  []float32 `json:"-"`
}

// IsParent reports whether the chunk is a parent context window.
// Caption chunks have no parent but carry an embedding, so the
// distinction is the embedding, not the missing ParentID.
func (c Chunk) IsParent() bool {
	return c.ParentID == "" && c.Embedding == nil
}

// ImageRecord links an extracted image to the document it came from and
// to the caption chunk synthesized for it.
type ImageRecord struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Page        int    `json:"page"`
	ContentHash string `json:"content_hash"` // hex SHA-256 of the image bytes
	Caption     string `json:"caption"`
	ChunkID     string `json:"chunk_id"` // caption chunk
	Path        string `json:"path"`    // saved image file, relative to the image dir
}

// ScoredChunk pairs a chunk with a search score. Dense scores are cosine
// similarities, sparse scores are BM25 relevance; the fused score is a
// reciprocal rank sum. Higher is better for all three.
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// Stats summarizes the index contents.
type Stats struct {
	Documents int `json:"documents"`
	Parents   int `json:"parents"`
	Children  int `json:"children"`
	Images    int `json:"images"`
}

// --- Query types ---

// Citation points an answer fragment back at its source document.
type Citation struct {
	Path      string `json:"path"`
	PageStart int    `json:"page_start,omitempty"`
	PageEnd   int    `json:"page_end,omitempty"`
}

// QueryResult is the synthesized answer for one query.
type QueryResult struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations,omitempty"`
	Images     []string   `json:"images,omitempty"` // image paths attached to the answer
	Confidence float32    `json:"confidence"`       // top fused retrieval score
}

// --- LLM protocol types ---

type ChatMessage struct {
	Role    string      `json:"role"` // "system", "user", "assistant"
	Content string      `json:"content"`
	Images  []ImageData `json:"images,omitempty"`
}

type ImageData struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}
