package ingest

import (
	"strings"

	lode "github.com/lodekb/lode"
)

// TextBlock is a run of prose extracted from a document, tagged with its
// location. Section carries the nearest enclosing heading, when the
// format has headings. Boundary marks a hard structural break (new page,
// new top-level section) that chunking must not merge across.
type TextBlock struct {
	Text     string
	Page     int // 1-based; 0 when the format has no pages
	Section  string
	Boundary bool
}

// TableBlock is a table serialized row-oriented, one "Header: value"
// pair list per row. Tables are atomic: chunking never splits one.
type TableBlock struct {
	Rows string
	Page int
}

// ImageSpan is a raw embedded image with its location.
type ImageSpan struct {
	Data []byte
	Page int
}

// Extractor converts raw file content to ordered text blocks. Every
// format implements at least this.
type Extractor interface {
	Extract(content []byte) ([]TextBlock, error)
}

// TableExtractor is an optional capability for formats that carry
// tables. The ingestor discovers it via type assertion.
type TableExtractor interface {
	ExtractTables(content []byte) ([]TableBlock, error)
}

// ImageExtractor is an optional capability for formats that carry
// embedded images. The ingestor discovers it via type assertion.
type ImageExtractor interface {
	ExtractImages(content []byte) ([]ImageSpan, error)
}

// ContentType identifies the MIME type of content for extraction.
type ContentType string

const (
	TypePlainText ContentType = "text/plain"
	TypeHTML      ContentType = "text/html"
	TypeMarkdown  ContentType = "text/markdown"
	TypeCSV       ContentType = "text/csv"
	TypeJSON      ContentType = "application/json"
	TypeDOCX      ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypePDF       ContentType = "application/pdf"
	TypePNG       ContentType = "image/png"
	TypeJPEG      ContentType = "image/jpeg"
	TypeGIF       ContentType = "image/gif"
	TypeWebP      ContentType = "image/webp"
)

// ContentTypeFromExtension maps file extensions to content types.
func ContentTypeFromExtension(ext string) ContentType {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "md", "markdown":
		return TypeMarkdown
	case "html", "htm":
		return TypeHTML
	case "csv":
		return TypeCSV
	case "json":
		return TypeJSON
	case "docx":
		return TypeDOCX
	case "pdf":
		return TypePDF
	case "png":
		return TypePNG
	case "jpg", "jpeg":
		return TypeJPEG
	case "gif":
		return TypeGIF
	case "webp":
		return TypeWebP
	default:
		return TypePlainText
	}
}

// FormatOf maps a content type to the document format recorded in the index.
func FormatOf(ct ContentType) lode.Format {
	switch ct {
	case TypeMarkdown:
		return lode.FormatMarkdown
	case TypeHTML:
		return lode.FormatHTML
	case TypeCSV:
		return lode.FormatCSV
	case TypeJSON:
		return lode.FormatJSON
	case TypeDOCX:
		return lode.FormatDOCX
	case TypePDF:
		return lode.FormatPDF
	case TypePNG, TypeJPEG, TypeGIF, TypeWebP:
		return lode.FormatImage
	default:
		return lode.FormatText
	}
}

// DefaultExtractors returns the built-in extractor for every supported
// content type.
func DefaultExtractors() map[ContentType]Extractor {
	img := ImageFileExtractor{}
	return map[ContentType]Extractor{
		TypePlainText: PlainTextExtractor{},
		TypeMarkdown:  MarkdownExtractor{},
		TypeHTML:      HTMLExtractor{},
		TypeCSV:       CSVExtractor{},
		TypeJSON:      JSONExtractor{},
		TypePDF:       PDFExtractor{},
		TypeDOCX:      DOCXExtractor{},
		TypePNG:       img,
		TypeJPEG:      img,
		TypeGIF:       img,
		TypeWebP:      img,
	}
}

// --- Plain text ---

// PlainTextExtractor splits content on blank lines into paragraph blocks.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(content []byte) ([]TextBlock, error) {
	var blocks []TextBlock
	for _, para := range splitParagraphs(string(content)) {
		blocks = append(blocks, TextBlock{Text: para})
	}
	return blocks, nil
}

// --- Standalone image files ---

// ImageFileExtractor treats the whole file as a single embedded image.
// It yields no text; the caption pipeline produces the indexable text.
type ImageFileExtractor struct{}

func (ImageFileExtractor) Extract(_ []byte) ([]TextBlock, error) { return nil, nil }

func (ImageFileExtractor) ExtractImages(content []byte) ([]ImageSpan, error) {
	if len(content) == 0 {
		return nil, nil
	}
	return []ImageSpan{{Data: content}}, nil
}

// splitParagraphs splits text on blank lines, trimming each paragraph and
// dropping empty ones.
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// collapseWhitespace trims lines and collapses runs of blank lines so
// extracted text chunks cleanly.
func collapseWhitespace(text string) string {
	var result strings.Builder
	emptyCount := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if result.Len() > 0 {
				emptyCount++
			}
			continue
		}
		if emptyCount > 0 {
			result.WriteByte('\n')
			if emptyCount > 1 {
				result.WriteByte('\n')
			}
			emptyCount = 0
		} else if result.Len() > 0 {
			result.WriteByte('\n')
		}
		result.WriteString(trimmed)
	}
	return strings.TrimSpace(result.String())
}

var (
	_ Extractor      = PlainTextExtractor{}
	_ Extractor      = ImageFileExtractor{}
	_ ImageExtractor = ImageFileExtractor{}
)
