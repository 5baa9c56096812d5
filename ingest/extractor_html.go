package ingest

import (
	"bytes"
	"fmt"
	"net/url"

	readability "github.com/go-shiori/go-readability"
)

// HTMLExtractor pulls the readable article text out of an HTML page,
// dropping navigation, scripts, and boilerplate.
type HTMLExtractor struct{}

func (HTMLExtractor) Extract(content []byte) ([]TextBlock, error) {
	base := &url.URL{Scheme: "file", Path: "/"}
	article, err := readability.FromReader(bytes.NewReader(content), base)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}
	text := collapseWhitespace(article.TextContent)
	if text == "" {
		return nil, fmt.Errorf("no readable text")
	}
	var blocks []TextBlock
	if article.Title != "" {
		blocks = append(blocks, TextBlock{Text: article.Title, Section: article.Title, Boundary: true})
	}
	for _, para := range splitParagraphs(text) {
		blocks = append(blocks, TextBlock{Text: para, Section: article.Title})
	}
	return blocks, nil
}

var _ Extractor = HTMLExtractor{}
