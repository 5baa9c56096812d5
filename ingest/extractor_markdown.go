package ingest

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor parses Markdown into prose blocks and tables.
// Headings of level 1 and 2 mark hard section boundaries.
type MarkdownExtractor struct{}

var mdParser parser.Parser = goldmark.New(
	goldmark.WithExtensions(extension.Table),
).Parser()

func (MarkdownExtractor) Extract(content []byte) ([]TextBlock, error) {
	doc := mdParser.Parse(text.NewReader(content))

	var blocks []TextBlock
	section := ""
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch t := n.(type) {
		case *ast.Heading:
			section = strings.TrimSpace(markdownText(t, content))
			if section == "" {
				continue
			}
			blocks = append(blocks, TextBlock{
				Text:     section,
				Section:  section,
				Boundary: t.Level <= 2,
			})
		case *extast.Table:
			// Tables are delivered by ExtractTables.
		default:
			txt := collapseWhitespace(markdownText(n, content))
			if txt != "" {
				blocks = append(blocks, TextBlock{Text: txt, Section: section})
			}
		}
	}
	return blocks, nil
}

func (MarkdownExtractor) ExtractTables(content []byte) ([]TableBlock, error) {
	doc := mdParser.Parse(text.NewReader(content))

	var tables []TableBlock
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		table, ok := n.(*extast.Table)
		if !ok {
			continue
		}
		rows := serializeMarkdownTable(table, content)
		if rows != "" {
			tables = append(tables, TableBlock{Rows: rows})
		}
	}
	return tables, nil
}

// serializeMarkdownTable renders a table row-oriented, one
// "Header: value, Header: value" line per data row.
func serializeMarkdownTable(table *extast.Table, source []byte) string {
	var headers []string
	var lines []string

	for r := table.FirstChild(); r != nil; r = r.NextSibling() {
		var cells []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, strings.TrimSpace(markdownText(c, source)))
		}
		if _, ok := r.(*extast.TableHeader); ok {
			headers = cells
			continue
		}
		lines = append(lines, serializeRow(headers, cells))
	}
	return strings.Join(lines, "\n")
}

// serializeRow pairs each non-empty cell with its column header. Cells
// past the header count get positional names.
func serializeRow(headers, cells []string) string {
	parts := make([]string, 0, len(cells))
	for i, cell := range cells {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		header := ""
		if i < len(headers) {
			header = strings.TrimSpace(headers[i])
		}
		if header == "" {
			header = "Column " + strconv.Itoa(i+1)
		}
		parts = append(parts, header+": "+cell)
	}
	return strings.Join(parts, ", ")
}

// markdownText collects the plain text of a node: inline text segments,
// raw lines of code and HTML blocks, and recursive container content.
func markdownText(n ast.Node, source []byte) string {
	var b strings.Builder
	writeMarkdownText(n, source, &b)
	return b.String()
}

func writeMarkdownText(n ast.Node, source []byte, b *strings.Builder) {
	switch t := n.(type) {
	case *ast.Text:
		b.Write(t.Segment.Value(source))
		if t.SoftLineBreak() || t.HardLineBreak() {
			b.WriteByte('\n')
		}
	case *ast.String:
		b.Write(t.Value)
	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
	case *ast.AutoLink:
		b.Write(t.URL(source))
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			writeMarkdownText(c, source, b)
			if c.Type() == ast.TypeBlock && c.NextSibling() != nil {
				b.WriteByte('\n')
			}
		}
	}
}

var (
	_ Extractor      = MarkdownExtractor{}
	_ TableExtractor = MarkdownExtractor{}
)
