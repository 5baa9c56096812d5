package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// maxZipEntrySize limits decompressed size of individual zip entries
// to prevent zip bomb attacks (100 MB).
const maxZipEntrySize = 100 << 20

// DOCXExtractor streams OOXML tokens out of word/document.xml to collect
// paragraphs, headings, and tables without building the full DOM tree.
// Embedded images come straight from the word/media/ zip entries.
// Heading-styled paragraphs mark hard section boundaries.
type DOCXExtractor struct{}

func (DOCXExtractor) Extract(content []byte) ([]TextBlock, error) {
	parsed, err := docxParse(content)
	if err != nil {
		return nil, err
	}
	return parsed.texts, nil
}

func (DOCXExtractor) ExtractTables(content []byte) ([]TableBlock, error) {
	parsed, err := docxParse(content)
	if err != nil {
		return nil, err
	}
	return parsed.tables, nil
}

func (DOCXExtractor) ExtractImages(content []byte) ([]ImageSpan, error) {
	zr, err := docxOpen(content)
	if err != nil {
		return nil, err
	}
	var spans []ImageSpan
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "word/media/") {
			continue
		}
		data, err := docxReadZipFile(f)
		if err != nil {
			continue
		}
		spans = append(spans, ImageSpan{Data: data})
	}
	return spans, nil
}

type docxContent struct {
	texts  []TextBlock
	tables []TableBlock
}

func docxOpen(content []byte) (*zip.Reader, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty docx content")
	}
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	return zr, nil
}

func docxParse(content []byte) (docxContent, error) {
	zr, err := docxOpen(content)
	if err != nil {
		return docxContent{}, err
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = docxReadZipFile(f)
			if err != nil {
				return docxContent{}, fmt.Errorf("read document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return docxContent{}, fmt.Errorf("missing word/document.xml")
	}

	s := &docxParseState{decoder: xml.NewDecoder(bytes.NewReader(docXML))}
	for {
		tok, err := s.decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return docxContent{}, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			s.handleStart(t)
		case xml.EndElement:
			s.handleEnd(t)
		case xml.CharData:
			s.handleCharData(t)
		}
	}
	return s.out, nil
}

func docxReadZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	lr := io.LimitReader(rc, maxZipEntrySize+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if len(data) > maxZipEntrySize {
		return nil, fmt.Errorf("zip entry %s exceeds %d byte limit", f.Name, maxZipEntrySize)
	}
	return data, nil
}

// docxParseState tracks the streaming XML decoder state.
type docxParseState struct {
	decoder *xml.Decoder
	out     docxContent

	section string

	inParagraph    bool
	inRun          bool
	currentStyle   string
	paragraphTexts []string

	inTable      bool
	inTableRow   bool
	tableHeaders []string
	tableRowIdx  int
	tableLines   []string
	cellTexts    []string
	currentCell  strings.Builder
}

func (s *docxParseState) handleStart(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		s.inParagraph = true
		s.currentStyle = ""
		s.paragraphTexts = nil
	case "pStyle":
		for _, attr := range t.Attr {
			if attr.Name.Local == "val" {
				s.currentStyle = attr.Value
			}
		}
	case "r":
		s.inRun = true
	case "tbl":
		s.inTable = true
		s.tableHeaders = nil
		s.tableRowIdx = 0
		s.tableLines = nil
	case "tr":
		s.inTableRow = true
		s.cellTexts = nil
	case "tc":
		s.currentCell.Reset()
	}
}

func (s *docxParseState) handleEnd(t xml.EndElement) {
	switch t.Name.Local {
	case "r":
		s.inRun = false
	case "tc":
		s.cellTexts = append(s.cellTexts, strings.TrimSpace(s.currentCell.String()))
	case "tr":
		s.inTableRow = false
		if !s.inTable {
			return
		}
		if s.tableRowIdx == 0 {
			s.tableHeaders = make([]string, len(s.cellTexts))
			copy(s.tableHeaders, s.cellTexts)
		} else if line := serializeRow(s.tableHeaders, s.cellTexts); line != "" {
			s.tableLines = append(s.tableLines, line)
		}
		s.tableRowIdx++
	case "tbl":
		s.inTable = false
		if len(s.tableLines) > 0 {
			s.out.tables = append(s.out.tables, TableBlock{Rows: strings.Join(s.tableLines, "\n")})
		}
	case "p":
		s.endParagraph()
	}
}

func (s *docxParseState) handleCharData(data xml.CharData) {
	content := string(data)
	if s.inTable && s.inTableRow {
		s.currentCell.WriteString(content)
		return
	}
	if s.inParagraph && s.inRun {
		s.paragraphTexts = append(s.paragraphTexts, content)
	}
}

func (s *docxParseState) endParagraph() {
	s.inParagraph = false
	if s.inTable || len(s.paragraphTexts) == 0 {
		return
	}
	paraText := strings.TrimSpace(strings.Join(s.paragraphTexts, ""))
	if paraText == "" {
		return
	}
	if strings.HasPrefix(s.currentStyle, "Heading") {
		s.section = paraText
		s.out.texts = append(s.out.texts, TextBlock{
			Text:     paraText,
			Section:  paraText,
			Boundary: true,
		})
		return
	}
	s.out.texts = append(s.out.texts, TextBlock{Text: paraText, Section: s.section})
}

var (
	_ Extractor      = DOCXExtractor{}
	_ TableExtractor = DOCXExtractor{}
	_ ImageExtractor = DOCXExtractor{}
)
