package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVExtractor treats the first row as headers and serializes each data
// row into one table block: "Header1: Value1, Header2: Value2". Per-row
// blocks keep chunking from ever splitting mid-row while letting large
// sheets fill children up to the budget.
type CSVExtractor struct{}

// Extract yields no prose; CSV content is all tables.
func (CSVExtractor) Extract(_ []byte) ([]TextBlock, error) { return nil, nil }

func (CSVExtractor) ExtractTables(content []byte) ([]TableBlock, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}
	r := csv.NewReader(bytes.NewReader(content))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1 // tolerate ragged rows
	headers, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read headers: %w", err)
	}
	var tables []TableBlock
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		var fields []string
		for i, val := range record {
			if i >= len(headers) {
				break
			}
			val = strings.TrimSpace(val)
			if val == "" {
				continue
			}
			fields = append(fields, fmt.Sprintf("%s: %s", headers[i], val))
		}
		if len(fields) > 0 {
			tables = append(tables, TableBlock{Rows: strings.Join(fields, ", ")})
		}
	}
	return tables, nil
}

var (
	_ Extractor      = CSVExtractor{}
	_ TableExtractor = CSVExtractor{}
)
