package ingest

import (
	"strings"
	"unicode"

	lode "github.com/lodekb/lode"
)

// Token budgets are approximated as tokens*4 characters throughout.

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithParentTokens sets the parent window budget (default: 2000).
func WithParentTokens(n int) ChunkerOption {
	return func(c *Chunker) { c.parentTokens = n }
}

// WithChildTokens sets the child chunk budget (default: 256).
func WithChildTokens(n int) ChunkerOption {
	return func(c *Chunker) { c.childTokens = n }
}

// WithOverlapTokens sets the overlap between consecutive prose children
// (default: 32). Overlap keeps key terms from being cut in half at a
// chunk border.
func WithOverlapTokens(n int) ChunkerOption {
	return func(c *Chunker) { c.overlapTokens = n }
}

// Chunker builds the two-tier parent/child hierarchy from extracted
// blocks. Parents pack consecutive blocks up to the parent budget but
// never across a hard boundary and never splitting a table. Children are
// contiguous byte sub-spans of their parent's text: prose is cut into
// overlapping windows at word borders, tables stay whole. A table
// larger than the child budget becomes its own dedicated child.
type Chunker struct {
	parentTokens  int
	childTokens   int
	overlapTokens int
}

// NewChunker creates a Chunker with the given options.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{parentTokens: 2000, childTokens: 256, overlapTokens: 32}
	for _, o := range opts {
		o(c)
	}
	if c.overlapTokens >= c.childTokens {
		c.overlapTokens = c.childTokens / 4
	}
	return c
}

// block is one unit of parent assembly, prose or atomic table.
type block struct {
	text     string
	page     int
	atomic   bool
	boundary bool
}

// span is a byte range of a parent's content corresponding to one block,
// including the separator that follows it.
type span struct {
	start, end int
	atomic     bool
}

// Chunk assembles parents and children for one document. The returned
// slice holds each parent followed by its children, in document order.
// Children carry no embeddings yet; the ingestor fills those in.
func (c *Chunker) Chunk(docID string, texts []TextBlock, tables []TableBlock) []lode.Chunk {
	blocks := mergeBlocks(texts, tables)
	if len(blocks) == 0 {
		return nil
	}

	var out []lode.Chunk
	parentSeq := 0
	for _, p := range c.assembleParents(blocks) {
		parent := lode.Chunk{
			ID:         lode.NewID(),
			DocumentID: docID,
			Seq:        parentSeq,
			Content:    p.content,
			PageStart:  p.pageStart,
			PageEnd:    p.pageEnd,
		}
		out = append(out, parent)
		parentSeq++

		for i, cs := range c.splitChildren(p.content, p.spans) {
			out = append(out, lode.Chunk{
				ID:         lode.NewID(),
				DocumentID: docID,
				ParentID:   parent.ID,
				Seq:        i,
				Content:    p.content[cs.start:cs.end],
				PageStart:  p.pageStart,
				PageEnd:    p.pageEnd,
				Table:      cs.table,
				Start:      cs.start,
				End:        cs.end,
			})
		}
	}
	return out
}

// mergeBlocks interleaves prose and table blocks by page. Within a page,
// prose precedes tables; formats without pages keep list order.
func mergeBlocks(texts []TextBlock, tables []TableBlock) []block {
	blocks := make([]block, 0, len(texts)+len(tables))
	ti, bi := 0, 0
	for ti < len(texts) || bi < len(tables) {
		switch {
		case bi >= len(tables):
			blocks = append(blocks, proseBlock(texts[ti]))
			ti++
		case ti >= len(texts):
			blocks = append(blocks, tableBlock(tables[bi]))
			bi++
		case texts[ti].Page <= tables[bi].Page:
			blocks = append(blocks, proseBlock(texts[ti]))
			ti++
		default:
			blocks = append(blocks, tableBlock(tables[bi]))
			bi++
		}
	}
	// Drop empties up front so spans stay non-degenerate.
	kept := blocks[:0]
	for _, b := range blocks {
		if strings.TrimSpace(b.text) != "" {
			kept = append(kept, b)
		}
	}
	return kept
}

func proseBlock(t TextBlock) block {
	return block{text: t.Text, page: t.Page, boundary: t.Boundary}
}

func tableBlock(t TableBlock) block {
	return block{text: t.Rows, page: t.Page, atomic: true}
}

type parentDraft struct {
	content   string
	spans     []span
	pageStart int
	pageEnd   int
}

// assembleParents packs blocks into parent windows. A new window starts
// at every hard boundary and whenever the next block would overflow the
// parent budget. A single oversized block still becomes one window:
// tables are never split, and oversized prose is handled at child level.
func (c *Chunker) assembleParents(blocks []block) []parentDraft {
	parentChars := c.parentTokens * 4

	var parents []parentDraft
	var b strings.Builder
	var spans []span
	pageStart, pageEnd := 0, 0

	flush := func() {
		if b.Len() == 0 {
			return
		}
		parents = append(parents, parentDraft{
			content:   b.String(),
			spans:     spans,
			pageStart: pageStart,
			pageEnd:   pageEnd,
		})
		b.Reset()
		spans = nil
		pageStart, pageEnd = 0, 0
	}

	for _, blk := range blocks {
		if b.Len() > 0 && (blk.boundary || b.Len()+2+len(blk.text) > parentChars) {
			flush()
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
			spans[len(spans)-1].end = b.Len()
		}
		s := span{start: b.Len(), atomic: blk.atomic}
		b.WriteString(blk.text)
		s.end = b.Len()
		spans = append(spans, s)

		if blk.page > 0 {
			if pageStart == 0 {
				pageStart = blk.page
			}
			pageEnd = blk.page
		}
	}
	flush()
	return parents
}

type childSpan struct {
	start, end int
	table      bool
}

// splitChildren cuts one parent into child spans. Spans are contiguous:
// each child starts at or before the previous child's end, the first
// starts at 0, and the last ends at len(content), so the parent text is
// exactly reconstructable from its children.
func (c *Chunker) splitChildren(content string, spans []span) []childSpan {
	childChars := c.childTokens * 4
	overlapChars := c.overlapTokens * 4

	var children []childSpan
	curStart, curEnd := 0, 0

	closeAt := func(end int) {
		if end > curStart {
			children = append(children, childSpan{start: curStart, end: end})
		}
		curStart, curEnd = end, end
	}

	for _, sp := range spans {
		if sp.atomic {
			if sp.end-sp.start > childChars {
				// Dedicated child for the oversized table.
				closeAt(sp.start)
				children = append(children, childSpan{start: sp.start, end: sp.end, table: true})
				curStart, curEnd = sp.end, sp.end
				continue
			}
			if curEnd > curStart && sp.end-curStart > childChars {
				closeAt(sp.start)
			}
			curEnd = sp.end
			continue
		}

		for sp.end-curStart > childChars {
			cut := proseCut(content, curStart, curStart+childChars)
			children = append(children, childSpan{start: curStart, end: cut})
			next := overlapStart(content, cut, overlapChars)
			if next <= curStart {
				next = cut // degenerate window, skip the overlap
			}
			curStart, curEnd = next, next
		}
		curEnd = sp.end
	}
	if curEnd > curStart {
		children = append(children, childSpan{start: curStart, end: curEnd})
	}

	markTables(children, spans)
	return children
}

// proseCut picks the cut position in (start, limit]: after the last
// whitespace in the window, or the hard limit when the window is one
// unbroken word.
func proseCut(content string, start, limit int) int {
	if limit >= len(content) {
		return len(content)
	}
	window := content[start:limit]
	if i := strings.LastIndexFunc(window, unicode.IsSpace); i > 0 {
		return start + i + 1
	}
	return limit
}

// overlapStart backs up from cut by the overlap size, then advances to
// the next word start so the overlap never opens mid-word. Guarantees
// progress past the previous child's start.
func overlapStart(content string, cut, overlapChars int) int {
	pos := cut - overlapChars
	if pos < 0 {
		pos = 0
	}
	for pos > 0 && pos < cut && !unicode.IsSpace(rune(content[pos-1])) {
		pos++
	}
	return pos
}

// markTables flags children that contain a whole table span.
func markTables(children []childSpan, spans []span) {
	for i := range children {
		if children[i].table {
			continue
		}
		for _, sp := range spans {
			if sp.atomic && sp.start >= children[i].start && sp.end <= children[i].end {
				children[i].table = true
				break
			}
		}
	}
}
