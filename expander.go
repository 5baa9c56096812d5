package lode

import (
	"context"
	"fmt"
)

// ContextEntry is one parent context window selected for synthesis,
// carrying the document it came from and the fused score of the child
// hit that brought it in.
type ContextEntry struct {
	Chunk    Chunk    `json:"chunk"`
	Document Document `json:"document"`
	Score    float32  `json:"score"`
}

// ExpandedContext is the synthesis input assembled from retrieval hits:
// deduplicated parent windows in fused-score order plus any images linked
// to the winning chunks.
type ExpandedContext struct {
	Entries []ContextEntry `json:"entries"`
	Images  []ImageRecord  `json:"images,omitempty"`
}

// ExpanderOption configures a ContextExpander.
type ExpanderOption func(*ContextExpander)

// WithContextBudget sets the approximate token budget for the assembled
// context. Parents are added in fused order until the next one would
// exceed the budget; the first parent is always kept. Default is 4000.
func WithContextBudget(tokens int) ExpanderOption {
	return func(e *ContextExpander) { e.budgetTokens = tokens }
}

// ContextExpander maps fused child hits to their parent context windows.
// Children of the same parent collapse into one entry at the position of
// the highest-ranked child, so synthesis never sees duplicated context.
// Caption chunks have no parent and pass through as their own entry.
type ContextExpander struct {
	store        Store
	budgetTokens int
}

// NewContextExpander creates a ContextExpander over the given store.
func NewContextExpander(store Store, opts ...ExpanderOption) *ContextExpander {
	e := &ContextExpander{store: store, budgetTokens: 4000}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Expand resolves the hits to deduplicated parent windows, attaches
// images linked to the hit chunks, and enforces the token budget.
func (e *ContextExpander) Expand(ctx context.Context, hits []RetrievalResult) (ExpandedContext, error) {
	if len(hits) == 0 {
		return ExpandedContext{}, nil
	}

	parentIDs := make([]string, 0, len(hits))
	seenParent := make(map[string]bool)
	hitIDs := make([]string, 0, len(hits))
	for _, h := range hits {
		hitIDs = append(hitIDs, h.Chunk.ID)
		if h.Chunk.ParentID != "" && !seenParent[h.Chunk.ParentID] {
			seenParent[h.Chunk.ParentID] = true
			parentIDs = append(parentIDs, h.Chunk.ParentID)
		}
	}

	parentMap := make(map[string]Chunk, len(parentIDs))
	if len(parentIDs) > 0 {
		parents, err := e.store.GetChunksByIDs(ctx, parentIDs)
		if err != nil {
			return ExpandedContext{}, fmt.Errorf("load parents: %w", err)
		}
		for _, p := range parents {
			parentMap[p.ID] = p
		}
	}

	// Walk hits in fused order; each parent appears once, at the position
	// of its best child. Missing parents fall back to the child itself.
	emitted := make(map[string]bool)
	entries := make([]ContextEntry, 0, len(hits))
	for _, h := range hits {
		c := h.Chunk
		if c.ParentID != "" {
			if emitted[c.ParentID] {
				continue
			}
			emitted[c.ParentID] = true
			if p, ok := parentMap[c.ParentID]; ok {
				c = p
			}
		} else if emitted[c.ID] {
			continue
		}
		emitted[c.ID] = true
		entries = append(entries, ContextEntry{Chunk: c, Score: h.Score})
	}

	entries = e.applyBudget(entries)

	if err := e.attachDocuments(ctx, entries); err != nil {
		return ExpandedContext{}, err
	}

	images, err := e.store.GetImagesByChunkIDs(ctx, hitIDs)
	if err != nil {
		return ExpandedContext{}, fmt.Errorf("load images: %w", err)
	}

	return ExpandedContext{Entries: entries, Images: images}, nil
}

// applyBudget keeps entries in order until the approximate token budget
// is exhausted. The first entry always survives, even if oversized.
func (e *ContextExpander) applyBudget(entries []ContextEntry) []ContextEntry {
	if e.budgetTokens <= 0 {
		return entries
	}
	budgetChars := e.budgetTokens * 4
	used := 0
	kept := entries[:0]
	for i, en := range entries {
		n := len(en.Chunk.Content)
		if i > 0 && used+n > budgetChars {
			break
		}
		kept = append(kept, en)
		used += n
	}
	return kept
}

func (e *ContextExpander) attachDocuments(ctx context.Context, entries []ContextEntry) error {
	if len(entries) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var ids []string
	for _, en := range entries {
		if !seen[en.Chunk.DocumentID] {
			seen[en.Chunk.DocumentID] = true
			ids = append(ids, en.Chunk.DocumentID)
		}
	}
	docs, err := e.store.GetDocumentsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	docMap := make(map[string]Document, len(docs))
	for _, d := range docs {
		docMap[d.ID] = d
	}
	for i := range entries {
		entries[i].Document = docMap[entries[i].Chunk.DocumentID]
	}
	return nil
}
