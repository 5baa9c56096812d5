package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	lode "github.com/lodekb/lode"
)

// FileError records one document that failed during a run.
type FileError struct {
	Path string
	Err  error
}

// Report summarizes an ingestion run. Failures are per-document: one bad
// file never aborts the run.
type Report struct {
	Ingested  int // new documents indexed
	Updated   int // changed documents re-indexed
	Unchanged int
	Removed   int
	Failed    []FileError
}

// Ingestor drives the pipeline: plan → extract → caption → chunk →
// embed → store, with per-document atomicity.
type Ingestor struct {
	store      lode.Store
	embedding  lode.EmbeddingProvider
	captioner  *ImageCaptioner
	chunker    *Chunker
	extractors map[ContentType]Extractor
	workers    int
	batchSize  int
	imageDir   string
	logger     *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunker replaces the default chunker.
func WithChunker(c *Chunker) Option {
	return func(ing *Ingestor) { ing.chunker = c }
}

// WithCaptioner sets the image caption pipeline. Without one, images get
// the placeholder caption.
func WithCaptioner(c *ImageCaptioner) Option {
	return func(ing *Ingestor) { ing.captioner = c }
}

// WithExtractor overrides the extractor for one content type.
func WithExtractor(ct ContentType, e Extractor) Option {
	return func(ing *Ingestor) { ing.extractors[ct] = e }
}

// WithWorkers sets how many documents ingest concurrently (default: 4).
func WithWorkers(n int) Option {
	return func(ing *Ingestor) { ing.workers = n }
}

// WithBatchSize sets the embedding batch size (default: 64).
func WithBatchSize(n int) Option {
	return func(ing *Ingestor) { ing.batchSize = n }
}

// WithImageDir sets the directory extracted images are saved under.
// Empty (the default) indexes captions without writing image files.
func WithImageDir(dir string) Option {
	return func(ing *Ingestor) { ing.imageDir = dir }
}

// WithLogger sets the structured logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(ing *Ingestor) { ing.logger = l }
}

// NewIngestor creates an Ingestor with the built-in extractors.
func NewIngestor(store lode.Store, emb lode.EmbeddingProvider, opts ...Option) *Ingestor {
	ing := &Ingestor{
		store:      store,
		embedding:  emb,
		chunker:    NewChunker(),
		extractors: DefaultExtractors(),
		workers:    4,
		batchSize:  64,
	}
	for _, o := range opts {
		o(ing)
	}
	if ing.captioner == nil {
		ing.captioner = NewImageCaptioner(nil)
	}
	if ing.logger == nil {
		ing.logger = nopLogger
	}
	return ing
}

// IngestDir synchronizes the index with the source tree under root.
// Unseen and changed files are (re)indexed, files gone from disk are
// purged, and unchanged files are left alone unless force is set.
func (ing *Ingestor) IngestDir(ctx context.Context, root string, force bool) (Report, error) {
	plan, err := BuildPlan(ctx, root, ing.store, force)
	if err != nil {
		return Report{}, fmt.Errorf("build plan: %w", err)
	}

	var report Report
	report.Unchanged = len(plan.Unchanged)

	for _, doc := range plan.Deleted {
		if err := ing.store.DeleteDocument(ctx, doc.ID); err != nil {
			return report, fmt.Errorf("delete %s: %w", doc.Path, err)
		}
		ing.logger.Info("removed deleted document", "path", doc.Path)
		report.Removed++
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.workers)

	run := func(cand Candidate, update bool) {
		g.Go(func() error {
			if err := ing.ingestFile(gctx, cand); err != nil {
				ing.logger.Error("document failed", "path", cand.Path, "error", err)
				mu.Lock()
				report.Failed = append(report.Failed, FileError{Path: cand.Path, Err: err})
				mu.Unlock()
				return nil // isolate the failure
			}
			mu.Lock()
			if update {
				report.Updated++
			} else {
				report.Ingested++
			}
			mu.Unlock()
			return nil
		})
	}
	for _, cand := range plan.Unseen {
		run(cand, false)
	}
	for _, cand := range plan.Changed {
		run(cand, true)
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].Path < report.Failed[j].Path
	})
	return report, nil
}

// Analysis is the dry-run breakdown of how one file would be indexed.
type Analysis struct {
	Path     string
	Format   lode.Format
	Pages    int
	Texts    int
	Tables   int
	Images   int
	Parents  int
	Children int
}

// Analyze extracts and chunks a single file without embedding or
// writing anything, reporting what ingestion would produce.
func (ing *Ingestor) Analyze(ctx context.Context, path string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Analysis{}, &lode.ParseError{Path: path, Err: err}
	}

	ct := ContentTypeFromExtension(filepath.Ext(path))
	extractor, ok := ing.extractors[ct]
	if !ok {
		extractor = PlainTextExtractor{}
	}

	texts, err := extractor.Extract(content)
	if err != nil {
		return Analysis{}, &lode.ParseError{Path: path, Err: err}
	}
	var tables []TableBlock
	if te, ok := extractor.(TableExtractor); ok {
		if tables, err = te.ExtractTables(content); err != nil {
			return Analysis{}, &lode.ParseError{Path: path, Err: err}
		}
	}
	var spans []ImageSpan
	if ie, ok := extractor.(ImageExtractor); ok {
		if spans, err = ie.ExtractImages(content); err != nil {
			return Analysis{}, &lode.ParseError{Path: path, Err: err}
		}
	}

	a := Analysis{
		Path:   path,
		Format: FormatOf(ct),
		Pages:  pageCount(texts, tables, spans),
		Texts:  len(texts),
		Tables: len(tables),
		Images: len(spans),
	}
	for _, c := range ing.chunker.Chunk("", texts, tables) {
		if c.IsParent() {
			a.Parents++
		} else {
			a.Children++
		}
	}
	return a, nil
}

// ingestFile runs the full pipeline for one file. Either every chunk and
// image of the document lands in the index or none do.
func (ing *Ingestor) ingestFile(ctx context.Context, cand Candidate) error {
	content, err := os.ReadFile(cand.AbsPath)
	if err != nil {
		return &lode.ParseError{Path: cand.Path, Err: err}
	}

	ct := ContentTypeFromExtension(filepath.Ext(cand.Path))
	extractor, ok := ing.extractors[ct]
	if !ok {
		extractor = PlainTextExtractor{}
	}

	texts, err := extractor.Extract(content)
	if err != nil {
		return &lode.ParseError{Path: cand.Path, Err: err}
	}
	var tables []TableBlock
	if te, ok := extractor.(TableExtractor); ok {
		if tables, err = te.ExtractTables(content); err != nil {
			return &lode.ParseError{Path: cand.Path, Err: err}
		}
	}
	var spans []ImageSpan
	if ie, ok := extractor.(ImageExtractor); ok {
		if spans, err = ie.ExtractImages(content); err != nil {
			return &lode.ParseError{Path: cand.Path, Err: err}
		}
	}

	docID := lode.NewID()
	chunks := ing.chunker.Chunk(docID, texts, tables)
	captionStart := len(chunks)
	images, captionChunks := ing.captionImages(ctx, docID, cand.Path, spans)
	chunks = append(chunks, captionChunks...)

	if err := ing.embedChunks(ctx, chunks, captionStart); err != nil {
		return &lode.EmbedError{Path: cand.Path, Err: err}
	}

	doc := lode.Document{
		ID:          docID,
		Path:        cand.Path,
		Format:      FormatOf(ct),
		ContentHash: cand.Hash,
		PageCount:   pageCount(texts, tables, spans),
		CreatedAt:   lode.NowUnix(),
	}
	if err := ing.store.ReplaceDocument(ctx, doc, chunks, images); err != nil {
		return fmt.Errorf("store %s: %w", cand.Path, err)
	}

	ing.logger.Debug("document indexed",
		"path", cand.Path,
		"format", doc.Format,
		"chunks", len(chunks),
		"images", len(images))
	return nil
}

// captionImages captions each extracted image and synthesizes one caption
// chunk per image. Caption chunks have no parent; they are indexed like
// children and link back to the image record.
func (ing *Ingestor) captionImages(ctx context.Context, docID, docPath string, spans []ImageSpan) ([]lode.ImageRecord, []lode.Chunk) {
	var records []lode.ImageRecord
	var chunks []lode.Chunk
	for i, span := range spans {
		caption, hash := ing.captioner.Caption(ctx, span.Data)

		chunk := lode.Chunk{
			ID:         lode.NewID(),
			DocumentID: docID,
			Seq:        i,
			Content:    caption,
			PageStart:  span.Page,
			PageEnd:    span.Page,
		}
		rec := lode.ImageRecord{
			ID:          lode.NewID(),
			DocumentID:  docID,
			Page:        span.Page,
			ContentHash: hash,
			Caption:     caption,
			ChunkID:     chunk.ID,
			Path:        ing.saveImage(hash, span.Data, docPath),
		}
		records = append(records, rec)
		chunks = append(chunks, chunk)
	}
	return records, chunks
}

// saveImage writes the image bytes under the image dir, named by content
// hash so duplicates collapse to one file. Returns the relative path, or
// "" when saving is disabled or fails.
func (ing *Ingestor) saveImage(hash string, data []byte, docPath string) string {
	if ing.imageDir == "" {
		return ""
	}
	name := hash[:16] + extForMime(http.DetectContentType(data))
	if err := os.MkdirAll(ing.imageDir, 0o755); err != nil {
		ing.logger.Warn("image dir unavailable", "dir", ing.imageDir, "error", err)
		return ""
	}
	full := filepath.Join(ing.imageDir, name)
	if _, err := os.Stat(full); err == nil {
		return name
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		ing.logger.Warn("image save failed", "path", full, "doc", docPath, "error", err)
		return ""
	}
	return name
}

func extForMime(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

// embedChunks embeds children and caption chunks in batches. Chunks at
// index captionStart and beyond are captions and always embed; before
// that only children do (parents keep a nil embedding).
func (ing *Ingestor) embedChunks(ctx context.Context, chunks []lode.Chunk, captionStart int) error {
	var targets []int
	for i := range chunks {
		if i >= captionStart || chunks[i].ParentID != "" {
			targets = append(targets, i)
		}
	}
	for start := 0; start < len(targets); start += ing.batchSize {
		end := min(start+ing.batchSize, len(targets))
		batch := targets[start:end]
		texts := make([]string, len(batch))
		for j, idx := range batch {
			texts[j] = chunks[idx].Content
		}
		embeddings, err := ing.embedding.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(embeddings) != len(batch) {
			return fmt.Errorf("embed batch %d-%d: got %d vectors for %d texts", start, end, len(embeddings), len(batch))
		}
		for j, idx := range batch {
			chunks[idx].Embedding = embeddings[j]
		}
	}
	return nil
}

func pageCount(texts []TextBlock, tables []TableBlock, spans []ImageSpan) int {
	maxPage := 0
	for _, t := range texts {
		maxPage = max(maxPage, t.Page)
	}
	for _, t := range tables {
		maxPage = max(maxPage, t.Page)
	}
	for _, s := range spans {
		maxPage = max(maxPage, s.Page)
	}
	return maxPage
}
