package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	lode "github.com/lodekb/lode"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedDocument stores one document with a parent and two embedded
// children and returns the chunks.
func seedDocument(t *testing.T, s *Store, path string) (lode.Document, []lode.Chunk) {
	t.Helper()
	doc := lode.Document{
		ID:          lode.NewID(),
		Path:        path,
		Format:      lode.FormatText,
		ContentHash: "hash-" + path,
		CreatedAt:   lode.NowUnix(),
	}
	parent := lode.Chunk{
		ID:         lode.NewID(),
		DocumentID: doc.ID,
		Seq:        0,
		Content:    "Zone 3 runs at 310 degrees. The interlock opens the contactor.",
	}
	child1 := lode.Chunk{
		ID:         lode.NewID(),
		DocumentID: doc.ID,
		ParentID:   parent.ID,
		Seq:        0,
		Content:    "Zone 3 runs at 310 degrees.",
		Start:      0,
		End:        27,
		Embedding:  []float32{1, 0, 0},
	}
	child2 := lode.Chunk{
		ID:         lode.NewID(),
		DocumentID: doc.ID,
		ParentID:   parent.ID,
		Seq:        1,
		Content:    "The interlock opens the contactor.",
		Start:      28,
		End:        62,
		Embedding:  []float32{0, 1, 0},
	}
	chunks := []lode.Chunk{parent, child1, child2}
	if err := s.ReplaceDocument(context.Background(), doc, chunks, nil); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}
	return doc, chunks
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	s.Close()
}

func TestReplaceDocumentRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	doc, chunks := seedDocument(t, s, "manual.txt")

	got, found, err := s.GetDocumentByPath(ctx, "manual.txt")
	if err != nil {
		t.Fatalf("GetDocumentByPath: %v", err)
	}
	if !found {
		t.Fatal("document not found by path")
	}
	if got.ID != doc.ID || got.Format != lode.FormatText || got.ContentHash != doc.ContentHash {
		t.Errorf("got %+v, want %+v", got, doc)
	}

	fetched, err := s.GetChunksByIDs(ctx, []string{chunks[0].ID, chunks[1].ID})
	if err != nil {
		t.Fatalf("GetChunksByIDs: %v", err)
	}
	if len(fetched) != 2 {
		t.Fatalf("chunks = %d, want 2", len(fetched))
	}
	byID := map[string]lode.Chunk{fetched[0].ID: fetched[0], fetched[1].ID: fetched[1]}
	if c := byID[chunks[1].ID]; c.ParentID != chunks[0].ID || c.Start != 0 || c.End != 27 {
		t.Errorf("child round trip lost fields: %+v", c)
	}
}

func TestGetDocumentByPathMissing(t *testing.T) {
	s := testStore(t)
	_, found, err := s.GetDocumentByPath(context.Background(), "nope.txt")
	if err != nil {
		t.Fatalf("GetDocumentByPath: %v", err)
	}
	if found {
		t.Error("found a document that was never stored")
	}
}

func TestReplaceDocumentPurgesPreviousVersion(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	oldDoc, oldChunks := seedDocument(t, s, "manual.txt")

	newDoc := lode.Document{
		ID:          lode.NewID(),
		Path:        "manual.txt",
		Format:      lode.FormatText,
		ContentHash: "hash-v2",
		CreatedAt:   lode.NowUnix(),
	}
	newChunk := lode.Chunk{
		ID:         lode.NewID(),
		DocumentID: newDoc.ID,
		ParentID:   "",
		Seq:        0,
		Content:    "Replacement content about the burner assembly.",
		Embedding:  []float32{0, 0, 1},
	}
	if err := s.ReplaceDocument(ctx, newDoc, []lode.Chunk{newChunk}, nil); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}

	got, found, _ := s.GetDocumentByPath(ctx, "manual.txt")
	if !found || got.ID != newDoc.ID {
		t.Fatalf("path resolves to %+v, want new document", got)
	}
	stale, err := s.GetChunksByIDs(ctx, []string{oldChunks[0].ID, oldChunks[1].ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Errorf("old chunks still present: %d", len(stale))
	}
	if _, found, _ := s.GetDocumentByPath(ctx, "manual.txt"); !found {
		t.Error("replacement lost the document")
	}
	// Old document ID must be gone too.
	docs, _ := s.GetDocumentsByIDs(ctx, []string{oldDoc.ID})
	if len(docs) != 0 {
		t.Error("old document row survived the replace")
	}
	// Keyword index must not serve the stale content.
	if err := s.CheckConsistency(ctx); err != nil {
		t.Errorf("index inconsistent after replace: %v", err)
	}
}

func TestDeleteDocumentPurgesEverything(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	doc := lode.Document{ID: lode.NewID(), Path: "img.png", Format: lode.FormatImage, ContentHash: "h", CreatedAt: 1}
	chunk := lode.Chunk{ID: lode.NewID(), DocumentID: doc.ID, Content: "A wiring diagram.", Embedding: []float32{1, 1, 0}}
	img := lode.ImageRecord{ID: lode.NewID(), DocumentID: doc.ID, ContentHash: "ih", Caption: "A wiring diagram.", ChunkID: chunk.ID}
	if err := s.ReplaceDocument(ctx, doc, []lode.Chunk{chunk}, []lode.ImageRecord{img}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, found, _ := s.GetDocumentByPath(ctx, "img.png"); found {
		t.Error("document survived delete")
	}
	if chunks, _ := s.GetChunksByIDs(ctx, []string{chunk.ID}); len(chunks) != 0 {
		t.Error("chunk survived delete")
	}
	if images, _ := s.GetImagesByChunkIDs(ctx, []string{chunk.ID}); len(images) != 0 {
		t.Error("image record survived delete")
	}
	hits, err := s.SearchChunksKeyword(ctx, "wiring diagram", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Error("keyword index still serves deleted chunk")
	}
}

func TestSearchChunksRanksByCosine(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, chunks := seedDocument(t, s, "manual.txt")

	hits, err := s.SearchChunks(ctx, []float32{1, 0.1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 (parents are not searched)", len(hits))
	}
	if hits[0].ID != chunks[1].ID {
		t.Errorf("top hit = %s, want the aligned embedding", hits[0].ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Error("hits not sorted by score")
	}
}

func TestSearchChunksTopK(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedDocument(t, s, "manual.txt")

	hits, err := s.SearchChunks(ctx, []float32{1, 1, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("hits = %d, want 1", len(hits))
	}
}

func TestSearchChunksKeyword(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, chunks := seedDocument(t, s, "manual.txt")

	hits, err := s.SearchChunksKeyword(ctx, "interlock contactor", 10)
	if err != nil {
		t.Fatalf("SearchChunksKeyword: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no keyword hits")
	}
	if hits[0].ID != chunks[2].ID {
		t.Errorf("top hit = %q, want the interlock chunk", hits[0].Content)
	}
	if hits[0].Score < 0 {
		t.Errorf("score = %f, want non-negative", hits[0].Score)
	}
}

func TestSearchChunksKeywordSanitizesQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedDocument(t, s, "manual.txt")

	// Raw FTS5 operators and punctuation must not break the query.
	for _, q := range []string{`interlock AND NOT "`, "zone-3 (310)", "*", `""`} {
		if _, err := s.SearchChunksKeyword(ctx, q, 10); err != nil {
			t.Errorf("query %q: %v", q, err)
		}
	}

	hits, err := s.SearchChunksKeyword(ctx, "!!! ???", 10)
	if err != nil {
		t.Fatal(err)
	}
	if hits != nil {
		t.Error("punctuation-only query should return nothing")
	}
}

func TestStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedDocument(t, s, "a.txt")
	seedDocument(t, s, "b.txt")

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := lode.Stats{Documents: 2, Parents: 2, Children: 4, Images: 0}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}
}

func TestCheckConsistencyDetectsDrift(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, chunks := seedDocument(t, s, "manual.txt")

	if err := s.CheckConsistency(ctx); err != nil {
		t.Fatalf("fresh index reported inconsistent: %v", err)
	}

	// Knock one embedded chunk out of the FTS index behind the store's back.
	if _, err := s.DB().ExecContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`, chunks[1].ID); err != nil {
		t.Fatal(err)
	}
	err := s.CheckConsistency(ctx)
	if !errors.Is(err, lode.ErrIndexConsistency) {
		t.Fatalf("error = %v, want ErrIndexConsistency", err)
	}

	if err := s.RebuildKeywordIndex(ctx); err != nil {
		t.Fatalf("RebuildKeywordIndex: %v", err)
	}
	if err := s.CheckConsistency(ctx); err != nil {
		t.Errorf("index still inconsistent after rebuild: %v", err)
	}
}

func TestGetImagesByChunkIDs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	doc := lode.Document{ID: lode.NewID(), Path: "report.docx", Format: lode.FormatDOCX, ContentHash: "h", CreatedAt: 1}
	capChunk := lode.Chunk{ID: lode.NewID(), DocumentID: doc.ID, Content: "Pump curve chart.", Embedding: []float32{1, 0, 0}}
	img := lode.ImageRecord{
		ID: lode.NewID(), DocumentID: doc.ID, Page: 4,
		ContentHash: "imghash", Caption: "Pump curve chart.", ChunkID: capChunk.ID, Path: "abc.png",
	}
	if err := s.ReplaceDocument(ctx, doc, []lode.Chunk{capChunk}, []lode.ImageRecord{img}); err != nil {
		t.Fatal(err)
	}

	images, err := s.GetImagesByChunkIDs(ctx, []string{capChunk.ID, "missing"})
	if err != nil {
		t.Fatalf("GetImagesByChunkIDs: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("images = %d, want 1", len(images))
	}
	if images[0].Page != 4 || images[0].Path != "abc.png" || images[0].Caption != img.Caption {
		t.Errorf("image round trip lost fields: %+v", images[0])
	}

	if images, _ := s.GetImagesByChunkIDs(ctx, nil); images != nil {
		t.Error("nil input should return nil")
	}
}

func TestListDocumentsOrderedByPath(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedDocument(t, s, "b.txt")
	seedDocument(t, s, "a.txt")

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].Path != "a.txt" || docs[1].Path != "b.txt" {
		t.Errorf("docs = %+v, want ordered by path", docs)
	}
}

func TestConcurrentReplace(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := lode.Document{
				ID:          lode.NewID(),
				Path:        fmt.Sprintf("doc-%d.txt", i),
				Format:      lode.FormatText,
				ContentHash: fmt.Sprintf("h%d", i),
				CreatedAt:   lode.NowUnix(),
			}
			chunk := lode.Chunk{
				ID:         lode.NewID(),
				DocumentID: doc.ID,
				Content:    fmt.Sprintf("unique content %d", i),
				Embedding:  []float32{float32(i), 1, 0},
			}
			if err := s.ReplaceDocument(ctx, doc, []lode.Chunk{chunk}, nil); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent replace: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 8 {
		t.Errorf("documents = %d, want 8", st.Documents)
	}
}

func TestFTSMatchQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"zone temperature", `"zone" OR "temperature"`},
		{"Zone-3 (310)!", `"zone" OR "3" OR "310"`},
		{`a "quoted" term`, `"a" OR "quoted" OR "term"`},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ftsMatchQuery(tt.in); got != tt.want {
			t.Errorf("ftsMatchQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if !strings.Contains(ftsMatchQuery("ＺＯＮＥ"), `"zone"`) {
		t.Error("full-width text not normalized")
	}
}
