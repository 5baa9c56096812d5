package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lode "github.com/lodekb/lode"
)

// Candidate is a source file due for (re)ingestion.
type Candidate struct {
	Path     string // relative to the source root, slash-separated
	AbsPath  string
	Hash     string        // hex SHA-256 of the file bytes
	Existing lode.Document // zero value for unseen files
}

// Plan categorizes the source tree against the index by content hash.
// Modification times are ignored: only the bytes decide.
type Plan struct {
	Unseen    []Candidate
	Changed   []Candidate
	Unchanged []string
	Deleted   []lode.Document
}

// BuildPlan walks the source root and compares every regular file
// against the index. Hidden files and directories are skipped. With
// force set, unchanged files are planned as changed so they re-ingest.
func BuildPlan(ctx context.Context, root string, store lode.Store, force bool) (Plan, error) {
	var plan Plan
	seen := make(map[string]bool)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true

		hash, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", rel, err)
		}

		existing, found, err := store.GetDocumentByPath(ctx, rel)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", rel, err)
		}
		cand := Candidate{Path: rel, AbsPath: path, Hash: hash, Existing: existing}
		switch {
		case !found:
			cand.Existing = lode.Document{}
			plan.Unseen = append(plan.Unseen, cand)
		case existing.ContentHash != hash || force:
			plan.Changed = append(plan.Changed, cand)
		default:
			plan.Unchanged = append(plan.Unchanged, rel)
		}
		return nil
	})
	if err != nil {
		return Plan{}, err
	}

	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if !seen[doc.Path] {
			plan.Deleted = append(plan.Deleted, doc)
		}
	}
	return plan, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
