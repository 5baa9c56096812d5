// Package lode implements a local knowledge-base retrieval engine.
//
// Documents of heterogeneous formats (plain text, Markdown, HTML, CSV,
// PDF, DOCX, and standalone images) are parsed into text, table, and
// image blocks, chunked into a two-tier parent/child hierarchy, and
// indexed twice: child chunks are embedded for dense similarity search
// and mirrored into a keyword index for sparse BM25 search. Queries run
// both searches in parallel, fuse the rankings with reciprocal rank
// fusion, expand the winning children to their parent chunks, and
// synthesize a cited answer with a chat model.
//
// The package root holds the engine, the hybrid retriever, the context
// expander, and the provider contracts. Subpackages supply the parsing
// pipeline (ingest), the SQLite index (store/sqlite), an OpenAI-compatible
// provider (provider/openai), and OpenTelemetry instrumentation (observer).
package lode
