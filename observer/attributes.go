package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for observability spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrLLMMethod   = attribute.Key("llm.method")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrEmbedTextCount  = attribute.Key("llm.embed.text_count")
	AttrEmbedDimensions = attribute.Key("llm.embed.dimensions")

	AttrCaptionBytes    = attribute.Key("caption.image_bytes")
	AttrCaptionMimeType = attribute.Key("caption.mime_type")

	AttrRetrievalQueryLength = attribute.Key("retrieval.query_length")
	AttrRetrievalTopK        = attribute.Key("retrieval.top_k")
	AttrRetrievalHits        = attribute.Key("retrieval.hits")
)
