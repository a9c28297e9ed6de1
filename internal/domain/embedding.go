package domain

import "context"

// EmbeddingResult is the output of a single embedding call.
type EmbeddingResult struct {
	Embedding []float32
}

// Embedder converts text or image payloads into vectors. Both methods must
// produce vectors in the same embedding space so text and image vectors are
// comparable by cosine similarity.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (EmbeddingResult, error)
	EmbedImage(ctx context.Context, image []byte) (EmbeddingResult, error)
	Dimensions() int
}

// HealthChecker is implemented by components that can check their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Translation is the outcome of a query rewrite. Applied is false when the
// translator degraded to the original query; that fallback is always explicit,
// never a silent substitution.
type Translation struct {
	Query   string
	Applied bool
}

// Translator rewrites a conversational query into a caption-style phrase.
type Translator interface {
	Translate(ctx context.Context, query string) Translation
}
