package retrieve

import (
	"context"

	"github.com/snapdex/snapdex/internal/domain"
	"github.com/snapdex/snapdex/internal/repository/saved"
)

// Embedder converts queries into vectors in the shared embedding space.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error)
	EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error)
}

// Repository runs nearest-neighbour searches over indexed images.
type Repository interface {
	Search(ctx context.Context, vector []float32, k int, category string) ([]domain.SearchResult, error)
}

// Archiver persists searches the caller asked to keep and serves them back.
type Archiver interface {
	Put(search saved.Search) error
	Get(id string) (saved.Search, error)
	List() ([]saved.Search, error)
}
