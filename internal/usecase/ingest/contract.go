package ingest

import (
	"context"

	"github.com/snapdex/snapdex/internal/domain"
)

// Embedder converts image payloads into vectors.
type Embedder interface {
	EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error)
}

// Repository persists image records.
type Repository interface {
	Upsert(ctx context.Context, rec domain.ImageRecord) error
	UpsertBatch(ctx context.Context, recs []domain.ImageRecord) error
	Delete(ctx context.Context, id string) error
}
