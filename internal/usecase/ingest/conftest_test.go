package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/snapdex/snapdex/internal/domain"
)

type mockEmbedder struct {
	embedImageFn func(ctx context.Context, image []byte) (domain.EmbeddingResult, error)
}

func (m *mockEmbedder) EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error) {
	if m.embedImageFn != nil {
		return m.embedImageFn(ctx, image)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3, 0.4}}, nil
}

type mockRepo struct {
	upsertFn      func(ctx context.Context, rec domain.ImageRecord) error
	upsertBatchFn func(ctx context.Context, recs []domain.ImageRecord) error
	deleteFn      func(ctx context.Context, id string) error

	upserted []domain.ImageRecord
	deleted  []string
}

func (m *mockRepo) Upsert(ctx context.Context, rec domain.ImageRecord) error {
	if m.upsertFn != nil {
		if err := m.upsertFn(ctx, rec); err != nil {
			return err
		}
	}
	m.upserted = append(m.upserted, rec)
	return nil
}

func (m *mockRepo) UpsertBatch(ctx context.Context, recs []domain.ImageRecord) error {
	if m.upsertBatchFn != nil {
		if err := m.upsertBatchFn(ctx, recs); err != nil {
			return err
		}
	}
	m.upserted = append(m.upserted, recs...)
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		if err := m.deleteFn(ctx, id); err != nil {
			return err
		}
	}
	m.deleted = append(m.deleted, id)
	return nil
}

// writeFiles lays out a directory tree; keys are slash-relative paths.
func writeFiles(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for rel, data := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestService(embedder *mockEmbedder, repo *mockRepo) *Service {
	return New(embedder, repo, []string{"**/*.jpg", "**/*.png"}, nil, 2, zap.NewNop())
}
