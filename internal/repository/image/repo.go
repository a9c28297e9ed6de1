// Package image persists image records in the vector database and runs KNN
// queries over the FT index.
package image

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/snapdex/snapdex/internal/db"
	"github.com/snapdex/snapdex/internal/domain"
)

// store is the consumer interface for image records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// HNSWConfig holds HNSW index build parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo stores image records as hashes under <prefix>img:<id> and searches
// them through a single FT index.
type Repo struct {
	store     store
	keyPrefix string
	vectorDim int
	hnsw      HNSWConfig
}

// New creates an image repository.
func New(s store, keyPrefix string, vectorDim int) *Repo {
	return &Repo{store: s, keyPrefix: keyPrefix, vectorDim: vectorDim}
}

// WithHNSW sets HNSW build parameters for EnsureIndex.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

func (r *Repo) recordKey(id string) string {
	return r.keyPrefix + "img:" + id
}

func (r *Repo) indexName() string {
	return r.keyPrefix + "img:idx"
}

// EnsureIndex creates the FT index if it does not exist yet. Called once at
// startup; a dimension change requires dropping the index externally.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.keyPrefix + "img:"},
		Fields: []db.IndexField{
			{Name: fieldCategory, Type: db.IndexFieldTag},
			{Name: fieldIndexedAt, Type: db.IndexFieldNumeric},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         r.vectorDim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Upsert writes a single image record. The vector dimensionality is checked
// before anything hits the wire.
func (r *Repo) Upsert(ctx context.Context, rec domain.ImageRecord) error {
	if len(rec.Vector()) != r.vectorDim {
		return fmt.Errorf("record %s has %d dims, index expects %d: %w",
			rec.ID(), len(rec.Vector()), r.vectorDim, domain.ErrVectorDimMismatch)
	}
	if err := r.store.HSet(ctx, r.recordKey(rec.ID()), buildHashFields(rec)); err != nil {
		return fmt.Errorf("upsert %s: %w", rec.ID(), err)
	}
	return nil
}

// UpsertBatch writes multiple records in one pipelined round-trip.
func (r *Repo) UpsertBatch(ctx context.Context, recs []domain.ImageRecord) error {
	items := make([]db.HashSetItem, 0, len(recs))
	for _, rec := range recs {
		if len(rec.Vector()) != r.vectorDim {
			return fmt.Errorf("record %s has %d dims, index expects %d: %w",
				rec.ID(), len(rec.Vector()), r.vectorDim, domain.ErrVectorDimMismatch)
		}
		items = append(items, db.HashSetItem{
			Key:    r.recordKey(rec.ID()),
			Fields: buildHashFields(rec),
		})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// Get returns a record by ID.
func (r *Repo) Get(ctx context.Context, id string) (domain.ImageRecord, error) {
	m, err := r.store.HGetAll(ctx, r.recordKey(id))
	if err != nil {
		return domain.ImageRecord{}, fmt.Errorf("get %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.ImageRecord{}, domain.ErrNotFound
	}
	return parseHashFields(id, m), nil
}

// Delete removes a record by ID. Deleting an unknown ID is ErrNotFound.
func (r *Repo) Delete(ctx context.Context, id string) error {
	exists, err := r.store.Exists(ctx, r.recordKey(id))
	if err != nil {
		return fmt.Errorf("check %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	if err := r.store.Del(ctx, r.recordKey(id)); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// RebuildIndex drops the FT index and recreates it. Stored records keep
// their hashes; the server re-indexes them against the fresh definition.
func (r *Repo) RebuildIndex(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index: %w", err)
	}
	return r.EnsureIndex(ctx)
}

// Search runs a KNN query, optionally pre-filtered by category. Results come
// back ordered by descending similarity; ties fall in whatever order the
// database returns them, which is not guaranteed stable. An unknown category
// yields an empty slice, not an error.
func (r *Repo) Search(ctx context.Context, vector []float32, k int, category string) ([]domain.SearchResult, error) {
	if len(vector) != r.vectorDim {
		return nil, fmt.Errorf("query vector has %d dims, index expects %d: %w",
			len(vector), r.vectorDim, domain.ErrVectorDimMismatch)
	}

	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            k,
		Category:     category,
		ReturnFields: []string{fieldFilename, fieldPath, fieldCategory, "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(sr.Entries))
	for i, entry := range sr.Entries {
		results = append(results, domain.NewSearchResult(
			r.idFromKey(entry.Key),
			entry.Fields[fieldFilename],
			entry.Fields[fieldPath],
			entry.Fields[fieldCategory],
			entry.Score,
			i+1,
		))
	}
	return results, nil
}

// Count returns the number of indexed records.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), "*")
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (r *Repo) idFromKey(key string) string {
	return strings.TrimPrefix(key, r.keyPrefix+"img:")
}

// IDFromRelPath maps a relative file path onto a stable record ID so
// re-ingesting the same path overwrites the same key (idempotent upsert).
func IDFromRelPath(relPath string) string {
	id := path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	return strings.ReplaceAll(id, " ", "_")
}
