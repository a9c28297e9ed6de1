// Package retrieve answers similarity queries: text and image inputs are
// embedded into the shared vector space and matched against the index by
// cosine similarity.
package retrieve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snapdex/snapdex/internal/domain"
	"github.com/snapdex/snapdex/internal/metrics"
	"github.com/snapdex/snapdex/internal/repository/saved"
)

// TextRequest is a text similarity query.
type TextRequest struct {
	Query     string
	Category  string
	K         int
	Translate bool
	Save      bool
}

// ImageRequest is a query-by-example request.
type ImageRequest struct {
	Image    []byte
	Category string
	K        int
	Save     bool
}

// Response carries ranked results plus what was actually searched for. When
// translation fell back, TranslatedQuery equals Query and Applied is false.
type Response struct {
	Query              string
	TranslatedQuery    string
	TranslationApplied bool
	Results            []domain.SearchResult
	SavedID            string
}

// Service orchestrates embed, translate, search, and archive.
type Service struct {
	embedder   Embedder
	repo       Repository
	translator domain.Translator // nil disables translation
	archive    Archiver          // nil disables saving
	defaultK   int
	maxK       int
	logger     *zap.Logger
}

func New(embedder Embedder, repo Repository, defaultK, maxK int, logger *zap.Logger) *Service {
	if defaultK <= 0 {
		defaultK = 5
	}
	if maxK <= 0 {
		maxK = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder: embedder,
		repo:     repo,
		defaultK: defaultK,
		maxK:     maxK,
		logger:   logger,
	}
}

// WithTranslator enables query translation for text searches.
func (s *Service) WithTranslator(t domain.Translator) *Service {
	s.translator = t
	return s
}

// WithArchiver enables saving searches on request.
func (s *Service) WithArchiver(a Archiver) *Service {
	s.archive = a
	return s
}

// SearchByText finds the images most similar to a text query. With Translate
// set and a translator configured, the query is first rewritten into a
// caption-style phrase; the rewritten form is what gets embedded.
func (s *Service) SearchByText(ctx context.Context, req TextRequest) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		metrics.SearchesTotal.WithLabelValues("text", "error").Inc()
		return Response{}, domain.ErrEmptyQuery
	}

	resp := Response{Query: query, TranslatedQuery: query}
	if req.Translate && s.translator != nil {
		tr := s.translator.Translate(ctx, query)
		resp.TranslatedQuery = tr.Query
		resp.TranslationApplied = tr.Applied
	}

	emb, err := s.embedder.EmbedText(ctx, resp.TranslatedQuery)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("text", "error").Inc()
		return Response{}, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.repo.Search(ctx, emb.Embedding, s.clampK(req.K), req.Category)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("text", "error").Inc()
		return Response{}, fmt.Errorf("search: %w", err)
	}
	resp.Results = results
	metrics.SearchesTotal.WithLabelValues("text", "ok").Inc()

	if req.Save {
		resp.SavedID = s.save(saved.Search{
			Kind:            "text",
			Query:           resp.Query,
			TranslatedQuery: resp.TranslatedQuery,
			Category:        req.Category,
			K:               s.clampK(req.K),
			Results:         saved.FromDomain(results),
		})
	}
	return resp, nil
}

// SearchByImage finds the images most similar to an example image. No
// translation applies here.
func (s *Service) SearchByImage(ctx context.Context, req ImageRequest) (Response, error) {
	if len(req.Image) == 0 {
		metrics.SearchesTotal.WithLabelValues("image", "error").Inc()
		return Response{}, fmt.Errorf("empty image payload: %w", domain.ErrInvalidImage)
	}

	emb, err := s.embedder.EmbedImage(ctx, req.Image)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("image", "error").Inc()
		return Response{}, fmt.Errorf("embed image: %w", err)
	}

	results, err := s.repo.Search(ctx, emb.Embedding, s.clampK(req.K), req.Category)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("image", "error").Inc()
		return Response{}, fmt.Errorf("search: %w", err)
	}
	metrics.SearchesTotal.WithLabelValues("image", "ok").Inc()

	resp := Response{Results: results}
	if req.Save {
		resp.SavedID = s.save(saved.Search{
			Kind:     "image",
			Category: req.Category,
			K:        s.clampK(req.K),
			Results:  saved.FromDomain(results),
		})
	}
	return resp, nil
}

// Saved returns an archived search by ID.
func (s *Service) Saved(id string) (saved.Search, error) {
	if s.archive == nil {
		return saved.Search{}, domain.ErrNotFound
	}
	return s.archive.Get(id)
}

// SavedList returns all archived searches.
func (s *Service) SavedList() ([]saved.Search, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.List()
}

// save archives a search; failures are logged, never surfaced, since results
// were already produced.
func (s *Service) save(search saved.Search) string {
	if s.archive == nil {
		return ""
	}
	search.ID = uuid.NewString()
	search.SavedAt = time.Now().UTC()
	if err := s.archive.Put(search); err != nil {
		s.logger.Warn("could not archive search", zap.String("id", search.ID), zap.Error(err))
		return ""
	}
	return search.ID
}

func (s *Service) clampK(k int) int {
	if k <= 0 {
		return s.defaultK
	}
	if k > s.maxK {
		return s.maxK
	}
	return k
}
