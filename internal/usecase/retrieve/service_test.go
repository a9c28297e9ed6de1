package retrieve

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/snapdex/snapdex/internal/domain"
	"github.com/snapdex/snapdex/internal/repository/saved"
)

type mockEmbedder struct {
	embedTextFn  func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	embedImageFn func(ctx context.Context, image []byte) (domain.EmbeddingResult, error)
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if m.embedTextFn != nil {
		return m.embedTextFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 2, 3, 4}}, nil
}

func (m *mockEmbedder) EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error) {
	if m.embedImageFn != nil {
		return m.embedImageFn(ctx, image)
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 2, 3, 4}}, nil
}

type mockRepo struct {
	searchFn func(ctx context.Context, vector []float32, k int, category string) ([]domain.SearchResult, error)

	lastK        int
	lastCategory string
}

func (m *mockRepo) Search(ctx context.Context, vector []float32, k int, category string) ([]domain.SearchResult, error) {
	m.lastK = k
	m.lastCategory = category
	if m.searchFn != nil {
		return m.searchFn(ctx, vector, k, category)
	}
	return []domain.SearchResult{
		domain.NewSearchResult("cats/a.jpg", "a.jpg", "/data/cats/a.jpg", "cats", 0.91, 1),
	}, nil
}

type mockTranslator struct {
	translateFn func(ctx context.Context, query string) domain.Translation
}

func (m *mockTranslator) Translate(ctx context.Context, query string) domain.Translation {
	if m.translateFn != nil {
		return m.translateFn(ctx, query)
	}
	return domain.Translation{Query: query, Applied: false}
}

type mockArchiver struct {
	putFn func(search saved.Search) error
	saved []saved.Search
}

func (m *mockArchiver) Put(search saved.Search) error {
	if m.putFn != nil {
		if err := m.putFn(search); err != nil {
			return err
		}
	}
	m.saved = append(m.saved, search)
	return nil
}

func (m *mockArchiver) Get(id string) (saved.Search, error) {
	for _, s := range m.saved {
		if s.ID == id {
			return s, nil
		}
	}
	return saved.Search{}, domain.ErrNotFound
}

func (m *mockArchiver) List() ([]saved.Search, error) {
	return m.saved, nil
}

func newTestService(e *mockEmbedder, r *mockRepo) *Service {
	return New(e, r, 5, 100, zap.NewNop())
}

func TestSearchByTextReturnsRankedResults(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(&mockEmbedder{}, repo)

	resp, err := svc.SearchByText(context.Background(), TextRequest{Query: "a tabby cat", Category: "cats", K: 3})
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Rank() != 1 {
		t.Fatalf("results = %+v, want one ranked result", resp.Results)
	}
	if repo.lastK != 3 || repo.lastCategory != "cats" {
		t.Errorf("search got k=%d category=%q, want 3/cats", repo.lastK, repo.lastCategory)
	}
	if resp.TranslatedQuery != "a tabby cat" || resp.TranslationApplied {
		t.Errorf("translation fields = %q/%v, want passthrough", resp.TranslatedQuery, resp.TranslationApplied)
	}
}

func TestSearchByTextRejectsEmptyQuery(t *testing.T) {
	svc := newTestService(&mockEmbedder{}, &mockRepo{})

	for _, query := range []string{"", "   ", "\t\n"} {
		if _, err := svc.SearchByText(context.Background(), TextRequest{Query: query}); !errors.Is(err, domain.ErrEmptyQuery) {
			t.Errorf("query %q: err = %v, want ErrEmptyQuery", query, err)
		}
	}
}

func TestSearchByTextEmbedsTranslatedQuery(t *testing.T) {
	var embedded string
	embedder := &mockEmbedder{
		embedTextFn: func(_ context.Context, text string) (domain.EmbeddingResult, error) {
			embedded = text
			return domain.EmbeddingResult{Embedding: []float32{1, 2, 3, 4}}, nil
		},
	}
	translator := &mockTranslator{
		translateFn: func(_ context.Context, _ string) domain.Translation {
			return domain.Translation{Query: "a photo of a tabby cat", Applied: true}
		},
	}
	svc := newTestService(embedder, &mockRepo{}).WithTranslator(translator)

	resp, err := svc.SearchByText(context.Background(), TextRequest{Query: "show me tabby cats", Translate: true})
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if embedded != "a photo of a tabby cat" {
		t.Errorf("embedded %q, want the rewritten query", embedded)
	}
	if !resp.TranslationApplied || resp.TranslatedQuery != "a photo of a tabby cat" {
		t.Errorf("response translation = %q/%v, want applied rewrite", resp.TranslatedQuery, resp.TranslationApplied)
	}
	if resp.Query != "show me tabby cats" {
		t.Errorf("original query = %q, want preserved", resp.Query)
	}
}

func TestSearchByTextTranslationFallbackStillSearches(t *testing.T) {
	translator := &mockTranslator{
		translateFn: func(_ context.Context, query string) domain.Translation {
			return domain.Translation{Query: query, Applied: false}
		},
	}
	svc := newTestService(&mockEmbedder{}, &mockRepo{}).WithTranslator(translator)

	resp, err := svc.SearchByText(context.Background(), TextRequest{Query: "red bicycle", Translate: true})
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if resp.TranslationApplied {
		t.Error("TranslationApplied = true, want false on fallback")
	}
	if resp.TranslatedQuery != "red bicycle" {
		t.Errorf("TranslatedQuery = %q, want original query", resp.TranslatedQuery)
	}
	if len(resp.Results) == 0 {
		t.Error("expected results despite translation fallback")
	}
}

func TestSearchByTextTranslateFlagIgnoredWithoutTranslator(t *testing.T) {
	svc := newTestService(&mockEmbedder{}, &mockRepo{})

	resp, err := svc.SearchByText(context.Background(), TextRequest{Query: "red bicycle", Translate: true})
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if resp.TranslationApplied {
		t.Error("TranslationApplied = true with no translator configured")
	}
}

func TestKDefaultsAndCap(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(&mockEmbedder{}, repo)

	cases := []struct {
		k    int
		want int
	}{
		{0, 5},
		{-3, 5},
		{7, 7},
		{100, 100},
		{250, 100},
	}
	for _, tc := range cases {
		if _, err := svc.SearchByText(context.Background(), TextRequest{Query: "q", K: tc.k}); err != nil {
			t.Fatalf("k=%d: %v", tc.k, err)
		}
		if repo.lastK != tc.want {
			t.Errorf("k=%d: search got k=%d, want %d", tc.k, repo.lastK, tc.want)
		}
	}
}

func TestSearchByImage(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(&mockEmbedder{}, repo)

	resp, err := svc.SearchByImage(context.Background(), ImageRequest{Image: []byte("payload"), Category: "dogs", K: 2})
	if err != nil {
		t.Fatalf("SearchByImage: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %+v, want one", resp.Results)
	}
	if repo.lastCategory != "dogs" || repo.lastK != 2 {
		t.Errorf("search got k=%d category=%q, want 2/dogs", repo.lastK, repo.lastCategory)
	}

	if _, err := svc.SearchByImage(context.Background(), ImageRequest{}); !errors.Is(err, domain.ErrInvalidImage) {
		t.Errorf("empty payload err = %v, want ErrInvalidImage", err)
	}
}

func TestSearchErrorsPropagate(t *testing.T) {
	embedErr := errors.New("provider down")
	svc := newTestService(&mockEmbedder{
		embedTextFn: func(context.Context, string) (domain.EmbeddingResult, error) {
			return domain.EmbeddingResult{}, embedErr
		},
	}, &mockRepo{})
	if _, err := svc.SearchByText(context.Background(), TextRequest{Query: "q"}); !errors.Is(err, embedErr) {
		t.Errorf("err = %v, want wrapped embed error", err)
	}

	searchErr := errors.New("store unavailable")
	svc = newTestService(&mockEmbedder{}, &mockRepo{
		searchFn: func(context.Context, []float32, int, string) ([]domain.SearchResult, error) {
			return nil, searchErr
		},
	})
	if _, err := svc.SearchByText(context.Background(), TextRequest{Query: "q"}); !errors.Is(err, searchErr) {
		t.Errorf("err = %v, want wrapped search error", err)
	}
}

func TestSaveArchivesSearch(t *testing.T) {
	archive := &mockArchiver{}
	svc := newTestService(&mockEmbedder{}, &mockRepo{}).WithArchiver(archive)

	resp, err := svc.SearchByText(context.Background(), TextRequest{Query: "tabby cat", Category: "cats", Save: true})
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if resp.SavedID == "" {
		t.Fatal("SavedID empty, want generated id")
	}
	if len(archive.saved) != 1 {
		t.Fatalf("archived = %d, want 1", len(archive.saved))
	}
	got := archive.saved[0]
	if got.ID != resp.SavedID || got.Kind != "text" || got.Query != "tabby cat" || got.Category != "cats" {
		t.Errorf("archived search = %+v", got)
	}
	if len(got.Results) != 1 {
		t.Errorf("archived results = %d, want 1", len(got.Results))
	}
}

func TestSaveFailureDoesNotFailSearch(t *testing.T) {
	archive := &mockArchiver{putFn: func(saved.Search) error { return errors.New("disk full") }}
	svc := newTestService(&mockEmbedder{}, &mockRepo{}).WithArchiver(archive)

	resp, err := svc.SearchByText(context.Background(), TextRequest{Query: "q", Save: true})
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if resp.SavedID != "" {
		t.Errorf("SavedID = %q, want empty after archive failure", resp.SavedID)
	}
	if len(resp.Results) == 0 {
		t.Error("expected results despite archive failure")
	}
}

func TestSavedLookup(t *testing.T) {
	archive := &mockArchiver{saved: []saved.Search{{ID: "abc", Kind: "text", Query: "q"}}}
	svc := newTestService(&mockEmbedder{}, &mockRepo{}).WithArchiver(archive)

	got, err := svc.Saved("abc")
	if err != nil {
		t.Fatalf("Saved: %v", err)
	}
	if got.Query != "q" {
		t.Errorf("query = %q, want q", got.Query)
	}

	if _, err := svc.Saved("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSavedLookupWithoutArchive(t *testing.T) {
	svc := newTestService(&mockEmbedder{}, &mockRepo{})

	if _, err := svc.Saved("abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Saved err = %v, want ErrNotFound", err)
	}
	list, err := svc.SavedList()
	if err != nil {
		t.Fatalf("SavedList: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("list = %v, want empty", list)
	}
}

func TestSavedList(t *testing.T) {
	archive := &mockArchiver{saved: []saved.Search{{ID: "a"}, {ID: "b"}}}
	svc := newTestService(&mockEmbedder{}, &mockRepo{}).WithArchiver(archive)

	list, err := svc.SavedList()
	if err != nil {
		t.Fatalf("SavedList: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list = %d entries, want 2", len(list))
	}
}
