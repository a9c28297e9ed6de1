package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/snapdex/snapdex/internal/domain"
	"github.com/snapdex/snapdex/internal/repository/saved"
	healthuc "github.com/snapdex/snapdex/internal/usecase/health"
	ingestuc "github.com/snapdex/snapdex/internal/usecase/ingest"
	retrieveuc "github.com/snapdex/snapdex/internal/usecase/retrieve"
	translateuc "github.com/snapdex/snapdex/internal/usecase/translate"
)

type stubEmbedder struct {
	textErr  error
	imageErr error
}

func (s *stubEmbedder) EmbedText(context.Context, string) (domain.EmbeddingResult, error) {
	if s.textErr != nil {
		return domain.EmbeddingResult{}, s.textErr
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 2, 3, 4}}, nil
}

func (s *stubEmbedder) EmbedImage(context.Context, []byte) (domain.EmbeddingResult, error) {
	if s.imageErr != nil {
		return domain.EmbeddingResult{}, s.imageErr
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 2, 3, 4}}, nil
}

type stubRepo struct {
	searchErr error
	deleteErr error
	deleted   []string
}

func (s *stubRepo) Search(context.Context, []float32, int, string) ([]domain.SearchResult, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return []domain.SearchResult{
		domain.NewSearchResult("cats/a.jpg", "a.jpg", "/data/cats/a.jpg", "cats", 0.92, 1),
		domain.NewSearchResult("cats/b.jpg", "b.jpg", "/data/cats/b.jpg", "cats", 0.87, 2),
	}, nil
}

func (s *stubRepo) Upsert(context.Context, domain.ImageRecord) error        { return nil }
func (s *stubRepo) UpsertBatch(context.Context, []domain.ImageRecord) error { return nil }

func (s *stubRepo) Delete(_ context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type stubArchiver struct {
	searches []saved.Search
}

func (s *stubArchiver) Put(search saved.Search) error {
	s.searches = append(s.searches, search)
	return nil
}

func (s *stubArchiver) Get(id string) (saved.Search, error) {
	for _, sr := range s.searches {
		if sr.ID == id {
			return sr, nil
		}
	}
	return saved.Search{}, domain.ErrNotFound
}

func (s *stubArchiver) List() ([]saved.Search, error) { return s.searches, nil }

type stubTranslator struct{}

func (stubTranslator) Translate(_ context.Context, query string) domain.Translation {
	return domain.Translation{Query: "a photo of " + query, Applied: true}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func newTestHandler(embedder *stubEmbedder, repo *stubRepo) http.Handler {
	return newTestHandlerWithArchive(embedder, repo, nil)
}

func newTestHandlerWithArchive(embedder *stubEmbedder, repo *stubRepo, archive *stubArchiver) http.Handler {
	logger := zap.NewNop()
	retriever := retrieveuc.New(embedder, repo, 5, 100, logger).WithTranslator(stubTranslator{})
	if archive != nil {
		retriever = retriever.WithArchiver(archive)
	}
	ingester := ingestuc.New(embedder, repo, nil, nil, 4, logger)
	server := NewServer(ingester, retriever, translateuc.New(stubTranslator{}), healthuc.New(stubPinger{}, nil, nil), logger)

	r := chirouter.NewRouter()
	server.Routes(r)
	return r
}

func writeTestFile(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestSearchTextEndpoint(t *testing.T) {
	handler := newTestHandler(&stubEmbedder{}, &stubRepo{})

	rr := postJSON(t, handler, "/api/v1/search/text", map[string]any{"query": "tabby cat", "k": 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].Rank != 1 || resp.Results[0].Filename != "a.jpg" {
		t.Errorf("first result = %+v, want rank 1 a.jpg", resp.Results[0])
	}
	if !resp.TranslationApplied || resp.TranslatedQuery != "a photo of tabby cat" {
		t.Errorf("translation = %q/%v, want applied rewrite", resp.TranslatedQuery, resp.TranslationApplied)
	}
}

func TestSearchTextTranslateOptOut(t *testing.T) {
	handler := newTestHandler(&stubEmbedder{}, &stubRepo{})

	rr := postJSON(t, handler, "/api/v1/search/text", map[string]any{"query": "tabby cat", "translate": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TranslationApplied || resp.TranslatedQuery != "tabby cat" {
		t.Errorf("translation = %q/%v, want passthrough", resp.TranslatedQuery, resp.TranslationApplied)
	}
}

func TestSearchTextEmptyQuery400(t *testing.T) {
	handler := newTestHandler(&stubEmbedder{}, &stubRepo{})

	rr := postJSON(t, handler, "/api/v1/search/text", map[string]any{"query": "  "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != codeValidationFailed {
		t.Errorf("code = %s, want %s", resp.Code, codeValidationFailed)
	}
}

func TestSearchTextErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		embedErr   error
		searchErr  error
		wantStatus int
		wantCode   string
	}{
		{"provider down", domain.ErrEmbeddingProviderError, nil, http.StatusBadGateway, codeEmbeddingProviderError},
		{"dim mismatch", nil, domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch},
		{"store down", nil, domain.ErrStoreUnavailable, http.StatusServiceUnavailable, codeStoreUnavailable},
		{"unknown", nil, errors.New("boom"), http.StatusInternalServerError, codeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(&stubEmbedder{textErr: tc.embedErr}, &stubRepo{searchErr: tc.searchErr})

			rr := postJSON(t, handler, "/api/v1/search/text", map[string]any{"query": "q"})
			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}

			var resp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tc.wantCode {
				t.Errorf("code = %s, want %s", resp.Code, tc.wantCode)
			}
		})
	}
}

func TestSearchImageEndpoint(t *testing.T) {
	handler := newTestHandler(&stubEmbedder{}, &stubRepo{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "query.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("image-bytes")); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("k", "2"); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("category", "cats"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/api/v1/search/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("results = %d, want 2", len(resp.Results))
	}
	if resp.TranslationApplied {
		t.Error("TranslationApplied = true on image search")
	}
}

func TestSearchImageMissingFile400(t *testing.T) {
	handler := newTestHandler(&stubEmbedder{}, &stubRepo{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("k", "2"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/api/v1/search/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestTranslateEndpoint(t *testing.T) {
	handler := newTestHandler(&stubEmbedder{}, &stubRepo{})

	rr := postJSON(t, handler, "/api/v1/translate", map[string]any{"query": "red bicycle"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp translateResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Translated != "a photo of red bicycle" || !resp.Applied {
		t.Errorf("translated = %q applied=%v, want rewrite", resp.Translated, resp.Applied)
	}
	if resp.Query != "red bicycle" {
		t.Errorf("query = %q, want original", resp.Query)
	}
}

func TestIngestEndpointValidation(t *testing.T) {
	handler := newTestHandler(&stubEmbedder{}, &stubRepo{})

	rr := postJSON(t, handler, "/api/v1/ingest", map[string]any{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing path: status = %d, want 400", rr.Code)
	}

	rr = postJSON(t, handler, "/api/v1/ingest", map[string]any{"path": "/does/not/exist"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad root: status = %d, want 400", rr.Code)
	}
}

func TestIngestEndpoint(t *testing.T) {
	handler := newTestHandler(&stubEmbedder{}, &stubRepo{})

	root := t.TempDir()
	writeTestFile(t, root, "cats/a.jpg")
	writeTestFile(t, root, "loose.png")

	rr := postJSON(t, handler, "/api/v1/ingest", map[string]any{"path": root})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp ingestResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Indexed != 2 || len(resp.Failures) != 0 {
		t.Errorf("response = %+v, want 2 indexed", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	logger := zap.NewNop()
	embedder := &stubEmbedder{}
	repo := &stubRepo{}
	retriever := retrieveuc.New(embedder, repo, 5, 100, logger)
	ingester := ingestuc.New(embedder, repo, nil, nil, 4, logger)

	server := NewServer(ingester, retriever, translateuc.New(nil), healthuc.New(stubPinger{err: errors.New("down")}, nil, nil), logger)
	r := chirouter.NewRouter()
	server.Routes(r)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when the store is down", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "degraded") {
		t.Errorf("body = %s, want degraded status", rr.Body.String())
	}
}

func TestRemoveImageEndpoint(t *testing.T) {
	repo := &stubRepo{}
	handler := newTestHandler(&stubEmbedder{}, repo)

	req := httptest.NewRequest("DELETE", "/api/v1/images/cats/a.jpg", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "cats/a.jpg" {
		t.Errorf("deleted = %v, want [cats/a.jpg]", repo.deleted)
	}
}

func TestRemoveImageNotFound404(t *testing.T) {
	repo := &stubRepo{deleteErr: domain.ErrNotFound}
	handler := newTestHandler(&stubEmbedder{}, repo)

	req := httptest.NewRequest("DELETE", "/api/v1/images/cats/gone.jpg", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != codeNotFound {
		t.Errorf("code = %s, want %s", resp.Code, codeNotFound)
	}
}

func TestSavedEndpoints(t *testing.T) {
	archive := &stubArchiver{searches: []saved.Search{
		{ID: "s1", Kind: "text", Query: "tabby cat"},
		{ID: "s2", Kind: "image"},
	}}
	handler := newTestHandlerWithArchive(&stubEmbedder{}, &stubRepo{}, archive)

	req := httptest.NewRequest("GET", "/api/v1/saved", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, body %s", rr.Code, rr.Body.String())
	}
	var list struct {
		Searches []saved.Search `json:"searches"`
		Total    int            `json:"total"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 2 || len(list.Searches) != 2 {
		t.Fatalf("list = %+v, want 2 searches", list)
	}

	req = httptest.NewRequest("GET", "/api/v1/saved/s1", http.NoBody)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, body %s", rr.Code, rr.Body.String())
	}
	var got saved.Search
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode get: %v", err)
	}
	if got.Query != "tabby cat" {
		t.Errorf("query = %q, want tabby cat", got.Query)
	}

	req = httptest.NewRequest("GET", "/api/v1/saved/missing", http.NoBody)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing id status = %d, want 404", rr.Code)
	}
}

func TestSavedListEmptyWithoutArchive(t *testing.T) {
	handler := newTestHandler(&stubEmbedder{}, &stubRepo{})

	req := httptest.NewRequest("GET", "/api/v1/saved", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"total":0`) {
		t.Errorf("body = %s, want empty list", rr.Body.String())
	}
}
