// Package chi implements the HTTP API: ingestion, text and image similarity
// search, query translation, health, and metrics.
package chi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/snapdex/snapdex/internal/domain"
	"github.com/snapdex/snapdex/internal/repository/saved"
	healthuc "github.com/snapdex/snapdex/internal/usecase/health"
	ingestuc "github.com/snapdex/snapdex/internal/usecase/ingest"
	retrieveuc "github.com/snapdex/snapdex/internal/usecase/retrieve"
	translateuc "github.com/snapdex/snapdex/internal/usecase/translate"
)

// maxImageUploadBytes bounds multipart image uploads.
const maxImageUploadBytes = 20 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the use case services behind the HTTP handlers.
type Server struct {
	ingest        *ingestuc.Service
	retriever     *retrieveuc.Service
	translate     *translateuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	retriever *retrieveuc.Service,
	translate *translateuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:    ingest,
		retriever: retriever,
		translate: translate,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidImage, http.StatusBadRequest, codeInvalidImage),
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, codeStoreUnavailable),
	}
	return s
}

// Routes mounts all handlers on a router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest", s.Ingest)
		// Image IDs are relative paths, so the route takes a wildcard.
		r.Delete("/images/*", s.RemoveImage)
		r.Post("/search/text", s.SearchText)
		r.Post("/search/image", s.SearchImage)
		r.Get("/saved", s.SavedList)
		r.Get("/saved/{id}", s.SavedGet)
		r.Post("/translate", s.Translate)
	})
}

type ingestRequest struct {
	Path string `json:"path"`
}

type ingestResponse struct {
	Total    int             `json:"total"`
	Indexed  int             `json:"indexed"`
	Failures []ingestFailure `json:"failures"`
}

type ingestFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Ingest handles POST /api/v1/ingest.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Path is required")
		return
	}

	report, err := s.ingest.Ingest(r.Context(), req.Path)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := ingestResponse{
		Total:    report.Total,
		Indexed:  report.Indexed,
		Failures: make([]ingestFailure, 0, len(report.Failures)),
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, ingestFailure{Path: f.Path, Reason: f.Reason})
	}
	writeJSON(w, http.StatusOK, resp)
}

// RemoveImage handles DELETE /api/v1/images/*. The wildcard is the image ID,
// which is a slash-separated relative path.
func (s *Server) RemoveImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	if err := s.ingest.Remove(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

// SavedList handles GET /api/v1/saved.
func (s *Server) SavedList(w http.ResponseWriter, r *http.Request) {
	list, err := s.retriever.SavedList()
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if list == nil {
		list = []saved.Search{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"searches": list, "total": len(list)})
}

// SavedGet handles GET /api/v1/saved/{id}.
func (s *Server) SavedGet(w http.ResponseWriter, r *http.Request) {
	search, err := s.retriever.Saved(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, search)
}

type textSearchRequest struct {
	Query     string `json:"query"`
	K         int    `json:"k,omitempty"`
	Category  string `json:"category,omitempty"`
	Translate *bool  `json:"translate,omitempty"`
	Save      bool   `json:"save,omitempty"`
}

type searchResponse struct {
	Query              string         `json:"query,omitempty"`
	TranslatedQuery    string         `json:"translated_query,omitempty"`
	TranslationApplied bool           `json:"translation_applied"`
	Results            []searchResult `json:"results"`
	SavedAs            string         `json:"saved_as,omitempty"`
}

type searchResult struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	Path     string  `json:"path"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

// SearchText handles POST /api/v1/search/text.
func (s *Server) SearchText(w http.ResponseWriter, r *http.Request) {
	var req textSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	// Translation is opt-out: omitted means on.
	translate := true
	if req.Translate != nil {
		translate = *req.Translate
	}

	resp, err := s.retriever.SearchByText(r.Context(), retrieveuc.TextRequest{
		Query:     req.Query,
		Category:  req.Category,
		K:         req.K,
		Translate: translate,
		Save:      req.Save,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponseFromUsecase(resp))
}

// SearchImage handles POST /api/v1/search/image (multipart form).
func (s *Server) SearchImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Image file is required")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, maxImageUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Could not read image: "+err.Error())
		return
	}

	k, err := formInt(r, "k")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "k must be an integer")
		return
	}

	resp, err := s.retriever.SearchByImage(r.Context(), retrieveuc.ImageRequest{
		Image:    payload,
		Category: r.FormValue("category"),
		K:        k,
		Save:     r.FormValue("save") == "true",
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponseFromUsecase(resp))
}

type translateRequest struct {
	Query string `json:"query"`
}

type translateResponse struct {
	Query      string `json:"query"`
	Translated string `json:"translated"`
	Applied    bool   `json:"applied"`
}

// Translate handles POST /api/v1/translate.
func (s *Server) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	tr, err := s.translate.Translate(r.Context(), req.Query)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{
		Query:      req.Query,
		Translated: tr.Query,
		Applied:    tr.Applied,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":  report.Status,
		"checks":  report.Checks,
		"indexed": report.Indexed,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func searchResponseFromUsecase(resp retrieveuc.Response) searchResponse {
	out := searchResponse{
		Query:              resp.Query,
		TranslatedQuery:    resp.TranslatedQuery,
		TranslationApplied: resp.TranslationApplied,
		Results:            make([]searchResult, 0, len(resp.Results)),
		SavedAs:            resp.SavedID,
	}
	for _, res := range resp.Results {
		out.Results = append(out.Results, searchResult{
			ID:       res.ID(),
			Filename: res.Filename(),
			Path:     res.Path(),
			Category: res.Category(),
			Score:    res.Score(),
			Rank:     res.Rank(),
		})
	}
	return out
}

func formInt(r *http.Request, key string) (int, error) {
	v := r.FormValue(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
