// Package clip is an HTTP client for the CLIP inference sidecar. The sidecar
// serves a pretrained multimodal encoder; text and image embeddings land in
// the same space and are comparable by cosine similarity.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/snapdex/snapdex/internal/domain"
	"github.com/snapdex/snapdex/internal/metrics"
)

// Compile-time check: Embedder implements domain.Embedder.
var _ domain.Embedder = (*Embedder)(nil)

// Embedder calls the CLIP sidecar over HTTP. The model is loaded once on the
// sidecar; this client is stateless and safe for concurrent use.
type Embedder struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	logger     *zap.Logger
}

// Config holds the CLIP sidecar settings.
type Config struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Logger     *zap.Logger
}

// NewEmbedder creates a CLIP sidecar client.
func NewEmbedder(cfg *Config) *Embedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Dimensions reports the configured embedding size.
func (e *Embedder) Dimensions() int { return e.dimensions }

type textRequest struct {
	Model string   `json:"model,omitempty"`
	Texts []string `json:"texts"`
}

type imageRequest struct {
	Model string `json:"model,omitempty"`
	Image string `json:"image_b64"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Detail     string      `json:"detail,omitempty"`
}

// EmbedText embeds a text string. Empty text is rejected before the wire call.
func (e *Embedder) EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.EmbeddingResult{}, domain.ErrEmptyQuery
	}

	body, err := json.Marshal(textRequest{Model: e.model, Texts: []string{text}})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("marshal: %w", err)
	}

	return e.call(ctx, "text", e.baseURL+"/embed/text", body)
}

// EmbedImage embeds an image payload. The payload is validated as a decodable
// jpeg/png/gif before anything is sent; malformed images never reach the sidecar.
func (e *Embedder) EmbedImage(ctx context.Context, img []byte) (domain.EmbeddingResult, error) {
	if len(img) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("empty payload: %w", domain.ErrInvalidImage)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(img)); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("decode image: %v: %w", err, domain.ErrInvalidImage)
	}

	body, err := json.Marshal(imageRequest{
		Model: e.model,
		Image: base64.StdEncoding.EncodeToString(img),
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("marshal: %w", err)
	}

	return e.call(ctx, "image", e.baseURL+"/embed/image", body)
}

// HealthCheck calls the sidecar health endpoint.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding sidecar health: status %d", resp.StatusCode)
	}
	return nil
}

func (e *Embedder) call(ctx context.Context, kind, url string, body []byte) (domain.EmbeddingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("embed %s request failed: %w", kind, domain.ErrEmbeddingProviderError)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return domain.EmbeddingResult{}, e.apiError(resp)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("decode response: %w", domain.ErrEmbeddingProviderError)
	}
	if len(parsed.Embeddings) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	vec := parsed.Embeddings[0]
	if e.dimensions > 0 && len(vec) != e.dimensions {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf(
			"encoder returned %d dims, configured %d: %w", len(vec), e.dimensions, domain.ErrVectorDimMismatch)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(kind).Observe(duration.Seconds())

	return domain.EmbeddingResult{Embedding: vec}, nil
}

// apiError extracts a human-readable error from the sidecar response body.
func (e *Embedder) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return fmt.Errorf("embedding API error %d: %s: %w",
			resp.StatusCode, parsed.Detail, domain.ErrEmbeddingProviderError)
	}
	return fmt.Errorf("embedding API error %d: %w", resp.StatusCode, domain.ErrEmbeddingProviderError)
}
