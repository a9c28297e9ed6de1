// Package ingest walks image directories, embeds each image, and upserts the
// records into the vector store. One bad file never aborts a run: failures
// are recorded per file and ingestion continues.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/snapdex/snapdex/internal/domain"
	"github.com/snapdex/snapdex/internal/metrics"
	"github.com/snapdex/snapdex/internal/repository/image"
)

// Failure is one skipped file with the reason it was skipped.
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report is the outcome of an ingestion run.
type Report struct {
	Total    int           `json:"total"`
	Indexed  int           `json:"indexed"`
	Failures []Failure     `json:"failures,omitempty"`
	Duration time.Duration `json:"-"`
}

// ProgressFunc is invoked after each processed file.
type ProgressFunc func(done, total int)

// Service runs the ingestion pipeline.
type Service struct {
	embedder  Embedder
	repo      Repository
	walker    *walker
	batchSize int
	logger    *zap.Logger
	progress  ProgressFunc
}

// New creates an ingestion service.
func New(embedder Embedder, repo Repository, includes, excludes []string, batchSize int, logger *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder:  embedder,
		repo:      repo,
		walker:    newWalker(includes, excludes),
		batchSize: batchSize,
		logger:    logger,
	}
}

// WithProgress registers a per-file progress callback (used by the CLI).
func (s *Service) WithProgress(fn ProgressFunc) *Service {
	s.progress = fn
	return s
}

// Ingest walks root recursively and indexes every matching image. The
// first-level subdirectory becomes the category label; files directly under
// root carry none. Returns an error only when the walk itself fails; per-file
// problems land in the report.
func (s *Service) Ingest(ctx context.Context, root string) (Report, error) {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return Report{}, fmt.Errorf("ingest root %s does not exist: %w", root, domain.ErrInvalidArgument)
	}
	if err != nil {
		return Report{}, fmt.Errorf("ingest root: %w", err)
	}
	if !info.IsDir() {
		return Report{}, fmt.Errorf("ingest root %s is not a directory: %w", root, domain.ErrInvalidArgument)
	}

	files, err := s.walker.walk(root)
	if err != nil {
		return Report{}, fmt.Errorf("walk %s: %w", root, err)
	}

	start := time.Now()
	report := Report{Total: len(files)}

	batch := make([]domain.ImageRecord, 0, s.batchSize)
	done := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.flushBatch(ctx, batch, &report)
		batch = batch[:0]
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			flush()
			report.Duration = time.Since(start)
			return report, fmt.Errorf("ingest interrupted: %w", err)
		}

		rec, failure := s.prepare(ctx, root, rel)
		if failure != nil {
			report.Failures = append(report.Failures, *failure)
		} else {
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				flush()
			}
		}

		done++
		if s.progress != nil {
			s.progress(done, len(files))
		}
	}
	flush()

	report.Duration = time.Since(start)
	s.logger.Info("ingestion finished",
		zap.String("root", root),
		zap.Int("total", report.Total),
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", len(report.Failures)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// IngestFile indexes a single file under root. Used by watch mode.
func (s *Service) IngestFile(ctx context.Context, root, rel string) error {
	rec, failure := s.prepare(ctx, root, rel)
	if failure != nil {
		return fmt.Errorf("%s: %s", failure.Path, failure.Reason)
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		metrics.IngestFailuresTotal.WithLabelValues("upsert").Inc()
		return err
	}
	metrics.ImagesIngestedTotal.Inc()
	return nil
}

// Remove deletes an indexed image by ID.
func (s *Service) Remove(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("image id is required: %w", domain.ErrInvalidArgument)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("removed from index", zap.String("id", id))
	return nil
}

// prepare reads, embeds, and assembles a record for one file. A non-nil
// Failure means the file is skipped.
func (s *Service) prepare(ctx context.Context, root, rel string) (domain.ImageRecord, *Failure) {
	full := filepath.Join(root, filepath.FromSlash(rel))

	data, err := os.ReadFile(full)
	if err != nil {
		metrics.IngestFailuresTotal.WithLabelValues("read").Inc()
		s.logger.Warn("skipping unreadable file", zap.String("path", rel), zap.Error(err))
		return domain.ImageRecord{}, &Failure{Path: rel, Reason: "read: " + err.Error()}
	}

	embRes, err := s.embedder.EmbedImage(ctx, data)
	if err != nil {
		reason := "embed"
		if errors.Is(err, domain.ErrInvalidImage) {
			reason = "decode"
		}
		metrics.IngestFailuresTotal.WithLabelValues(reason).Inc()
		s.logger.Warn("skipping file", zap.String("path", rel), zap.String("reason", reason), zap.Error(err))
		return domain.ImageRecord{}, &Failure{Path: rel, Reason: reason + ": " + err.Error()}
	}

	rec, err := domain.NewImageRecord(
		image.IDFromRelPath(rel),
		filepath.Base(rel),
		full,
		categoryOf(rel),
		embRes.Embedding,
		time.Now().UnixMilli(),
	)
	if err != nil {
		metrics.IngestFailuresTotal.WithLabelValues("record").Inc()
		return domain.ImageRecord{}, &Failure{Path: rel, Reason: "record: " + err.Error()}
	}
	return rec, nil
}

// flushBatch writes a batch in one pipelined round-trip; if that fails, it
// falls back to per-record upserts so one bad record cannot sink its batch.
func (s *Service) flushBatch(ctx context.Context, batch []domain.ImageRecord, report *Report) {
	if err := s.repo.UpsertBatch(ctx, batch); err == nil {
		report.Indexed += len(batch)
		metrics.ImagesIngestedTotal.Add(float64(len(batch)))
		return
	}

	for _, rec := range batch {
		if err := s.repo.Upsert(ctx, rec); err != nil {
			metrics.IngestFailuresTotal.WithLabelValues("upsert").Inc()
			s.logger.Warn("upsert failed", zap.String("id", rec.ID()), zap.Error(err))
			report.Failures = append(report.Failures, Failure{Path: rec.ID(), Reason: "upsert: " + err.Error()})
			continue
		}
		report.Indexed++
		metrics.ImagesIngestedTotal.Inc()
	}
}

// categoryOf derives the category label from the first-level subdirectory.
func categoryOf(rel string) string {
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return ""
}
