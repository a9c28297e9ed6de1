package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snapdex/snapdex/internal/domain"
	"github.com/snapdex/snapdex/internal/logger"
	"github.com/snapdex/snapdex/internal/metrics"
	"github.com/snapdex/snapdex/internal/repository/saved"
	chiTransport "github.com/snapdex/snapdex/internal/transport/chi"
	healthuc "github.com/snapdex/snapdex/internal/usecase/health"
	ingestuc "github.com/snapdex/snapdex/internal/usecase/ingest"
	retrieveuc "github.com/snapdex/snapdex/internal/usecase/retrieve"
	translateuc "github.com/snapdex/snapdex/internal/usecase/translate"
	"github.com/snapdex/snapdex/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log.Info("Starting snapdex",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
	)

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	repo := newImageRepo(store)
	if err := repo.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure vector index: %w", err)
	}

	embedder := newEmbedder()
	if err := embedder.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding sidecar not reachable: %w", err)
	}

	var translator domain.Translator
	if t := newTranslator(); t != nil {
		translator = t
	}

	archive, err := saved.Open(cfg.Storage.SavedPath)
	if err != nil {
		return fmt.Errorf("open saved-search store: %w", err)
	}
	defer archive.Close()

	ingestSvc := ingestuc.New(embedder, repo, cfg.Ingest.Include, cfg.Ingest.Exclude, cfg.Ingest.BatchSize, log)
	retrieveSvc := retrieveuc.New(embedder, repo, cfg.Search.DefaultK, cfg.Search.MaxK, log).
		WithArchiver(archive)
	if translator != nil {
		retrieveSvc = retrieveSvc.WithTranslator(translator)
	}
	translateSvc := translateuc.New(translator)
	healthSvc := healthuc.New(store, embedder, repo)

	server := chiTransport.NewServer(ingestSvc, retrieveSvc, translateSvc, healthSvc, log)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(log))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(log))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		log.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
	}

	log.Info("Server stopped gracefully")
	return nil
}

// jsonRecoverer recovers from handler panics and returns a JSON 500.
func jsonRecoverer(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					log.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := log.With(zap.String("request_id", requestID))
			ctx := logger.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
