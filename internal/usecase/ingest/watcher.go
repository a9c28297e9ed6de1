package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settleDelay gives tools that write images in multiple chunks time to
// finish before the file is read.
const settleDelay = 250 * time.Millisecond

// Watch blocks, re-indexing files created or rewritten under root until ctx
// is cancelled. Subdirectories added while watching are picked up too.
func (s *Service) Watch(ctx context.Context, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addDirs(watcher, root); err != nil {
		return err
	}
	s.logger.Info("watching for new images", zap.String("root", root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, watcher, root, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (s *Service) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, root string, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := addDirs(watcher, event.Name); err != nil {
				s.logger.Warn("cannot watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
		return
	}

	rel, err := filepath.Rel(root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !s.walker.matches(rel) {
		return
	}

	time.Sleep(settleDelay)
	if err := s.IngestFile(ctx, root, rel); err != nil {
		s.logger.Warn("watch ingest failed", zap.String("path", rel), zap.Error(err))
		return
	}
	s.logger.Info("indexed", zap.String("path", rel))
}

func addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
