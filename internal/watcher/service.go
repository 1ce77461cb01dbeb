// Package watcher follows the policy directory and reports changed documents.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives a policy file path. removed is true when the file was
// deleted or renamed away.
type ChangeFunc func(path string, removed bool)

type Service struct {
	roots    []string
	match    func(path string) bool
	logger   *slog.Logger
	onChange ChangeFunc
	watcher  *fsnotify.Watcher
}

func New(roots []string, match func(string) bool, logger *slog.Logger, onChange ChangeFunc) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if match == nil {
		match = func(string) bool { return true }
	}
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Service{
		roots:    roots,
		match:    match,
		logger:   logger,
		onChange: onChange,
		watcher:  fileWatcher,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()

	for _, root := range s.roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("create watch root %s: %w", root, err)
		}
		if err := s.addRecursive(root); err != nil {
			return err
		}
	}
	s.logger.Info("policy watcher started", "roots", strings.Join(s.roots, ","))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("policy watcher stopped")
			return nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				s.logger.Error("file watcher error", "error", err)
			}
		}
	}
}

func (s *Service) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if !entry.IsDir() {
			return nil
		}
		if err := s.watcher.Add(path); err != nil {
			return fmt.Errorf("watch path %s: %w", path, err)
		}
		return nil
	})
}

func (s *Service) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := s.addRecursive(event.Name); err != nil {
				s.logger.Error("failed to add new directory to watcher", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !s.match(event.Name) {
		return
	}
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		s.logger.Info("policy file removed", "path", event.Name, "op", event.Op.String())
		s.onChange(event.Name, true)
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		s.logger.Info("policy file changed", "path", event.Name, "op", event.Op.String())
		s.onChange(event.Name, false)
	}
}
