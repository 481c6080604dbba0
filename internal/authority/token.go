package authority

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce is how long Watch waits after the last write before
// re-reading the token file.
const reloadDebounce = 500 * time.Millisecond

// TokenSource holds the bearer token, optionally backed by a file that is
// re-read when it changes.
type TokenSource struct {
	mu     sync.RWMutex
	token  string
	path   string
	logger *slog.Logger
}

// StaticToken returns a source that always yields tok.
func StaticToken(tok string) *TokenSource {
	return &TokenSource{token: strings.TrimSpace(tok), logger: slog.Default()}
}

// NewFileTokenSource reads the token from path.
func NewFileTokenSource(path string, logger *slog.Logger) (*TokenSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &TokenSource{path: filepath.Clean(path), logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Token returns the current token.
func (s *TokenSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Reload re-reads the token file. An empty or unreadable file leaves the
// previous token in place.
func (s *TokenSource) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("authority: read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return fmt.Errorf("authority: token file %s is empty", s.path)
	}
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	return nil
}

// Watch reloads the token when its file is written or replaced. The
// parent directory is watched so rename-based rotation is seen. Blocks
// until ctx is cancelled.
func (s *TokenSource) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("authority: create token watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("authority: watch %q: %w", filepath.Dir(s.path), err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := s.Reload(); err != nil {
					s.logger.Warn("token reload failed, keeping previous token", "error", err)
					return
				}
				s.logger.Info("token reloaded", "path", s.path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("token watcher error", "error", err)
		}
	}
}
