package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/leofalp/mammochat/providers/observability"
)

// PromptFile serves a system prompt template from disk and reloads it when
// the file changes. It satisfies agent.TemplateSource. A failed reload keeps
// the last template that was read successfully.
type PromptFile struct {
	path     string
	observer observability.Provider

	mu       sync.RWMutex
	template string
	version  int

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	closed  sync.Once
}

// PromptOption configures a PromptFile.
type PromptOption func(*PromptFile)

// WithPromptObserver logs reloads and reload failures.
func WithPromptObserver(observer observability.Provider) PromptOption {
	return func(p *PromptFile) {
		p.observer = observer
	}
}

// OpenPromptFile reads path and starts watching it. The first read must
// succeed. Callers must Close the returned PromptFile.
func OpenPromptFile(path string, opts ...PromptOption) (*PromptFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("prompt file %s: %w", path, err)
	}
	p := &PromptFile{path: filepath.Clean(abs), done: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	p.observer = observability.OrNop(p.observer)

	if err := p.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("prompt file watcher: %w", err)
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}
	p.watcher = watcher

	p.wg.Add(1)
	go p.watch()
	return p, nil
}

// Path returns the absolute path being served.
func (p *PromptFile) Path() string { return p.path }

// Template returns the current template.
func (p *PromptFile) Template() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.template, nil
}

// Version counts successful loads, starting at 1.
func (p *PromptFile) Version() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// Reload reads the file now. An empty file is rejected.
func (p *PromptFile) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read prompt file: %w", err)
	}
	template := string(data)
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("read prompt file %s: file is empty", p.path)
	}

	p.mu.Lock()
	p.template = template
	p.version++
	p.mu.Unlock()
	return nil
}

// Close stops watching. It is safe to call more than once.
func (p *PromptFile) Close() error {
	var err error
	p.closed.Do(func() {
		close(p.done)
		if p.watcher != nil {
			err = p.watcher.Close()
		}
		p.wg.Wait()
	})
	return err
}

func (p *PromptFile) watch() {
	defer p.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := p.Reload(); err != nil {
				// Rename leaves the path briefly missing; the following Create reloads it.
				if !errors.Is(err, os.ErrNotExist) {
					p.observer.Warn(ctx, "prompt reload failed, keeping previous template",
						observability.String("prompt.path", p.path),
						observability.Error(err),
					)
				}
				continue
			}
			p.observer.Info(ctx, "prompt reloaded",
				observability.String("prompt.path", p.path),
				observability.Int("prompt.version", p.Version()),
			)
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.observer.Warn(ctx, "prompt watcher error", observability.Error(err))
		}
	}
}
