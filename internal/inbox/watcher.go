// Package inbox imports spreadsheets dropped into a watched directory.
//
// A file is imported once it has been quiet for the debounce delay, then
// moved to processed/ or, when the import fails, to failed/ next to a .err
// file holding the error text.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Subdirectories of the inbox.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = time.Second

// Importer imports one workbook file.
type Importer interface {
	ImportFile(ctx context.Context, path string) error
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(ctx context.Context, path string) error

// ImportFile calls f.
func (f ImporterFunc) ImportFile(ctx context.Context, path string) error {
	return f(ctx, path)
}

// Config configures a Watcher.
type Config struct {
	Dir      string
	Debounce time.Duration
}

// Watcher watches one directory. Start and Stop may each be called once.
type Watcher struct {
	dir      string
	debounce time.Duration
	importer Importer
	logger   *zap.Logger
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time // path -> last event

	cancel context.CancelFunc
	done   chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a watcher; nothing is watched until Start.
func New(cfg Config, importer Importer, logger *zap.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("inbox directory is required")
	}
	if importer == nil {
		return nil, errors.New("inbox importer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return &Watcher{
		dir:      cfg.Dir,
		debounce: debounce,
		importer: importer,
		logger:   logger,
		fsw:      fsw,
		pending:  make(map[string]time.Time),
		done:     make(chan struct{}),
	}, nil
}

// Start creates the inbox directories, queues workbooks already waiting in
// the inbox and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	for _, d := range []string{w.dir, filepath.Join(w.dir, ProcessedDir), filepath.Join(w.dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	now := time.Now()
	w.mu.Lock()
	for _, e := range entries {
		if !e.IsDir() && wanted(e.Name()) {
			w.pending[filepath.Join(w.dir, e.Name())] = now
		}
	}
	w.mu.Unlock()

	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
	w.logger.Info("inbox watching", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))
	return nil
}

// Stop ends watching and waits for an import in progress to finish.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	return w.fsw.Close()
}

// Processed returns the number of files imported successfully.
func (w *Watcher) Processed() int64 { return w.processed.Load() }

// Failed returns the number of files whose import failed.
func (w *Watcher) Failed() int64 { return w.failed.Load() }

// wanted reports whether name is a workbook to import. Office lock files
// (~$name.xlsx) and hidden files are ignored.
func wanted(name string) bool {
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))
		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				if ctx.Err() != nil {
					return
				}
				w.process(ctx, path)
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Dir(ev.Name) != filepath.Clean(w.dir) || !wanted(filepath.Base(ev.Name)) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.pending[ev.Name] = time.Now()
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(w.pending, ev.Name)
	}
}

// settled removes and returns the pending paths quiet for the debounce delay.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	return out
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	name := filepath.Base(path)
	if err := w.importer.ImportFile(ctx, path); err != nil {
		w.failed.Add(1)
		w.logger.Warn("inbox import failed", zap.String("file", name), zap.Error(err))
		target, merr := move(path, filepath.Join(w.dir, FailedDir))
		if merr != nil {
			w.logger.Error("moving failed file", zap.String("file", name), zap.Error(merr))
			return
		}
		if werr := os.WriteFile(target+".err", []byte(err.Error()+"\n"), 0o644); werr != nil {
			w.logger.Error("writing error file", zap.String("file", name), zap.Error(werr))
		}
		return
	}
	w.processed.Add(1)
	w.logger.Info("inbox import done", zap.String("file", name))
	if _, err := move(path, filepath.Join(w.dir, ProcessedDir)); err != nil {
		w.logger.Error("moving processed file", zap.String("file", name), zap.Error(err))
	}
}

// move renames path into dir, prefixing a timestamp when the name is taken.
func move(path, dir string) (string, error) {
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(dir, time.Now().UTC().Format("20060102T150405.000000000")+"-"+filepath.Base(path))
	}
	return target, os.Rename(path, target)
}
