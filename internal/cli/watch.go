package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// folderWatcher reports image files that appear in one directory, once
// each and in arrival order. Subdirectories are not watched.
type folderWatcher struct {
	dir     string
	poll    time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

func newFolderWatcher(dir string, logger *slog.Logger) *folderWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &folderWatcher{dir: dir, poll: time.Second, timeout: 30 * time.Second, logger: logger}
}

// Run blocks until ctx is done. handle is called from a single goroutine
// with every new image once it has finished being written.
func (w *folderWatcher) Run(ctx context.Context, handle func(ctx context.Context, path string)) error {
	watcher, err := w.open()
	if err != nil {
		return err
	}
	return w.loop(ctx, watcher, handle)
}

func (w *folderWatcher) open() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", w.dir, err)
	}
	return watcher, nil
}

// loop owns watcher and closes it on return.
func (w *folderWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, handle func(ctx context.Context, path string)) error {
	defer watcher.Close()

	pending := make(chan string, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for path := range pending {
			if err := waitForFileReady(ctx, path, w.poll, w.timeout); err != nil {
				w.logger.Warn("skip file", "path", path, "error", err)
				continue
			}
			handle(ctx, path)
		}
	}()
	defer func() {
		close(pending)
		<-done
	}()

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "dir", w.dir, "error", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Files moved into the folder arrive as Create as well.
			if !ev.Has(fsnotify.Create) || seen[ev.Name] {
				continue
			}
			if !imageExts[strings.ToLower(filepath.Ext(ev.Name))] {
				continue
			}
			if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
				continue
			}
			seen[ev.Name] = true
			select {
			case pending <- ev.Name:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

var errFileNotReady = errors.New("file still being written")

// waitForFileReady returns once path has a non-zero size that did not
// change over one poll interval. Cameras and editors write in chunks.
func waitForFileReady(ctx context.Context, path string, poll, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	last := int64(-1)
	for {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		size := info.Size()
		if size > 0 && size == last {
			return nil
		}
		last = size
		if time.Now().After(deadline) {
			return errFileNotReady
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}
