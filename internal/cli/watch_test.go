package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWaitForFileReady(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.jpg")
	empty := filepath.Join(dir, "empty.jpg")
	if err := os.WriteFile(full, []byte("jpeg"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		path    string
		wantErr error
	}{
		{"stable file", context.Background(), full, nil},
		{"empty file times out", context.Background(), empty, errFileNotReady},
		{"missing file", context.Background(), filepath.Join(dir, "gone.jpg"), os.ErrNotExist},
		{"cancelled", cancelled, full, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := waitForFileReady(tt.ctx, tt.path, 10*time.Millisecond, 100*time.Millisecond)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("waitForFileReady() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("waitForFileReady() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWaitForFileReadyWaitsForGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	go func() {
		for i := 0; i < 5; i++ {
			f.Write([]byte("chunk"))
			time.Sleep(5 * time.Millisecond)
		}
	}()

	if err := waitForFileReady(context.Background(), path, 50*time.Millisecond, 2*time.Second); err != nil {
		t.Fatalf("waitForFileReady: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 25 {
		t.Errorf("ready at %d bytes, want 25", info.Size())
	}
}

func startWatcher(t *testing.T, dir string, ingestOne func(ctx context.Context, path string) error) {
	t.Helper()
	w := newFolderWatcher(dir, nil)
	w.poll = 10 * time.Millisecond
	w.timeout = time.Second

	watcher, err := w.open()
	if err != nil {
		t.Fatalf("open watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.loop(ctx, watcher, logFailures(w.logger, ingestOne))
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("watch loop: %v", err)
		}
	})
}

func TestFolderWatcher(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 10)
	startWatcher(t, dir, func(ctx context.Context, path string) error {
		got <- filepath.Base(path)
		if filepath.Base(path) == "bad.jpg" {
			return errors.New("no face model")
		}
		return nil
	})

	write := func(name string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}
	write("notes.txt")
	write("bad.jpg")
	write("a.jpg")
	write("a.jpg")

	// Moved in from outside the watched folder.
	outside := filepath.Join(t.TempDir(), "b.PNG")
	if err := os.WriteFile(outside, []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(outside, filepath.Join(dir, "b.PNG")); err != nil {
		t.Fatal(err)
	}

	want := []string{"bad.jpg", "a.jpg", "b.PNG"}
	for _, name := range want {
		select {
		case p := <-got:
			if p != name {
				t.Fatalf("reported %q, want %q", p, name)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", name)
		}
	}

	select {
	case p := <-got:
		t.Errorf("unexpected report of %q", p)
	case <-time.After(200 * time.Millisecond):
	}
}
