package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recorder struct {
	mu      sync.Mutex
	stored  []string
	removed []string
}

func (r *recorder) store(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, path)
}

func (r *recorder) remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
}

func (r *recorder) storedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stored...)
}

func (r *recorder) removedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func newTestWatcher(t *testing.T, root string, rec *recorder) *Watcher {
	t.Helper()
	w := New([]string{root}, []string{".txt"}, true, rec.store, rec.remove, zap.NewNop())
	w.debounce = 50 * time.Millisecond
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherIngestsCreatedFile(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	newTestWatcher(t, root, rec)

	path := filepath.Join(root, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return len(rec.storedPaths()) > 0 }) {
		t.Fatal("created file was not ingested")
	}
	if got := rec.storedPaths()[0]; got != path {
		t.Errorf("stored path = %q, want %q", got, path)
	}
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	newTestWatcher(t, root, rec)

	if err := os.WriteFile(filepath.Join(root, "image.png"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := rec.storedPaths(); len(got) != 0 {
		t.Errorf("non-matching file ingested: %v", got)
	}
}

func TestWatcherDebouncesWriteBursts(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	newTestWatcher(t, root, rec)

	path := filepath.Join(root, "burst.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.WriteString("chunk\n"); err != nil {
			t.Fatal(err)
		}
		_ = f.Sync()
		time.Sleep(10 * time.Millisecond)
	}
	f.Close()

	if !waitFor(t, 2*time.Second, func() bool { return len(rec.storedPaths()) > 0 }) {
		t.Fatal("file was not ingested")
	}
	// Allow the debounce window to fully drain, then check the burst collapsed.
	time.Sleep(200 * time.Millisecond)
	if got := len(rec.storedPaths()); got != 1 {
		t.Errorf("file ingested %d times, want 1", got)
	}
}

func TestWatcherReportsRemovedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	newTestWatcher(t, root, rec)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return len(rec.removedPaths()) > 0 }) {
		t.Fatal("removed file was not reported")
	}
	if got := rec.removedPaths()[0]; got != path {
		t.Errorf("removed path = %q, want %q", got, path)
	}
}

func TestWatcherRecursesIntoNewDirectories(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	newTestWatcher(t, root, rec)

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)
	path := filepath.Join(sub, "nested.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 2*time.Second, func() bool {
		for _, p := range rec.storedPaths() {
			if p == path {
				return true
			}
		}
		return false
	}) {
		t.Fatal("file in new subdirectory was not ingested")
	}
}

func TestWatcherSyncExistingFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "existing.txt"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "skip.log"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := newTestWatcher(t, root, rec)

	w.SyncExistingFiles()
	got := rec.storedPaths()
	if len(got) != 1 {
		t.Fatalf("synced %d files, want 1: %v", len(got), got)
	}
	if filepath.Base(got[0]) != "existing.txt" {
		t.Errorf("synced %q", got[0])
	}
}

func TestWatcherAddRemoveDirectory(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	w := newTestWatcher(t, root, rec)

	extra := t.TempDir()
	if err := w.AddDirectory(extra, false); err != nil {
		t.Fatalf("AddDirectory failed: %v", err)
	}
	if got := len(w.Directories()); got != 2 {
		t.Fatalf("Directories() has %d entries, want 2", got)
	}

	path := filepath.Join(extra, "added.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return len(rec.storedPaths()) > 0 }) {
		t.Fatal("file in added directory was not ingested")
	}

	if err := w.RemoveDirectory(extra); err != nil {
		t.Fatalf("RemoveDirectory failed: %v", err)
	}
	if got := len(w.Directories()); got != 1 {
		t.Errorf("Directories() has %d entries after remove, want 1", got)
	}
}

func TestWatcherCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "not-yet")
	rec := &recorder{}
	newTestWatcher(t, root, rec)

	if _, err := os.Stat(root); err != nil {
		t.Errorf("missing root should be created: %v", err)
	}
}
