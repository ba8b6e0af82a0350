package storage

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
)

func newManager(t *testing.T, dir string) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(dir, "meta.db"), filepath.Join(dir, "vectors.idx"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func buildIndex(t *testing.T, dimensions int, vecs ...[]float32) *vector.Index {
	t.Helper()
	ix, err := vector.New(dimensions)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vecs {
		if _, err := ix.Add(v); err != nil {
			t.Fatal(err)
		}
	}
	return ix
}

func TestLoadEmptyOnFirstRun(t *testing.T) {
	m := newManager(t, t.TempDir())
	defer m.Close()

	ix, docs, err := m.Load(context.Background(), 4)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ix.Size() != 0 {
		t.Errorf("index size = %d, want 0", ix.Size())
	}
	if len(docs) != 0 {
		t.Errorf("got %d documents, want 0", len(docs))
	}
	if _, ok := m.LastSaved(context.Background()); ok {
		t.Error("LastSaved should report false before any save")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	ctx := context.Background()

	ix := buildIndex(t, 4, []float32{1, 0, 0, 0}, []float32{0, 1, 0, 0})
	now := time.Now().Truncate(time.Millisecond)
	docs := []models.Document{
		{ID: "a", Text: "first", Timestamp: now, Position: 0},
		{ID: "b", Text: "second", Timestamp: now.Add(time.Second), Position: 1},
	}
	if err := m.Save(ctx, ix.Snapshot(), docs); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, ok := m.LastSaved(ctx); !ok {
		t.Error("LastSaved should report true after a save")
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	m2 := newManager(t, dir)
	defer m2.Close()
	loaded, loadedDocs, err := m2.Load(ctx, 4)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Size() != 2 {
		t.Errorf("index size = %d, want 2", loaded.Size())
	}
	if len(loadedDocs) != 2 {
		t.Fatalf("got %d documents, want 2", len(loadedDocs))
	}
	for i, doc := range loadedDocs {
		if doc.ID != docs[i].ID || doc.Text != docs[i].Text || doc.Position != docs[i].Position {
			t.Errorf("doc[%d] = %+v, want %+v", i, doc, docs[i])
		}
		if !doc.Timestamp.Equal(docs[i].Timestamp) {
			t.Errorf("doc[%d] timestamp = %v, want %v", i, doc.Timestamp, docs[i].Timestamp)
		}
	}

	// Searching the reloaded index finds the same vector at the same position.
	hits, err := loaded.Search([]float32{1, 0, 0, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Position != 0 {
		t.Errorf("hits = %+v, want position 0 first", hits)
	}
}

func TestSaveOverwritesPreviousState(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	defer m.Close()
	ctx := context.Background()

	ix := buildIndex(t, 4, []float32{1, 0, 0, 0})
	if err := m.Save(ctx, ix.Snapshot(), []models.Document{{ID: "a", Text: "one", Timestamp: time.Now(), Position: 0}}); err != nil {
		t.Fatal(err)
	}
	// Second save: a was deleted, b appended.
	if _, err := ix.Add([]float32{0, 1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(ctx, ix.Snapshot(), []models.Document{{ID: "b", Text: "two", Timestamp: time.Now(), Position: 1}}); err != nil {
		t.Fatal(err)
	}

	loaded, docs, err := m.Load(ctx, 4)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Errorf("index size = %d, want 2", loaded.Size())
	}
	if len(docs) != 1 || docs[0].ID != "b" {
		t.Errorf("docs = %+v, want only b", docs)
	}
}

func TestLoadCorruptIndexFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	defer m.Close()
	ctx := context.Background()

	ix := buildIndex(t, 4, []float32{1, 0, 0, 0})
	if err := m.Save(ctx, ix.Snapshot(), []models.Document{{ID: "a", Text: "one", Timestamp: time.Now(), Position: 0}}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vectors.idx"), []byte("not a vector blob"), 0644); err != nil {
		t.Fatal(err)
	}

	loaded, docs, err := m.Load(ctx, 4)
	if err != nil {
		t.Fatalf("corrupt artifacts must not fail startup: %v", err)
	}
	if loaded.Size() != 0 || len(docs) != 0 {
		t.Errorf("expected empty store, got %d vectors, %d docs", loaded.Size(), len(docs))
	}

	// The store must remain operable: a fresh save works.
	if err := m.Save(ctx, loaded.Snapshot(), nil); err != nil {
		t.Errorf("save after corrupt load failed: %v", err)
	}
}

func TestLoadHugeCountHeaderFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	defer m.Close()
	ctx := context.Background()

	ix := buildIndex(t, 4, []float32{1, 0, 0, 0})
	if err := m.Save(ctx, ix.Snapshot(), []models.Document{{ID: "a", Text: "one", Timestamp: time.Now(), Position: 0}}); err != nil {
		t.Fatal(err)
	}
	// Overwrite the blob with a header claiming ~4 billion vectors and almost
	// no data behind it.
	blob := make([]byte, 11)
	binary.LittleEndian.PutUint32(blob[0:], 4)
	binary.LittleEndian.PutUint32(blob[4:], 0xFFFFFFFF)
	if err := os.WriteFile(filepath.Join(dir, "vectors.idx"), blob, 0644); err != nil {
		t.Fatal(err)
	}

	loaded, docs, err := m.Load(ctx, 4)
	if err != nil {
		t.Fatalf("corrupt artifacts must not fail startup: %v", err)
	}
	if loaded.Size() != 0 || len(docs) != 0 {
		t.Errorf("expected empty store, got %d vectors, %d docs", loaded.Size(), len(docs))
	}
}

func TestLoadMissingIndexDiscardsMetadata(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	defer m.Close()
	ctx := context.Background()

	ix := buildIndex(t, 4, []float32{1, 0, 0, 0})
	if err := m.Save(ctx, ix.Snapshot(), []models.Document{{ID: "a", Text: "one", Timestamp: time.Now(), Position: 0}}); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "vectors.idx")); err != nil {
		t.Fatal(err)
	}

	loaded, docs, err := m.Load(ctx, 4)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 0 || len(docs) != 0 {
		t.Errorf("expected empty store, got %d vectors, %d docs", loaded.Size(), len(docs))
	}
}

func TestLoadRejectsPositionBeyondIndex(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	defer m.Close()
	ctx := context.Background()

	ix := buildIndex(t, 4, []float32{1, 0, 0, 0})
	bad := []models.Document{{ID: "a", Text: "one", Timestamp: time.Now(), Position: 5}}
	if err := m.Save(ctx, ix.Snapshot(), bad); err != nil {
		t.Fatal(err)
	}

	loaded, docs, err := m.Load(ctx, 4)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 0 || len(docs) != 0 {
		t.Errorf("inconsistent state should load as empty, got %d vectors, %d docs", loaded.Size(), len(docs))
	}
}

// A crash between the index write and the metadata transaction leaves a blob
// with more vectors than the metadata references. That state is valid: the
// extra vectors are tombstones.
func TestLoadToleratesIndexSuperset(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	defer m.Close()
	ctx := context.Background()

	ix := buildIndex(t, 4, []float32{1, 0, 0, 0})
	docs := []models.Document{{ID: "a", Text: "one", Timestamp: time.Now(), Position: 0}}
	if err := m.Save(ctx, ix.Snapshot(), docs); err != nil {
		t.Fatal(err)
	}

	// Simulate the crash: a newer blob lands on disk but the metadata
	// transaction never ran.
	if _, err := ix.Add([]float32{0, 1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, "vectors.idx"))
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Snapshot().Encode(f); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	loaded, loadedDocs, err := m.Load(ctx, 4)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Errorf("index size = %d, want 2", loaded.Size())
	}
	if len(loadedDocs) != 1 || loadedDocs[0].ID != "a" {
		t.Errorf("docs = %+v, want only a", loadedDocs)
	}
}
