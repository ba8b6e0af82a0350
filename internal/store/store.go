package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
)

// DefaultSaveInterval is the number of mutations between periodic saves.
const DefaultSaveInterval = 50

// DocumentStore is the facade over the vector index, the metadata table, and
// persistence. The index and table form one consistency unit: every mutation
// (store, delete) runs under a single writer lock so position assignment cannot
// race and the table never references a vector that is not there. Reads run
// under the read lock against the last committed state.
//
// Embedding calls happen outside the lock: they are the slow path (network
// round trip) and must not serialize unrelated requests. Persistence snapshots
// are taken under the lock but written to disk outside it.
type DocumentStore struct {
	embedder     embedding.Embedder
	persist      *storage.Manager
	logger       *zap.Logger
	saveInterval int

	mu      sync.RWMutex
	index   *vector.Index
	table   *Table
	dirty   int // mutations since last snapshot
	snapGen uint64

	saveMu       sync.Mutex // serializes disk writes
	savedGen     uint64
	lastSaveTime time.Time
}

// Open loads persisted state (or starts empty on missing/corrupt artifacts) and
// returns a ready store. saveInterval <= 0 uses DefaultSaveInterval.
func Open(ctx context.Context, embedder embedding.Embedder, persist *storage.Manager, saveInterval int, logger *zap.Logger) (*DocumentStore, error) {
	if saveInterval <= 0 {
		saveInterval = DefaultSaveInterval
	}
	ix, docs, err := persist.Load(ctx, embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("load persisted state: %w", err)
	}
	table := NewTable()
	for _, doc := range docs {
		table.Upsert(doc)
	}
	return &DocumentStore{
		embedder:     embedder,
		persist:      persist,
		logger:       logger,
		saveInterval: saveInterval,
		index:        ix,
		table:        table,
	}, nil
}

// Store embeds text and commits it under docID. Re-storing an existing ID
// replaces its metadata; the old vector stays in the index as a tombstone.
// A blank text or a failed embedding aborts with no state change at all.
// Within one ID, the last store to reach the commit step wins.
func (s *DocumentStore) Store(ctx context.Context, docID, text string) (models.Document, error) {
	if strings.TrimSpace(text) == "" {
		return models.Document{}, ErrEmptyDocument
	}

	// Slow path first, outside the lock. Concurrent stores may interleave here
	// but never in the commit below.
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return models.Document{}, fmt.Errorf("embed document %s: %w", docID, err)
	}

	s.mu.Lock()
	position, err := s.index.Add(vec)
	if err != nil {
		s.mu.Unlock()
		return models.Document{}, fmt.Errorf("index document %s: %w", docID, err)
	}
	doc := models.Document{
		ID:        docID,
		Text:      text,
		Timestamp: time.Now(),
		Position:  position,
	}
	s.table.Upsert(doc)
	snap, docs, gen := s.noteMutationLocked()
	s.mu.Unlock()

	if snap != nil {
		s.persistSnapshot(ctx, snap, docs, gen)
	}
	s.logger.Debug("document stored",
		zap.String("doc_id", docID), zap.Int("position", position))
	return doc, nil
}

// Retrieve returns up to topK live documents ranked by similarity to query.
// It never fails: an empty index, a blank query, or an unreachable embedding
// service all yield an empty result, so a degraded retrieval cannot take down
// the caller's request. The index is over-fetched to absorb tombstones.
func (s *DocumentStore) Retrieve(ctx context.Context, query string, topK int) []models.RetrievedDocument {
	if strings.TrimSpace(query) == "" || topK <= 0 {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, returning no results", zap.Error(err))
		return nil
	}

	fetchK := topK * 2
	if fetchK < topK+5 {
		fetchK = topK + 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	hits, err := s.index.Search(vec, fetchK)
	if err != nil {
		s.logger.Warn("index search failed, returning no results", zap.Error(err))
		return nil
	}

	var results []models.RetrievedDocument
	seen := make(map[string]bool)
	for _, hit := range hits {
		id, ok := s.table.Resolve(hit.Position)
		if !ok {
			// Tombstone: vector belongs to a deleted or re-stored document.
			continue
		}
		if seen[id] {
			continue
		}
		doc, ok := s.table.Get(id)
		if !ok {
			continue
		}
		seen[id] = true
		results = append(results, models.RetrievedDocument{
			ID:        id,
			Text:      doc.Text,
			Score:     hit.Score,
			Timestamp: doc.Timestamp,
		})
		if len(results) >= topK {
			break
		}
	}
	return results
}

// Get returns the live document for id.
func (s *DocumentStore) Get(id string) (models.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Get(id)
}

// Delete removes the document's metadata; its vector remains in the index as a
// tombstone. Returns ErrNotFound for an unknown ID.
func (s *DocumentStore) Delete(ctx context.Context, docID string) error {
	s.mu.Lock()
	if !s.table.Remove(docID) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	snap, docs, gen := s.noteMutationLocked()
	s.mu.Unlock()

	if snap != nil {
		s.persistSnapshot(ctx, snap, docs, gen)
	}
	s.logger.Debug("document deleted", zap.String("doc_id", docID))
	return nil
}

// Count returns the number of live documents.
func (s *DocumentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Len()
}

// IndexSize returns the total number of vectors, tombstones included.
func (s *DocumentStore) IndexSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Size()
}

// LastSaved returns the time of the last successful in-process save.
func (s *DocumentStore) LastSaved() (time.Time, bool) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.lastSaveTime, !s.lastSaveTime.IsZero()
}

// noteMutationLocked bumps the mutation counter and, when the save interval is
// reached, resets it and returns a consistent snapshot pair to persist. Caller
// must hold the write lock.
func (s *DocumentStore) noteMutationLocked() (*vector.Snapshot, []models.Document, uint64) {
	s.dirty++
	if s.dirty < s.saveInterval {
		return nil, nil, 0
	}
	s.dirty = 0
	s.snapGen++
	return s.index.Snapshot(), s.table.Documents(), s.snapGen
}

// persistSnapshot writes a snapshot outside the commit lock. Saves are
// serialized and stale snapshots (overtaken by a newer completed save) are
// dropped so an older state can never overwrite a newer one on disk.
// Persistence is best effort: failures are logged, not surfaced, because the
// in-memory store remains authoritative until the next save.
func (s *DocumentStore) persistSnapshot(ctx context.Context, snap *vector.Snapshot, docs []models.Document, gen uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if gen <= s.savedGen {
		return
	}
	if err := s.persist.Save(ctx, snap, docs); err != nil {
		s.logger.Warn("periodic save failed",
			zap.Int("documents", len(docs)), zap.Error(err))
		return
	}
	s.savedGen = gen
	s.lastSaveTime = time.Now()
	s.logger.Debug("state persisted",
		zap.Int("documents", len(docs)), zap.Int("vectors", snap.Count()))
}

// Close flushes unsaved mutations and closes persistence. Call on graceful
// shutdown.
func (s *DocumentStore) Close() error {
	s.mu.Lock()
	var snap *vector.Snapshot
	var docs []models.Document
	var gen uint64
	if s.dirty > 0 {
		s.dirty = 0
		s.snapGen++
		snap, docs, gen = s.index.Snapshot(), s.table.Documents(), s.snapGen
	}
	s.mu.Unlock()

	if snap != nil {
		s.persistSnapshot(context.Background(), snap, docs, gen)
	}
	return s.persist.Close()
}
