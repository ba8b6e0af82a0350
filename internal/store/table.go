// Package store provides the metadata table and the document store facade that
// coordinates the vector index, metadata, and persistence as one unit.
package store

import (
	"sort"

	"github.com/hyperjump/kioku/internal/models"
)

// Table maps live document IDs to their metadata and keeps a reverse index from
// vector position to document ID. The two maps are maintained together: every
// live ID has exactly one position, no two live IDs share a position, and a
// position missing from the reverse index is a tombstone.
//
// Table is not safe for concurrent use; DocumentStore serializes access to it
// together with the vector index.
type Table struct {
	byID       map[string]*models.Document
	byPosition map[int]string
}

// NewTable returns an empty metadata table.
func NewTable() *Table {
	return &Table{
		byID:       make(map[string]*models.Document),
		byPosition: make(map[int]string),
	}
}

// Upsert inserts doc, removing any prior entry for the same ID first. The prior
// entry's position becomes a tombstone. The document is stored by value copy so
// callers cannot mutate table state afterwards.
func (t *Table) Upsert(doc models.Document) {
	if prev, ok := t.byID[doc.ID]; ok {
		delete(t.byPosition, prev.Position)
	}
	stored := doc
	t.byID[doc.ID] = &stored
	t.byPosition[doc.Position] = doc.ID
}

// Get returns the live entry for id.
func (t *Table) Get(id string) (models.Document, bool) {
	doc, ok := t.byID[id]
	if !ok {
		return models.Document{}, false
	}
	return *doc, true
}

// Resolve maps a vector position back to its live document ID. Tombstoned
// positions resolve to false.
func (t *Table) Resolve(position int) (string, bool) {
	id, ok := t.byPosition[position]
	return id, ok
}

// Remove deletes the entry for id, tombstoning its position. Returns false if
// the ID is not live.
func (t *Table) Remove(id string) bool {
	doc, ok := t.byID[id]
	if !ok {
		return false
	}
	delete(t.byID, id)
	delete(t.byPosition, doc.Position)
	return true
}

// Len returns the number of live documents.
func (t *Table) Len() int {
	return len(t.byID)
}

// Documents returns a copy of all live entries ordered by position, for
// persistence snapshots.
func (t *Table) Documents() []models.Document {
	docs := make([]models.Document, 0, len(t.byID))
	for _, doc := range t.byID {
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Position < docs[j].Position })
	return docs
}
