// Package models defines core data structures for documents, retrieval, and chat.
package models

import "time"

// Document is a stored document with its index bookkeeping. Position is the
// append-order slot of the document's vector in the index; it is assigned once
// and never reused, so re-storing a document gets a new position and leaves the
// old vector behind as a tombstone.
type Document struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Position  int       `json:"position"`
}

// StoreRequest is the input for storing a document. ID may be empty, in which
// case the server generates one.
type StoreRequest struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// StoreResponse is returned after a successful store.
type StoreResponse struct {
	Status    string    `json:"status"`
	StoredID  string    `json:"stored_id"`
	Position  int       `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

// RetrieveRequest is the input for a retrieval query.
type RetrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// RetrievedDocument is a single retrieval hit. Score is the raw inner product of
// the normalized query and document vectors; higher is more relevant.
type RetrievedDocument struct {
	ID        string    `json:"doc_id"`
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// RetrieveResult is a retrieval hit as exposed over the API, with the document
// text truncated to an excerpt.
type RetrieveResult struct {
	ID        string    `json:"doc_id"`
	Excerpt   string    `json:"text_excerpt"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// RetrieveResponse is the response for a retrieval request.
type RetrieveResponse struct {
	Results []RetrieveResult `json:"results"`
}
