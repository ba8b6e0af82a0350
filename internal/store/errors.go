package store

import "errors"

var (
	// ErrEmptyDocument rejects a store whose text is blank after trimming.
	ErrEmptyDocument = errors.New("document text is empty")
	// ErrNotFound means no live document exists for the given ID.
	ErrNotFound = errors.New("document not found")
)
