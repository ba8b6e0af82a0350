// Package storage persists the vector index and document metadata across restarts.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
)

// Manager owns the on-disk artifacts: a binary blob for the vector index and a
// SQLite database holding the document metadata plus a save checkpoint. No other
// component touches these files.
//
// Save order is blob first, metadata transaction second. The index is append-only
// and positions never move, so a crash between the two steps leaves a blob that is
// a superset of what the metadata references: older metadata against a newer blob
// is still consistent, the extra vectors are just tombstones. Load rejects the
// opposite (metadata referencing positions past the end of the blob) as corrupt.
type Manager struct {
	db        *sql.DB
	indexPath string
	logger    *zap.Logger
}

// NewManager opens or creates the metadata database at dbPath and prepares the
// manager. Parent directories for both artifacts are created if needed.
func NewManager(dbPath, indexPath string, logger *zap.Logger) (*Manager, error) {
	for _, p := range []string{dbPath, indexPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create storage directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Manager{db: db, indexPath: indexPath, logger: logger}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		doc_id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		position INTEGER NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS checkpoint (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		vector_count INTEGER NOT NULL,
		saved_at TIMESTAMP NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Load reads the persisted index and metadata. Missing or unparseable artifacts,
// and any inconsistency between the two, fall back to an empty store: the loss is
// logged, never returned as an error, so a damaged cache cannot block startup.
func (m *Manager) Load(ctx context.Context, dimensions int) (*vector.Index, []models.Document, error) {
	empty, err := vector.New(dimensions)
	if err != nil {
		return nil, nil, err
	}

	docs, checkpointCount, err := m.loadMetadata(ctx)
	if err != nil {
		m.logger.Warn("metadata load failed, starting with an empty store",
			zap.Error(err))
		return empty, nil, nil
	}

	ix, err := m.loadIndex(dimensions)
	if err != nil {
		m.logger.Warn("index load failed, starting with an empty store",
			zap.String("path", m.indexPath), zap.Error(err))
		return empty, nil, nil
	}
	if ix == nil {
		// No blob on disk yet.
		if len(docs) > 0 {
			m.logger.Warn("index file missing but metadata present, discarding metadata",
				zap.Int("documents", len(docs)))
		}
		return empty, nil, nil
	}

	if err := validate(ix, docs, checkpointCount); err != nil {
		m.logger.Warn("persisted state inconsistent, starting with an empty store",
			zap.Error(err))
		return empty, nil, nil
	}

	m.logger.Info("persisted state loaded",
		zap.Int("documents", len(docs)), zap.Int("vectors", ix.Size()))
	return ix, docs, nil
}

func (m *Manager) loadMetadata(ctx context.Context) ([]models.Document, int, error) {
	var checkpointCount int
	var savedAt time.Time
	err := m.db.QueryRowContext(ctx,
		`SELECT vector_count, saved_at FROM checkpoint WHERE id = 1`,
	).Scan(&checkpointCount, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Never saved.
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read checkpoint: %w", err)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT doc_id, text, timestamp, position FROM documents ORDER BY position`)
	if err != nil {
		return nil, 0, fmt.Errorf("read documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Text, &doc.Timestamp, &doc.Position); err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read documents: %w", err)
	}
	return docs, checkpointCount, nil
}

// loadIndex returns (nil, nil) when no blob exists yet.
func (m *Manager) loadIndex(dimensions int) (*vector.Index, error) {
	f, err := os.Open(m.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	ix, err := vector.Decode(f, dimensions)
	if err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return ix, nil
}

func validate(ix *vector.Index, docs []models.Document, checkpointCount int) error {
	if checkpointCount > ix.Size() {
		return fmt.Errorf("checkpoint records %d vectors but index has %d", checkpointCount, ix.Size())
	}
	seen := make(map[int]string, len(docs))
	for _, doc := range docs {
		if doc.Position < 0 || doc.Position >= ix.Size() {
			return fmt.Errorf("document %s references position %d outside index of %d", doc.ID, doc.Position, ix.Size())
		}
		if other, dup := seen[doc.Position]; dup {
			return fmt.Errorf("documents %s and %s share position %d", other, doc.ID, doc.Position)
		}
		seen[doc.Position] = doc.ID
	}
	return nil
}

// Save writes the index snapshot and the metadata snapshot. The blob goes to a
// temp file and is renamed into place; the metadata replaces the previous rows
// and the checkpoint in a single transaction.
func (m *Manager) Save(ctx context.Context, snap *vector.Snapshot, docs []models.Document) error {
	if err := m.writeIndex(snap); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metadata transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (doc_id, text, timestamp, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Text, doc.Timestamp, doc.Position); err != nil {
			return fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoint (id, vector_count, saved_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET vector_count = excluded.vector_count, saved_at = excluded.saved_at`,
		snap.Count(), time.Now(),
	); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metadata: %w", err)
	}
	return nil
}

func (m *Manager) writeIndex(snap *vector.Snapshot) error {
	tmp := m.indexPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	if err := snap.Encode(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode index: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync index file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, m.indexPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

// LastSaved returns the time of the most recent successful save, or false if the
// store has never been saved.
func (m *Manager) LastSaved(ctx context.Context) (time.Time, bool) {
	var savedAt time.Time
	err := m.db.QueryRowContext(ctx, `SELECT saved_at FROM checkpoint WHERE id = 1`).Scan(&savedAt)
	if err != nil {
		return time.Time{}, false
	}
	return savedAt, true
}

// Close closes the metadata database.
func (m *Manager) Close() error {
	return m.db.Close()
}
