// Package index implements the secondary index: an embedded relational
// store mirroring the hot tier for fast query/update/delete, per
// spec.md §4.2.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/katra-project/katra/internal/record"
)

// Index wraps the embedded relational store.
type Index struct {
	db *sql.DB
}

// Open opens (creating if absent) the index.db file at root/index.db,
// applying the schema and rebuilding from the hot tier if the on-disk
// schema version is stale or the file was just created.
func Open(ctx context.Context, root string, store *record.Store) (*Index, error) {
	path := root + "/index.db"
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single connection, serialized by the engine lock (spec.md §5)

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}

	idx := &Index{db: db}
	needsRebuild, err := idx.staleSchema(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if needsRebuild && store != nil {
		if err := idx.RebuildFrom(ctx, store); err != nil {
			db.Close()
			return nil, fmt.Errorf("index: rebuild: %w", err)
		}
	}
	if err := idx.setSchemaVersion(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) staleSchema(ctx context.Context) (bool, error) {
	var v string
	err := idx.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key='version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return true, nil
	}
	return n < schemaVersion, nil
}

func (idx *Index) setSchemaVersion(ctx context.Context) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO schema_meta(key, value) VALUES ('version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, strconv.Itoa(schemaVersion))
	return err
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// RebuildFrom wipes the index and repopulates it by scanning every
// hot-tier record, per spec.md §4.2's rebuild policy.
func (idx *Index) RebuildFrom(ctx context.Context, store *record.Store) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM memories`,
		`DELETE FROM memory_content_fts`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	recs, err := store.Query(record.Filter{IncludeArchived: true})
	if err != nil {
		return err
	}
	for _, r := range recs {
		if r.Archived {
			continue // index mirrors only unarchived hot-tier rows (spec.md §3)
		}
		if err := upsertTx(ctx, tx, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertTx(ctx context.Context, tx *sql.Tx, r *record.Record) error {
	var archivedAt, lastAccessed any
	if r.ArchivedAt != nil {
		archivedAt = r.ArchivedAt.UTC().Format(time.RFC3339Nano)
	}
	if r.LastAccessed != nil {
		lastAccessed = r.LastAccessed.UTC().Format(time.RFC3339Nano)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO memories (
			record_id, owner_id, timestamp, type, importance, archived,
			archived_at, archive_reason, marked_important, marked_forgettable,
			emotion_intensity, graph_centrality, last_accessed, access_count,
			isolation, team_name, pattern_id
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(record_id) DO UPDATE SET
			owner_id=excluded.owner_id, timestamp=excluded.timestamp, type=excluded.type,
			importance=excluded.importance, archived=excluded.archived,
			archived_at=excluded.archived_at, archive_reason=excluded.archive_reason,
			marked_important=excluded.marked_important, marked_forgettable=excluded.marked_forgettable,
			emotion_intensity=excluded.emotion_intensity, graph_centrality=excluded.graph_centrality,
			last_accessed=excluded.last_accessed, access_count=excluded.access_count,
			isolation=excluded.isolation, team_name=excluded.team_name, pattern_id=excluded.pattern_id
	`,
		r.RecordID, r.OwnerID, r.Timestamp.UTC().Format(time.RFC3339Nano), string(r.Type), r.Importance,
		boolToInt(r.Archived), archivedAt, r.ArchiveReason, boolToInt(r.MarkedImportant), boolToInt(r.MarkedForgettable),
		r.EmotionIntensity, r.GraphCentrality, lastAccessed, r.AccessCount,
		string(r.Isolation), r.TeamName, r.PatternID,
	)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM memory_content_fts WHERE record_id = ?`, r.RecordID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO memory_content_fts(record_id, content) VALUES (?, ?)`, r.RecordID, r.Content)
	return err
}

// Upsert mirrors a successful hot-tier store() into the index, per
// spec.md §4.2's "matching row in the same logical transaction" rule.
func (idx *Index) Upsert(ctx context.Context, r *record.Record) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := upsertTx(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
