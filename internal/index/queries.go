package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MemoryRow is a thin index-side projection used by recall_about and
// forget_by_pattern; callers join back to the hot tier for full content.
type MemoryRow struct {
	RecordID   string
	OwnerID    string
	Importance float64
	Timestamp  time.Time
}

// RecallAbout implements spec.md §4.2's recall_about fast path:
// memory_content_fts MATCH topic, joined to memories filtered by owner
// and archived=0, ordered by importance desc then timestamp desc.
func (idx *Index) RecallAbout(ctx context.Context, ownerID, topic string, limit int) ([]MemoryRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := idx.db.QueryContext(ctx, `
		SELECT m.record_id, m.owner_id, m.importance, m.timestamp
		FROM memory_content_fts f
		JOIN memories m ON m.record_id = f.record_id
		WHERE f.content MATCH ? AND m.owner_id = ? AND m.archived = 0
		ORDER BY m.importance DESC, m.timestamp DESC
		LIMIT ?
	`, topic, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("index: recall_about: %w", err)
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

// RecallAny implements the cross-owner recall path. It does not apply
// owner_id or access filtering on its own; the caller runs access
// control on each returned row.
func (idx *Index) RecallAny(ctx context.Context, topic string, limit int) ([]MemoryRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := idx.db.QueryContext(ctx, `
		SELECT m.record_id, m.owner_id, m.importance, m.timestamp
		FROM memory_content_fts f
		JOIN memories m ON m.record_id = f.record_id
		WHERE f.content MATCH ? AND m.archived = 0
		ORDER BY m.importance DESC, m.timestamp DESC
		LIMIT ?
	`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("index: recall_any: %w", err)
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

func scanMemoryRows(rows *sql.Rows) ([]MemoryRow, error) {
	var out []MemoryRow
	for rows.Next() {
		var m MemoryRow
		var ts string
		if err := rows.Scan(&m.RecordID, &m.OwnerID, &m.Importance, &ts); err != nil {
			return nil, err
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			m.Timestamp = parsed
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TouchAccess updates last_accessed/access_count for a record that was
// just returned by a read, per spec.md §8's recall invariant.
func (idx *Index) TouchAccess(ctx context.Context, recordID string, now time.Time) error {
	_, err := idx.db.ExecContext(ctx, `
		UPDATE memories SET last_accessed = ?, access_count = access_count + 1
		WHERE record_id = ?
	`, now.UTC().Format(time.RFC3339Nano), recordID)
	return err
}

// Archive sets archived=1/archived_at/archive_reason. Idempotent: a
// second call affects zero rows (spec.md §8).
func (idx *Index) Archive(ctx context.Context, recordID, reason string, now time.Time) (int64, error) {
	res, err := idx.db.ExecContext(ctx, `
		UPDATE memories SET archived=1, archived_at=?, archive_reason=?
		WHERE record_id = ? AND archived = 0
	`, now.UTC().Format(time.RFC3339Nano), reason, recordID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Fade lowers importance and marks the record forgettable so the next
// consolidation cycle picks it up, per spec.md §4.4.
func (idx *Index) Fade(ctx context.Context, recordID string, targetImportance float64) (int64, error) {
	res, err := idx.db.ExecContext(ctx, `
		UPDATE memories SET importance = ?, marked_forgettable = 1
		WHERE record_id = ?
	`, targetImportance, recordID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Forget deletes the memories and FTS rows for recordID and inserts a
// forget-log row preserving the original content. This is the only
// erasure path (spec.md §3).
func (idx *Index) Forget(ctx context.Context, ownerID, recordID, content, reason string, now time.Time) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE record_id = ?`, recordID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_content_fts WHERE record_id = ?`, recordID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memory_forget_log(record_id, owner_id, content, reason, forgot_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(record_id) DO UPDATE SET content=excluded.content, reason=excluded.reason, forgot_at=excluded.forgot_at
	`, recordID, ownerID, content, reason, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

// ForgetLogEntry is a row of memory_forget_log.
type ForgetLogEntry struct {
	RecordID string
	OwnerID  string
	Content  string
	Reason   string
}

// ForgetLogFor returns the forget-log row for a record, if any —
// used by tests asserting spec.md §8's forget invariant.
func (idx *Index) ForgetLogFor(ctx context.Context, recordID string) (*ForgetLogEntry, error) {
	var e ForgetLogEntry
	err := idx.db.QueryRowContext(ctx, `
		SELECT record_id, owner_id, content, reason FROM memory_forget_log WHERE record_id = ?
	`, recordID).Scan(&e.RecordID, &e.OwnerID, &e.Content, &e.Reason)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ForgetByPattern enumerates up to 1000 FTS matches for pattern and
// deletes each (unless dryRun), returning the candidate rows.
func (idx *Index) ForgetByPattern(ctx context.Context, ownerID, pattern string, dryRun bool, now time.Time) ([]MemoryRow, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT m.record_id, m.owner_id, m.importance, m.timestamp
		FROM memory_content_fts f
		JOIN memories m ON m.record_id = f.record_id
		WHERE f.content MATCH ? AND m.owner_id = ?
		LIMIT 1000
	`, pattern, ownerID)
	if err != nil {
		return nil, fmt.Errorf("index: forget_by_pattern: %w", err)
	}
	candidates, err := scanMemoryRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if dryRun {
		return candidates, nil
	}
	for _, c := range candidates {
		if _, _, err := idx.forgetCandidateContent(ctx, c.RecordID); err != nil {
			return candidates, err
		}
	}
	return candidates, nil
}

// forgetCandidateContent looks up content from FTS before deleting, so
// ForgetByPattern can preserve it in the forget log.
func (idx *Index) forgetCandidateContent(ctx context.Context, recordID string) (string, string, error) {
	var ownerID, content string
	err := idx.db.QueryRowContext(ctx, `
		SELECT m.owner_id, f.content FROM memories m
		JOIN memory_content_fts f ON f.record_id = m.record_id
		WHERE m.record_id = ?
	`, recordID).Scan(&ownerID, &content)
	if err != nil {
		return "", "", err
	}
	if err := idx.Forget(ctx, ownerID, recordID, content, "forget_by_pattern", time.Now()); err != nil {
		return "", "", err
	}
	return ownerID, content, nil
}
