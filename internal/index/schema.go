package index

// schemaVersion is bumped whenever the schema changes shape; Open()
// rebuilds the index from the hot tier when the on-disk version is
// older, per spec.md §4.2's rebuild policy.
const schemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	record_id          TEXT PRIMARY KEY,
	owner_id           TEXT NOT NULL,
	timestamp          TEXT NOT NULL,
	type               TEXT NOT NULL,
	importance         REAL NOT NULL DEFAULT 0,
	archived           INTEGER NOT NULL DEFAULT 0,
	archived_at        TEXT,
	archive_reason     TEXT,
	marked_important   INTEGER NOT NULL DEFAULT 0,
	marked_forgettable INTEGER NOT NULL DEFAULT 0,
	emotion_intensity  REAL NOT NULL DEFAULT 0,
	graph_centrality   REAL NOT NULL DEFAULT 0,
	last_accessed      TEXT,
	access_count       INTEGER NOT NULL DEFAULT 0,
	isolation          TEXT NOT NULL DEFAULT 'PRIVATE',
	team_name          TEXT,
	pattern_id         TEXT
);

CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_id, archived);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(owner_id, importance DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS memory_content_fts USING fts5(
	record_id UNINDEXED,
	content
);

CREATE TABLE IF NOT EXISTS memory_forget_log (
	record_id  TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	content    TEXT NOT NULL,
	reason     TEXT,
	forgot_at  TEXT NOT NULL
);
`
