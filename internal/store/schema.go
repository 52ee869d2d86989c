package store

// schemaVersion is the current schema for fresh installs.
const schemaVersion = 1

// schemaDDL creates the four catalog relations plus the version marker.
// Queue rows carry a monotonically increasing seq so equal-priority items
// dequeue strictly in insertion order even when created_at collides.
var schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS artifacts (
	function_id   TEXT PRIMARY KEY,
	file_path     TEXT NOT NULL,
	function_name TEXT NOT NULL,
	signature     TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL DEFAULT '',
	fingerprint   TEXT NOT NULL,
	language      TEXT NOT NULL DEFAULT '',
	start_line    INTEGER NOT NULL DEFAULT 0,
	end_line      INTEGER NOT NULL DEFAULT 0,
	parent        TEXT,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_file ON artifacts(file_path);
CREATE INDEX IF NOT EXISTS idx_artifacts_status ON artifacts(status);

CREATE TABLE IF NOT EXISTS queue (
	function_id  TEXT PRIMARY KEY REFERENCES artifacts(function_id),
	seq          INTEGER NOT NULL,
	priority     INTEGER NOT NULL DEFAULT 100,
	status       TEXT NOT NULL DEFAULT 'PENDING',
	reason       TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	last_error   TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_dispatch ON queue(status, priority, created_at, seq);

CREATE TABLE IF NOT EXISTS dependencies (
	caller_id TEXT NOT NULL,
	callee_id TEXT NOT NULL,
	UNIQUE(caller_id, callee_id)
);
CREATE INDEX IF NOT EXISTS idx_dependencies_callee ON dependencies(callee_id);

CREATE TABLE IF NOT EXISTS verdicts (
	function_id TEXT PRIMARY KEY REFERENCES artifacts(function_id),
	confidence  REAL NOT NULL,
	verified    INTEGER NOT NULL DEFAULT 0,
	payload     TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`
