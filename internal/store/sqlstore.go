package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"prism/internal/api"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string. Fixed-width
// RFC 3339 keeps lexicographic and chronological order aligned.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nilIfEmpty converts "" to nil so the column stores NULL.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Init creates the state directory (e.g. .prism), the SQLite file and the
// schema, then returns an open store. Safe to call on an existing DB.
func Init(path string) (*SqlStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return open(path)
}

// Open opens an existing SQLite DB at path. The project must have been
// initialized first; a missing state directory or DB file surfaces
// DB_NOT_INITIALIZED rather than silently creating fresh state.
func Open(path string) (*SqlStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, api.Errorf(api.CodeDBNotInitialized,
			"no catalog at %s (run 'prism init' first)", path)
	}
	return open(path)
}

func open(path string) (*SqlStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// All callers are single-process; one connection avoids SQLITE_BUSY on
	// concurrent dequeuers while keeping the CAS update semantics.
	db.SetMaxOpenConns(1)
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		if _, err := s.db.Exec(schemaDDL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return api.Errorf(api.CodeInvalidSchema,
			"catalog schema version %d, this build expects %d", version, schemaVersion)
	}
	return nil
}

// Close closes the underlying DB.
func (s *SqlStore) Close() error { return s.db.Close() }

// --- Artifacts ---

func (s *SqlStore) InsertArtifact(a *Artifact) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	now := nowUTC()
	if a.Status == "" {
		a.Status = StatusPending
	}
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := s.db.Exec(
		`INSERT INTO artifacts(function_id, file_path, function_name, signature, body,
		                       fingerprint, language, start_line, end_line, parent,
		                       status, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.FunctionID, a.FilePath, a.FunctionName, a.Signature, a.Body,
		a.Fingerprint, a.Language, a.StartLine, a.EndLine, nilIfEmpty(a.Parent),
		a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (s *SqlStore) UpdateArtifact(a *Artifact) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	a.UpdatedAt = nowUTC()
	res, err := s.db.Exec(
		`UPDATE artifacts SET file_path = ?, function_name = ?, signature = ?, body = ?,
		        fingerprint = ?, language = ?, start_line = ?, end_line = ?, parent = ?,
		        status = ?, updated_at = ?
		 WHERE function_id = ?`,
		a.FilePath, a.FunctionName, a.Signature, a.Body,
		a.Fingerprint, a.Language, a.StartLine, a.EndLine, nilIfEmpty(a.Parent),
		a.Status, a.UpdatedAt, a.FunctionID,
	)
	if err != nil {
		return fmt.Errorf("update artifact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("artifact %s not found", a.FunctionID)
	}
	return nil
}

func (s *SqlStore) UpdateArtifactStatus(functionID, status string) (bool, error) {
	if !ValidArtifactStatus(status) {
		return false, fmt.Errorf("invalid artifact status %q", status)
	}
	res, err := s.db.Exec(
		"UPDATE artifacts SET status = ?, updated_at = ? WHERE function_id = ?",
		status, nowUTC(), functionID,
	)
	if err != nil {
		return false, fmt.Errorf("update artifact status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const artifactCols = `function_id, file_path, function_name, signature, body,
	fingerprint, language, start_line, end_line, parent, status, created_at, updated_at`

func scanArtifact(row interface{ Scan(...any) error }) (*Artifact, error) {
	var a Artifact
	var parent sql.NullString
	err := row.Scan(&a.FunctionID, &a.FilePath, &a.FunctionName, &a.Signature, &a.Body,
		&a.Fingerprint, &a.Language, &a.StartLine, &a.EndLine, &parent,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Parent = nullStr(parent)
	return &a, nil
}

func (s *SqlStore) GetArtifact(functionID string) (*Artifact, error) {
	a, err := scanArtifact(s.db.QueryRow(
		"SELECT "+artifactCols+" FROM artifacts WHERE function_id = ?", functionID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}

func (s *SqlStore) ListArtifacts(f ArtifactFilter) ([]*Artifact, error) {
	query := "SELECT " + artifactCols + " FROM artifacts WHERE 1=1"
	var params []any
	if f.Status != "" {
		query += " AND status = ?"
		params = append(params, f.Status)
	}
	if f.FilePath != "" {
		query += " AND file_path LIKE ? ESCAPE '\\'"
		params = append(params, likePrefix(f.FilePath))
	}
	if f.Language != "" {
		query += " AND language = ?"
		params = append(params, f.Language)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY file_path, start_line LIMIT ? OFFSET ?"
	params = append(params, limit, f.Offset)

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	var out []*Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SqlStore) ListArtifactsByFile(filePath string) ([]*Artifact, error) {
	rows, err := s.db.Query(
		"SELECT "+artifactCols+" FROM artifacts WHERE file_path = ? ORDER BY start_line", filePath,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts by file: %w", err)
	}
	defer rows.Close()
	var out []*Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SqlStore) CountArtifacts() (StatusCounts, error) {
	var c StatusCounts
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM artifacts GROUP BY status")
	if err != nil {
		return c, fmt.Errorf("count artifacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return c, fmt.Errorf("scan count: %w", err)
		}
		c.Total += n
		switch status {
		case StatusPending:
			c.Pending = n
		case StatusVerified:
			c.Verified = n
		case StatusNeedsReview:
			c.NeedsReview = n
		case StatusStale:
			c.Stale = n
		case StatusBroken:
			c.Broken = n
		}
	}
	return c, rows.Err()
}

func (s *SqlStore) ListFilePaths(prefix string) ([]string, error) {
	query := "SELECT DISTINCT file_path FROM artifacts"
	var params []any
	if prefix != "" {
		query += ` WHERE file_path LIKE ? ESCAPE '\'`
		params = append(params, likePrefix(prefix))
	}
	query += " ORDER BY file_path"
	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("list file paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan file path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SqlStore) DeleteArtifact(functionID string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM artifacts WHERE function_id = ?", functionID)
	if err != nil {
		return false, fmt.Errorf("delete artifact: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	if _, err := tx.Exec("DELETE FROM queue WHERE function_id = ?", functionID); err != nil {
		return false, fmt.Errorf("delete queue item: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM verdicts WHERE function_id = ?", functionID); err != nil {
		return false, fmt.Errorf("delete verdict: %w", err)
	}
	if _, err := tx.Exec(
		"DELETE FROM dependencies WHERE caller_id = ? OR callee_id = ?", functionID, functionID,
	); err != nil {
		return false, fmt.Errorf("delete edges: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return true, nil
}

// likePrefix escapes LIKE metacharacters in p and appends the wildcard.
func likePrefix(p string) string {
	out := make([]byte, 0, len(p)+4)
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, p[i])
	}
	return string(out) + "%"
}

// --- Queue ---

const queueCols = `function_id, priority, status, reason, attempts, max_attempts,
	last_error, created_at, updated_at`

func scanQueueItem(row interface{ Scan(...any) error }) (*QueueItem, error) {
	var q QueueItem
	var lastErr sql.NullString
	err := row.Scan(&q.FunctionID, &q.Priority, &q.Status, &q.Reason,
		&q.Attempts, &q.MaxAttempts, &lastErr, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	q.LastError = nullStr(lastErr)
	return &q, nil
}

func (s *SqlStore) EnqueueItem(functionID string, priority int, reason string, maxAttempts int) error {
	if !ValidQueueReason(reason) {
		return fmt.Errorf("invalid queue reason %q", reason)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := nowUTC()
	// Re-enqueueing is a fresh unit of work: attempts and last_error reset.
	_, err := s.db.Exec(
		`INSERT INTO queue(function_id, seq, priority, status, reason, attempts,
		                   max_attempts, last_error, created_at, updated_at)
		 VALUES(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM queue), ?, 'PENDING', ?, 0, ?, NULL, ?, ?)
		 ON CONFLICT(function_id) DO UPDATE SET
		   priority = excluded.priority,
		   status = 'PENDING',
		   reason = excluded.reason,
		   attempts = 0,
		   max_attempts = excluded.max_attempts,
		   last_error = NULL,
		   updated_at = excluded.updated_at`,
		functionID, priority, reason, maxAttempts, now, now,
	)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func (s *SqlStore) NextQueueItem() (*QueueItem, error) {
	for {
		item, err := scanQueueItem(s.db.QueryRow(
			`SELECT ` + queueCols + ` FROM queue
			 WHERE status = 'PENDING'
			 ORDER BY priority ASC, created_at ASC, seq ASC
			 LIMIT 1`,
		))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next queue item: %w", err)
		}

		// Claim with a compare-and-set on the PENDING status; a concurrent
		// dequeuer losing the race simply retries on the next candidate.
		res, err := s.db.Exec(
			`UPDATE queue SET status = 'PROCESSING', updated_at = ?
			 WHERE function_id = ? AND status = 'PENDING'`,
			nowUTC(), item.FunctionID,
		)
		if err != nil {
			return nil, fmt.Errorf("claim queue item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			item.Status = QueueProcessing
			return item, nil
		}
	}
}

func (s *SqlStore) PeekQueue(n int, includeAll bool) ([]*QueueItem, error) {
	if n <= 0 {
		n = 10
	}
	query := `SELECT ` + queueCols + ` FROM queue`
	if !includeAll {
		query += ` WHERE status = 'PENDING'`
	}
	query += ` ORDER BY priority ASC, created_at ASC, seq ASC LIMIT ?`
	rows, err := s.db.Query(query, n)
	if err != nil {
		return nil, fmt.Errorf("peek queue: %w", err)
	}
	defer rows.Close()
	var out []*QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *SqlStore) GetQueueItem(functionID string) (*QueueItem, error) {
	item, err := scanQueueItem(s.db.QueryRow(
		"SELECT "+queueCols+" FROM queue WHERE function_id = ?", functionID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

func (s *SqlStore) CompleteQueueItem(functionID string) (bool, error) {
	res, err := s.db.Exec(
		"UPDATE queue SET status = 'COMPLETED', updated_at = ? WHERE function_id = ?",
		nowUTC(), functionID,
	)
	if err != nil {
		return false, fmt.Errorf("complete queue item: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SqlStore) FailQueueItem(functionID, errMsg string) (*QueueItem, bool, error) {
	item, err := s.GetQueueItem(functionID)
	if err != nil {
		return nil, false, err
	}
	if item == nil {
		return nil, false, nil
	}
	if item.Status != QueueProcessing {
		return nil, true, nil
	}
	item.Attempts++
	if item.Attempts < item.MaxAttempts {
		item.Status = QueuePending
	} else {
		item.Status = QueueFailed
	}
	item.LastError = errMsg
	item.UpdatedAt = nowUTC()
	// CAS on PROCESSING so a racing sweep or completion cannot be
	// overwritten between the read and the write.
	res, err := s.db.Exec(
		`UPDATE queue SET status = ?, attempts = ?, last_error = ?, updated_at = ?
		 WHERE function_id = ? AND status = 'PROCESSING'`,
		item.Status, item.Attempts, errMsg, item.UpdatedAt, functionID,
	)
	if err != nil {
		return nil, true, fmt.Errorf("fail queue item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, true, nil
	}
	return item, true, nil
}

func (s *SqlStore) ReprioritizeQueueItem(functionID string, priority int) (bool, bool, error) {
	item, err := s.GetQueueItem(functionID)
	if err != nil {
		return false, false, err
	}
	if item == nil {
		return false, false, nil
	}
	if item.Status != QueuePending {
		return false, true, nil
	}
	_, err = s.db.Exec(
		`UPDATE queue SET priority = ?, updated_at = ?
		 WHERE function_id = ? AND status = 'PENDING'`,
		priority, nowUTC(), functionID,
	)
	if err != nil {
		return false, true, fmt.Errorf("reprioritize queue item: %w", err)
	}
	return true, true, nil
}

func (s *SqlStore) RemoveQueueItem(functionID string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM queue WHERE function_id = ?", functionID)
	if err != nil {
		return false, fmt.Errorf("remove queue item: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SqlStore) RequeueStaleProcessing(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE queue SET status = 'PENDING', updated_at = ?
		 WHERE status = 'PROCESSING' AND updated_at < ?`,
		nowUTC(), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale processing: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SqlStore) CountQueue(status string) (int, error) {
	var n int
	var err error
	if status != "" {
		err = s.db.QueryRow("SELECT COUNT(*) FROM queue WHERE status = ?", status).Scan(&n)
	} else {
		err = s.db.QueryRow("SELECT COUNT(*) FROM queue").Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

// --- Dependency edges ---

func (s *SqlStore) ReplaceFileEdges(filePath string, edges []Edge) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin edge replace: %w", err)
	}
	defer tx.Rollback()

	// Caller IDs are "{path}::{name}", so every edge owned by the file
	// shares the exact "path::" prefix.
	_, err = tx.Exec(
		"DELETE FROM dependencies WHERE substr(caller_id, 1, ?) = ?",
		len(filePath)+2, filePath+"::",
	)
	if err != nil {
		return fmt.Errorf("drop file edges: %w", err)
	}
	for _, e := range edges {
		if _, err := tx.Exec(
			`INSERT INTO dependencies(caller_id, callee_id) VALUES(?, ?)
			 ON CONFLICT(caller_id, callee_id) DO NOTHING`,
			e.CallerID, e.CalleeID,
		); err != nil {
			return fmt.Errorf("insert edge %s -> %s: %w", e.CallerID, e.CalleeID, err)
		}
	}
	return tx.Commit()
}

func (s *SqlStore) Callers(functionID string) ([]string, error) {
	return s.edgeEnds("SELECT caller_id FROM dependencies WHERE callee_id = ? ORDER BY caller_id", functionID)
}

func (s *SqlStore) Callees(functionID string) ([]string, error) {
	return s.edgeEnds("SELECT callee_id FROM dependencies WHERE caller_id = ? ORDER BY callee_id", functionID)
}

func (s *SqlStore) edgeEnds(query, functionID string) ([]string, error) {
	rows, err := s.db.Query(query, functionID)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- Verdicts ---

func (s *SqlStore) SaveVerdict(v *Verdict) error {
	if v == nil {
		return errors.New("verdict is nil")
	}
	now := nowUTC()
	payload := v.Payload
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.Exec(
		`INSERT INTO verdicts(function_id, confidence, verified, payload, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(function_id) DO UPDATE SET
		   confidence = excluded.confidence,
		   verified = excluded.verified,
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`,
		v.FunctionID, v.Confidence, v.Verified, payload, now, now,
	)
	if err != nil {
		return fmt.Errorf("save verdict: %w", err)
	}
	return nil
}

func (s *SqlStore) GetVerdict(functionID string) (*Verdict, error) {
	var v Verdict
	err := s.db.QueryRow(
		`SELECT function_id, confidence, verified, payload, created_at, updated_at
		 FROM verdicts WHERE function_id = ?`, functionID,
	).Scan(&v.FunctionID, &v.Confidence, &v.Verified, &v.Payload, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verdict: %w", err)
	}
	return &v, nil
}
