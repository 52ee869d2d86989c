package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore implements Store with mutex-guarded maps. It backs tests
// (including the simulated concurrent-dequeue property) and throwaway runs
// where no on-disk catalog is wanted.
type MemStore struct {
	mu        sync.Mutex
	artifacts map[string]*Artifact
	queue     map[string]*memQueueItem
	edges     map[Edge]struct{}
	verdicts  map[string]*Verdict
	seq       int64
}

type memQueueItem struct {
	QueueItem
	seq int64
	// claimedAt orders the stale-processing sweep without reparsing
	// timestamps.
	claimedAt time.Time
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		artifacts: make(map[string]*Artifact),
		queue:     make(map[string]*memQueueItem),
		edges:     make(map[Edge]struct{}),
		verdicts:  make(map[string]*Verdict),
	}
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

func cloneArtifact(a *Artifact) *Artifact {
	c := *a
	return &c
}

// --- Artifacts ---

func (m *MemStore) InsertArtifact(a *Artifact) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.artifacts[a.FunctionID]; ok {
		return fmt.Errorf("insert artifact: %s already exists", a.FunctionID)
	}
	now := nowUTC()
	if a.Status == "" {
		a.Status = StatusPending
	}
	a.CreatedAt, a.UpdatedAt = now, now
	m.artifacts[a.FunctionID] = cloneArtifact(a)
	return nil
}

func (m *MemStore) UpdateArtifact(a *Artifact) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.artifacts[a.FunctionID]
	if !ok {
		return fmt.Errorf("artifact %s not found", a.FunctionID)
	}
	a.CreatedAt = old.CreatedAt
	a.UpdatedAt = nowUTC()
	m.artifacts[a.FunctionID] = cloneArtifact(a)
	return nil
}

func (m *MemStore) UpdateArtifactStatus(functionID, status string) (bool, error) {
	if !ValidArtifactStatus(status) {
		return false, fmt.Errorf("invalid artifact status %q", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[functionID]
	if !ok {
		return false, nil
	}
	a.Status = status
	a.UpdatedAt = nowUTC()
	return true, nil
}

func (m *MemStore) GetArtifact(functionID string) (*Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[functionID]
	if !ok {
		return nil, nil
	}
	return cloneArtifact(a), nil
}

func (m *MemStore) ListArtifacts(f ArtifactFilter) ([]*Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Artifact
	for _, a := range m.artifacts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.FilePath != "" && !strings.HasPrefix(a.FilePath, f.FilePath) {
			continue
		}
		if f.Language != "" && a.Language != f.Language {
			continue
		}
		out = append(out, cloneArtifact(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].StartLine < out[j].StartLine
	})
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) ListArtifactsByFile(filePath string) ([]*Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Artifact
	for _, a := range m.artifacts {
		if a.FilePath == filePath {
			out = append(out, cloneArtifact(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartLine < out[j].StartLine })
	return out, nil
}

func (m *MemStore) CountArtifacts() (StatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c StatusCounts
	for _, a := range m.artifacts {
		c.Total++
		switch a.Status {
		case StatusPending:
			c.Pending++
		case StatusVerified:
			c.Verified++
		case StatusNeedsReview:
			c.NeedsReview++
		case StatusStale:
			c.Stale++
		case StatusBroken:
			c.Broken++
		}
	}
	return c, nil
}

func (m *MemStore) ListFilePaths(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, a := range m.artifacts {
		if prefix != "" && !strings.HasPrefix(a.FilePath, prefix) {
			continue
		}
		if !seen[a.FilePath] {
			seen[a.FilePath] = true
			out = append(out, a.FilePath)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) DeleteArtifact(functionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.artifacts[functionID]; !ok {
		return false, nil
	}
	delete(m.artifacts, functionID)
	delete(m.queue, functionID)
	delete(m.verdicts, functionID)
	for e := range m.edges {
		if e.CallerID == functionID || e.CalleeID == functionID {
			delete(m.edges, e)
		}
	}
	return true, nil
}

// --- Queue ---

func (m *MemStore) EnqueueItem(functionID string, priority int, reason string, maxAttempts int) error {
	if !ValidQueueReason(reason) {
		return fmt.Errorf("invalid queue reason %q", reason)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := nowUTC()
	if item, ok := m.queue[functionID]; ok {
		item.Priority = priority
		item.Status = QueuePending
		item.Reason = reason
		item.Attempts = 0
		item.MaxAttempts = maxAttempts
		item.LastError = ""
		item.UpdatedAt = now
		return nil
	}
	m.seq++
	m.queue[functionID] = &memQueueItem{
		QueueItem: QueueItem{
			FunctionID:  functionID,
			Priority:    priority,
			Status:      QueuePending,
			Reason:      reason,
			MaxAttempts: maxAttempts,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		seq: m.seq,
	}
	return nil
}

// pendingOrder returns PENDING items sorted by priority, then insertion order.
// Caller must hold the lock.
func (m *MemStore) pendingOrder(includeAll bool) []*memQueueItem {
	var items []*memQueueItem
	for _, item := range m.queue {
		if includeAll || item.Status == QueuePending {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].seq < items[j].seq
	})
	return items
}

func (m *MemStore) NextQueueItem() (*QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.pendingOrder(false)
	if len(items) == 0 {
		return nil, nil
	}
	item := items[0]
	item.Status = QueueProcessing
	item.UpdatedAt = nowUTC()
	item.claimedAt = time.Now()
	out := item.QueueItem
	return &out, nil
}

func (m *MemStore) PeekQueue(n int, includeAll bool) ([]*QueueItem, error) {
	if n <= 0 {
		n = 10
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.pendingOrder(includeAll)
	if len(items) > n {
		items = items[:n]
	}
	out := make([]*QueueItem, 0, len(items))
	for _, item := range items {
		q := item.QueueItem
		out = append(out, &q)
	}
	return out, nil
}

func (m *MemStore) GetQueueItem(functionID string) (*QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.queue[functionID]
	if !ok {
		return nil, nil
	}
	q := item.QueueItem
	return &q, nil
}

func (m *MemStore) CompleteQueueItem(functionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.queue[functionID]
	if !ok {
		return false, nil
	}
	item.Status = QueueCompleted
	item.UpdatedAt = nowUTC()
	return true, nil
}

func (m *MemStore) FailQueueItem(functionID, errMsg string) (*QueueItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.queue[functionID]
	if !ok {
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
	q := item.QueueItem
	return &q, true, nil
}

func (m *MemStore) ReprioritizeQueueItem(functionID string, priority int) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.queue[functionID]
	if !ok {
		return false, false, nil
	}
	if item.Status != QueuePending {
		return false, true, nil
	}
	item.Priority = priority
	item.UpdatedAt = nowUTC()
	return true, true, nil
}

func (m *MemStore) RemoveQueueItem(functionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queue[functionID]; !ok {
		return false, nil
	}
	delete(m.queue, functionID)
	return true, nil
}

func (m *MemStore) RequeueStaleProcessing(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for _, item := range m.queue {
		if item.Status == QueueProcessing && item.claimedAt.Before(cutoff) {
			item.Status = QueuePending
			item.UpdatedAt = nowUTC()
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CountQueue(status string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == "" {
		return len(m.queue), nil
	}
	n := 0
	for _, item := range m.queue {
		if item.Status == status {
			n++
		}
	}
	return n, nil
}

// --- Dependency edges ---

func (m *MemStore) ReplaceFileEdges(filePath string, edges []Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := filePath + "::"
	for e := range m.edges {
		if strings.HasPrefix(e.CallerID, prefix) {
			delete(m.edges, e)
		}
	}
	for _, e := range edges {
		m.edges[e] = struct{}{}
	}
	return nil
}

func (m *MemStore) Callers(functionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for e := range m.edges {
		if e.CalleeID == functionID {
			out = append(out, e.CallerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) Callees(functionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for e := range m.edges {
		if e.CallerID == functionID {
			out = append(out, e.CalleeID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- Verdicts ---

func (m *MemStore) SaveVerdict(v *Verdict) error {
	if v == nil {
		return errors.New("verdict is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := nowUTC()
	payload := v.Payload
	if payload == "" {
		payload = "{}"
	}
	if old, ok := m.verdicts[v.FunctionID]; ok {
		v.CreatedAt = old.CreatedAt
	} else {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	stored := *v
	stored.Payload = payload
	m.verdicts[v.FunctionID] = &stored
	return nil
}

func (m *MemStore) GetVerdict(functionID string) (*Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verdicts[functionID]
	if !ok {
		return nil, nil
	}
	out := *v
	return &out, nil
}
