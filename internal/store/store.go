package store

import "time"

// DefaultDBPath is the default relative path for the SQLite DB
// (per-project). Resolve against the project root; Init() creates the
// parent dir (.prism), Open() requires it to exist.
const DefaultDBPath = ".prism/prism.db"

// DefaultMaxAttempts bounds queue retries unless the caller overrides it.
const DefaultMaxAttempts = 3

// Store is the persistence facade for the catalog: artifacts, the processing
// queue, dependency edges and verdicts. The catalog engine and the command
// surface use only this interface; the implementation is SQLite or in-memory.
//
// Lookup methods return (nil, nil) for missing rows; callers translate to
// coded errors at the boundary.
type Store interface {
	// Artifacts
	InsertArtifact(a *Artifact) error
	UpdateArtifact(a *Artifact) error
	UpdateArtifactStatus(functionID, status string) (bool, error)
	GetArtifact(functionID string) (*Artifact, error)
	ListArtifacts(f ArtifactFilter) ([]*Artifact, error)
	ListArtifactsByFile(filePath string) ([]*Artifact, error)
	CountArtifacts() (StatusCounts, error)
	// ListFilePaths returns the distinct file paths of stored artifacts,
	// optionally restricted to those starting with prefix.
	ListFilePaths(prefix string) ([]string, error)
	// DeleteArtifact removes the artifact row and cascades to its queue
	// item, verdict, and every edge where it is caller or callee, in one
	// transaction.
	DeleteArtifact(functionID string) (bool, error)

	// Queue. EnqueueItem upserts by artifact: an existing row is reset to
	// PENDING with the new priority and reason, never duplicated.
	EnqueueItem(functionID string, priority int, reason string, maxAttempts int) error
	// NextQueueItem atomically claims the lowest-priority (ties: oldest)
	// PENDING item, marking it PROCESSING. Returns (nil, nil) when no
	// PENDING item exists. Two concurrent callers never claim the same item.
	NextQueueItem() (*QueueItem, error)
	PeekQueue(n int, includeAll bool) ([]*QueueItem, error)
	GetQueueItem(functionID string) (*QueueItem, error)
	CompleteQueueItem(functionID string) (bool, error)
	// FailQueueItem increments attempts on a PROCESSING item; below
	// MaxAttempts the item reverts to PENDING, otherwise it is terminally
	// FAILED. Attempts never exceed MaxAttempts: an item in any other state
	// (never claimed, already COMPLETED or FAILED) is left untouched and
	// reported as (nil, true, nil).
	FailQueueItem(functionID, errMsg string) (item *QueueItem, found bool, err error)
	// ReprioritizeQueueItem mutates priority of a PENDING item only;
	// reports ok=false when the item exists but is not PENDING.
	ReprioritizeQueueItem(functionID string, priority int) (ok bool, found bool, err error)
	RemoveQueueItem(functionID string) (bool, error)
	// RequeueStaleProcessing reverts PROCESSING items not updated for
	// olderThan back to PENDING. Idempotent; returns the number reverted.
	RequeueStaleProcessing(olderThan time.Duration) (int, error)
	CountQueue(status string) (int, error)

	// Dependency edges. ReplaceFileEdges atomically swaps all edges whose
	// caller belongs to filePath with the supplied set.
	ReplaceFileEdges(filePath string, edges []Edge) error
	Callers(functionID string) ([]string, error)
	Callees(functionID string) ([]string, error)

	// Verdicts
	SaveVerdict(v *Verdict) error
	GetVerdict(functionID string) (*Verdict, error)

	Close() error
}
