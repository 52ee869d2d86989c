package store

// Artifact lifecycle statuses.
const (
	StatusPending     = "PENDING"
	StatusVerified    = "VERIFIED"
	StatusNeedsReview = "NEEDS_REVIEW"
	StatusStale       = "STALE"
	StatusBroken      = "BROKEN"
)

// Queue item statuses.
const (
	QueuePending    = "PENDING"
	QueueProcessing = "PROCESSING"
	QueueCompleted  = "COMPLETED"
	QueueFailed     = "FAILED"
)

// Queue reasons.
const (
	ReasonNew               = "NEW"
	ReasonHashMismatch      = "HASH_MISMATCH"
	ReasonDependencyChanged = "DEPENDENCY_CHANGED"
	ReasonManualRetry       = "MANUAL_RETRY"
)

// ValidArtifactStatus reports whether s is a known lifecycle status.
func ValidArtifactStatus(s string) bool {
	switch s {
	case StatusPending, StatusVerified, StatusNeedsReview, StatusStale, StatusBroken:
		return true
	}
	return false
}

// ValidQueueReason reports whether r is a known enqueue reason.
func ValidQueueReason(r string) bool {
	switch r {
	case ReasonNew, ReasonHashMismatch, ReasonDependencyChanged, ReasonManualRetry:
		return true
	}
	return false
}

// Artifact is one cataloged source function. FunctionID is
// "{relative_path}::{qualified_name}" and never changes for a live row.
type Artifact struct {
	FunctionID   string `json:"function_id"`
	FilePath     string `json:"file_path"`
	FunctionName string `json:"function_name"`
	Signature    string `json:"signature"`
	Body         string `json:"body,omitempty"`
	Fingerprint  string `json:"fingerprint"`
	Language     string `json:"language"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Parent       string `json:"parent,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// ArtifactFilter narrows ListArtifacts. Zero values mean no filter.
type ArtifactFilter struct {
	Status   string
	FilePath string // prefix match
	Language string
	Limit    int
	Offset   int
}

// QueueItem is one outstanding unit of work. At most one row exists per
// artifact (FunctionID is the key).
type QueueItem struct {
	FunctionID  string `json:"function_id"`
	Priority    int    `json:"priority"` // lower = more urgent
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Edge is a directed caller → callee dependency. Recursive calls produce
// valid self-loops.
type Edge struct {
	CallerID string `json:"caller_id"`
	CalleeID string `json:"callee_id"`
}

// Verdict is the externally supplied confidence record for an artifact.
// Payload is opaque JSON; the core never interprets it.
type Verdict struct {
	FunctionID string  `json:"function_id"`
	Confidence float64 `json:"confidence"`
	Verified   bool    `json:"verified"`
	Payload    string  `json:"payload"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// StatusCounts summarizes artifacts per lifecycle status.
type StatusCounts struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Verified    int `json:"verified"`
	NeedsReview int `json:"needs_review"`
	Stale       int `json:"stale"`
	Broken      int `json:"broken"`
}

// Actionable counts artifacts that still need attention.
func (c StatusCounts) Actionable() int {
	return c.Pending + c.Stale + c.NeedsReview + c.Broken
}

// CompletionRate is verified / total, 0 for an empty catalog.
func (c StatusCounts) CompletionRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Verified) / float64(c.Total)
}
