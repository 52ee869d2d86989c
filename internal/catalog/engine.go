// Package catalog drives the artifact lifecycle: it classifies scan results
// against the store, applies status transitions, schedules queue work and
// consumes external verdicts. All state lives in the store; the engine only
// sequences its atomic operations.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"prism/internal/api"
	"prism/internal/config"
	"prism/internal/graph"
	"prism/internal/hasher"
	"prism/internal/logging"
	"prism/internal/scanner"
	"prism/internal/store"
)

// Engine applies lifecycle policy on top of a Store.
type Engine struct {
	st    store.Store
	cfg   config.Config
	graph *graph.Service
	log   *slog.Logger
}

func New(st store.Store, cfg config.Config) *Engine {
	return &Engine{
		st:    st,
		cfg:   cfg,
		graph: graph.New(st),
		log:   logging.New("catalog"),
	}
}

// Graph exposes the neighborhood query service sharing the engine's store
// and cache invalidation.
func (e *Engine) Graph() *graph.Service { return e.graph }

// ScanReport summarizes one scan: classification counts plus the parse
// errors that were isolated along the way.
type ScanReport struct {
	Path         string               `json:"path"`
	FilesScanned int                  `json:"files_scanned"`
	FilesSkipped int                  `json:"files_skipped"`
	New          int                  `json:"new"`
	Changed      int                  `json:"changed"`
	Unchanged    int                  `json:"unchanged"`
	Deleted      int                  `json:"deleted"`
	Invalidated  int                  `json:"invalidated,omitempty"`
	ParseErrors  []scanner.ParseError `json:"parse_errors,omitempty"`
}

// ScanPath scans a file or directory, classifies every extracted function,
// updates artifact statuses, enqueues work and replaces dependency edges per
// file. Paths are recorded relative to the project root (the working
// directory holding .prism), so file and directory scans mint the same IDs
// however the target was spelled. Re-running an identical scan is a no-op
// apart from UNCHANGED counts.
func (e *Engine) ScanPath(target string) (*ScanReport, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, api.Errorf(api.CodePathNotFound, "cannot scan %s: %v", target, err)
	}
	base, err := rootRelative(target)
	if err != nil {
		return nil, err
	}

	sc := scanner.New(e.cfg.IgnorePatterns...)
	var files []scanner.FileResult
	report := &ScanReport{Path: base}

	if info.IsDir() {
		res, err := sc.ScanDir(target)
		if err != nil {
			return nil, err
		}
		files = res.Files
		if base != "." {
			for i := range files {
				files[i].Path = path.Join(base, files[i].Path)
				for j := range files[i].Errors {
					files[i].Errors[j].File = files[i].Path
				}
			}
		}
		report.FilesScanned = res.FilesScanned
		report.FilesSkipped = res.FilesSkipped
	} else {
		fr, err := sc.ScanFile(target, base)
		if err != nil {
			return nil, err
		}
		if fr == nil {
			return nil, api.Errorf(api.CodeParseError, "unsupported file type: %s", target)
		}
		files = []scanner.FileResult{*fr}
		report.FilesScanned = 1
	}

	// Resolver over the whole scan set so cross-file calls resolve when the
	// callee name is unique project-wide.
	resolver := scanner.NewResolver()
	for _, f := range files {
		for _, fn := range f.Functions {
			resolver.Add(f.Path, fn.Name, hasher.FunctionID(f.Path, fn.QualifiedName))
		}
	}

	var changedIDs []string
	for _, f := range files {
		report.ParseErrors = append(report.ParseErrors, f.Errors...)

		ids, err := e.applyFile(f, resolver, report)
		if err != nil {
			return nil, err
		}
		changedIDs = append(changedIDs, ids...)
	}

	// A directory scan also reconciles files that vanished entirely: stored
	// paths under the scan root absent from the walk get the same delete
	// cascade as functions removed from a surviving file.
	if info.IsDir() {
		n, err := e.reconcileDeletedFiles(base, files)
		if err != nil {
			return nil, err
		}
		report.Deleted += n
	}

	if e.cfg.InvalidateCallers && len(changedIDs) > 0 {
		n, err := e.invalidateCallers(changedIDs)
		if err != nil {
			return nil, err
		}
		report.Invalidated = n
	}

	e.graph.Purge()
	e.log.Info("scan complete", "path", report.Path,
		"new", report.New, "changed", report.Changed,
		"unchanged", report.Unchanged, "deleted", report.Deleted)
	return report, nil
}

// rootRelative resolves a scan target against the working directory, which
// is the project root where .prism lives. Targets outside the root keep a
// deterministic ../-prefixed form.
func rootRelative(target string) (string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", target, err)
	}
	root, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	// Symlinked temp or home dirs would otherwise skew the Rel computation.
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		abs = r
	}
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		// Different volume; the absolute path is the only stable name.
		return filepath.ToSlash(abs), nil
	}
	return filepath.ToSlash(rel), nil
}

// reconcileDeletedFiles removes every artifact stored under the scan root
// whose file the walk no longer found. Unreadable files still appear in the
// walk result and are not touched.
func (e *Engine) reconcileDeletedFiles(base string, files []scanner.FileResult) (int, error) {
	walked := make(map[string]bool, len(files))
	for _, f := range files {
		walked[f.Path] = true
	}
	prefix := ""
	if base != "." {
		prefix = base + "/"
	}
	stored, err := e.st.ListFilePaths(prefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, fp := range stored {
		if walked[fp] {
			continue
		}
		arts, err := e.st.ListArtifactsByFile(fp)
		if err != nil {
			return deleted, err
		}
		for _, a := range arts {
			if _, err := e.st.DeleteArtifact(a.FunctionID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

// applyFile classifies one file's functions, persists the resulting
// transitions and replaces the file's outgoing edges. Returns the IDs whose
// fingerprint changed.
func (e *Engine) applyFile(f scanner.FileResult, resolver *scanner.Resolver, report *ScanReport) ([]string, error) {
	stored, err := e.st.ListArtifactsByFile(f.Path)
	if err != nil {
		return nil, err
	}
	prior := make(map[string]*store.Artifact, len(stored))
	for _, a := range stored {
		prior[a.FunctionID] = a
	}

	var changed []string
	seen := make(map[string]bool, len(f.Functions))
	var edges []store.Edge

	for _, fn := range f.Functions {
		id := hasher.FunctionID(f.Path, fn.QualifiedName)
		if seen[id] {
			// Overloads or duplicated names collapse to one artifact; the
			// first extraction wins for this scan.
			continue
		}
		seen[id] = true

		fp := hasher.Fingerprint(fn.Body, f.Language)
		switch Classify(prior[id], fp) {
		case ChangeNew:
			report.New++
			err = e.st.InsertArtifact(&store.Artifact{
				FunctionID:   id,
				FilePath:     f.Path,
				FunctionName: fn.QualifiedName,
				Signature:    fn.Signature,
				Body:         fn.Body,
				Fingerprint:  fp,
				Language:     f.Language,
				StartLine:    fn.StartLine,
				EndLine:      fn.EndLine,
				Parent:       fn.Parent,
				Status:       store.StatusPending,
			})
			if err != nil {
				return nil, err
			}
			err = e.st.EnqueueItem(id, e.cfg.DefaultPriority, store.ReasonNew, e.cfg.MaxAttempts)
			if err != nil {
				return nil, err
			}

		case ChangeChanged:
			report.Changed++
			changed = append(changed, id)
			if err := e.applyChanged(prior[id], fn, fp); err != nil {
				return nil, err
			}

		case ChangeUnchanged:
			report.Unchanged++
		}

		for _, callee := range scanner.CalleeNames(fn.Body) {
			if calleeID, ok := resolver.Resolve(f.Path, callee); ok {
				edges = append(edges, store.Edge{CallerID: id, CalleeID: calleeID})
			}
		}
	}

	// Anything stored for this file but absent from the extraction set was
	// deleted from source. Deterministic order keeps logs and tests stable.
	var gone []string
	for id := range prior {
		if !seen[id] {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		if _, err := e.st.DeleteArtifact(id); err != nil {
			return nil, err
		}
		report.Deleted++
	}

	if err := e.st.ReplaceFileEdges(f.Path, edges); err != nil {
		return nil, err
	}
	return changed, nil
}

// applyChanged persists the new content of a changed artifact and decides
// its status: a prior VERIFIED/NEEDS_REVIEW verdict is no longer
// trustworthy, so those go STALE; BROKEN stays BROKEN until a manual retry;
// PENDING and STALE keep their status. Every change except BROKEN re-enters
// the queue.
func (e *Engine) applyChanged(prev *store.Artifact, fn scanner.Function, fingerprint string) error {
	status := prev.Status
	switch prev.Status {
	case store.StatusVerified, store.StatusNeedsReview:
		status = store.StatusStale
	}

	next := *prev
	next.Signature = fn.Signature
	next.Body = fn.Body
	next.Fingerprint = fingerprint
	next.StartLine = fn.StartLine
	next.EndLine = fn.EndLine
	next.Parent = fn.Parent
	next.Status = status
	if err := e.st.UpdateArtifact(&next); err != nil {
		return err
	}

	if status == store.StatusBroken {
		return nil
	}
	return e.st.EnqueueItem(prev.FunctionID, e.cfg.DefaultPriority,
		store.ReasonHashMismatch, e.cfg.MaxAttempts)
}

// invalidateCallers marks the direct VERIFIED/NEEDS_REVIEW callers of
// changed artifacts STALE and enqueues them. Artifacts already changed this
// scan are skipped; their own transition wins.
func (e *Engine) invalidateCallers(changedIDs []string) (int, error) {
	changed := make(map[string]bool, len(changedIDs))
	for _, id := range changedIDs {
		changed[id] = true
	}

	invalidated := 0
	done := map[string]bool{}
	for _, id := range changedIDs {
		callers, err := e.st.Callers(id)
		if err != nil {
			return invalidated, err
		}
		for _, caller := range callers {
			if changed[caller] || done[caller] {
				continue
			}
			done[caller] = true

			a, err := e.st.GetArtifact(caller)
			if err != nil {
				return invalidated, err
			}
			if a == nil || (a.Status != store.StatusVerified && a.Status != store.StatusNeedsReview) {
				continue
			}
			if _, err := e.st.UpdateArtifactStatus(caller, store.StatusStale); err != nil {
				return invalidated, err
			}
			err = e.st.EnqueueItem(caller, e.cfg.DefaultPriority,
				store.ReasonDependencyChanged, e.cfg.MaxAttempts)
			if err != nil {
				return invalidated, err
			}
			invalidated++
		}
	}
	return invalidated, nil
}

// VerdictOutcome reports the transition a saved verdict caused.
type VerdictOutcome struct {
	FunctionID  string  `json:"function_id"`
	Confidence  float64 `json:"confidence"`
	Verified    bool    `json:"verified"`
	Status      string  `json:"status"`
	QueueClosed bool    `json:"queue_closed"`
}

// SaveVerdict records an external confidence verdict for an artifact and
// applies the resulting transition: confidence at or above the threshold
// yields VERIFIED, below it NEEDS_REVIEW. The open queue item, if any, is
// closed COMPLETED. The payload must be a JSON object; it is stored opaquely
// and never interpreted.
//
// A verdict landing after a rescan marked the artifact STALE still applies
// and closes the re-enqueued item. Re-verification of the newer body goes
// through Retry.
func (e *Engine) SaveVerdict(functionID string, confidence float64, payload string) (*VerdictOutcome, error) {
	if confidence < 0 || confidence > 1 {
		return nil, api.Errorf(api.CodeInvalidSchema,
			"confidence must be in [0,1], got %v", confidence)
	}
	if payload == "" {
		payload = "{}"
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, api.Errorf(api.CodeInvalidSchema, "payload must be a JSON object: %v", err)
	}

	a, err := e.st.GetArtifact(functionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, api.Errorf(api.CodeFunctionNotFound, "no artifact %q", functionID)
	}

	verified := confidence >= e.cfg.ConfidenceThreshold
	status := store.StatusNeedsReview
	if verified {
		status = store.StatusVerified
	}

	err = e.st.SaveVerdict(&store.Verdict{
		FunctionID: functionID,
		Confidence: confidence,
		Verified:   verified,
		Payload:    payload,
	})
	if err != nil {
		return nil, err
	}
	if _, err := e.st.UpdateArtifactStatus(functionID, status); err != nil {
		return nil, err
	}
	closed, err := e.st.CompleteQueueItem(functionID)
	if err != nil {
		return nil, err
	}

	e.graph.Purge()
	e.log.Info("verdict saved", "function_id", functionID,
		"confidence", confidence, "status", status)
	return &VerdictOutcome{
		FunctionID:  functionID,
		Confidence:  confidence,
		Verified:    verified,
		Status:      status,
		QueueClosed: closed,
	}, nil
}

// FailVerification marks an artifact BROKEN after its verdict was found
// invalid downstream. Only artifacts holding a verdict (VERIFIED,
// NEEDS_REVIEW, or STALE) can break; no queue item is created — recovery
// requires an explicit Retry.
func (e *Engine) FailVerification(functionID string) (*store.Artifact, error) {
	a, err := e.st.GetArtifact(functionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, api.Errorf(api.CodeFunctionNotFound, "no artifact %q", functionID)
	}
	switch a.Status {
	case store.StatusBroken:
		return a, nil // already broken, idempotent
	case store.StatusVerified, store.StatusNeedsReview, store.StatusStale:
	default:
		return nil, api.Errorf(api.CodePreconditionFailed,
			"artifact %q is %s and has no verdict to invalidate", functionID, a.Status)
	}

	if _, err := e.st.UpdateArtifactStatus(functionID, store.StatusBroken); err != nil {
		return nil, err
	}
	a.Status = store.StatusBroken
	e.graph.Purge()
	e.log.Warn("verification failed", "function_id", functionID)
	return a, nil
}

// Retry manually re-enqueues an artifact with reason MANUAL_RETRY,
// resetting its attempt counter. A BROKEN artifact re-enters PENDING.
// priority <= 0 selects the configured default.
func (e *Engine) Retry(functionID string, priority int) (*store.QueueItem, error) {
	a, err := e.st.GetArtifact(functionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, api.Errorf(api.CodeFunctionNotFound, "no artifact %q", functionID)
	}
	if priority <= 0 {
		priority = e.cfg.DefaultPriority
	}

	err = e.st.EnqueueItem(functionID, priority, store.ReasonManualRetry, e.cfg.MaxAttempts)
	if err != nil {
		return nil, err
	}
	if a.Status == store.StatusBroken {
		if _, err := e.st.UpdateArtifactStatus(functionID, store.StatusPending); err != nil {
			return nil, err
		}
		e.graph.Purge()
	}
	return e.st.GetQueueItem(functionID)
}

// Next claims the most urgent PENDING queue item, or fails with QUEUE_EMPTY.
func (e *Engine) Next() (*store.QueueItem, error) {
	item, err := e.st.NextQueueItem()
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, api.Errorf(api.CodeQueueEmpty, "no pending queue items")
	}
	return item, nil
}

// FailItem reports a transient processing failure against a claimed queue
// item. Only PROCESSING items can fail; anything else (never claimed,
// COMPLETED, terminally FAILED) is a precondition error, so attempts stay
// within max_attempts and closed work is never resurrected.
func (e *Engine) FailItem(functionID, errMsg string) (*store.QueueItem, error) {
	item, found, err := e.st.FailQueueItem(functionID, errMsg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, api.Errorf(api.CodeFunctionNotFound, "no queue item for %q", functionID)
	}
	if item == nil {
		return nil, api.Errorf(api.CodePreconditionFailed,
			"queue item %q is not PROCESSING", functionID)
	}
	return item, nil
}

// Reprioritize changes the priority of a PENDING queue item.
func (e *Engine) Reprioritize(functionID string, priority int) error {
	ok, found, err := e.st.ReprioritizeQueueItem(functionID, priority)
	if err != nil {
		return err
	}
	if !found {
		return api.Errorf(api.CodeFunctionNotFound, "no queue item for %q", functionID)
	}
	if !ok {
		return api.Errorf(api.CodePreconditionFailed,
			"queue item %q is not PENDING", functionID)
	}
	return nil
}

// RequeueStale reverts PROCESSING items untouched for longer than olderThan
// back to PENDING. Idempotent; returns the number reverted.
func (e *Engine) RequeueStale(olderThan time.Duration) (int, error) {
	n, err := e.st.RequeueStaleProcessing(olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.Info("requeued stale processing items", "count", n)
	}
	return n, nil
}

// QueueCounts summarizes queue items per status.
type QueueCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Summary is the catalog health snapshot behind `prism status`.
type Summary struct {
	Artifacts      store.StatusCounts `json:"artifacts"`
	Queue          QueueCounts        `json:"queue"`
	Actionable     int                `json:"actionable"`
	CompletionRate float64            `json:"completion_rate"`
}

func (e *Engine) Summary() (*Summary, error) {
	counts, err := e.st.CountArtifacts()
	if err != nil {
		return nil, err
	}
	s := &Summary{
		Artifacts:      counts,
		Actionable:     counts.Actionable(),
		CompletionRate: counts.CompletionRate(),
	}
	for status, dst := range map[string]*int{
		store.QueuePending:    &s.Queue.Pending,
		store.QueueProcessing: &s.Queue.Processing,
		store.QueueCompleted:  &s.Queue.Completed,
		store.QueueFailed:     &s.Queue.Failed,
	} {
		n, err := e.st.CountQueue(status)
		if err != nil {
			return nil, err
		}
		*dst = n
	}
	return s, nil
}
