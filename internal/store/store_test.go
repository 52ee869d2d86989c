package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// openStores returns both implementations so every behavior is asserted
// against SQLite and the in-memory store alike.
func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlStore, err := Init(filepath.Join(t.TempDir(), "prism.db"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { sqlStore.Close() })
	return map[string]Store{
		"sqlite": sqlStore,
		"memory": NewMemStore(),
	}
}

func mkArtifact(id, file, name string) *Artifact {
	return &Artifact{
		FunctionID:   id,
		FilePath:     file,
		FunctionName: name,
		Signature:    "def " + name + "(x)",
		Body:         "return x",
		Fingerprint:  "fp-" + id,
		Language:     "python",
		StartLine:    1,
		EndLine:      2,
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			a := mkArtifact("a.py::f", "a.py", "f")
			if err := s.InsertArtifact(a); err != nil {
				t.Fatalf("InsertArtifact: %v", err)
			}

			got, err := s.GetArtifact("a.py::f")
			if err != nil || got == nil {
				t.Fatalf("GetArtifact: %+v, %v", got, err)
			}
			if got.Status != StatusPending {
				t.Errorf("default status = %q, want PENDING", got.Status)
			}
			ignoreTimes := cmpopts.IgnoreFields(Artifact{}, "CreatedAt", "UpdatedAt", "Status")
			if diff := cmp.Diff(a, got, ignoreTimes); diff != "" {
				t.Errorf("artifact mismatch (-want +got):\n%s", diff)
			}

			got.Fingerprint = "fp-2"
			got.Status = StatusStale
			if err := s.UpdateArtifact(got); err != nil {
				t.Fatalf("UpdateArtifact: %v", err)
			}
			again, _ := s.GetArtifact("a.py::f")
			if again.Fingerprint != "fp-2" || again.Status != StatusStale {
				t.Errorf("update not applied: %+v", again)
			}

			missing, err := s.GetArtifact("a.py::nope")
			if err != nil || missing != nil {
				t.Errorf("missing artifact: %+v, %v", missing, err)
			}
		})
	}
}

func TestUpdateArtifactStatus(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("a.py::f", "a.py", "f"))
			ok, err := s.UpdateArtifactStatus("a.py::f", StatusVerified)
			if err != nil || !ok {
				t.Fatalf("UpdateArtifactStatus: %v %v", ok, err)
			}
			ok, err = s.UpdateArtifactStatus("a.py::missing", StatusVerified)
			if err != nil || ok {
				t.Errorf("missing artifact updated: %v %v", ok, err)
			}
			if _, err := s.UpdateArtifactStatus("a.py::f", "SHINY"); err == nil {
				t.Error("invalid status accepted")
			}
		})
	}
}

func TestListArtifactsFilters(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("src/a.py::f", "src/a.py", "f"))
			_ = s.InsertArtifact(mkArtifact("src/a.py::g", "src/a.py", "g"))
			b := mkArtifact("lib/b.py::h", "lib/b.py", "h")
			b.Status = StatusVerified
			_ = s.InsertArtifact(b)

			byFile, _ := s.ListArtifacts(ArtifactFilter{FilePath: "src/"})
			if len(byFile) != 2 {
				t.Errorf("file filter: got %d, want 2", len(byFile))
			}
			byStatus, _ := s.ListArtifacts(ArtifactFilter{Status: StatusVerified})
			if len(byStatus) != 1 || byStatus[0].FunctionID != "lib/b.py::h" {
				t.Errorf("status filter: %+v", byStatus)
			}

			counts, _ := s.CountArtifacts()
			want := StatusCounts{Total: 3, Pending: 2, Verified: 1}
			if diff := cmp.Diff(want, counts); diff != "" {
				t.Errorf("counts (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeleteArtifactCascades(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("a.py::f", "a.py", "f"))
			_ = s.InsertArtifact(mkArtifact("a.py::g", "a.py", "g"))
			_ = s.EnqueueItem("a.py::g", 100, ReasonNew, 3)
			_ = s.SaveVerdict(&Verdict{FunctionID: "a.py::g", Confidence: 0.9, Verified: true})
			_ = s.ReplaceFileEdges("a.py", []Edge{
				{CallerID: "a.py::f", CalleeID: "a.py::g"},
				{CallerID: "a.py::g", CalleeID: "a.py::f"},
			})

			ok, err := s.DeleteArtifact("a.py::g")
			if err != nil || !ok {
				t.Fatalf("DeleteArtifact: %v %v", ok, err)
			}

			if a, _ := s.GetArtifact("a.py::g"); a != nil {
				t.Error("artifact row survived delete")
			}
			if q, _ := s.GetQueueItem("a.py::g"); q != nil {
				t.Error("queue item survived delete")
			}
			if v, _ := s.GetVerdict("a.py::g"); v != nil {
				t.Error("verdict survived delete")
			}
			if callers, _ := s.Callers("a.py::f"); len(callers) != 0 {
				t.Errorf("inbound edges survived delete: %v", callers)
			}
			if callees, _ := s.Callees("a.py::f"); len(callees) != 0 {
				t.Errorf("outbound edges survived delete: %v", callees)
			}

			ok, err = s.DeleteArtifact("a.py::g")
			if err != nil || ok {
				t.Errorf("second delete: %v %v", ok, err)
			}
		})
	}
}

func TestQueueOrderingAndTieBreak(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"a.py::one", "a.py::two", "a.py::three"} {
				_ = s.InsertArtifact(mkArtifact(id, "a.py", fmt.Sprintf("fn%d", i)))
			}
			// Equal priority: dequeue order must follow insertion order so a
			// flood of same-priority work cannot starve older items.
			_ = s.EnqueueItem("a.py::one", 50, ReasonNew, 3)
			_ = s.EnqueueItem("a.py::two", 50, ReasonNew, 3)
			_ = s.EnqueueItem("a.py::three", 10, ReasonHashMismatch, 3)

			var got []string
			for {
				item, err := s.NextQueueItem()
				if err != nil {
					t.Fatalf("NextQueueItem: %v", err)
				}
				if item == nil {
					break
				}
				if item.Status != QueueProcessing {
					t.Errorf("claimed item status = %q", item.Status)
				}
				got = append(got, item.FunctionID)
			}
			want := []string{"a.py::three", "a.py::one", "a.py::two"}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("dequeue order (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnqueueUpsertsInPlace(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("a.py::f", "a.py", "f"))
			_ = s.EnqueueItem("a.py::f", 100, ReasonNew, 3)
			_ = s.EnqueueItem("a.py::f", 5, ReasonHashMismatch, 3)

			n, _ := s.CountQueue("")
			if n != 1 {
				t.Fatalf("queue rows = %d, want 1", n)
			}
			item, _ := s.GetQueueItem("a.py::f")
			if item.Priority != 5 || item.Reason != ReasonHashMismatch || item.Status != QueuePending {
				t.Errorf("upsert result: %+v", item)
			}
		})
	}
}

func TestFailRetriesThenTerminal(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("a.py::f", "a.py", "f"))
			_ = s.EnqueueItem("a.py::f", 100, ReasonNew, 2)

			// First attempt fails: below max_attempts, back to PENDING.
			item, _ := s.NextQueueItem()
			failed, found, err := s.FailQueueItem(item.FunctionID, "timeout")
			if err != nil || !found {
				t.Fatalf("FailQueueItem: found=%v err=%v", found, err)
			}
			if failed.Status != QueuePending || failed.Attempts != 1 || failed.LastError != "timeout" {
				t.Errorf("after first failure: %+v", failed)
			}

			// Second attempt exhausts the budget: terminal FAILED.
			item, _ = s.NextQueueItem()
			if item == nil {
				t.Fatal("item was not redelivered")
			}
			failed, _, _ = s.FailQueueItem(item.FunctionID, "timeout again")
			if failed.Status != QueueFailed || failed.Attempts != 2 {
				t.Errorf("after final failure: %+v", failed)
			}

			// Never silently re-enqueued a further time.
			if extra, _ := s.NextQueueItem(); extra != nil {
				t.Errorf("FAILED item redelivered: %+v", extra)
			}
		})
	}
}

func TestFailOnlyProcessingItems(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("a.py::f", "a.py", "f"))
			_ = s.EnqueueItem("a.py::f", 100, ReasonNew, 1)

			// Never-claimed items cannot fail.
			item, found, err := s.FailQueueItem("a.py::f", "boom")
			if err != nil || item != nil || !found {
				t.Errorf("fail on PENDING: item=%+v found=%v err=%v", item, found, err)
			}

			// Exhaust the single attempt, then fail again: attempts must
			// never pass max_attempts.
			_, _ = s.NextQueueItem()
			item, _, _ = s.FailQueueItem("a.py::f", "boom")
			if item.Status != QueueFailed || item.Attempts != 1 {
				t.Fatalf("terminal failure: %+v", item)
			}
			item, found, _ = s.FailQueueItem("a.py::f", "boom again")
			if item != nil || !found {
				t.Errorf("fail on FAILED: item=%+v found=%v", item, found)
			}
			got, _ := s.GetQueueItem("a.py::f")
			if got.Attempts > got.MaxAttempts {
				t.Errorf("attempts %d exceeds max_attempts %d", got.Attempts, got.MaxAttempts)
			}

			// A completed item stays completed.
			_ = s.InsertArtifact(mkArtifact("a.py::g", "a.py", "g"))
			_ = s.EnqueueItem("a.py::g", 100, ReasonNew, 3)
			claimed, _ := s.NextQueueItem()
			_, _ = s.CompleteQueueItem(claimed.FunctionID)
			item, found, _ = s.FailQueueItem(claimed.FunctionID, "late failure")
			if item != nil || !found {
				t.Errorf("fail on COMPLETED: item=%+v found=%v", item, found)
			}
			got, _ = s.GetQueueItem(claimed.FunctionID)
			if got.Status != QueueCompleted {
				t.Errorf("completed item resurrected: %+v", got)
			}

			// Unknown IDs report found=false.
			_, found, err = s.FailQueueItem("a.py::ghost", "x")
			if err != nil || found {
				t.Errorf("fail on missing: found=%v err=%v", found, err)
			}
		})
	}
}

func TestCompleteQueueItem(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("a.py::f", "a.py", "f"))
			_ = s.EnqueueItem("a.py::f", 100, ReasonNew, 3)
			item, _ := s.NextQueueItem()
			ok, err := s.CompleteQueueItem(item.FunctionID)
			if err != nil || !ok {
				t.Fatalf("CompleteQueueItem: %v %v", ok, err)
			}
			got, _ := s.GetQueueItem(item.FunctionID)
			if got.Status != QueueCompleted {
				t.Errorf("status = %q", got.Status)
			}
			if next, _ := s.NextQueueItem(); next != nil {
				t.Errorf("completed item redelivered: %+v", next)
			}
		})
	}
}

func TestReprioritizePendingOnly(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("a.py::f", "a.py", "f"))
			_ = s.EnqueueItem("a.py::f", 100, ReasonNew, 3)

			ok, found, err := s.ReprioritizeQueueItem("a.py::f", 1)
			if err != nil || !ok || !found {
				t.Fatalf("reprioritize pending: %v %v %v", ok, found, err)
			}
			item, _ := s.GetQueueItem("a.py::f")
			if item.Priority != 1 {
				t.Errorf("priority = %d", item.Priority)
			}

			// PROCESSING items must be rejected.
			_, _ = s.NextQueueItem()
			ok, found, err = s.ReprioritizeQueueItem("a.py::f", 2)
			if err != nil || ok || !found {
				t.Errorf("reprioritize processing: ok=%v found=%v err=%v", ok, found, err)
			}

			ok, found, _ = s.ReprioritizeQueueItem("a.py::ghost", 2)
			if ok || found {
				t.Errorf("reprioritize missing: ok=%v found=%v", ok, found)
			}
		})
	}
}

func TestRequeueStaleProcessing(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("a.py::f", "a.py", "f"))
			_ = s.EnqueueItem("a.py::f", 100, ReasonNew, 3)
			_, _ = s.NextQueueItem()

			// Negative window makes "now" already stale.
			n, err := s.RequeueStaleProcessing(-time.Second)
			if err != nil || n != 1 {
				t.Fatalf("RequeueStaleProcessing: n=%d err=%v", n, err)
			}
			item, _ := s.GetQueueItem("a.py::f")
			if item.Status != QueuePending {
				t.Errorf("status = %q, want PENDING", item.Status)
			}

			// Idempotent: a second sweep finds nothing.
			n, _ = s.RequeueStaleProcessing(-time.Second)
			if n != 0 {
				t.Errorf("second sweep reverted %d items", n)
			}

			// A fresh PROCESSING item is not swept with a wide window.
			_, _ = s.NextQueueItem()
			n, _ = s.RequeueStaleProcessing(time.Hour)
			if n != 0 {
				t.Errorf("fresh item swept: %d", n)
			}
		})
	}
}

func TestNoDoubleDequeue(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			const items = 40
			for i := 0; i < items; i++ {
				id := fmt.Sprintf("a.py::fn%02d", i)
				_ = s.InsertArtifact(mkArtifact(id, "a.py", fmt.Sprintf("fn%02d", i)))
				_ = s.EnqueueItem(id, 100, ReasonNew, 3)
			}

			var mu sync.Mutex
			seen := make(map[string]int)
			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						item, err := s.NextQueueItem()
						if err != nil {
							t.Errorf("NextQueueItem: %v", err)
							return
						}
						if item == nil {
							return
						}
						mu.Lock()
						seen[item.FunctionID]++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if len(seen) != items {
				t.Errorf("claimed %d distinct items, want %d", len(seen), items)
			}
			for id, n := range seen {
				if n != 1 {
					t.Errorf("item %s claimed %d times", id, n)
				}
			}
		})
	}
}

func TestListFilePaths(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("src/a.py::f", "src/a.py", "f"))
			_ = s.InsertArtifact(mkArtifact("src/a.py::g", "src/a.py", "g"))
			_ = s.InsertArtifact(mkArtifact("src/b.py::h", "src/b.py", "h"))
			_ = s.InsertArtifact(mkArtifact("lib/c.py::k", "lib/c.py", "k"))

			all, err := s.ListFilePaths("")
			if err != nil {
				t.Fatalf("ListFilePaths: %v", err)
			}
			if diff := cmp.Diff([]string{"lib/c.py", "src/a.py", "src/b.py"}, all); diff != "" {
				t.Errorf("all paths (-want +got):\n%s", diff)
			}

			under, _ := s.ListFilePaths("src/")
			if diff := cmp.Diff([]string{"src/a.py", "src/b.py"}, under); diff != "" {
				t.Errorf("prefixed paths (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReplaceFileEdges(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.ReplaceFileEdges("a.py", []Edge{
				{CallerID: "a.py::f", CalleeID: "a.py::g"},
				{CallerID: "a.py::f", CalleeID: "b.py::h"},
				{CallerID: "a.py::g", CalleeID: "a.py::g"}, // recursion is a valid edge
			})
			_ = s.ReplaceFileEdges("b.py", []Edge{
				{CallerID: "b.py::h", CalleeID: "a.py::f"},
			})

			callees, _ := s.Callees("a.py::f")
			if diff := cmp.Diff([]string{"a.py::g", "b.py::h"}, callees); diff != "" {
				t.Errorf("callees (-want +got):\n%s", diff)
			}
			if self, _ := s.Callees("a.py::g"); len(self) != 1 || self[0] != "a.py::g" {
				t.Errorf("self edge: %v", self)
			}

			// Re-scan of a.py drops the removed call site but leaves b.py
			// edges alone.
			_ = s.ReplaceFileEdges("a.py", []Edge{
				{CallerID: "a.py::f", CalleeID: "a.py::g"},
			})
			callees, _ = s.Callees("a.py::f")
			if diff := cmp.Diff([]string{"a.py::g"}, callees); diff != "" {
				t.Errorf("callees after replace (-want +got):\n%s", diff)
			}
			callers, _ := s.Callers("a.py::f")
			if diff := cmp.Diff([]string{"b.py::h"}, callers); diff != "" {
				t.Errorf("callers after replace (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVerdictUpsert(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.InsertArtifact(mkArtifact("a.py::f", "a.py", "f"))
			_ = s.SaveVerdict(&Verdict{
				FunctionID: "a.py::f", Confidence: 0.55, Verified: false,
				Payload: `{"preconditions":["x > 0"]}`,
			})
			v, _ := s.GetVerdict("a.py::f")
			if v == nil || v.Confidence != 0.55 || v.Verified {
				t.Fatalf("verdict: %+v", v)
			}

			_ = s.SaveVerdict(&Verdict{FunctionID: "a.py::f", Confidence: 0.9, Verified: true})
			v, _ = s.GetVerdict("a.py::f")
			if v.Confidence != 0.9 || !v.Verified {
				t.Errorf("verdict after upsert: %+v", v)
			}
			if v.Payload != "{}" {
				t.Errorf("empty payload not defaulted: %q", v.Payload)
			}
		})
	}
}
