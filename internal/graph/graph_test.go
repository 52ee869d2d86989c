package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"prism/internal/api"
	"prism/internal/store"
)

func seedChain(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemStore()
	for _, id := range []string{"a.py::a", "a.py::b", "a.py::c"} {
		err := st.InsertArtifact(&store.Artifact{
			FunctionID:   id,
			FilePath:     "a.py",
			FunctionName: id[len("a.py::"):],
			Status:       store.StatusPending,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func nodeIDs(n *Neighborhood) []string {
	var ids []string
	for _, node := range n.Nodes {
		ids = append(ids, node.FunctionID)
	}
	return ids
}

func TestNeighborsChain(t *testing.T) {
	st := seedChain(t)
	edges := []store.Edge{
		{CallerID: "a.py::a", CalleeID: "a.py::b"},
		{CallerID: "a.py::b", CalleeID: "a.py::c"},
	}
	if err := st.ReplaceFileEdges("a.py", edges); err != nil {
		t.Fatal(err)
	}
	svc := New(st)

	n, err := svc.Neighbors("a.py::a", DirectionCallees, 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.py::a", "a.py::b"}, nodeIDs(n)); diff != "" {
		t.Errorf("depth 1 nodes mismatch (-want +got):\n%s", diff)
	}

	n, err = svc.Neighbors("a.py::a", DirectionCallees, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.py::a", "a.py::b", "a.py::c"}, nodeIDs(n)); diff != "" {
		t.Errorf("depth 2 nodes mismatch (-want +got):\n%s", diff)
	}
	if n.Nodes[2].Depth != 2 || n.Nodes[2].Relationship != "callee" {
		t.Errorf("node c: got depth=%d rel=%q", n.Nodes[2].Depth, n.Nodes[2].Relationship)
	}

	// Reverse direction from c.
	n, err = svc.Neighbors("a.py::c", DirectionCallers, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.py::c", "a.py::b", "a.py::a"}, nodeIDs(n)); diff != "" {
		t.Errorf("callers mismatch (-want +got):\n%s", diff)
	}
}

func TestNeighborsCycleTerminates(t *testing.T) {
	st := seedChain(t)
	edges := []store.Edge{
		{CallerID: "a.py::a", CalleeID: "a.py::b"},
		{CallerID: "a.py::b", CalleeID: "a.py::a"},
	}
	if err := st.ReplaceFileEdges("a.py", edges); err != nil {
		t.Fatal(err)
	}

	n, err := New(st).Neighbors("a.py::a", DirectionCallees, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.py::a", "a.py::b"}, nodeIDs(n)); diff != "" {
		t.Errorf("cycle nodes mismatch (-want +got):\n%s", diff)
	}
	var backEdges int
	for _, e := range n.Edges {
		if e.Cycle {
			backEdges++
		}
	}
	if backEdges != 1 {
		t.Errorf("got %d cycle edges, want 1", backEdges)
	}
}

func TestNeighborsDepthClamped(t *testing.T) {
	st := seedChain(t)
	svc := New(st)

	n, err := svc.Neighbors("a.py::a", DirectionBoth, 99)
	if err != nil {
		t.Fatal(err)
	}
	if n.Depth != MaxDepth {
		t.Errorf("got depth %d, want %d", n.Depth, MaxDepth)
	}
	n, err = svc.Neighbors("a.py::a", DirectionBoth, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n.Depth != 1 {
		t.Errorf("got depth %d, want 1", n.Depth)
	}
}

func TestNeighborsUnknownRoot(t *testing.T) {
	_, err := New(store.NewMemStore()).Neighbors("a.py::ghost", DirectionBoth, 1)
	if api.CodeOf(err) != api.CodeFunctionNotFound {
		t.Fatalf("got %v, want FUNCTION_NOT_FOUND", err)
	}
}

func TestNeighborsCachePurge(t *testing.T) {
	st := seedChain(t)
	svc := New(st)

	n, err := svc.Neighbors("a.py::a", DirectionCallees, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(n.Nodes) != 1 {
		t.Fatalf("got %d nodes before edges, want 1", len(n.Nodes))
	}

	edges := []store.Edge{{CallerID: "a.py::a", CalleeID: "a.py::b"}}
	if err := st.ReplaceFileEdges("a.py", edges); err != nil {
		t.Fatal(err)
	}

	// Stale until purged.
	n, _ = svc.Neighbors("a.py::a", DirectionCallees, 1)
	if len(n.Nodes) != 1 {
		t.Fatalf("cache should still serve the old result, got %d nodes", len(n.Nodes))
	}
	svc.Purge()
	n, err = svc.Neighbors("a.py::a", DirectionCallees, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(n.Nodes) != 2 {
		t.Errorf("got %d nodes after purge, want 2", len(n.Nodes))
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection(""); err != nil || d != DirectionBoth {
		t.Errorf("empty: got (%q, %v)", d, err)
	}
	if _, err := ParseDirection("sideways"); api.CodeOf(err) != api.CodeInvalidInput {
		t.Errorf("invalid direction: got %v", err)
	}
}
