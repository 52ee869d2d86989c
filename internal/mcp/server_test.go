package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"prism/internal/api"
	"prism/internal/catalog"
	"prism/internal/config"
	"prism/internal/store"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	st := store.NewMemStore()
	t.Cleanup(func() { st.Close() })
	srv := NewServer(st, catalog.New(st, config.Default()))

	// The temp dir doubles as the project root: scans record paths relative
	// to the working directory.
	dir := t.TempDir()
	t.Chdir(dir)
	src := "def f():\n    return 1\n\ndef g():\n    return f()\n"
	if err := os.WriteFile(filepath.Join(dir, "a.py"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return srv, dir
}

func TestScanAndStatusTools(t *testing.T) {
	srv, dir := newTestServer(t)
	ctx := context.Background()

	_, rep, err := srv.handleScan(ctx, nil, scanInput{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	if rep.New != 2 {
		t.Fatalf("scan report: %+v", rep)
	}

	_, sum, err := srv.handleStatus(ctx, nil, statusInput{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Artifacts.Total != 2 || sum.Queue.Pending != 2 {
		t.Errorf("summary: %+v", sum)
	}
}

func TestQueueTools(t *testing.T) {
	srv, dir := newTestServer(t)
	ctx := context.Background()

	if _, _, err := srv.handleQueueNext(ctx, nil, queueNextInput{}); api.CodeOf(err) != api.CodeQueueEmpty {
		t.Fatalf("empty queue: got %v", err)
	}

	if _, _, err := srv.handleScan(ctx, nil, scanInput{Path: dir}); err != nil {
		t.Fatal(err)
	}

	_, peek, err := srv.handleQueuePeek(ctx, nil, queuePeekInput{})
	if err != nil {
		t.Fatal(err)
	}
	if peek.Total != 2 {
		t.Fatalf("peek: %+v", peek)
	}

	_, out, err := srv.handleQueuePrioritize(ctx, nil, queuePrioritizeInput{
		FunctionID: "a.py::g", Priority: 1,
	})
	if err != nil || out.OK == "" {
		t.Fatalf("prioritize: %v", err)
	}

	_, item, err := srv.handleQueueNext(ctx, nil, queueNextInput{})
	if err != nil {
		t.Fatal(err)
	}
	if item.FunctionID != "a.py::g" || item.Status != store.QueueProcessing {
		t.Errorf("claimed item: %+v", item)
	}

	// The claimed item is no longer PENDING, so reprioritizing it fails.
	_, _, err = srv.handleQueuePrioritize(ctx, nil, queuePrioritizeInput{
		FunctionID: "a.py::g", Priority: 5,
	})
	if api.CodeOf(err) != api.CodePreconditionFailed {
		t.Errorf("reprioritize PROCESSING: got %v", err)
	}
}

func TestArtifactAndVerdictTools(t *testing.T) {
	srv, dir := newTestServer(t)
	ctx := context.Background()
	if _, _, err := srv.handleScan(ctx, nil, scanInput{Path: dir}); err != nil {
		t.Fatal(err)
	}

	_, a, err := srv.handleArtifactGet(ctx, nil, artifactGetInput{FunctionID: "a.py::f"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != store.StatusPending || a.HasVerdict {
		t.Errorf("artifact: %+v", a)
	}

	if _, _, err := srv.handleArtifactGet(ctx, nil, artifactGetInput{FunctionID: "a.py::ghost"}); api.CodeOf(err) != api.CodeFunctionNotFound {
		t.Errorf("unknown artifact: got %v", err)
	}

	_, out, err := srv.handleVerdictSave(ctx, nil, verdictSaveInput{
		FunctionID: "a.py::f", Confidence: 0.91,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != store.StatusVerified {
		t.Errorf("verdict outcome: %+v", out)
	}

	_, list, err := srv.handleArtifactList(ctx, nil, artifactListInput{Status: store.StatusVerified})
	if err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || !list.Artifacts[0].HasVerdict {
		t.Errorf("list: %+v", list)
	}
}

func TestDepsTool(t *testing.T) {
	srv, dir := newTestServer(t)
	ctx := context.Background()
	if _, _, err := srv.handleScan(ctx, nil, scanInput{Path: dir}); err != nil {
		t.Fatal(err)
	}

	_, n, err := srv.handleDepsGet(ctx, nil, depsGetInput{FunctionID: "a.py::f", Direction: "callers"})
	if err != nil {
		t.Fatal(err)
	}
	if len(n.Nodes) != 2 || n.Nodes[1].FunctionID != "a.py::g" {
		t.Errorf("neighborhood: %+v", n)
	}

	if _, _, err := srv.handleDepsGet(ctx, nil, depsGetInput{FunctionID: "a.py::f", Direction: "sideways"}); api.CodeOf(err) != api.CodeInvalidInput {
		t.Errorf("bad direction: got %v", err)
	}
}
