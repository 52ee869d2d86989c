// Package mcp exposes the catalog operations as MCP tools over stdio, so
// agent hosts can drive scans, queue consumption and verdicts without
// shelling out to the CLI.
package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"prism/internal/api"
	"prism/internal/catalog"
	"prism/internal/graph"
	"prism/internal/store"
)

// Server wraps the MCP SDK server around one catalog engine.
type Server struct {
	MCPServer *sdkmcp.Server

	st  store.Store
	eng *catalog.Engine
}

// NewServer builds the tool surface on top of an already-opened store.
func NewServer(st store.Store, eng *catalog.Engine) *Server {
	s := &Server{st: st, eng: eng}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "prism", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "scan",
		Description: "Scan a file or directory: classify functions as new/changed/unchanged/deleted, update the catalog and enqueue work.",
	}, s.handleScan)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "queue_next",
		Description: "Claim the most urgent pending queue item, marking it PROCESSING. Fails with QUEUE_EMPTY when nothing is pending.",
	}, s.handleQueueNext)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "queue_peek",
		Description: "Look at upcoming queue items without claiming them.",
	}, s.handleQueuePeek)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "queue_prioritize",
		Description: "Change the priority of a PENDING queue item (lower value = more urgent).",
	}, s.handleQueuePrioritize)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "artifact_get",
		Description: "Fetch one artifact by function ID ({relative_path}::{qualified_name}).",
	}, s.handleArtifactGet)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "artifact_list",
		Description: "List artifacts, optionally filtered by status, file prefix or language.",
	}, s.handleArtifactList)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "deps_get",
		Description: "Walk the dependency graph around an artifact: callers, callees or both, up to 5 hops, cycle safe.",
	}, s.handleDepsGet)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "verdict_save",
		Description: "Record an external confidence verdict for an artifact; >= threshold verifies it, below sends it to review. Closes its queue item.",
	}, s.handleVerdictSave)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "status",
		Description: "Catalog health summary: artifact counts per lifecycle status and queue depth.",
	}, s.handleStatus)
}

// --- Tool input/output types ---

type scanInput struct {
	Path string `json:"path" jsonschema:"file or directory to scan, relative to the project root"`
}

type queueNextInput struct{}

type queueItemOutput struct {
	FunctionID  string `json:"function_id"`
	Priority    int    `json:"priority"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`
}

type queuePeekInput struct {
	N   int  `json:"n,omitempty" jsonschema:"max items to return (default 10)"`
	All bool `json:"all,omitempty" jsonschema:"include PROCESSING/COMPLETED/FAILED items, not just PENDING"`
}

type queuePeekOutput struct {
	Items []queueItemOutput `json:"items"`
	Total int               `json:"total"`
}

type queuePrioritizeInput struct {
	FunctionID string `json:"function_id" jsonschema:"artifact the queue item belongs to"`
	Priority   int    `json:"priority" jsonschema:"new priority, lower = more urgent"`
}

type queuePrioritizeOutput struct {
	OK string `json:"ok"`
}

type artifactGetInput struct {
	FunctionID string `json:"function_id" jsonschema:"artifact ID ({relative_path}::{qualified_name})"`
}

type artifactOutput struct {
	FunctionID string  `json:"function_id"`
	FilePath   string  `json:"file_path"`
	Name       string  `json:"name"`
	Signature  string  `json:"signature"`
	Language   string  `json:"language"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Parent     string  `json:"parent,omitempty"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence,omitempty"`
	HasVerdict bool    `json:"has_verdict"`
	UpdatedAt  string  `json:"updated_at"`
}

type artifactListInput struct {
	Status   string `json:"status,omitempty" jsonschema:"lifecycle status filter (PENDING, VERIFIED, NEEDS_REVIEW, STALE, BROKEN)"`
	File     string `json:"file,omitempty" jsonschema:"file path prefix filter"`
	Language string `json:"language,omitempty" jsonschema:"language filter (python, javascript, go)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"max rows (default 50)"`
	Offset   int    `json:"offset,omitempty"`
}

type artifactListOutput struct {
	Artifacts []artifactOutput `json:"artifacts"`
	Count     int              `json:"count"`
}

type depsGetInput struct {
	FunctionID string `json:"function_id" jsonschema:"root artifact ID"`
	Direction  string `json:"direction,omitempty" jsonschema:"callers, callees or both (default both)"`
	Depth      int    `json:"depth,omitempty" jsonschema:"hops to traverse, 1-5 (default 1)"`
}

type verdictSaveInput struct {
	FunctionID string  `json:"function_id" jsonschema:"artifact the verdict is for"`
	Confidence float64 `json:"confidence" jsonschema:"confidence score in [0,1]"`
	Payload    string  `json:"payload,omitempty" jsonschema:"opaque JSON object stored with the verdict"`
}

type statusInput struct{}

// --- Tool handlers ---

func (s *Server) handleScan(ctx context.Context, _ *sdkmcp.CallToolRequest, input scanInput) (*sdkmcp.CallToolResult, *catalog.ScanReport, error) {
	rep, err := s.eng.ScanPath(input.Path)
	if err != nil {
		return nil, nil, err
	}
	return nil, rep, nil
}

func (s *Server) handleQueueNext(ctx context.Context, _ *sdkmcp.CallToolRequest, _ queueNextInput) (*sdkmcp.CallToolResult, queueItemOutput, error) {
	item, err := s.eng.Next()
	if err != nil {
		return nil, queueItemOutput{}, err
	}
	return nil, toQueueItemOutput(item), nil
}

func (s *Server) handleQueuePeek(ctx context.Context, _ *sdkmcp.CallToolRequest, input queuePeekInput) (*sdkmcp.CallToolResult, queuePeekOutput, error) {
	n := input.N
	if n <= 0 {
		n = 10
	}
	items, err := s.st.PeekQueue(n, input.All)
	if err != nil {
		return nil, queuePeekOutput{}, err
	}
	out := queuePeekOutput{Items: make([]queueItemOutput, 0, len(items))}
	for _, item := range items {
		out.Items = append(out.Items, toQueueItemOutput(item))
	}
	out.Total = len(out.Items)
	return nil, out, nil
}

func (s *Server) handleQueuePrioritize(ctx context.Context, _ *sdkmcp.CallToolRequest, input queuePrioritizeInput) (*sdkmcp.CallToolResult, queuePrioritizeOutput, error) {
	if err := s.eng.Reprioritize(input.FunctionID, input.Priority); err != nil {
		return nil, queuePrioritizeOutput{}, err
	}
	return nil, queuePrioritizeOutput{OK: "priority updated"}, nil
}

func (s *Server) handleArtifactGet(ctx context.Context, _ *sdkmcp.CallToolRequest, input artifactGetInput) (*sdkmcp.CallToolResult, artifactOutput, error) {
	a, v, err := s.lookupArtifact(input.FunctionID)
	if err != nil {
		return nil, artifactOutput{}, err
	}
	return nil, toArtifactOutput(a, v), nil
}

func (s *Server) handleArtifactList(ctx context.Context, _ *sdkmcp.CallToolRequest, input artifactListInput) (*sdkmcp.CallToolResult, artifactListOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	arts, err := s.st.ListArtifacts(store.ArtifactFilter{
		Status:   input.Status,
		FilePath: input.File,
		Language: input.Language,
		Limit:    limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return nil, artifactListOutput{}, err
	}
	out := artifactListOutput{Artifacts: make([]artifactOutput, 0, len(arts))}
	for _, a := range arts {
		v, err := s.st.GetVerdict(a.FunctionID)
		if err != nil {
			return nil, artifactListOutput{}, err
		}
		out.Artifacts = append(out.Artifacts, toArtifactOutput(a, v))
	}
	out.Count = len(out.Artifacts)
	return nil, out, nil
}

func (s *Server) handleDepsGet(ctx context.Context, _ *sdkmcp.CallToolRequest, input depsGetInput) (*sdkmcp.CallToolResult, *graph.Neighborhood, error) {
	dir, err := graph.ParseDirection(input.Direction)
	if err != nil {
		return nil, nil, err
	}
	n, err := s.eng.Graph().Neighbors(input.FunctionID, dir, input.Depth)
	if err != nil {
		return nil, nil, err
	}
	return nil, n, nil
}

func (s *Server) handleVerdictSave(ctx context.Context, _ *sdkmcp.CallToolRequest, input verdictSaveInput) (*sdkmcp.CallToolResult, *catalog.VerdictOutcome, error) {
	out, err := s.eng.SaveVerdict(input.FunctionID, input.Confidence, input.Payload)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, _ statusInput) (*sdkmcp.CallToolResult, *catalog.Summary, error) {
	sum, err := s.eng.Summary()
	if err != nil {
		return nil, nil, err
	}
	return nil, sum, nil
}

// --- helpers ---

func notFound(functionID string) error {
	return api.Errorf(api.CodeFunctionNotFound, "no artifact %q", functionID)
}

func (s *Server) lookupArtifact(functionID string) (*store.Artifact, *store.Verdict, error) {
	a, err := s.st.GetArtifact(functionID)
	if err != nil {
		return nil, nil, err
	}
	if a == nil {
		return nil, nil, notFound(functionID)
	}
	v, err := s.st.GetVerdict(functionID)
	if err != nil {
		return nil, nil, err
	}
	return a, v, nil
}

func toQueueItemOutput(item *store.QueueItem) queueItemOutput {
	return queueItemOutput{
		FunctionID:  item.FunctionID,
		Priority:    item.Priority,
		Status:      item.Status,
		Reason:      item.Reason,
		Attempts:    item.Attempts,
		MaxAttempts: item.MaxAttempts,
		LastError:   item.LastError,
	}
}

func toArtifactOutput(a *store.Artifact, v *store.Verdict) artifactOutput {
	out := artifactOutput{
		FunctionID: a.FunctionID,
		FilePath:   a.FilePath,
		Name:       a.FunctionName,
		Signature:  a.Signature,
		Language:   a.Language,
		StartLine:  a.StartLine,
		EndLine:    a.EndLine,
		Parent:     a.Parent,
		Status:     a.Status,
		UpdatedAt:  a.UpdatedAt,
	}
	if v != nil {
		out.HasVerdict = true
		out.Confidence = v.Confidence
	}
	return out
}
