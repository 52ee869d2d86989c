// Package graph answers neighborhood queries over the caller → callee edges
// in the store. Traversal is breadth-first with a visited set, so cyclic
// graphs (recursion, mutual calls) terminate and report each node once.
package graph

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"prism/internal/api"
	"prism/internal/store"
)

// Direction selects which edges a neighborhood query follows.
type Direction string

const (
	DirectionCallers Direction = "callers"
	DirectionCallees Direction = "callees"
	DirectionBoth    Direction = "both"
)

// MaxDepth bounds traversal; requests beyond it are clamped, not rejected.
const MaxDepth = 5

const cacheSize = 256

// ParseDirection validates a user-supplied direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionCallers, DirectionCallees, DirectionBoth:
		return Direction(s), nil
	case "":
		return DirectionBoth, nil
	}
	return "", api.Errorf(api.CodeInvalidInput,
		"direction must be callers, callees or both, got %q", s)
}

// Node is one artifact reached by the traversal.
type Node struct {
	FunctionID   string `json:"function_id"`
	Name         string `json:"name"`
	FilePath     string `json:"file_path"`
	Status       string `json:"status"`
	HasVerdict   bool   `json:"has_verdict"`
	Depth        int    `json:"depth"`
	Relationship string `json:"relationship"` // root, caller or callee
}

// Edge is one traversed dependency. Cycle marks edges whose target was
// already visited on a shorter or equal path.
type Edge struct {
	CallerID string `json:"caller_id"`
	CalleeID string `json:"callee_id"`
	Cycle    bool   `json:"cycle,omitempty"`
}

// Neighborhood is the bounded closure around one artifact.
type Neighborhood struct {
	Root      string    `json:"root"`
	Direction Direction `json:"direction"`
	Depth     int       `json:"depth"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
}

// Service runs neighborhood queries with a small LRU cache in front of the
// store. The cache is purged whenever edges or artifacts change.
type Service struct {
	st    store.Store
	cache *lru.Cache[string, *Neighborhood]
}

func New(st store.Store) *Service {
	// lru.New only errors on a non-positive size.
	cache, _ := lru.New[string, *Neighborhood](cacheSize)
	return &Service{st: st, cache: cache}
}

// Purge drops every cached neighborhood. Call after scans, edge replaces or
// artifact deletions.
func (s *Service) Purge() {
	s.cache.Purge()
}

// Neighbors returns the breadth-first closure of callers and/or callees up
// to depth hops from functionID. Depth is clamped to [1, MaxDepth]. Unknown
// roots yield FUNCTION_NOT_FOUND.
func (s *Service) Neighbors(functionID string, dir Direction, depth int) (*Neighborhood, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}

	key := fmt.Sprintf("%s|%s|%d", functionID, dir, depth)
	if n, ok := s.cache.Get(key); ok {
		return n, nil
	}

	root, err := s.st.GetArtifact(functionID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, api.Errorf(api.CodeFunctionNotFound, "no artifact %q", functionID)
	}

	n := &Neighborhood{Root: functionID, Direction: dir, Depth: depth}
	visited := map[string]bool{functionID: true}
	seenEdge := map[store.Edge]bool{}

	rootNode, err := s.node(root, 0, "root")
	if err != nil {
		return nil, err
	}
	n.Nodes = append(n.Nodes, rootNode)

	frontier := []string{functionID}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, cur := range frontier {
			if dir == DirectionCallers || dir == DirectionBoth {
				ids, err := s.st.Callers(cur)
				if err != nil {
					return nil, err
				}
				next, err = s.expand(n, visited, seenEdge, next, cur, ids, "caller", d)
				if err != nil {
					return nil, err
				}
			}
			if dir == DirectionCallees || dir == DirectionBoth {
				ids, err := s.st.Callees(cur)
				if err != nil {
					return nil, err
				}
				next, err = s.expand(n, visited, seenEdge, next, cur, ids, "callee", d)
				if err != nil {
					return nil, err
				}
			}
		}
		frontier = next
	}

	s.cache.Add(key, n)
	return n, nil
}

// expand records the edges from cur to each neighbor and appends unvisited
// neighbors to the next frontier.
func (s *Service) expand(n *Neighborhood, visited map[string]bool, seenEdge map[store.Edge]bool,
	next []string, cur string, ids []string, rel string, depth int) ([]string, error) {

	for _, id := range ids {
		e := store.Edge{CallerID: cur, CalleeID: id}
		if rel == "caller" {
			e = store.Edge{CallerID: id, CalleeID: cur}
		}
		if !seenEdge[e] {
			seenEdge[e] = true
			n.Edges = append(n.Edges, Edge{
				CallerID: e.CallerID,
				CalleeID: e.CalleeID,
				Cycle:    visited[id],
			})
		}
		if visited[id] {
			continue
		}
		visited[id] = true

		a, err := s.st.GetArtifact(id)
		if err != nil {
			return nil, err
		}
		if a == nil {
			// Edge points at an artifact deleted out from under us; skip
			// the node but keep the edge visible.
			continue
		}
		node, err := s.node(a, depth, rel)
		if err != nil {
			return nil, err
		}
		n.Nodes = append(n.Nodes, node)
		next = append(next, id)
	}
	return next, nil
}

func (s *Service) node(a *store.Artifact, depth int, rel string) (Node, error) {
	v, err := s.st.GetVerdict(a.FunctionID)
	if err != nil {
		return Node{}, err
	}
	return Node{
		FunctionID:   a.FunctionID,
		Name:         a.FunctionName,
		FilePath:     a.FilePath,
		Status:       a.Status,
		HasVerdict:   v != nil,
		Depth:        depth,
		Relationship: rel,
	}, nil
}
