package main

import (
	"github.com/spf13/cobra"

	"prism/internal/graph"
)

var depsFlags struct {
	direction string
	depth     int
}

var depsCmd = &cobra.Command{
	Use:   "deps <function-id>",
	Short: "Walk the dependency graph around an artifact",
	Long: "Returns the bounded breadth-first neighborhood of an artifact: its\n" +
		"callers, callees or both, up to 5 hops. Cycles terminate; every node\n" +
		"appears at most once.",
	Args: cobra.ExactArgs(1),
	RunE: runDeps,
}

func init() {
	f := depsCmd.Flags()
	f.StringVarP(&depsFlags.direction, "direction", "d", "both", "callers, callees or both")
	f.IntVar(&depsFlags.depth, "depth", 1, "Hops to traverse (1-5)")
}

func runDeps(cmd *cobra.Command, args []string) error {
	dir, err := graph.ParseDirection(depsFlags.direction)
	if err != nil {
		return emit(cmd, nil, err)
	}

	st, eng, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	n, err := eng.Graph().Neighbors(args[0], dir, depsFlags.depth)
	return emit(cmd, n, err)
}
