package main

import (
	"github.com/spf13/cobra"

	"prism/internal/api"
	"prism/internal/store"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Inspect cataloged artifacts",
}

var artifactListFlags struct {
	status   string
	file     string
	language string
	limit    int
	offset   int
}

var artifactGetCmd = &cobra.Command{
	Use:   "get <function-id>",
	Short: "Fetch one artifact by ID ({relative_path}::{qualified_name})",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactGet,
}

var artifactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifacts, filtered by status, file prefix or language",
	Args:  cobra.NoArgs,
	RunE:  runArtifactList,
}

func init() {
	f := artifactListCmd.Flags()
	f.StringVar(&artifactListFlags.status, "status", "", "Lifecycle status filter (PENDING, VERIFIED, NEEDS_REVIEW, STALE, BROKEN)")
	f.StringVar(&artifactListFlags.file, "file", "", "File path prefix filter")
	f.StringVar(&artifactListFlags.language, "language", "", "Language filter (python, javascript, go)")
	f.IntVar(&artifactListFlags.limit, "limit", 50, "Max rows")
	f.IntVar(&artifactListFlags.offset, "offset", 0, "Rows to skip")

	artifactCmd.AddCommand(artifactGetCmd)
	artifactCmd.AddCommand(artifactListCmd)
}

func runArtifactGet(cmd *cobra.Command, args []string) error {
	st, _, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	a, err := st.GetArtifact(args[0])
	if err != nil {
		return emit(cmd, nil, err)
	}
	if a == nil {
		return emit(cmd, nil, api.Errorf(api.CodeFunctionNotFound, "no artifact %q", args[0]))
	}
	v, err := st.GetVerdict(args[0])
	if err != nil {
		return emit(cmd, nil, err)
	}
	return emit(cmd, map[string]any{"artifact": a, "verdict": v}, nil)
}

func runArtifactList(cmd *cobra.Command, _ []string) error {
	if s := artifactListFlags.status; s != "" && !store.ValidArtifactStatus(s) {
		return emit(cmd, nil, api.Errorf(api.CodeInvalidInput, "unknown status %q", s))
	}

	st, _, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	arts, err := st.ListArtifacts(store.ArtifactFilter{
		Status:   artifactListFlags.status,
		FilePath: artifactListFlags.file,
		Language: artifactListFlags.language,
		Limit:    artifactListFlags.limit,
		Offset:   artifactListFlags.offset,
	})
	if err != nil {
		return emit(cmd, nil, err)
	}
	return emit(cmd, map[string]any{"artifacts": arts, "count": len(arts)}, nil)
}
