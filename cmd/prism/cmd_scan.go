package main

import (
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a file or directory and reconcile the catalog against it",
	Long: "Extracts functions from the given path (default: current directory),\n" +
		"classifies each as new/changed/unchanged/deleted by fingerprint, applies\n" +
		"lifecycle transitions, enqueues work and rebuilds per-file dependency edges.",
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}

	st, eng, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	rep, err := eng.ScanPath(path)
	return emit(cmd, rep, err)
}
