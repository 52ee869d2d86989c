package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog health: artifact counts per status and queue depth",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	st, eng, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	sum, err := eng.Summary()
	return emit(cmd, sum, err)
}
