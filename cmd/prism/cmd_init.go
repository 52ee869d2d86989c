package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"prism/internal/config"
	"prism/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the .prism catalog (database and default config) in the current project",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, _ []string) error {
	st, err := store.Init(rootFlags.dbPath)
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	// Seed a config next to the DB unless one already exists.
	if _, err := os.Stat(config.DefaultConfigPath); os.IsNotExist(err) {
		if err := config.Default().Write(config.DefaultConfigPath); err != nil {
			return emit(cmd, nil, err)
		}
	}
	// The catalog dir stays out of version control by convention.
	gitignore := filepath.Join(filepath.Dir(rootFlags.dbPath), ".gitignore")
	if _, err := os.Stat(gitignore); os.IsNotExist(err) {
		_ = os.WriteFile(gitignore, []byte("*\n"), 0o644)
	}

	return emit(cmd, map[string]string{
		"db":     rootFlags.dbPath,
		"config": config.DefaultConfigPath,
	}, nil)
}
