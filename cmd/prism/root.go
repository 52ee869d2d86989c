package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prism/internal/api"
	"prism/internal/catalog"
	"prism/internal/config"
	"prism/internal/logging"
	"prism/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	dbPath string
	pretty bool
}

var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "Incremental catalog of source functions with change detection and a work queue",
	Long: "Prism catalogs the functions of a source tree, detects changes through\n" +
		"normalized-content fingerprints, tracks each function's verification\n" +
		"lifecycle, and sequences downstream analysis work through a priority queue.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		config.LoadEnv()
		logging.Init(logging.ParseLevel(os.Getenv("PRISM_LOG_LEVEL")), os.Getenv("PRISM_LOG_FORMAT"))
		if !cmd.Flags().Changed("db") {
			if env := os.Getenv("PRISM_DB"); env != "" {
				rootFlags.dbPath = env
			}
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.dbPath, "db", store.DefaultDBPath, "Catalog DB path (env: PRISM_DB)")
	pf.BoolVar(&rootFlags.pretty, "pretty", false, "Indent JSON output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(artifactCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(verdictCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// openEngine opens the catalog store and wraps it in a lifecycle engine
// configured from .prism/config.yaml.
func openEngine() (store.Store, *catalog.Engine, error) {
	st, err := store.Open(rootFlags.dbPath)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(config.DefaultConfigPath)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, catalog.New(st, cfg), nil
}

// emit prints the uniform envelope on stdout. The original error is
// returned so the process exits non-zero on failure; cobra stays silent.
func emit(cmd *cobra.Command, data any, err error) error {
	resp := api.OK(data)
	if err != nil {
		resp = api.Fail(err)
	}
	out, jerr := resp.JSON(rootFlags.pretty)
	if jerr != nil {
		return jerr
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
