// prism maintains an incremental catalog of source-code functions: stable
// IDs, normalized-content fingerprints, a lifecycle state machine, a
// priority work queue and a caller → callee dependency graph.
//
// Usage:
//
//	prism init
//	prism scan [path]
//	prism status
//	prism queue next|peek|prioritize|retry|fail|requeue-stale
//	prism artifact get|list
//	prism deps <function-id>
//	prism verdict save|fail
//	prism serve
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
