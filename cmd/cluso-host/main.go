// Command cluso-host runs the host identity agent: it negotiates the
// cluster id, gates dependent work on it, runs the leader's
// reconciliation loops and serves health and metrics endpoints.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
