// Command pitcache is the admin CLI for the research platform's
// point-in-time artifact cache.
package main

import (
	"fmt"
	"os"

	"github.com/quantarc/pitcache/internal/cli"
	"github.com/quantarc/pitcache/pkg/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := cli.NewRootCmd(version.GetVersion())
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
