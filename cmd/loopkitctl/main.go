// Command loopkitctl is a small operator CLI around a loopkit.Runtime: it
// runs the main loop for a fixed duration, submits demo jobs to a named
// worker pool via RunThreaded, and prints the completed-job and pool-pending
// counts on exit. It exists to give
// the runtime a runnable surface beyond its library API, following
// cue-lang-cue's cmd/cue convention of a cobra root command with
// pflag-backed persistent flags.
package main

import (
	"fmt"
	"os"

	"github.com/ygrebnov/loopkit/cmd/loopkitctl/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
