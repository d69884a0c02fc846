package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// logLevel is a pflag.Value so --log-level validates against a fixed set of
// names instead of accepting an arbitrary string, the same custom-Value
// pattern cue-lang-cue's cmd/cue flags use for enum-shaped options.
type logLevel string

const (
	logLevelInfo  logLevel = "info"
	logLevelDebug logLevel = "debug"
	logLevelWarn  logLevel = "warn"
)

func (l *logLevel) String() string { return string(*l) }

func (l *logLevel) Set(v string) error {
	switch logLevel(v) {
	case logLevelInfo, logLevelDebug, logLevelWarn:
		*l = logLevel(v)
		return nil
	default:
		return fmt.Errorf("invalid --log-level %q: want info, debug, or warn", v)
	}
}

func (l *logLevel) Type() string { return "level" }

var _ pflag.Value = (*logLevel)(nil)

// rootFlags holds the persistent, pflag-backed configuration shared by every
// subcommand, mirroring cue-lang-cue's cmd/cue convention of a single flag
// set threaded through the command tree rather than package globals.
type rootFlags struct {
	poolSize int
	level    logLevel
}

// NewRootCommand builds the loopkitctl command tree.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{level: logLevelInfo}

	root := &cobra.Command{
		Use:           "loopkitctl",
		Short:         "Drive a loopkit.Runtime from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.IntVar(&flags.poolSize, "pool-size", 4, "number of goroutines in the demo named worker pool")
	pf.Var(&flags.level, "log-level", "diagnostics level: info, debug, or warn")

	root.AddCommand(newRunCommand(flags))
	root.AddCommand(newVersionCommand())

	return root
}
