package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ygrebnov/loopkit"
)

func newRunCommand(flags *rootFlags) *cobra.Command {
	var (
		duration time.Duration
		jobs     int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a Runtime, submit demo jobs to a named worker pool, and report counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), flags, duration, jobs)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 2*time.Second, "how long to run the demo loop before shutting down")
	cmd.Flags().IntVar(&jobs, "jobs", 10, "number of demo jobs to submit to the pool")

	return cmd
}

func runDemo(parent context.Context, flags *rootFlags, duration time.Duration, jobs int) error {
	zcfg := zap.NewProductionConfig()
	if flags.level == logLevelDebug {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else if flags.level == logLevelWarn {
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	zl, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("building zap logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	rt, err := loopkit.NewRuntime(
		loopkit.WithLogger(loopkit.NewZapLogger(zl)),
	)
	if err != nil {
		return fmt.Errorf("constructing runtime: %w", err)
	}
	rt.InstallMainThread()

	ctx, cancel := context.WithTimeout(parent, duration)
	defer cancel()

	pool := rt.Named("cli-demo", flags.poolSize)

	completed := 0
	for i := 0; i < jobs; i++ {
		i := i
		p, err := loopkit.RunThreaded[int](rt, pool, func(jobCtx context.Context) (int, error) {
			select {
			case <-time.After(10 * time.Millisecond):
				return i * i, nil
			case <-jobCtx.Done():
				return 0, jobCtx.Err()
			}
		})
		if err != nil {
			return fmt.Errorf("submitting job %d: %w", i, err)
		}
		p.ObserveBoth(
			func(int) { completed++ },
			func(error) {},
		)
	}

	go func() {
		<-ctx.Done()
		rt.Shutdown()
	}()

	rt.Run(ctx)

	fmt.Printf("jobs completed: %d/%d\n", completed, jobs)
	fmt.Printf("pool pending at shutdown: %d\n", pool.Pending())
	return nil
}
