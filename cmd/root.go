package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netsandbox/netsandbox/sim/trace"
)

var (
	logLevel string // Log verbosity level

	// CLI flags of the run command
	seed       int64         // Seed of the per-node random streams
	tick       time.Duration // Frame delta
	horizon    float64       // Virtual seconds to simulate
	traceLevel string        // Trace verbosity (none, deliveries)
	realtime   bool          // Pace frames on the wall clock
	watch      bool          // Rebind behavior files when they change
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "netsandbox",
	Short: "Discrete-event sandbox for scripted network nodes",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd loads a scenario and drives it until it goes idle or reaches its horizon
var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Run a scenario headless",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sc, err := LoadScenario(args[0])
		if err != nil {
			logrus.Fatalf("Failed to load scenario: %v", err)
		}
		if err := applyRunFlags(cmd, sc); err != nil {
			logrus.Fatalf("Invalid flags: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, sum, err := runScenario(ctx, sc, os.Stdout, realtime || watch, watch)
		if err != nil {
			logrus.Fatalf("Run failed: %v", err)
		}
		PrintSummary(os.Stdout, res, sum)
	},
}

// applyRunFlags overrides scenario settings with the flags the user set.
func applyRunFlags(cmd *cobra.Command, sc *Scenario) error {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		sc.Seed = seed
	}
	if flags.Changed("tick") {
		sc.TickMs = int(tick.Milliseconds())
	}
	if flags.Changed("horizon") {
		sc.HorizonS = horizon
	}
	if flags.Changed("trace-level") {
		sc.TraceLevel = traceLevel
	}
	return sc.Validate()
}

// runScenario builds sc on a console bridge writing to out and drives it. A
// batch run stops once the session is idle; a realtime run keeps going until
// the horizon or an interrupt.
func runScenario(ctx context.Context, sc *Scenario, out io.Writer, realtime, watch bool) (DriveResult, *trace.TraceSummary, error) {
	if sc.ExternalTransport {
		return DriveResult{}, nil, fmt.Errorf("external_transport needs a host to carry messages; use serve instead")
	}
	bridge := NewConsoleBridge(out)
	s, err := sc.Build(bridge)
	if err != nil {
		return DriveResult{}, nil, err
	}
	defer s.Close()

	opts := DriveOptions{
		Tick:         sc.Tick(),
		Horizon:      sc.HorizonS,
		StopWhenIdle: !realtime,
		Realtime:     realtime,
	}
	if watch {
		w, err := NewBehaviorWatcher(sc.BehaviorFiles())
		if err != nil {
			return DriveResult{}, nil, err
		}
		defer func() { _ = w.Close() }()
		opts.Watcher = w
	}
	res, err := Drive(ctx, s, opts)
	if err != nil {
		return DriveResult{}, nil, err
	}
	return res, trace.Summarize(s.Trace()), nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for the per-node random streams (overrides the scenario)")
	runCmd.Flags().DurationVar(&tick, "tick", DefaultTickMs*time.Millisecond, "Frame delta (overrides tick_ms)")
	runCmd.Flags().Float64Var(&horizon, "horizon", DefaultHorizonS, "Virtual seconds to simulate (overrides horizon_s)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "deliveries", "Trace verbosity: none, deliveries (overrides trace_level)")
	runCmd.Flags().BoolVar(&realtime, "realtime", false, "Advance one frame per wall-clock tick instead of as fast as possible")
	runCmd.Flags().BoolVar(&watch, "watch", false, "Rebind behavior files when they change (implies --realtime)")

	rootCmd.AddCommand(runCmd)
}
