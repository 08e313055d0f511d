package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/opcoord/internal/config"
	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/event"
	"github.com/Iron-Ham/opcoord/internal/executor"
	"github.com/Iron-Ham/opcoord/internal/indicator"
	"github.com/Iron-Ham/opcoord/internal/lifecycle"
	"github.com/Iron-Ham/opcoord/internal/logging"
	"github.com/Iron-Ham/opcoord/internal/metrics"
	"github.com/Iron-Ham/opcoord/internal/scenario"
	"github.com/Iron-Ham/opcoord/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a scenario through the coordinating executor",
	Long: `Run a scripted workload and print a summary of every operation.

The scenario file lists operations with their durations, exclusivity keys,
dependencies and observers, plus a timeline of background/foreground
transitions. On a terminal a live status view is shown while it runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runScenario,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("tui", "", "status view: auto, always or never")
	runCmd.Flags().Int("max-concurrent", 0, "maximum operations executing at once")
	runCmd.Flags().Bool("strict", false, "panic on contract violations")
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	if sc.Name == "" {
		sc.Name = args[0]
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := newWorkload(cfg, logger)
	if err := w.start(ctx); err != nil {
		return err
	}
	defer w.close()

	if cfg.Metrics.Enabled {
		addr, err := metrics.Serve(ctx, cfg.Metrics.Addr, w.recorder, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics\n", addr)
	}

	runner := scenario.NewRunner(w.exec, w.env, w.indicator,
		scenario.WithBus(w.bus),
		scenario.WithLogger(logger))

	var res *scenario.Result
	work := func(ctx context.Context) error {
		var err error
		res, err = runner.Run(ctx, sc)
		return err
	}

	if useTUI(cfg.TUI.Enabled, os.Stdout) {
		err = tui.New(w.bus, "opcoord: "+sc.Name).Run(ctx, work)
	} else {
		err = work(ctx)
	}
	if res != nil {
		if perr := printSummary(cmd.OutOrStdout(), res); perr != nil && err == nil {
			err = perr
		}
	}
	if errors.IsRetryable(err) {
		return errors.Wrap(err, "run ended before every operation finished, retrying may succeed")
	}
	return err
}

// newLogger opens the configured log file, or returns a no-op logger when
// logging is disabled.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(cfg.Logging.LogDir(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Rotation())
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger, nil
}

// useTUI decides whether to show the status view for mode.
func useTUI(mode string, out *os.File) bool {
	switch mode {
	case config.TUIAlways:
		return true
	case config.TUINever:
		return false
	default:
		return term.IsTerminal(int(out.Fd()))
	}
}

// workload is the set of coordination components one run shares.
type workload struct {
	cfg       *config.Config
	logger    *logging.Logger
	bus       *event.Bus
	exec      *executor.Executor
	env       *lifecycle.Environment
	indicator *indicator.Indicator
	recorder  *metrics.Recorder
}

func newWorkload(cfg *config.Config, logger *logging.Logger) *workload {
	bus := event.NewBus(event.WithLogger(logger))
	return &workload{
		cfg:    cfg,
		logger: logger,
		bus:    bus,
		exec: executor.New(
			executor.WithMaxConcurrent(cfg.Executor.MaxConcurrent),
			executor.WithStrict(cfg.Contracts.Strict),
			executor.WithBus(bus),
			executor.WithLogger(logger),
		),
		env: lifecycle.NewEnvironment(
			lifecycle.WithGrantBudget(cfg.Lifecycle.GrantBudget()),
			lifecycle.WithBus(bus),
			lifecycle.WithLogger(logger),
		),
		indicator: indicator.New(nil, nil,
			indicator.WithDelay(cfg.Indicator.HideDelay()),
			indicator.WithStrict(cfg.Contracts.Strict),
			indicator.WithBus(bus),
			indicator.WithLogger(logger),
		),
		recorder: metrics.NewRecorder(),
	}
}

// start attaches metrics, starts the executor and connects the configured
// environment transition sources.
func (w *workload) start(ctx context.Context) error {
	w.recorder.Attach(w.bus)
	if err := w.exec.Start(ctx); err != nil {
		return err
	}
	if path := w.cfg.Lifecycle.StateFile; path != "" {
		if err := lifecycle.WatchStateFile(ctx, w.env, path); err != nil {
			return err
		}
	}
	if w.cfg.Lifecycle.Signals {
		lifecycle.NotifySignals(ctx, w.env)
	}
	return nil
}

func (w *workload) close() {
	w.exec.Stop()
	w.indicator.Close()
	w.env.Close()
	w.recorder.Detach()
}

// printSummary renders one table row per operation followed by grant totals.
func printSummary(out io.Writer, res *scenario.Result) error {
	names := make(map[string]string, len(res.Operations))
	for _, s := range res.Operations {
		names[s.ID] = s.Name
	}

	table := tablewriter.NewWriter(out)
	table.Header("Operation", "Parent", "State", "Outcome", "Elapsed", "Errors")
	classes := make(map[string]int)
	for _, s := range res.Operations {
		errs := make([]string, 0, len(s.Errors))
		for _, err := range s.Errors {
			errs = append(errs, err.Error())
		}
		outcome := errors.Outcome(s.Errors)
		if outcome == "" {
			outcome = metrics.OutcomeSucceeded
		} else {
			classes[outcome]++
		}
		if err := table.Append([]string{
			s.Name,
			names[s.ParentID],
			s.State.String(),
			outcome,
			s.Elapsed.Round(time.Millisecond).String(),
			strings.Join(errs, "; "),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s: %d operations in %s, %d failed\n",
		res.Name, len(res.Operations), res.Elapsed.Round(time.Millisecond), len(res.Failed()))
	if len(classes) > 0 {
		keys := make([]string, 0, len(classes))
		for k := range classes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%d %s", classes[k], k))
		}
		fmt.Fprintf(out, "Errors by class: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(out, "Grants: %d begun, %d ended, %d expired\n",
		res.Grants.Begun, res.Grants.Ended, res.Grants.Expired)
	return nil
}
