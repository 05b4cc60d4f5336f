package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/asset-scheduler/internal/batch"
	"github.com/hochfrequenz/asset-scheduler/internal/config"
	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/observer"
	"github.com/hochfrequenz/asset-scheduler/internal/pipeline"
	"github.com/hochfrequenz/asset-scheduler/internal/runstore"
	"github.com/hochfrequenz/asset-scheduler/tui"
	"github.com/hochfrequenz/asset-scheduler/web/api"
)

var (
	runDryRun     bool
	runForce      bool
	daemonWatch   bool
	daemonNoServe bool
	historyLimit  int
	historyStatus string
	historySince  time.Duration
	outputFormat  string
	servePort     int
	watchDebounce time.Duration
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile the schedule once: preview upcoming rows, execute due ones",
		RunE:  runRun,
	}
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "validate and report without writing to the platform")
	runCmd.Flags().BoolVar(&runForce, "force", false, "validate even when the schedule is unchanged and nothing is due")
	rootCmd.AddCommand(runCmd)

	// preview command
	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Validate every row in the horizon and write the preview sheet, never execute",
		RunE:  runPreview,
	}
	rootCmd.AddCommand(previewCmd)

	// daemon command
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the configured cron jobs and the status server",
		RunE:  runDaemon,
	}
	daemonCmd.Flags().BoolVar(&daemonWatch, "watch", false, "also run when the local workbook is saved")
	daemonCmd.Flags().BoolVar(&daemonNoServe, "no-server", false, "do not start the status server")
	daemonCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period after a save before running")
	rootCmd.AddCommand(daemonCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the preview whenever the local workbook is saved",
		RunE:  runWatch,
	}
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period after a save before running")
	rootCmd.AddCommand(watchCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status (skipped, previewed, executed, failed)")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "only runs started within this duration")
	historyCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(historyCmd)

	// show command
	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run and its report rows",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	showCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(showCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last run and the next scheduled runs",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// config command
	configCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration",
		RunE:  runCheckConfig,
	}
	rootCmd.AddCommand(configCmd)

	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch TUI dashboard",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the status server without scheduling runs",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runOnce(opts pipeline.Options) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(ctx)
	if err != nil {
		return err
	}
	res, err := runner.Run(ctx, opts)
	if res != nil {
		printResult(os.Stdout, res)
	}
	return err
}

func runRun(cmd *cobra.Command, args []string) error {
	mode := domain.ModeAuto
	if runDryRun {
		mode = domain.ModeDryRun
	}
	return runOnce(pipeline.Options{Mode: mode, Force: runForce})
}

func runPreview(cmd *cobra.Command, args []string) error {
	return runOnce(pipeline.Options{Mode: domain.ModePreview, Force: true})
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if daemonWatch && a.cfg.Source.Kind != config.SourceXLSX {
		return errors.New("--watch needs an xlsx source")
	}
	runner, err := a.runner(ctx)
	if err != nil {
		return err
	}
	loc, _ := a.cfg.Location()

	sched, err := batch.NewScheduler(a.cfg.BatchJobs(), loc, func(ctx context.Context, job batch.Job) error {
		_, err := runner.Run(ctx, pipeline.Options{Mode: job.Mode})
		return err
	}, a.log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Start(ctx)
	})

	if !daemonNoServe {
		addr := fmt.Sprintf("%s:%d", a.cfg.Web.Host, a.cfg.Web.Port)
		server := api.NewServer(a.store, a.obs, sched, addr, a.log)
		g.Go(func() error {
			return server.Start(ctx)
		})
	}

	if daemonWatch {
		jobs := sched.ListJobs()
		watcher, err := observer.NewScheduleWatcher(a.cfg.Source.Path, func(path string) {
			a.log.WithField("path", path).Info("Schedule saved, running")
			if _, err := sched.Trigger(ctx, jobs[0]); err != nil && !errors.Is(err, batch.ErrBusy) {
				a.log.WithError(err).Error("Run after save failed")
			}
		}, a.log)
		if err != nil {
			return fmt.Errorf("watch %s: %w", a.cfg.Source.Path, err)
		}
		watcher.SetDebounce(watchDebounce)
		g.Go(func() error {
			watcher.Start(ctx)
			<-ctx.Done()
			watcher.Stop()
			return nil
		})
	}

	a.log.WithField("jobs", sched.ListJobs()).Info("Daemon started")
	return g.Wait()
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Source.Kind != config.SourceXLSX {
		return errors.New("watch needs an xlsx source")
	}
	runner, err := a.runner(ctx)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	watcher, err := observer.NewScheduleWatcher(a.cfg.Source.Path, func(path string) {
		mu.Lock()
		defer mu.Unlock()
		res, err := runner.Run(ctx, pipeline.Options{Mode: domain.ModePreview})
		if err != nil {
			a.log.WithError(err).Error("Preview failed")
			return
		}
		printResult(os.Stdout, res)
	}, a.log)
	if err != nil {
		return fmt.Errorf("watch %s: %w", a.cfg.Source.Path, err)
	}
	watcher.SetDebounce(watchDebounce)
	watcher.Start(ctx)
	defer watcher.Stop()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", a.cfg.Source.Path)
	<-ctx.Done()
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := runstore.ListOptions{Status: domain.RunStatus(historyStatus), Limit: historyLimit}
	if historySince > 0 {
		opts.Since = time.Now().Add(-historySince)
	}
	runs, err := a.store.ListRuns(cmd.Context(), opts)
	if err != nil {
		return err
	}
	return printRuns(os.Stdout, outputFormat, runs)
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.store.GetRun(cmd.Context(), args[0])
	if errors.Is(err, runstore.ErrNotFound) {
		return fmt.Errorf("run %s not found", args[0])
	}
	if err != nil {
		return err
	}
	results, err := a.store.Results(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	return printRunDetail(os.Stdout, outputFormat, run, results)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	sched, err := batch.NewScheduler(a.cfg.BatchJobs(), loc, nil, a.log)
	if err != nil {
		return err
	}

	runs, err := a.store.ListRuns(cmd.Context(), runstore.ListOptions{Limit: 1})
	if err != nil {
		return err
	}
	return printStatus(os.Stdout, a.cfg, sched, runs, time.Now().In(loc))
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}
	fmt.Println("Config OK")
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	sched, err := batch.NewScheduler(a.cfg.BatchJobs(), loc, nil, a.log)
	if err != nil {
		return err
	}

	model := tui.NewModel(tui.ModelConfig{
		Source:  a.store,
		Account: a.cfg.General.AccountName,
		NextRun: func(now time.Time) time.Time { return nextRun(sched, now) },
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	port := servePort
	if port == 0 {
		port = a.cfg.Web.Port
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Web.Host, port)
	server := api.NewServer(a.store, a.obs, nil, addr, a.log)

	fmt.Printf("Status server at http://%s\n", addr)
	return server.Start(ctx)
}

// nextRun returns the earliest next run across all jobs
func nextRun(sched *batch.Scheduler, now time.Time) time.Time {
	var next time.Time
	for _, name := range sched.ListJobs() {
		t := sched.NextRun(name, now)
		if !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	return next
}
