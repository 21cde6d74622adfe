package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceERC/internal/watch"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/review"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/session"
)

var (
	watchDebounce    time.Duration
	watchMetricsAddr string
	watchState       string
)

var watchCmd = &cobra.Command{
	Use:   "watch <layout>",
	Short: "Re-check a layout whenever it changes",
	Long: `Watch a layout, its rules file and its decisions file, and re-run the
checks after every change. Checks run in the background; saves that arrive
during a run collapse into one follow-up run.

Examples:
  otn watch cpu.otl
  otn watch --metrics-addr :9464 cpu.otl`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce,
		"quiet period before a change is handled")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address")
	watchCmd.Flags().StringVar(&watchState, "state", "",
		"decisions file (default <layout>.review.yaml)")
}

// sessionReport ties a scheduler report to the session that asked for it.
type sessionReport struct {
	session *session.Session
	report  erc.Report
}

func runWatch(cmd *cobra.Command, args []string) error {
	layoutPath := args[0]
	statePath := watchState
	if statePath == "" {
		statePath = cfg.StatePath(layoutPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	metrics := erc.NewMetrics(promReg)
	if watchMetricsAddr != "" {
		srv := serveMetrics(watchMetricsAddr, promReg)
		defer srv.Shutdown(context.Background())
	}

	paths := []string{layoutPath}
	if cfg.Checks.RulesFile != "" {
		paths = append(paths, cfg.Checks.RulesFile)
	}
	if info, err := os.Stat(filepath.Dir(statePath)); err == nil && info.IsDir() {
		paths = append(paths, statePath)
	}
	w, err := watch.New(watch.Config{Paths: paths, Debounce: watchDebounce, Logger: logger})
	if err != nil {
		return err
	}
	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Run(ctx) }()

	reports := make(chan sessionReport, 1)
	var current *session.Session

	// reload reopens everything from disk and schedules a check. Decisions
	// are re-read so that 'otn review' in another shell takes effect.
	reload := func() error {
		s, err := openSession(layoutPath, nil, metrics)
		if err != nil {
			return err
		}
		prev, err := review.LoadFile(statePath)
		if err != nil {
			return err
		}
		s.Restore(prev)
		sched := erc.NewScheduler(ctx, s.Runner(), func(r erc.Report) {
			select {
			case reports <- sessionReport{session: s, report: r}:
			case <-ctx.Done():
			}
		})
		current = s
		s.Schedule(sched)
		return nil
	}

	if err := reload(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "watching %s (ctrl-c to stop)\n", layoutPath)

	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return <-watchErr
			}
			logger.Debug("Change detected", "paths", ev.Paths)
			if err := reload(); err != nil {
				logger.Error("Reload failed", "layout", layoutPath, "error", err)
				fmt.Fprintf(out, "%s: %v\n", layoutPath, err)
			}

		case sr := <-reports:
			if sr.session != current {
				continue
			}
			if sr.report.Err != nil {
				if !errors.Is(sr.report.Err, context.Canceled) {
					logger.Error("Check failed", "layout", layoutPath, "error", sr.report.Err)
				}
				continue
			}
			sum, ok := current.Publish(sr.report)
			if !ok {
				continue
			}
			vs := current.Store().Filter(func(v erc.Violation) bool { return v.State != erc.Rejected })
			fmt.Fprintf(out, "\n[%s] checked in %s\n", time.Now().Format("15:04:05"), sr.report.Duration.Round(time.Millisecond))
			printReports(out, []LayoutReport{{Layout: layoutPath, State: statePath, Summary: sum, Violations: vs}})

		case <-ctx.Done():
			return nil
		}
	}
}

func serveMetrics(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("Serving metrics", "addr", addr)
	return srv
}
