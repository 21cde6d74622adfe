package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/review"
)

var (
	checkState       string
	checkStrict      bool
	checkJSON        bool
	checkAll         bool
	checkMetricsFile string
	checkJobs        int
)

var checkCmd = &cobra.Command{
	Use:   "check <layout|glob>...",
	Short: "Run electrical rule checks",
	Long: `Run the rule checks over every layout matched by the arguments.

Arguments may be file names or doublestar globs ('boards/**/*.otl'). Files
are checked in parallel. Each layout is reconciled against its decisions
file, so accepted and rejected violations keep their state; rejected ones
are hidden unless --all is given.

With --strict the command fails when any error-severity violation is still
pending.

Examples:
  otn check cpu.otl
  otn check --strict 'boards/**/*.{otl,kicad_pcb}'
  otn check --json --state review.yaml cpu.otl`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkState, "state", "",
		"decisions file (single layout only; default <layout>.review.yaml)")
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false,
		"fail when error violations are pending")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false,
		"output as JSON")
	checkCmd.Flags().BoolVar(&checkAll, "all", false,
		"include rejected violations")
	checkCmd.Flags().StringVar(&checkMetricsFile, "metrics-file", "",
		"write run metrics in Prometheus text format")
	checkCmd.Flags().IntVarP(&checkJobs, "jobs", "j", 0,
		"layouts checked in parallel (default GOMAXPROCS)")
}

// LayoutReport is the check outcome of one layout.
type LayoutReport struct {
	Layout     string          `json:"layout"`
	State      string          `json:"state"`
	Summary    review.Summary  `json:"summary"`
	Violations []erc.Violation `json:"violations"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	files, err := expandInputs(args)
	if err != nil {
		return err
	}
	if len(files) > 1 && (checkState != "" || cfg.Review.StateFile != "") {
		return fmt.Errorf("a single decisions file cannot serve %d layouts", len(files))
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	promReg := prometheus.NewRegistry()
	metrics := erc.NewMetrics(promReg)

	jobs := checkJobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	reports := make([]LayoutReport, len(files))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(jobs)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			statePath := cfg.StatePath(file)
			if checkState != "" {
				statePath = checkState
			}
			s, sum, err := openReviewed(ctx, file, statePath, reg, metrics)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			vs := s.Store().Violations()
			if !checkAll {
				vs = s.Store().Filter(func(v erc.Violation) bool { return v.State != erc.Rejected })
			}
			reports[i] = LayoutReport{Layout: file, State: statePath, Summary: sum, Violations: vs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if checkMetricsFile != "" {
		if err := prometheus.WriteToTextfile(checkMetricsFile, promReg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if checkJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		printReports(out, reports)
	}

	if checkStrict {
		pending := 0
		for _, r := range reports {
			pending += r.Summary.PendingErrors
		}
		if pending > 0 {
			return fmt.Errorf("%d error violation(s) pending review", pending)
		}
	}
	return nil
}

// expandInputs resolves file names and doublestar globs into a sorted,
// de-duplicated file list.
func expandInputs(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, arg := range args {
		if !doublestar.ValidatePathPattern(arg) {
			return nil, fmt.Errorf("invalid pattern %q", arg)
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err != nil {
				return nil, fmt.Errorf("no layout matches %q", arg)
			}
			matches = []string{arg}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func printReports(w io.Writer, reports []LayoutReport) {
	var total review.Summary
	for _, r := range reports {
		fmt.Fprintf(w, "%s: %d violation(s), %d pending (%d errors)\n",
			r.Layout, r.Summary.Total, r.Summary.Pending, r.Summary.PendingErrors)
		for _, v := range r.Violations {
			fmt.Fprintf(w, "  %s  %-8s %-9s %-32s %s\n",
				v.ID, v.State, v.Severity, v.RuleKey, v.Description)
		}
		total.Total += r.Summary.Total
		total.Accepted += r.Summary.Accepted
		total.Rejected += r.Summary.Rejected
		total.Pending += r.Summary.Pending
		total.PendingErrors += r.Summary.PendingErrors
	}
	if len(reports) > 1 {
		fmt.Fprintf(w, "\n%d layouts: %d violation(s), %d accepted, %d rejected, %d pending (%d errors)\n",
			len(reports), total.Total, total.Accepted, total.Rejected, total.Pending, total.PendingErrors)
	}
}
