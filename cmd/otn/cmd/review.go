package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/review"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/session"
)

var reviewState string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Accept, reject or reset violations",
	Long: `Record review decisions for a layout's violations.

Violations are named by id, or by any unique prefix of it, as printed by
'otn check'. Decisions are written to the layout's decisions file.

Examples:
  otn review accept cpu.otl 3f2a9c1e
  otn review reject cpu.otl 3f2a 77b0
  otn review reset cpu.otl 3f2a9c1e
  otn review list cpu.otl`,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.PersistentFlags().StringVar(&reviewState, "state", "",
		"decisions file (default <layout>.review.yaml)")

	for _, d := range []struct {
		name, done, short string
		apply             func(*session.Session, ...string) error
	}{
		{"accept", "accepted", "Accept violations", (*session.Session).Accept},
		{"reject", "rejected", "Reject violations as false positives", (*session.Session).Reject},
		{"reset", "reset", "Return violations to pending", resetViolations},
	} {
		d := d
		reviewCmd.AddCommand(&cobra.Command{
			Use:   d.name + " <layout> <id>...",
			Short: d.short,
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDecide(cmd, args[0], args[1:], d.done, d.apply)
			},
		})
	}

	reviewCmd.AddCommand(&cobra.Command{
		Use:   "list <layout>",
		Short: "List recorded decisions",
		Args:  cobra.ExactArgs(1),
		RunE:  runReviewList,
	})
}

func resetViolations(s *session.Session, ids ...string) error {
	for _, id := range ids {
		if err := s.Store().Reset(id); err != nil {
			return err
		}
	}
	s.Annotate(s.Model())
	return nil
}

func statePathFor(layout string) string {
	if reviewState != "" {
		return reviewState
	}
	return cfg.StatePath(layout)
}

func runDecide(cmd *cobra.Command, layout string, refs []string, done string, apply func(*session.Session, ...string) error) error {
	statePath := statePathFor(layout)
	s, _, err := openReviewed(cmd.Context(), layout, statePath, nil, nil)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, err := resolveID(s.Store(), ref)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := apply(s, ids...); err != nil {
		return err
	}
	if err := review.SaveFile(statePath, layout, s.Store()); err != nil {
		return err
	}
	logger.Debug("Saved decisions", "path", statePath, "count", len(ids))

	out := cmd.OutOrStdout()
	for _, id := range ids {
		v, _ := s.Store().Get(id)
		fmt.Fprintf(out, "%s %s  %s\n", done, id, v.Description)
	}
	return nil
}

// resolveID expands a unique id prefix.
func resolveID(s *review.Store, ref string) (string, error) {
	if _, ok := s.Get(ref); ok {
		return ref, nil
	}
	var found []string
	for _, v := range s.Violations() {
		if strings.HasPrefix(v.ID, ref) {
			found = append(found, v.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: %s", review.ErrUnknownViolation, ref)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("ambiguous id %q matches %d violations", ref, len(found))
	}
}

func runReviewList(cmd *cobra.Command, args []string) error {
	s, _, err := openReviewed(cmd.Context(), args[0], statePathFor(args[0]), nil, nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	decided := s.Store().Filter(func(v erc.Violation) bool { return v.State != erc.Pending })
	if len(decided) == 0 {
		fmt.Fprintln(out, "no decisions recorded")
		return nil
	}
	for _, v := range decided {
		fmt.Fprintf(out, "%s  %-8s %-32s %s\n", v.ID, v.State, v.RuleKey, v.Description)
	}
	return nil
}
