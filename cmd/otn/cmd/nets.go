package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/session"
)

var (
	netsJSON  bool
	netsKiCad bool
	netsAll   bool
)

var netsCmd = &cobra.Command{
	Use:   "nets <layout>",
	Short: "List the nets inferred from a layout",
	Long: `Infer connectivity for a layout and print its nets.

By default only nets with two or more members are listed.

Examples:
  otn nets cpu.otl
  otn nets --all cpu.otl
  otn nets --json cpu.otl > nets.json
  otn nets --kicad board.kicad_pcb > board.net`,
	Args: cobra.ExactArgs(1),
	RunE: runNets,
}

func init() {
	rootCmd.AddCommand(netsCmd)

	netsCmd.Flags().BoolVar(&netsJSON, "json", false, "output as JSON")
	netsCmd.Flags().BoolVar(&netsKiCad, "kicad", false, "output as a KiCad netlist")
	netsCmd.Flags().BoolVar(&netsAll, "all", false, "include single-member nets")
	netsCmd.MarkFlagsMutuallyExclusive("json", "kicad")
}

func runNets(cmd *cobra.Command, args []string) error {
	s, err := openSession(args[0], nil, nil)
	if err != nil {
		return err
	}
	stats := s.Sync()
	logger.Debug("Connectivity loaded", "mode", stats.Mode, "nets", stats.Nets, "duration", stats.Duration)

	out := cmd.OutOrStdout()
	switch {
	case netsJSON:
		data, err := s.Nets().ExportJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case netsKiCad:
		text, err := s.Nets().ExportKiCad(s.Model().Object)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, text)
		return err
	default:
		return printNets(out, s)
	}
}

func printNets(w io.Writer, s *session.Session) error {
	nets := s.Nets()
	fmt.Fprintf(w, "%d nets (%d with two or more members)\n\n", nets.Len(), nets.MultiMemberCount())
	for _, n := range nets.Nets() {
		if n.Size() < 2 && !netsAll {
			continue
		}
		labels := make([]string, 0, n.Size())
		for _, id := range n.Members {
			if o, ok := s.Model().Object(id); ok {
				labels = append(labels, o.Label())
			}
		}
		fmt.Fprintf(w, "%-12s %-16s %3d  %s\n", n.ID, n.Name, n.Size(), strings.Join(labels, " "))
	}
	return nil
}
