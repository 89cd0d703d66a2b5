package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/Mohsinsiddi/curvesim/internal/scenario"
	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/spf13/cobra"
)

// ErrScenarioFailed is returned by run when a step does not match its script.
var ErrScenarioFailed = errors.New("scenario failed")

var (
	runTUI  bool
	runJSON bool
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml|scenario.json>",
	Short: "Run a scripted scenario against a fresh ledger",
	Long: `Run a scenario file against a fresh in-memory ledger and pool. The saved
ledger is not touched.

Each step is a buy, sell, set_fees, transfer, transfer_ownership, swap or
expect action; steps may assert the resulting state with expect and a
revert with expect_error. The command fails when any step does not match.

Examples:
  curvesim run scenarios/launch.yaml
  curvesim run scenarios/migration.yaml --tui`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Load(args[0])
		if err != nil {
			return err
		}
		rep, err := scenario.NewRunner(scenario.WithLogger(logger)).Run(cmd.Context(), sc)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case runJSON:
			if err := writeJSON(out, rep); err != nil {
				return err
			}
		case runTUI:
			if err := ui.RunReplay(rep); err != nil {
				return err
			}
		default:
			printReport(out, rep)
		}
		if n := len(rep.Failures()); n > 0 {
			return fmt.Errorf("%w: %d of %d step(s) did not match", ErrScenarioFailed, n, len(rep.Steps))
		}
		return nil
	},
}

func printReport(out io.Writer, rep *scenario.Report) {
	fmt.Fprintln(out, ui.StyleTitle.Render("▶ "+rep.Name))
	for _, st := range rep.Steps {
		head := fmt.Sprintf("%3d  %-20s %-12s", st.Index, st.Action, st.Account)
		switch {
		case !st.OK():
			fmt.Fprintln(out, ui.Err(head+" "+st.Failure))
		case st.Reason != "":
			fmt.Fprintln(out, ui.Success(head+" reverted: "+st.Reason))
		case st.Out != nil:
			fmt.Fprintln(out, ui.Success(head+" → "+ui.Tokens(st.Out)))
		default:
			fmt.Fprintln(out, ui.Success(head))
		}
		if st.Receipt != nil && st.Receipt.Migration != nil {
			m := st.Receipt.Migration
			fmt.Fprintln(out, ui.Info(fmt.Sprintf("     migrated %s and %s tokens to %s",
				ui.ETH(m.EthAmount), ui.Tokens(m.TokenAmount), rep.Label(m.Destination))))
		}
	}
	last := rep.Ledger
	fmt.Fprintln(out, ui.Meta(fmt.Sprintf("supply %s · reserve %s · %d event(s)",
		ui.Tokens(last.TotalSupply), ui.ETH(last.EthReserve), len(last.Events))))
	if rep.Passed() {
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("%d step(s) passed", len(rep.Steps))))
	}
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "step through the result interactively")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the report as JSON")
	runCmd.MarkFlagsMutuallyExclusive("tui", "json")
}
