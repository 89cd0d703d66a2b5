package cmd

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/Mohsinsiddi/curvesim/internal/scenario"
	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/Mohsinsiddi/curvesim/internal/units"
	"github.com/spf13/cobra"
)

// ErrPropertyViolated is returned by sweep when any run breaks a property.
var ErrPropertyViolated = errors.New("property violated")

var (
	sweepRuns      int
	sweepSteps     int
	sweepTraders   int
	sweepWorkers   int
	sweepSeed      uint64
	sweepThreshold string
	sweepMaxBuy    string
	sweepJSON      bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fuzz the ledger with random trading and check its invariants",
	Long: `Run many independent random trading sequences in parallel, each against
a fresh ledger and pool, checking after every operation that balances sum
to the supply, rejected operations change nothing, the reserve stays
solvent, round trips never profit, quotes are monotone, the migration
latch flips once and reentrant payouts are blocked.

Tax rates and the migration percentage come from the config; the threshold
defaults to 25 ETH so most runs migrate. Results depend only on the flags,
not on --workers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := scenario.DefaultSweepConfig()
		sc.Runs, sc.Steps, sc.Traders, sc.Workers, sc.Seed = sweepRuns, sweepSteps, sweepTraders, sweepWorkers, sweepSeed

		params, err := cfg.Params()
		if err != nil {
			return err
		}
		sc.Params.BasePrice, sc.Params.Slope = params.BasePrice, params.Slope
		if sweepThreshold != "" {
			if sc.Params.Threshold, err = units.ParseWithUnit(sweepThreshold); err != nil {
				return fmt.Errorf("--threshold: %w", err)
			}
		}
		if sc.MaxBuy, err = units.ParseWithUnit(sweepMaxBuy); err != nil {
			return fmt.Errorf("--max-buy: %w", err)
		}
		sc.Rates = cfg.Rates()
		sc.MigrationPercent = cfg.MigrationPercent

		out := cmd.OutOrStdout()
		var spin *ui.Spinner
		if !sweepJSON {
			spin = ui.NewSpinner(cmd.ErrOrStderr(), fmt.Sprintf("sweeping %d run(s) × %d step(s)…", sc.Runs, sc.Steps))
			spin.Start()
		}
		stats, err := scenario.Sweep(cmd.Context(), sc, scenario.WithLogger(logger))
		if spin != nil {
			spin.Stop()
		}
		if err != nil {
			return err
		}

		if sweepJSON {
			if err := writeJSON(out, stats); err != nil {
				return err
			}
		} else {
			printSweep(cmd, stats)
		}
		if !stats.OK() {
			return fmt.Errorf("%w: %d violation(s)", ErrPropertyViolated, len(stats.Violations))
		}
		return nil
	},
}

func printSweep(cmd *cobra.Command, stats *scenario.SweepStats) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.KeyValueBlock("Sweep", [][2]string{
		{"Runs", fmt.Sprintf("%d", stats.Runs)},
		{"Operations", fmt.Sprintf("%d", stats.Steps)},
		{"Buys", fmt.Sprintf("%d", stats.Buys)},
		{"Sells", fmt.Sprintf("%d", stats.Sells)},
		{"Fee changes", fmt.Sprintf("%d", stats.FeeChanges)},
		{"Rejected", fmt.Sprintf("%d", stats.Rejected)},
		{"Reentries blocked", fmt.Sprintf("%d", stats.Reentries)},
		{"Migrations", fmt.Sprintf("%d", stats.Migrations)},
		{"Volume", ui.ETH(stats.Volume)},
	}))
	if stats.OK() {
		fmt.Fprintln(out, ui.Success("All properties held."))
		return
	}
	for _, v := range stats.Violations {
		fmt.Fprintln(out, ui.Err(v.String()))
	}
}

func init() {
	f := sweepCmd.Flags()
	f.IntVar(&sweepRuns, "runs", 32, "independent trading sequences")
	f.IntVar(&sweepSteps, "steps", 200, "operations per sequence")
	f.IntVar(&sweepTraders, "traders", 5, "accounts per sequence")
	f.IntVar(&sweepWorkers, "workers", runtime.NumCPU(), "sequences run in parallel")
	f.Uint64Var(&sweepSeed, "seed", 1, "random seed")
	f.StringVar(&sweepThreshold, "threshold", "25", "migration threshold in ETH")
	f.StringVar(&sweepMaxBuy, "max-buy", "5", "largest single random buy in ETH")
	f.BoolVar(&sweepJSON, "json", false, "print statistics as JSON")
}
