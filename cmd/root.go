package cmd

import (
	"fmt"
	"os"

	"github.com/Mohsinsiddi/curvesim/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/curvesim/cmd.Version=1.2.3" .
var Version = "0.3.0"

var (
	cfgDir  string
	cfg     *config.Config
	logger  = zap.NewNop()
	verbose bool
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "curvesim",
	Short: "Bonding-curve token sale simulator",
	Long: `curvesim simulates a bonding-curve token sale off-chain.

  Tokens are minted and burned along a linear price curve. Every trade is
  taxed three ways, and once the market cap crosses the threshold the
  reserve migrates into a constant-product pool.

State lives in the config directory (default ~/.curvesim, or
CURVESIM_CONFIG_DIR) and persists between invocations. Accounts are wallet
names or hex addresses; unknown names map to a stable derived address.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		if logger, err = newLogger(verbose); err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger.Debug("config loaded", zap.String("dir", cfg.Dir()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errLine(err))
		os.Exit(1)
	}
}

// newLogger returns a development logger when verbose, otherwise a
// production logger that only reports warnings.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	c := zap.NewProductionConfig()
	c.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	c.OutputPaths = []string{"stderr"}
	return c.Build()
}

func init() {
	// CURVESIM_CONFIG_DIR env var overrides --config flag.
	if envDir := os.Getenv("CURVESIM_CONFIG_DIR"); envDir != "" {
		cfgDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.curvesim)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		initCmd,
		statusCmd,
		quoteCmd,
		buyCmd,
		sellCmd,
		transferCmd,
		feesCmd,
		ownerCmd,
		eventsCmd,
		holdersCmd,
		poolCmd,
		walletCmd,
		configCmd,
		convertCmd,
		runCmd,
		sweepCmd,
		abiCmd,
	)
}
