package cmd

import (
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/Mohsinsiddi/curvesim/internal/wallet"
	"github.com/spf13/cobra"
)

var (
	walletKeyFlag string
	walletYes     bool
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage named accounts",
}

var walletAddCmd = &cobra.Command{
	Use:   "add <name> [address]",
	Short: "Add a named account",
	Long: `Add a named account. Without an address the name is bound to its
derived simulator address; with --key the address is derived from a private
key, which is not stored.

Examples:
  curvesim wallet add alice
  curvesim wallet add desk 0x00000000000000000000000000000000000000b1
  curvesim wallet add signer --key 0x...`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		mgr := newWalletManager()
		out := cmd.OutOrStdout()

		var (
			w   *wallet.Wallet
			err error
		)
		switch {
		case walletKeyFlag != "" && len(args) == 2:
			return errors.New("give either an address or --key, not both")
		case walletKeyFlag != "":
			w, err = mgr.AddWithKey(name, walletKeyFlag)
		case len(args) == 2:
			w = &wallet.Wallet{Address: args[1], Type: wallet.TypeWatchOnly}
			err = mgr.Add(name, w)
		default:
			w, err = mgr.AddNamed(name)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Account %q added: %s", name, ui.Addr(w.Address))))
		fmt.Fprintln(out, ui.Hint(fmt.Sprintf("Set as default with: curvesim wallet use %s", name)))
		return nil
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List named accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wallets := newWalletManager().List()
		out := cmd.OutOrStdout()

		if len(wallets) == 0 {
			fmt.Fprintln(out, ui.Info("No accounts yet."))
			fmt.Fprintln(out, ui.Hint("Add one with: curvesim wallet add alice"))
			return nil
		}

		t := ui.NewTable([]ui.Column{
			{Title: "Name", Width: 16},
			{Title: "Address", Width: 44},
			{Title: "Type", Width: 10},
			{Title: "Default", Width: 8},
		})
		for _, w := range wallets {
			def := ""
			if w.IsDefault || w.Name == cfg.DefaultAccount {
				def = "✓"
			}
			t.AddRow(ui.Row{w.Name, w.Address, walletTypeLabel(w.Type), def})
		}
		fmt.Fprintln(out, t.Render())
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d account(s)", len(wallets))))
		return nil
	},
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		out := cmd.OutOrStdout()
		if !walletYes && !ui.ConfirmDanger(cmd.InOrStdin(), out, fmt.Sprintf("Remove account %q?", name)) {
			fmt.Fprintln(out, ui.Meta("Cancelled."))
			return nil
		}
		if err := newWalletManager().Remove(name); err != nil {
			return err
		}
		if cfg.DefaultAccount == name {
			cfg.DefaultAccount = ""
			if err := cfg.Save(); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Account %q removed.", name)))
		return nil
	},
}

var walletUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the default trading account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := newWalletManager().SetDefault(name); err != nil {
			return err
		}
		cfg.DefaultAccount = name
		if err := cfg.Save(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Default account set to %q.", name)))
		fmt.Fprintln(out, ui.Hint("Trading commands use it when --account is not given."))
		return nil
	},
}

// walletTypeLabel converts a wallet type to a user-friendly label.
func walletTypeLabel(t string) string {
	switch t {
	case wallet.TypeNamed:
		return "named"
	case wallet.TypeImported:
		return "imported"
	default:
		return "address"
	}
}

func init() {
	walletAddCmd.Flags().StringVar(&walletKeyFlag, "key", "", "derive the address from this private key (the key is not stored)")
	walletRemoveCmd.Flags().BoolVarP(&walletYes, "yes", "y", false, "skip the confirmation prompt")
	walletCmd.AddCommand(walletAddCmd, walletListCmd, walletRemoveCmd, walletUseCmd)
}
