package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Mohsinsiddi/curvesim/internal/contract"
	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/sha3"
)

var abiCmd = &cobra.Command{
	Use:   "abi [bondingcurve|curvepool]",
	Short: "List the simulated contracts' functions and events",
	Long: `List the functions (with 4-byte selectors) and events (with topic0) of
a built-in contract ABI. Without an argument every built-in is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := contract.AllBuiltins()
		if len(args) == 1 {
			b, ok := contract.GetBuiltin(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", contract.ErrUnknownBuiltin, args[0])
			}
			kinds = []contract.BuiltinKind{b}
		}
		out := cmd.OutOrStdout()
		for _, b := range kinds {
			fmt.Fprintln(out, ui.StyleTitle.Render(b.Name+"  ("+b.ID+")"))
			t := ui.NewTable([]ui.Column{
				{Title: "Kind", Width: 9},
				{Title: "Signature", Width: 52},
				{Title: "Selector / topic0", Width: 66},
			})
			for _, e := range b.ABI {
				switch e.Type {
				case "function":
					kind := "write"
					if e.IsReadFunction() {
						kind = "read"
					}
					t.AddRow(ui.Row{kind, e.Signature(), e.Selector()})
				case "event":
					h := e.Hash()
					t.AddRow(ui.Row{"event", e.Signature(), "0x" + hex.EncodeToString(h[:])})
				}
			}
			fmt.Fprintln(out, t.Render())
		}
		return nil
	},
}

var abiSelectorCmd = &cobra.Command{
	Use:   "selector <signature-or-selector>",
	Short: "Compute a 4-byte selector, or look one up in the built-in ABIs",
	Long: `Compute a 4-byte function selector from a signature, or look up a
selector among the built-in ABIs.

Examples:
  curvesim abi selector "transfer(address to, uint256 amount)"   # → 0xa9059cbb
  curvesim abi selector 0x70a08231                               # → balanceOf(address)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		out := cmd.OutOrStdout()

		if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
			sig := lookupSelector(input)
			if sig == "" {
				sig = ui.Meta("(not in any built-in ABI)")
			}
			fmt.Fprintln(out, ui.KeyValueBlock("Selector Lookup", [][2]string{
				{"Selector", strings.ToLower(input)},
				{"Function", ui.Val(sig)},
			}))
			return nil
		}

		sig := normalizeSignature(input)
		hash := keccak([]byte(sig))
		fmt.Fprintln(out, ui.KeyValueBlock("Function Selector", [][2]string{
			{"Signature", sig},
			{"Selector", ui.Val("0x" + hex.EncodeToString(hash[:4]))},
			{"Full hash", "0x" + hex.EncodeToString(hash)},
		}))
		return nil
	},
}

func keccak(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// lookupSelector returns the signature of the built-in function whose
// selector is sel, or "".
func lookupSelector(sel string) string {
	sel = strings.ToLower(sel)
	for _, b := range contract.AllBuiltins() {
		for _, e := range b.ABI {
			if e.Type == "function" && e.Selector() == sel {
				return e.Signature()
			}
		}
	}
	return ""
}

// normalizeSignature removes parameter names, keeping only types.
// "sellTokens(uint256 tokenAmount)" → "sellTokens(uint256)"
func normalizeSignature(sig string) string {
	sig = strings.TrimSpace(sig)
	open := strings.Index(sig, "(")
	if open < 0 || !strings.HasSuffix(sig, ")") {
		return sig
	}
	name := sig[:open]
	params := strings.TrimSpace(sig[open+1 : len(sig)-1])
	if params == "" {
		return name + "()"
	}
	var types []string
	for _, p := range strings.Split(params, ",") {
		if parts := strings.Fields(p); len(parts) > 0 {
			types = append(types, parts[0])
		}
	}
	return name + "(" + strings.Join(types, ",") + ")"
}

func init() {
	abiCmd.AddCommand(abiSelectorCmd)
}
