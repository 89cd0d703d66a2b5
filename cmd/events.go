package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Mohsinsiddi/curvesim/internal/contract"
	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/Mohsinsiddi/curvesim/internal/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"
)

// saleAddress is the address the simulated sale contract emits logs from.
var saleAddress = wallet.Derive(contract.BondingCurveID)

var (
	eventsAfter uint64
	eventsLogs  bool
	eventsJSON  bool
	eventsPool  bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List ledger events",
	Long: `List the ledger's event log, oldest first.

--logs renders each event as the EVM log the deployed contract would emit
(topic0, indexed topics, ABI-encoded data), the way an indexer sees it.
--pool lists the pool's mint and swap records instead.

Examples:
  curvesim events
  curvesim events --after 10 --logs
  curvesim events --logs --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if eventsPool {
			return printPoolLogs(out, s)
		}

		events := s.ledger.Events(eventsAfter)
		if !eventsLogs {
			if eventsJSON {
				return writeJSON(out, events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, ui.Info("No events yet."))
				return nil
			}
			for _, e := range events {
				fmt.Fprintln(out, ui.EventLine(e, s.label))
			}
			return nil
		}

		codec, err := contract.NewLogCodec(contract.BondingCurveID, saleAddress)
		if err != nil {
			return err
		}
		logs, err := codec.EncodeEvents(events)
		if err != nil {
			return err
		}
		if eventsJSON {
			return writeJSON(out, logs)
		}
		for _, l := range logs {
			if err := printLog(out, codec, l); err != nil {
				return err
			}
		}
		return nil
	},
}

func printPoolLogs(out io.Writer, s *session) error {
	if s.pool == nil {
		fmt.Fprintln(out, ui.Info("No pool configured."))
		return nil
	}
	codec, err := contract.NewLogCodec(contract.PoolID, s.pool.Address())
	if err != nil {
		return err
	}
	var logs []*types.Log
	for i, r := range s.pool.Records() {
		l, err := codec.EncodeRecord(uint64(i+1), r)
		if err != nil {
			return err
		}
		logs = append(logs, l)
	}
	if eventsJSON {
		return writeJSON(out, logs)
	}
	if len(logs) == 0 {
		fmt.Fprintln(out, ui.Info("The pool has no records yet."))
		return nil
	}
	for _, l := range logs {
		if err := printLog(out, codec, l); err != nil {
			return err
		}
	}
	return nil
}

func printLog(out io.Writer, codec *contract.LogCodec, l *types.Log) error {
	name, fields, err := codec.Fields(l)
	if err != nil {
		return err
	}
	pairs := [][2]string{{"topic0", l.Topics[0].Hex()}}
	pairs = append(pairs, fields...)
	pairs = append(pairs, [2]string{"data", hexutil.Encode(l.Data)})
	fmt.Fprintln(out, ui.KeyValueBlock(fmt.Sprintf("#%d %s", l.BlockNumber, name), pairs))
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	eventsCmd.Flags().Uint64Var(&eventsAfter, "after", 0, "only events with a sequence number above this")
	eventsCmd.Flags().BoolVar(&eventsLogs, "logs", false, "show events as ABI-encoded EVM logs")
	eventsCmd.Flags().BoolVar(&eventsPool, "pool", false, "show the pool's records as EVM logs")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "print machine-readable JSON")
}
