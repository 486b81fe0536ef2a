package main

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node height, mempool size and next order id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().Status(cmd.Context())
		if err != nil {
			return err
		}
		printJSON(cmd, st)
		return nil
	},
}

var accountCmd = &cobra.Command{
	Use:   "account <pubkey|keyfile>",
	Short: "Show a raw ledger account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := resolvePubkey(args[0])
		if err != nil {
			return err
		}
		acc, err := newClient().Account(cmd.Context(), key)
		if err != nil {
			return err
		}
		printJSON(cmd, acc)
		return nil
	},
}

var txCmd = &cobra.Command{
	Use:   "tx <id>",
	Short: "Show a transaction's status and receipt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if !strings.HasPrefix(id, "0x") {
			id = "0x" + id
		}
		st, err := newClient().TxStatus(cmd.Context(), common.HexToHash(id))
		if err != nil {
			return err
		}
		printJSON(cmd, st)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, accountCmd, txCmd)
}
