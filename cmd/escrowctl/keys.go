package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/escrowd/pkg/crypto"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 key file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		if err := signer.SaveKeyFile(keygenOut); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pubkey: %s\nsaved:  %s\n", signer.Pubkey(), keygenOut)
		return nil
	},
}

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey <keyfile>",
	Short: "Print the pubkey of a key file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := crypto.LoadKeyFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signer.Pubkey())
		return nil
	},
}

var (
	airdropTo       string
	airdropLamports uint64
)

var airdropCmd = &cobra.Command{
	Use:   "airdrop",
	Short: "Credit devnet lamports to an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := resolvePubkey(airdropTo)
		if err != nil {
			return err
		}
		resp, err := newClient().Airdrop(cmd.Context(), to, airdropLamports)
		if err != nil {
			return err
		}
		printJSON(cmd, resp)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd, pubkeyCmd, airdropCmd)

	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "escrowd-key.json", "where to write the key file")

	airdropCmd.Flags().StringVar(&airdropTo, "to", "", "recipient pubkey or key file")
	airdropCmd.Flags().Uint64Var(&airdropLamports, "lamports", 0, "lamports to credit")
	airdropCmd.MarkFlagRequired("to")
	airdropCmd.MarkFlagRequired("lamports")
}
