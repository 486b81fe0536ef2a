package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/escrowd/params"
	"github.com/uhyunpark/escrowd/pkg/client"
	"github.com/uhyunpark/escrowd/pkg/crypto"
	"github.com/uhyunpark/escrowd/pkg/escrow"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

var (
	// Global flags
	envFile   string
	nodeURL   string
	programID string
	noWait    bool
	timeout   time.Duration

	cfg params.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "escrowctl",
	Short: "escrowctl - client for the escrowd marketplace",
	Long: `escrowctl builds, signs and submits transactions to an escrowd node.

Keys are ed25519 key files written by "escrowctl keygen". Every command that
changes state waits for the transaction receipt unless --no-wait is given.

Example:
    escrowctl keygen --out keys/seller.json
    escrowctl airdrop --to keys/seller.json --lamports 5000000000
    escrowctl order create --authority keys/auth.json --seller keys/seller.json --amount 1000000 --price 2`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = params.LoadFromEnv(envFile)
		if nodeURL == "" {
			nodeURL = cfg.Client.NodeURL
		}
		if programID == "" {
			programID = cfg.Chain.EscrowProgramID
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", ".env file to load (default ./.env)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "node REST endpoint (default $NODE_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&programID, "program", "", "escrow program id (default $ESCROW_PROGRAM_ID or built-in)")
	rootCmd.PersistentFlags().BoolVar(&noWait, "no-wait", false, "return after submission without waiting for the receipt")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for a receipt")
}

func newClient() *client.Client {
	return client.New(nodeURL)
}

func escrowProgramID() (ledger.Pubkey, error) {
	if programID == "" {
		return escrow.DefaultProgramID, nil
	}
	return ledger.PubkeyFromBase58(programID)
}

// resolvePubkey accepts either a base58 pubkey or a key file path
func resolvePubkey(s string) (ledger.Pubkey, error) {
	if pk, err := ledger.PubkeyFromBase58(s); err == nil {
		return pk, nil
	}
	signer, err := crypto.LoadKeyFile(s)
	if err != nil {
		return ledger.Pubkey{}, fmt.Errorf("%q is neither a pubkey nor a key file: %w", s, err)
	}
	return signer.Pubkey(), nil
}

// loadKey reads the key file named by a required flag
func loadKey(flag, path string) (*crypto.Signer, error) {
	if path == "" {
		return nil, fmt.Errorf("--%s is required", flag)
	}
	return crypto.LoadKeyFile(path)
}

// submit signs tx with every signer, sends it, and waits for the receipt
func submit(ctx context.Context, cmd *cobra.Command, tx *ledger.Transaction, signers ...*crypto.Signer) error {
	for _, s := range signers {
		s.SignTransaction(tx)
	}
	c := newClient()
	resp, err := c.SubmitTx(ctx, tx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "submitted %s (%s)\n", resp.TxID.Hex(), resp.Type)
	if noWait {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	receipt, err := c.WaitForReceipt(waitCtx, resp.TxID, 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", resp.TxID.Hex(), err)
	}
	printJSON(cmd, receipt)
	if !receipt.Success {
		return fmt.Errorf("transaction failed: %s", receipt.Err)
	}
	return nil
}

func newNonce() (uint64, error) {
	return crypto.GenerateNonce()
}

func printJSON(cmd *cobra.Command, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "marshal: %v\n", err)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
}
