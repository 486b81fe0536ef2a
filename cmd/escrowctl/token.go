package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/escrowd/pkg/crypto"
	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/token"
)

// tokenCmd represents the token command group
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Payment token commands",
}

var (
	tokenKey      string
	tokenMint     string
	tokenOwner    string
	tokenTo       string
	tokenOut      string
	tokenAmount   uint64
	tokenDecimals uint8
)

var createMintCmd = &cobra.Command{
	Use:   "create-mint",
	Short: "Create a payment mint; --key pays and becomes mint authority",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		payer, err := loadKey("key", tokenKey)
		if err != nil {
			return err
		}
		mint, err := newAccountKey()
		if err != nil {
			return err
		}
		decimals := tokenDecimals
		if !cmd.Flags().Changed("decimals") {
			decimals = cfg.Client.PaymentDecimals
		}
		nonce, err := newNonce()
		if err != nil {
			return err
		}
		ixs := token.CreateMintInstructions(payer.Pubkey(), mint.Pubkey(), payer.Pubkey(), decimals, ledger.DefaultRent())
		tx := ledger.NewTransaction(nonce, ixs...)
		if err := submit(cmd.Context(), cmd, tx, payer, mint); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "mint: %s\n", mint.Pubkey())
		return nil
	},
}

var createTokenAccountCmd = &cobra.Command{
	Use:   "create-account",
	Short: "Create a token account for --owner (default: --key)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		payer, err := loadKey("key", tokenKey)
		if err != nil {
			return err
		}
		mint, err := resolvePubkey(tokenMint)
		if err != nil {
			return err
		}
		owner := payer.Pubkey()
		if tokenOwner != "" {
			if owner, err = resolvePubkey(tokenOwner); err != nil {
				return err
			}
		}
		account, err := newAccountKey()
		if err != nil {
			return err
		}
		nonce, err := newNonce()
		if err != nil {
			return err
		}
		ixs := token.CreateAccountInstructions(payer.Pubkey(), account.Pubkey(), mint, owner, ledger.DefaultRent())
		tx := ledger.NewTransaction(nonce, ixs...)
		if err := submit(cmd.Context(), cmd, tx, payer, account); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "token account: %s\n", account.Pubkey())
		return nil
	},
}

var mintToCmd = &cobra.Command{
	Use:   "mint-to",
	Short: "Mint --amount to a token account; --key is the mint authority",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		authority, err := loadKey("key", tokenKey)
		if err != nil {
			return err
		}
		mint, err := resolvePubkey(tokenMint)
		if err != nil {
			return err
		}
		dest, err := resolvePubkey(tokenTo)
		if err != nil {
			return err
		}
		nonce, err := newNonce()
		if err != nil {
			return err
		}
		tx := ledger.NewTransaction(nonce, token.MintToInstruction(mint, dest, authority.Pubkey(), tokenAmount))
		return submit(cmd.Context(), cmd, tx, authority)
	},
}

var tokenBalanceCmd = &cobra.Command{
	Use:   "balance <token-account>",
	Short: "Show a token account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := resolvePubkey(args[0])
		if err != nil {
			return err
		}
		info, err := newClient().TokenAccount(cmd.Context(), key)
		if err != nil {
			return err
		}
		printJSON(cmd, info)
		return nil
	},
}

// newAccountKey makes a fresh key for an account that must co-sign its creation.
// With --out the key is saved so the account can be reused as a signer later.
func newAccountKey() (*crypto.Signer, error) {
	s, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if tokenOut != "" {
		if err := s.SaveKeyFile(tokenOut); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(createMintCmd, createTokenAccountCmd, mintToCmd, tokenBalanceCmd)

	tokenCmd.PersistentFlags().StringVar(&tokenKey, "key", "", "payer / authority key file")

	createMintCmd.Flags().Uint8Var(&tokenDecimals, "decimals", 6, "mint decimals (default $PAYMENT_DECIMALS)")
	createMintCmd.Flags().StringVar(&tokenOut, "out", "", "save the new mint key here")

	createTokenAccountCmd.Flags().StringVar(&tokenMint, "mint", "", "mint pubkey")
	createTokenAccountCmd.Flags().StringVar(&tokenOwner, "owner", "", "owner pubkey or key file (default --key)")
	createTokenAccountCmd.Flags().StringVar(&tokenOut, "out", "", "save the new account key here")
	createTokenAccountCmd.MarkFlagRequired("mint")

	mintToCmd.Flags().StringVar(&tokenMint, "mint", "", "mint pubkey")
	mintToCmd.Flags().StringVar(&tokenTo, "to", "", "destination token account")
	mintToCmd.Flags().Uint64Var(&tokenAmount, "amount", 0, "amount in base units")
	mintToCmd.MarkFlagRequired("mint")
	mintToCmd.MarkFlagRequired("to")
	mintToCmd.MarkFlagRequired("amount")
}
