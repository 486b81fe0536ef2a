package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/escrowd/pkg/client"
	"github.com/uhyunpark/escrowd/pkg/escrow"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// orderCmd represents the escrow order command group
var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Escrow sell order commands",
}

var (
	orderAuthority  string
	orderSeller     string
	orderBuyer      string
	orderID         uint64
	orderAmount     uint64
	orderPrice      uint64
	orderSellerPay  string
	orderBuyerPay   string
	orderAuthorized uint64
)

var createOrderCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a sell order escrowing --amount lamports at --price",
	Long: `Create reads the next order id from the node, derives the escrow record and
holding addresses for it, and submits opcode 0 signed by authority and seller.

The authority pays the minimum balances of the counter, the record and the
holding account; the seller deposits --amount into the holding account.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		authority, err := loadKey("authority", orderAuthority)
		if err != nil {
			return err
		}
		seller, err := loadKey("seller", orderSeller)
		if err != nil {
			return err
		}
		pid, err := escrowProgramID()
		if err != nil {
			return err
		}
		id := orderID
		if !cmd.Flags().Changed("order-id") {
			st, err := newClient().Status(ctx)
			if err != nil {
				return err
			}
			id = st.NextOrderID
		}
		ix, err := escrow.NewCreateSellOrderInstruction(escrow.CreateSellOrderParams{
			ProgramID: pid,
			Authority: authority.Pubkey(),
			Seller:    seller.Pubkey(),
			OrderID:   id,
			Amount:    orderAmount,
			Price:     orderPrice,
		})
		if err != nil {
			return err
		}
		nonce, err := newNonce()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "order id: %d\n", id)
		return submit(ctx, cmd, ledger.NewTransaction(nonce, ix), authority, seller)
	},
}

var fulfilOrderCmd = &cobra.Command{
	Use:   "fulfil",
	Short: "Buy an active order, paying in tokens and receiving the escrowed lamports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		authority, err := loadKey("authority", orderAuthority)
		if err != nil {
			return err
		}
		buyer, err := loadKey("buyer", orderBuyer)
		if err != nil {
			return err
		}
		seller, err := resolvePubkey(orderSeller)
		if err != nil {
			return err
		}
		sellerPay, err := resolvePubkey(orderSellerPay)
		if err != nil {
			return err
		}
		buyerPay, err := resolvePubkey(orderBuyerPay)
		if err != nil {
			return err
		}
		pid, err := escrowProgramID()
		if err != nil {
			return err
		}

		authorized := orderAuthorized
		if !cmd.Flags().Changed("authorized") {
			o, err := newClient().Order(ctx, seller, orderID)
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("order %d of %s is not open", orderID, seller)
			}
			if err != nil {
				return err
			}
			authorized = o.Amount
		}

		ix, err := escrow.NewFulfilBuyOrderInstruction(escrow.FulfilBuyOrderParams{
			ProgramID:        pid,
			Authority:        authority.Pubkey(),
			Seller:           seller,
			Buyer:            buyer.Pubkey(),
			OrderID:          orderID,
			SellerPayment:    sellerPay,
			BuyerPayment:     buyerPay,
			AuthorizedAmount: authorized,
		})
		if err != nil {
			return err
		}
		nonce, err := newNonce()
		if err != nil {
			return err
		}
		return submit(ctx, cmd, ledger.NewTransaction(nonce, ix), authority, buyer)
	},
}

var showOrderCmd = &cobra.Command{
	Use:   "show",
	Short: "Show an open order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		seller, err := resolvePubkey(orderSeller)
		if err != nil {
			return err
		}
		o, err := newClient().Order(cmd.Context(), seller, orderID)
		if err != nil {
			return err
		}
		printJSON(cmd, o)
		return nil
	},
}

var counterCmd = &cobra.Command{
	Use:   "counter",
	Short: "Show the order counter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient().Counter(cmd.Context())
		if errors.Is(err, client.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "counter not initialized (next order id 0)")
			return nil
		}
		if err != nil {
			return err
		}
		printJSON(cmd, c)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.AddCommand(createOrderCmd, fulfilOrderCmd, showOrderCmd, counterCmd)

	createOrderCmd.Flags().StringVar(&orderAuthority, "authority", "", "authority key file")
	createOrderCmd.Flags().StringVar(&orderSeller, "seller", "", "seller key file")
	createOrderCmd.Flags().Uint64Var(&orderAmount, "amount", 0, "lamports to escrow")
	createOrderCmd.Flags().Uint64Var(&orderPrice, "price", 0, "payment tokens per whole coin")
	createOrderCmd.Flags().Uint64Var(&orderID, "order-id", 0, "order id (default: next id from the node)")
	createOrderCmd.MarkFlagRequired("amount")
	createOrderCmd.MarkFlagRequired("price")

	fulfilOrderCmd.Flags().StringVar(&orderAuthority, "authority", "", "authority key file")
	fulfilOrderCmd.Flags().StringVar(&orderBuyer, "buyer", "", "buyer key file")
	fulfilOrderCmd.Flags().StringVar(&orderSeller, "seller", "", "seller pubkey or key file")
	fulfilOrderCmd.Flags().Uint64Var(&orderID, "order-id", 0, "order id")
	fulfilOrderCmd.Flags().StringVar(&orderSellerPay, "seller-payment", "", "seller's token account")
	fulfilOrderCmd.Flags().StringVar(&orderBuyerPay, "buyer-payment", "", "buyer's token account")
	fulfilOrderCmd.Flags().Uint64Var(&orderAuthorized, "authorized", 0, "lamports the buyer authorizes (default: order amount)")
	fulfilOrderCmd.MarkFlagRequired("seller")
	fulfilOrderCmd.MarkFlagRequired("order-id")
	fulfilOrderCmd.MarkFlagRequired("seller-payment")
	fulfilOrderCmd.MarkFlagRequired("buyer-payment")

	showOrderCmd.Flags().StringVar(&orderSeller, "seller", "", "seller pubkey or key file")
	showOrderCmd.Flags().Uint64Var(&orderID, "order-id", 0, "order id")
	showOrderCmd.MarkFlagRequired("seller")
}
