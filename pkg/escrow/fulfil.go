package escrow

import (
	"fmt"

	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/token"
)

// fulfilBuyOrder settles an active order and closes its accounts.
// The authority is any signer; it is not checked against the counter's
// recorded authority and collects both closing rent balances.
//
// Accounts:
//
//	0 authority       [signer, writable]  receives both closing balances
//	1 token program
//	2 system program
//	3 seller
//	4 buyer           [signer, writable]  pays, receives base asset
//	5 escrow          [writable]
//	6 seller payment  [writable]  token account owned by the seller
//	7 buyer payment   [writable]
//	8 holding         [writable]
func (p *Program) fulfilBuyOrder(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo, payload []byte) error {
	if len(accounts) < 9 {
		return fmt.Errorf("%w: fulfil needs 9, got %d", ErrNotEnoughAccounts, len(accounts))
	}
	authority, tokenProgram, system, seller, buyer, escrowAcc, sellerPay, buyerPay, holding :=
		accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5], accounts[6], accounts[7], accounts[8]

	req, err := DecodeBuyOrder(payload)
	if err != nil {
		ic.Log("Error decoding buy order: %v", err)
		return payloadError(err)
	}
	order, err := DecodeSellOrder(escrowAcc.Data)
	if err != nil {
		ic.Log("Error decoding escrow record %s: %v", escrowAcc.Key, err)
		return err
	}

	if req.EscrowAccount != escrowAcc.Key {
		ic.Log("Escrow account does not match instruction")
		return fmt.Errorf("%w: request escrow %s, supplied %s", ErrArgumentMismatch, req.EscrowAccount, escrowAcc.Key)
	}
	if req.Buyer != buyer.Key {
		ic.Log("Buyer address does not match instruction")
		return fmt.Errorf("%w: request buyer %s, supplied %s", ErrArgumentMismatch, req.Buyer, buyer.Key)
	}
	if err := requireSigner(buyer, "buyer"); err != nil {
		return err
	}
	if req.Amount < order.Amount {
		ic.Log("Insufficient funds: authorized %d, reserved %d", req.Amount, order.Amount)
		return fmt.Errorf("%w: authorized %d, reserved %d", ErrInsufficientFunds, req.Amount, order.Amount)
	}
	if req.OrderID != order.OrderID {
		ic.Log("Order id on account does not match instruction")
		return fmt.Errorf("%w: request order %d, record order %d", ErrArgumentMismatch, req.OrderID, order.OrderID)
	}
	if escrowAcc.Owner != p.id {
		ic.Log("Escrow account is not owned by program")
		return fmt.Errorf("%w: escrow owned by %s", ErrOwnershipMismatch, escrowAcc.Owner)
	}

	escrowAddr, _, err := OrderAddress(seller.Key, req.OrderID, p.id)
	if err != nil {
		return err
	}
	if escrowAcc.Key != escrowAddr {
		ic.Log("Escrow account does not match derived escrow account")
		return fmt.Errorf("%w: escrow %s, derived %s", ErrAddressMismatch, escrowAcc.Key, escrowAddr)
	}
	holdingAddr, holdingBump, err := HoldingAddress(escrowAddr, p.id)
	if err != nil {
		return err
	}
	if holding.Key != holdingAddr {
		ic.Log("Escrow holding account does not match derived address")
		return fmt.Errorf("%w: holding %s, derived %s", ErrArgumentMismatch, holding.Key, holdingAddr)
	}

	if err := requireProgram(tokenProgram, token.ProgramID, "token"); err != nil {
		return err
	}
	if err := requireProgram(system, ledger.SystemProgramID, "system"); err != nil {
		return err
	}
	if err := requireSellerPayment(sellerPay, seller.Key); err != nil {
		ic.Log("Seller payment account is not owned by seller")
		return err
	}
	if err := requireSigner(authority, "authority"); err != nil {
		return err
	}
	for _, w := range []struct {
		info *ledger.AccountInfo
		role string
	}{{authority, "authority"}, {buyer, "buyer"}, {escrowAcc, "escrow"}, {holding, "holding"}} {
		if err := requireWritable(w.info, w.role); err != nil {
			return err
		}
	}
	if order.Status != StatusActive {
		return fmt.Errorf("%w: order %d is %s", ErrOrderNotActive, order.OrderID, order.Status)
	}

	due, err := PaymentDue(order.Amount, order.Price)
	if err != nil {
		ic.Log("Payment overflow: amount %d price %d", order.Amount, order.Price)
		return err
	}
	holdingSigner := withBump(holdingSeeds(escrowAddr), holdingBump)

	pay := token.TransferInstruction(buyerPay.Key, sellerPay.Key, buyer.Key, due)
	if err := ic.Invoke(pay); err != nil {
		return fmt.Errorf("failed to transfer payment to seller: %w", err)
	}

	release := ledger.TransferInstruction(holdingAddr, buyer.Key, order.Amount)
	if err := ic.InvokeSigned(release, holdingSigner); err != nil {
		return fmt.Errorf("failed to release base asset to buyer: %w", err)
	}

	order.Status = StatusCompleted
	copy(escrowAcc.Data, order.Encode())

	// holding is system-owned from creation; draining it releases it
	if residual := holding.Lamports; residual > 0 {
		ic.Log("Transferring %d lamports to authority", residual)
		drain := ledger.TransferInstruction(holdingAddr, authority.Key, residual)
		if err := ic.InvokeSigned(drain, holdingSigner); err != nil {
			return fmt.Errorf("failed to drain holding account: %w", err)
		}
	}

	if residual := escrowAcc.Lamports; residual > 0 {
		ic.Log("Transferring %d lamports to authority", residual)
		if authority.Lamports+residual < authority.Lamports {
			return ledger.ErrArithmeticOverflow
		}
		escrowAcc.Lamports = 0
		authority.Lamports += residual
	}
	for i := range escrowAcc.Data {
		escrowAcc.Data[i] = 0
	}
	escrowAcc.Owner = ledger.SystemProgramID
	ic.Log("Closed escrow account %s", escrowAddr)

	ic.Emit(NewOrderFulfilledEvent(order, buyer.Key, due))
	p.logger.Debugw("escrow_fulfil_executed",
		"order_id", order.OrderID,
		"buyer", buyer.Key.String(),
		"escrow", escrowAddr.String(),
		"payment_due", due,
	)
	return nil
}

// requireSellerPayment checks that info is a token account whose owner is seller
func requireSellerPayment(info *ledger.AccountInfo, seller ledger.Pubkey) error {
	if info.Owner != token.ProgramID {
		return fmt.Errorf("%w: seller payment %s owned by %s", ErrArgumentMismatch, info.Key, info.Owner)
	}
	acc, err := token.DecodeAccount(info.Data)
	if err != nil {
		return fmt.Errorf("%w: seller payment %s: %v", ErrArgumentMismatch, info.Key, err)
	}
	if acc.Owner != seller {
		return fmt.Errorf("%w: seller payment %s belongs to %s", ErrArgumentMismatch, info.Key, acc.Owner)
	}
	return nil
}
