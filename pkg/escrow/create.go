package escrow

import (
	"fmt"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// createSellOrder opens a new order.
//
// Accounts:
//
//	0 authority  [signer, writable]  funds counter, record and holding
//	1 counter    [writable]
//	2 system program
//	3 seller     [signer, writable]  deposits amount
//	4 escrow     [writable]          record to create
//	5 holding    [writable]          fund-holding sub-account to create
func (p *Program) createSellOrder(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo, payload []byte) error {
	if len(accounts) < 6 {
		return fmt.Errorf("%w: create needs 6, got %d", ErrNotEnoughAccounts, len(accounts))
	}
	authority, counter, system, seller, escrowAcc, holding :=
		accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5]

	req, err := DecodeSellOrder(payload)
	if err != nil {
		ic.Log("Error decoding sell order: %v", err)
		return payloadError(err)
	}

	if err := requireProgram(system, ledger.SystemProgramID, "system"); err != nil {
		return err
	}
	if err := requireSigner(authority, "authority"); err != nil {
		return err
	}
	if err := requireSigner(seller, "seller"); err != nil {
		return err
	}
	for _, w := range []struct {
		info *ledger.AccountInfo
		role string
	}{{authority, "authority"}, {counter, "counter"}, {seller, "seller"}, {escrowAcc, "escrow"}, {holding, "holding"}} {
		if err := requireWritable(w.info, w.role); err != nil {
			return err
		}
	}

	counterAddr, counterBump, err := CounterAddress(p.id)
	if err != nil {
		return err
	}
	if counter.Key != counterAddr {
		return fmt.Errorf("%w: counter %s, derived %s", ErrAddressMismatch, counter.Key, counterAddr)
	}
	if err := p.ensureCounter(ic, authority, counter, counterBump); err != nil {
		return err
	}
	c, err := p.loadCounter(counter)
	if err != nil {
		return err
	}
	orderID := c.TotalOrders

	escrowAddr, escrowBump, err := OrderAddress(seller.Key, orderID, p.id)
	if err != nil {
		return err
	}
	holdingAddr, holdingBump, err := HoldingAddress(escrowAddr, p.id)
	if err != nil {
		return err
	}

	if req.Seller != seller.Key {
		ic.Log("Invalid seller address")
		return fmt.Errorf("%w: payload seller %s, signer %s", ErrInvalidAccountData, req.Seller, seller.Key)
	}
	if escrowAcc.Key != escrowAddr {
		return fmt.Errorf("%w: escrow %s is not the order %d record %s", ErrOwnershipMismatch, escrowAcc.Key, orderID, escrowAddr)
	}
	if holding.Key != holdingAddr {
		ic.Log("Escrow holding account does not match")
		return fmt.Errorf("%w: holding %s, derived %s", ErrAddressMismatch, holding.Key, holdingAddr)
	}

	rent := ic.Rent()
	createRecord := ledger.CreateAccountInstruction(authority.Key, escrowAddr, rent.MinimumBalance(SellOrderSize), SellOrderSize, p.id)
	if err := ic.InvokeSigned(createRecord, withBump(orderSeeds(seller.Key, orderID), escrowBump)); err != nil {
		return fmt.Errorf("failed to create escrow record: %w", err)
	}
	createHolding := ledger.CreateAccountInstruction(authority.Key, holdingAddr, rent.MinimumBalance(0), 0, ledger.SystemProgramID)
	if err := ic.InvokeSigned(createHolding, withBump(holdingSeeds(escrowAddr), holdingBump)); err != nil {
		return fmt.Errorf("failed to create holding account: %w", err)
	}

	order := &SellOrder{
		OrderID:       orderID,
		Seller:        seller.Key,
		EscrowAccount: escrowAddr,
		Amount:        req.Amount,
		Price:         req.Price,
		Status:        StatusActive,
	}
	copy(escrowAcc.Data, order.Encode())

	if err := advanceCounter(counter, c); err != nil {
		return err
	}

	deposit := ledger.TransferInstruction(seller.Key, holdingAddr, req.Amount)
	if err := ic.Invoke(deposit); err != nil {
		return fmt.Errorf("failed to deposit into holding account: %w", err)
	}

	ic.Log("Created order %d escrow %s amount %d price %d", orderID, escrowAddr, req.Amount, req.Price)
	ic.Emit(NewOrderCreatedEvent(order, holdingAddr))
	p.logger.Debugw("escrow_create_executed",
		"order_id", orderID,
		"seller", seller.Key.String(),
		"escrow", escrowAddr.String(),
		"amount", req.Amount,
		"price", req.Price,
	)
	return nil
}
