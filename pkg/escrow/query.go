package escrow

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// AccountReader is the read side of a ledger store
type AccountReader interface {
	GetAccount(key ledger.Pubkey) (*ledger.Account, error)
}

// LoadCounter reads the counter singleton
func LoadCounter(r AccountReader, programID ledger.Pubkey) (*OrderCounter, ledger.Pubkey, error) {
	addr, _, err := CounterAddress(programID)
	if err != nil {
		return nil, ledger.Pubkey{}, err
	}
	acc, err := r.GetAccount(addr)
	if err != nil {
		return nil, addr, fmt.Errorf("failed to read counter: %w", err)
	}
	if acc == nil || len(acc.Data) == 0 {
		return nil, addr, fmt.Errorf("%w: counter %s", ErrUninitialized, addr)
	}
	if acc.Owner != programID {
		return nil, addr, fmt.Errorf("%w: counter owned by %s", ErrOwnershipMismatch, acc.Owner)
	}
	c, err := DecodeCounter(acc.Data)
	if err != nil {
		return nil, addr, err
	}
	return c, addr, nil
}

// NextOrderID returns the id the next Create will issue (0 before the first order)
func NextOrderID(r AccountReader, programID ledger.Pubkey) (uint64, error) {
	c, _, err := LoadCounter(r, programID)
	if errors.Is(err, ErrUninitialized) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.TotalOrders, nil
}

// LoadSellOrder reads the live record for (seller, orderID)
// Fulfilled orders are closed, so they report ErrUninitialized.
func LoadSellOrder(r AccountReader, programID, seller ledger.Pubkey, orderID uint64) (*SellOrder, ledger.Pubkey, error) {
	addr, _, err := OrderAddress(seller, orderID, programID)
	if err != nil {
		return nil, ledger.Pubkey{}, err
	}
	o, err := LoadSellOrderAt(r, programID, addr)
	return o, addr, err
}

// LoadSellOrderAt reads the record stored at addr
func LoadSellOrderAt(r AccountReader, programID, addr ledger.Pubkey) (*SellOrder, error) {
	acc, err := r.GetAccount(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to read escrow record: %w", err)
	}
	if acc == nil || len(acc.Data) == 0 {
		return nil, fmt.Errorf("%w: escrow %s", ErrUninitialized, addr)
	}
	if acc.Owner != programID {
		return nil, fmt.Errorf("%w: escrow owned by %s", ErrOwnershipMismatch, acc.Owner)
	}
	return DecodeSellOrder(acc.Data)
}
