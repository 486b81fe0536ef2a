package escrow

import (
	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/token"
)

// CreateSellOrderParams describes a new order from the client's side
// OrderID must be the counter value the order will be created under
// (see NextOrderID); the program rejects the escrow address otherwise.
type CreateSellOrderParams struct {
	ProgramID ledger.Pubkey
	Authority ledger.Pubkey
	Seller    ledger.Pubkey
	OrderID   uint64
	Amount    uint64
	Price     uint64
}

// NewCreateSellOrderInstruction derives every address and encodes opcode 0
func NewCreateSellOrderInstruction(p CreateSellOrderParams) (ledger.Instruction, error) {
	counter, _, err := CounterAddress(p.ProgramID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	escrowAddr, _, err := OrderAddress(p.Seller, p.OrderID, p.ProgramID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	holding, _, err := HoldingAddress(escrowAddr, p.ProgramID)
	if err != nil {
		return ledger.Instruction{}, err
	}

	order := SellOrder{
		OrderID:       p.OrderID,
		Seller:        p.Seller,
		EscrowAccount: escrowAddr,
		Amount:        p.Amount,
		Price:         p.Price,
		Status:        StatusActive,
	}
	return ledger.Instruction{
		ProgramID: p.ProgramID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: p.Authority, IsSigner: true, IsWritable: true},
			{Pubkey: counter, IsWritable: true},
			{Pubkey: ledger.SystemProgramID},
			{Pubkey: p.Seller, IsSigner: true, IsWritable: true},
			{Pubkey: escrowAddr, IsWritable: true},
			{Pubkey: holding, IsWritable: true},
		},
		Data: append([]byte{OpCreateSellOrder}, order.Encode()...),
	}, nil
}

// FulfilBuyOrderParams describes a purchase from the client's side
type FulfilBuyOrderParams struct {
	ProgramID        ledger.Pubkey
	Authority        ledger.Pubkey
	Seller           ledger.Pubkey
	Buyer            ledger.Pubkey
	OrderID          uint64
	SellerPayment    ledger.Pubkey // seller's token account
	BuyerPayment     ledger.Pubkey // buyer's token account
	AuthorizedAmount uint64
}

// NewFulfilBuyOrderInstruction derives every address and encodes opcode 1
func NewFulfilBuyOrderInstruction(p FulfilBuyOrderParams) (ledger.Instruction, error) {
	escrowAddr, _, err := OrderAddress(p.Seller, p.OrderID, p.ProgramID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	holding, _, err := HoldingAddress(escrowAddr, p.ProgramID)
	if err != nil {
		return ledger.Instruction{}, err
	}

	req := BuyOrder{
		OrderID:       p.OrderID,
		Buyer:         p.Buyer,
		EscrowAccount: escrowAddr,
		Amount:        p.AuthorizedAmount,
	}
	return ledger.Instruction{
		ProgramID: p.ProgramID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: p.Authority, IsSigner: true, IsWritable: true},
			{Pubkey: token.ProgramID},
			{Pubkey: ledger.SystemProgramID},
			{Pubkey: p.Seller},
			{Pubkey: p.Buyer, IsSigner: true, IsWritable: true},
			{Pubkey: escrowAddr, IsWritable: true},
			{Pubkey: p.SellerPayment, IsWritable: true},
			{Pubkey: p.BuyerPayment, IsWritable: true},
			{Pubkey: holding, IsWritable: true},
		},
		Data: append([]byte{OpFulfilBuyOrder}, req.Encode()...),
	}, nil
}
