package escrow

import (
	"encoding/binary"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// Derivation tags
var (
	CounterSeed = []byte("order_counter_v2")
	OrderSeed   = []byte("escrow_order_v2")
	HoldingSeed = []byte("escrow_token_order_v2")
)

// DefaultProgramID is the escrow program identity used when none is configured
var DefaultProgramID = ledger.HashPubkey("escrowd:escrow_program")

func orderIDSeed(orderID uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], orderID)
	return b[:]
}

func counterSeeds() [][]byte { return [][]byte{CounterSeed} }

func orderSeeds(seller ledger.Pubkey, orderID uint64) [][]byte {
	return [][]byte{OrderSeed, seller.Bytes(), orderIDSeed(orderID)}
}

func holdingSeeds(escrow ledger.Pubkey) [][]byte {
	return [][]byte{HoldingSeed, escrow.Bytes()}
}

// withBump returns seeds plus the bump byte, ready for InvokeSigned
func withBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, len(seeds), len(seeds)+1)
	copy(out, seeds)
	return append(out, []byte{bump})
}

// CounterAddress derives the order-counter singleton
func CounterAddress(programID ledger.Pubkey) (ledger.Pubkey, uint8, error) {
	return ledger.FindProgramAddress(counterSeeds(), programID)
}

// OrderAddress derives the escrow record for (seller, orderID)
func OrderAddress(seller ledger.Pubkey, orderID uint64, programID ledger.Pubkey) (ledger.Pubkey, uint8, error) {
	return ledger.FindProgramAddress(orderSeeds(seller, orderID), programID)
}

// HoldingAddress derives the fund-holding sub-account of an escrow record
func HoldingAddress(escrow ledger.Pubkey, programID ledger.Pubkey) (ledger.Pubkey, uint8, error) {
	return ledger.FindProgramAddress(holdingSeeds(escrow), programID)
}
