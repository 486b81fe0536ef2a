package escrow

import (
	"encoding/binary"
	"fmt"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// Fixed record sizes (the persisted layouts never change)
const (
	CounterSize   = 8 + 32
	SellOrderSize = 8 + 32 + 32 + 8 + 8 + 1
	BuyOrderSize  = 8 + 32 + 32 + 8
)

// Status is the lifecycle state of a sell order
type Status uint8

const (
	StatusActive    Status = 0
	StatusCompleted Status = 1
	StatusCancelled Status = 2 // decodes, never produced
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func (s Status) valid() bool { return s <= StatusCancelled }

// OrderCounter is the singleton order-id sequence
type OrderCounter struct {
	TotalOrders uint64        `json:"totalOrders"`
	Authority   ledger.Pubkey `json:"authority"`
}

// SellOrder is the persisted escrow record
type SellOrder struct {
	OrderID       uint64        `json:"orderId"`
	Seller        ledger.Pubkey `json:"seller"`
	EscrowAccount ledger.Pubkey `json:"escrowAccount"`
	Amount        uint64        `json:"amount"`
	Price         uint64        `json:"price"`
	Status        Status        `json:"status"`
}

// BuyOrder is the fulfil request payload; never persisted
type BuyOrder struct {
	OrderID       uint64        `json:"orderId"`
	Buyer         ledger.Pubkey `json:"buyer"`
	EscrowAccount ledger.Pubkey `json:"escrowAccount"`
	Amount        uint64        `json:"amount"`
}

// Encode writes the 40-byte layout: total_orders u64 | authority 32
func (c *OrderCounter) Encode() []byte {
	buf := make([]byte, CounterSize)
	binary.LittleEndian.PutUint64(buf[0:8], c.TotalOrders)
	copy(buf[8:40], c.Authority[:])
	return buf
}

// DecodeCounter parses counter account data
func DecodeCounter(data []byte) (*OrderCounter, error) {
	if err := checkSize(data, CounterSize, "counter"); err != nil {
		return nil, err
	}
	c := &OrderCounter{TotalOrders: binary.LittleEndian.Uint64(data[0:8])}
	copy(c.Authority[:], data[8:40])
	return c, nil
}

// Encode writes the 89-byte layout:
// order_id u64 | seller 32 | escrow_account 32 | amount u64 | price u64 | status u8
func (o *SellOrder) Encode() []byte {
	buf := make([]byte, SellOrderSize)
	binary.LittleEndian.PutUint64(buf[0:8], o.OrderID)
	copy(buf[8:40], o.Seller[:])
	copy(buf[40:72], o.EscrowAccount[:])
	binary.LittleEndian.PutUint64(buf[72:80], o.Amount)
	binary.LittleEndian.PutUint64(buf[80:88], o.Price)
	buf[88] = byte(o.Status)
	return buf
}

// DecodeSellOrder parses escrow record data
func DecodeSellOrder(data []byte) (*SellOrder, error) {
	if err := checkSize(data, SellOrderSize, "sell order"); err != nil {
		return nil, err
	}
	o := &SellOrder{
		OrderID: binary.LittleEndian.Uint64(data[0:8]),
		Amount:  binary.LittleEndian.Uint64(data[72:80]),
		Price:   binary.LittleEndian.Uint64(data[80:88]),
		Status:  Status(data[88]),
	}
	copy(o.Seller[:], data[8:40])
	copy(o.EscrowAccount[:], data[40:72])
	if !o.Status.valid() {
		return nil, fmt.Errorf("%w: unknown status %d", ErrDecode, data[88])
	}
	return o, nil
}

// Encode writes the 80-byte layout: order_id u64 | buyer 32 | escrow_account 32 | amount u64
func (b *BuyOrder) Encode() []byte {
	buf := make([]byte, BuyOrderSize)
	binary.LittleEndian.PutUint64(buf[0:8], b.OrderID)
	copy(buf[8:40], b.Buyer[:])
	copy(buf[40:72], b.EscrowAccount[:])
	binary.LittleEndian.PutUint64(buf[72:80], b.Amount)
	return buf
}

// DecodeBuyOrder parses a fulfil payload
func DecodeBuyOrder(data []byte) (*BuyOrder, error) {
	if err := checkSize(data, BuyOrderSize, "buy order"); err != nil {
		return nil, err
	}
	b := &BuyOrder{
		OrderID: binary.LittleEndian.Uint64(data[0:8]),
		Amount:  binary.LittleEndian.Uint64(data[72:80]),
	}
	copy(b.Buyer[:], data[8:40])
	copy(b.EscrowAccount[:], data[40:72])
	return b, nil
}

// checkSize separates "never written" from "written with the wrong layout"
func checkSize(data []byte, want int, what string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s", ErrUninitialized, what)
	}
	if len(data) != want {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrDecode, what, len(data), want)
	}
	return nil
}
