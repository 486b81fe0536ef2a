package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/escrowd/pkg/escrow"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// AccountInfo is the raw ledger view of one address
type AccountInfo struct {
	Pubkey     ledger.Pubkey `json:"pubkey"`
	Lamports   uint64        `json:"lamports"`
	Owner      ledger.Pubkey `json:"owner"`
	Executable bool          `json:"executable"`
	Data       hexutil.Bytes `json:"data"`
}

// TokenAccountInfo is a decoded token balance
type TokenAccountInfo struct {
	Pubkey ledger.Pubkey `json:"pubkey"`
	Mint   ledger.Pubkey `json:"mint"`
	Owner  ledger.Pubkey `json:"owner"`
	Amount uint64        `json:"amount"`
}

// CounterInfo is the decoded order counter singleton
type CounterInfo struct {
	Address     ledger.Pubkey `json:"address"`
	TotalOrders uint64        `json:"totalOrders"`
	Authority   ledger.Pubkey `json:"authority"`
}

// SellOrderInfo is a live escrow record plus its holding account balance
type SellOrderInfo struct {
	Address         ledger.Pubkey `json:"address"`
	OrderID         uint64        `json:"orderId"`
	Seller          ledger.Pubkey `json:"seller"`
	Amount          uint64        `json:"amount"`
	Price           uint64        `json:"price"`
	Status          string        `json:"status"`
	Holding         ledger.Pubkey `json:"holding"`
	HoldingLamports uint64        `json:"holdingLamports"`
}

func newSellOrderInfo(addr ledger.Pubkey, o *escrow.SellOrder, holding ledger.Pubkey, holdingLamports uint64) SellOrderInfo {
	return SellOrderInfo{
		Address:         addr,
		OrderID:         o.OrderID,
		Seller:          o.Seller,
		Amount:          o.Amount,
		Price:           o.Price,
		Status:          o.Status.String(),
		Holding:         holding,
		HoldingLamports: holdingLamports,
	}
}

// ChainStatus is the node's current view of the chain
type ChainStatus struct {
	Height          uint64        `json:"height"`
	MempoolSize     int           `json:"mempoolSize"`
	EscrowProgramID ledger.Pubkey `json:"escrowProgramId"`
	NextOrderID     uint64        `json:"nextOrderId"`
}

// SubmitTxResponse acknowledges a transaction accepted into the mempool
type SubmitTxResponse struct {
	Status string      `json:"status"` // "pending"
	TxID   common.Hash `json:"txId"`
	Type   string      `json:"type"` // mempool bucket
}

// TxStatusResponse reports a pending or committed transaction
type TxStatusResponse struct {
	TxID    common.Hash     `json:"txId"`
	Status  string          `json:"status"` // "pending", "success", "failed"
	Receipt *ledger.Receipt `json:"receipt,omitempty"`
}

// AirdropRequest credits test lamports (devnet only)
type AirdropRequest struct {
	Pubkey   ledger.Pubkey `json:"pubkey"`
	Lamports uint64        `json:"lamports"`
}

type AirdropResponse struct {
	Pubkey   ledger.Pubkey `json:"pubkey"`
	Lamports uint64        `json:"lamports"` // balance after credit
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest represents a subscription request
type WSSubscribeRequest struct {
	Op       string   `json:"op"`               // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`         // e.g., ["slots", "orders"]
	Seller   string   `json:"seller,omitempty"` // orders channel only: base58 seller filter
}

// WSAck answers every subscription request
type WSAck struct {
	Type     string   `json:"type"` // "subscribed", "unsubscribed" or "error"
	Channels []string `json:"channels,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// SlotUpdate is pushed on the "slots" channel after every commit
type SlotUpdate struct {
	Type      string        `json:"type"` // "slot"
	Height    uint64        `json:"height"`
	Hash      common.Hash   `json:"hash"`
	TxIDs     []common.Hash `json:"txIds"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Timestamp int64         `json:"timestamp"` // Unix milliseconds
}

// ReceiptUpdate is pushed on the "receipts" channel for each committed tx
type ReceiptUpdate struct {
	Type    string          `json:"type"` // "receipt"
	Receipt *ledger.Receipt `json:"receipt"`
}

// OrderUpdate is pushed on the "orders" channel for each escrow event
type OrderUpdate struct {
	Type       string            `json:"type"` // "order"
	Event      string            `json:"event"`
	Slot       uint64            `json:"slot"`
	TxID       common.Hash       `json:"txId"`
	Attributes map[string]string `json:"attributes"`
}
