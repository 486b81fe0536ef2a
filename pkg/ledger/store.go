package ledger

import "github.com/ethereum/go-ethereum/common"

// Event is a typed notification emitted by a program during execution
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Receipt is the persisted outcome of one transaction
// Failed transactions keep their logs but drop events (nothing they emitted happened)
type Receipt struct {
	TxID    common.Hash `json:"txId"`
	Slot    uint64      `json:"slot"`
	Success bool        `json:"success"`
	Err     string      `json:"error,omitempty"`
	Logs    []string    `json:"logs,omitempty"`
	Events  []Event     `json:"events,omitempty"`
}

// AccountUpdate is one write in a commit; a nil Account deletes the key
type AccountUpdate struct {
	Key     Pubkey
	Account *Account
}

// Store is the persistence boundary of the runtime
// Implementations must apply CommitTransaction atomically.
type Store interface {
	// GetAccount returns (nil, nil) when the account does not exist
	GetAccount(key Pubkey) (*Account, error)

	// GetReceipt returns (nil, nil) when the transaction is unknown
	GetReceipt(id common.Hash) (*Receipt, error)

	// CommitTransaction writes updates and receipt in one batch
	// receipt may be nil for out-of-band writes (airdrops, genesis)
	CommitTransaction(receipt *Receipt, updates []AccountUpdate) error
}
