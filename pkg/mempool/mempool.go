package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/escrow"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

var (
	ErrDuplicate = errors.New("mempool: transaction already pending")
	ErrFull      = errors.New("mempool: pool is full")
)

// DefaultCapacity bounds pending transactions across all buckets
const DefaultCapacity = 10_000

// TxType buckets transactions for slot ordering.
type TxType int

const (
	TxOther  TxType = iota // account setup, token and lamport transfers
	TxCreate               // escrow opcode 0
	TxFulfil               // escrow opcode 1
)

func (t TxType) String() string {
	switch t {
	case TxOther:
		return "other"
	case TxCreate:
		return "create"
	case TxFulfil:
		return "fulfil"
	default:
		return fmt.Sprintf("txtype(%d)", int(t))
	}
}

// Classify buckets a transaction by the escrow opcodes it carries.
// A transaction with any create is TxCreate; otherwise any fulfil makes it
// TxFulfil; everything else is TxOther.
func Classify(tx *ledger.Transaction, escrowProgramID ledger.Pubkey) TxType {
	class := TxOther
	for _, ix := range tx.Instructions {
		if ix.ProgramID != escrowProgramID || len(ix.Data) == 0 {
			continue
		}
		switch ix.Data[0] {
		case escrow.OpCreateSellOrder:
			return TxCreate
		case escrow.OpFulfilBuyOrder:
			class = TxFulfil
		}
	}
	return class
}

// Mempool keeps three FIFO queues: (1) other, (2) create, (3) fulfil.
// Setup transfers land before the orders that depend on them, and orders
// opened in a slot can be filled in that same slot.
type Mempool struct {
	mu       sync.Mutex
	escrowID ledger.Pubkey
	capacity int
	pending  map[common.Hash]struct{}
	other    []*ledger.Transaction
	create   []*ledger.Transaction
	fulfil   []*ledger.Transaction
}

func NewMempool(escrowProgramID ledger.Pubkey) *Mempool {
	return &Mempool{
		escrowID: escrowProgramID,
		capacity: DefaultCapacity,
		pending:  make(map[common.Hash]struct{}),
	}
}

// SetCapacity changes the pending limit (0 restores the default)
func (m *Mempool) SetCapacity(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		n = DefaultCapacity
	}
	m.capacity = n
}

// Push classifies and enqueues a transaction
func (m *Mempool) Push(tx *ledger.Transaction) (TxType, error) {
	id := tx.ID()
	class := Classify(tx, m.escrowID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[id]; ok {
		return class, fmt.Errorf("%w: %s", ErrDuplicate, id.Hex())
	}
	if len(m.pending) >= m.capacity {
		return class, ErrFull
	}
	m.pending[id] = struct{}{}
	switch class {
	case TxOther:
		m.other = append(m.other, tx)
	case TxFulfil:
		m.fulfil = append(m.fulfil, tx)
	default:
		m.create = append(m.create, tx)
	}
	return class, nil
}

// PushRaw decodes a JSON transaction (gossip, API) and enqueues it
func (m *Mempool) PushRaw(b []byte) (*ledger.Transaction, error) {
	tx, err := ledger.DeserializeTransaction(b)
	if err != nil {
		return nil, err
	}
	if _, err := m.Push(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// SelectForSlot removes and returns up to max transactions in bucket order
// (max <= 0 drains everything).
func (m *Mempool) SelectForSlot(max int) []*ledger.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ledger.Transaction
	pull := func(q *[]*ledger.Transaction) {
		for len(*q) > 0 {
			if max > 0 && len(out) >= max {
				return
			}
			tx := (*q)[0]
			out = append(out, tx)
			delete(m.pending, tx.ID())
			*q = (*q)[1:]
		}
	}

	pull(&m.other)
	pull(&m.create)
	pull(&m.fulfil)
	return out
}

// Has reports whether id is waiting for inclusion
func (m *Mempool) Has(id common.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}

// Len returns total pending txs
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.other) + len(m.create) + len(m.fulfil)
}
