package storage

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/chain"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// MemStore is an in-memory Store for tests and ephemeral nodes
type MemStore struct {
	mu       sync.Mutex
	accounts map[ledger.Pubkey]*ledger.Account
	receipts map[common.Hash]*ledger.Receipt
	slots    map[uint64]chain.Slot
	latest   *uint64
}

func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[ledger.Pubkey]*ledger.Account),
		receipts: make(map[common.Hash]*ledger.Receipt),
		slots:    make(map[uint64]chain.Slot),
	}
}

func (s *MemStore) GetAccount(key ledger.Pubkey) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[key]
	if !ok {
		return nil, nil
	}
	return acc.Clone(), nil
}

func (s *MemStore) GetReceipt(id common.Hash) (*ledger.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) CommitTransaction(receipt *ledger.Receipt, updates []ledger.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		if u.Account == nil {
			delete(s.accounts, u.Key)
			continue
		}
		s.accounts[u.Key] = u.Account.Clone()
	}
	if receipt != nil {
		cp := *receipt
		s.receipts[receipt.TxID] = &cp
	}
	return nil
}

// AccountsByOwner returns every account owned by owner
func (s *MemStore) AccountsByOwner(owner ledger.Pubkey) (map[ledger.Pubkey]*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ledger.Pubkey]*ledger.Account)
	for k, acc := range s.accounts {
		if acc.Owner == owner {
			out[k] = acc.Clone()
		}
	}
	return out, nil
}

func (s *MemStore) SaveSlot(slot chain.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.Height] = slot
	h := slot.Height
	s.latest = &h
	return nil
}

func (s *MemStore) GetSlot(height uint64) (*chain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[height]
	if !ok {
		return nil, nil
	}
	return &slot, nil
}

func (s *MemStore) LatestSlot() (*chain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, nil
	}
	slot := s.slots[*s.latest]
	return &slot, nil
}

var (
	_ ledger.Store    = (*MemStore)(nil)
	_ chain.SlotStore = (*MemStore)(nil)
)
