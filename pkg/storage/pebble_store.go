package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/chain"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// PebbleStore persists accounts, receipts and slots
// Safe for concurrent use; the runtime's account locks order conflicting writes.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) a Pebble database at path
func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(128 << 20), // 128MB cache
		MemTableSize:             64 << 20,                   // 64MB memtable
		MaxConcurrentCompactions: func() int { return 3 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20, // 64MB
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10, // 512KB
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// GetAccount loads an account; returns nil if it doesn't exist
func (s *PebbleStore) GetAccount(key ledger.Pubkey) (*ledger.Account, error) {
	data, closer, err := s.db.Get(accountKey(key))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()
	return decodeAccount(data)
}

// GetReceipt loads a receipt; returns nil if the transaction is unknown
func (s *PebbleStore) GetReceipt(id common.Hash) (*ledger.Receipt, error) {
	data, closer, err := s.db.Get(receiptKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	defer closer.Close()
	return decodeReceipt(data)
}

// CommitTransaction writes every account update and the receipt in one batch
func (s *PebbleStore) CommitTransaction(receipt *ledger.Receipt, updates []ledger.AccountUpdate) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, u := range updates {
		if u.Account == nil {
			if err := batch.Delete(accountKey(u.Key), nil); err != nil {
				return fmt.Errorf("failed to stage account delete: %w", err)
			}
			continue
		}
		data, err := encodeAccount(u.Account)
		if err != nil {
			return err
		}
		if err := batch.Set(accountKey(u.Key), data, nil); err != nil {
			return fmt.Errorf("failed to stage account: %w", err)
		}
	}

	if receipt != nil {
		data, err := encodeReceipt(receipt)
		if err != nil {
			return err
		}
		if err := batch.Set(receiptKey(receipt.TxID), data, nil); err != nil {
			return fmt.Errorf("failed to stage receipt: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// AccountsByOwner scans every account owned by owner
func (s *PebbleStore) AccountsByOwner(owner ledger.Pubkey) (map[ledger.Pubkey]*ledger.Account, error) {
	prefix := []byte(prefixAccount)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	out := make(map[ledger.Pubkey]*ledger.Account)
	for iter.First(); iter.Valid(); iter.Next() {
		acc, err := decodeAccount(iter.Value())
		if err != nil {
			continue // Skip invalid entries
		}
		if acc.Owner != owner {
			continue
		}
		key, err := ledger.PubkeyFromBytes(iter.Key()[len(prefix):])
		if err != nil {
			continue
		}
		out[key] = acc
	}
	return out, nil
}

// SaveSlot persists a slot and advances the latest-slot pointer
func (s *PebbleStore) SaveSlot(slot chain.Slot) error {
	val, err := encodeSlot(slot)
	if err != nil {
		return err
	}
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], slot.Height)

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(slotKey(slot.Height), val, nil); err != nil {
		return err
	}
	if err := batch.Set(kLatestSlot(), height[:], nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetSlot(height uint64) (*chain.Slot, error) {
	val, closer, err := s.db.Get(slotKey(height))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	defer closer.Close()
	return decodeSlot(val)
}

func (s *PebbleStore) LatestSlot() (*chain.Slot, error) {
	val, closer, err := s.db.Get(kLatestSlot())
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest slot: %w", err)
	}
	height := binary.BigEndian.Uint64(val)
	closer.Close()
	return s.GetSlot(height)
}

var (
	_ ledger.Store    = (*PebbleStore)(nil)
	_ chain.SlotStore = (*PebbleStore)(nil)
)
