package storage

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// Key schema:
//
//	acc:<32-byte pubkey>   → Account (JSON)
//	tx:<32-byte id>        → Receipt (JSON)
//	slot:<8-byte height>   → Slot (gob)
//	meta:latest_slot       → 8-byte height
const (
	prefixAccount = "acc:"
	prefixReceipt = "tx:"
	prefixSlot    = "slot:"
)

func accountKey(key ledger.Pubkey) []byte {
	return append([]byte(prefixAccount), key[:]...)
}

func receiptKey(id common.Hash) []byte {
	return append([]byte(prefixReceipt), id[:]...)
}

// slotKey is big-endian so iteration follows height order
func slotKey(height uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], height)
	return append([]byte(prefixSlot), k[:]...)
}

func kLatestSlot() []byte { return []byte("meta:latest_slot") }

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
