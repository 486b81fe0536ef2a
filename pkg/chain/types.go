package chain

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Slot is one committed batch of transactions
type Slot struct {
	Height    uint64
	Parent    common.Hash
	Hash      common.Hash
	Time      time.Time
	TxIDs     []common.Hash
	Succeeded int
	Failed    int
}

// HashOfSlot commits to height, parent, time and the ordered tx ids.
// Outcome counters are not hashed; receipts carry outcomes.
func HashOfSlot(s Slot) common.Hash {
	h := sha3.New256()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.Height)
	h.Write(buf[:])

	h.Write(s.Parent[:])

	binary.BigEndian.PutUint64(buf[:], uint64(s.Time.UnixNano()))
	h.Write(buf[:])

	for _, id := range s.TxIDs {
		h.Write(id[:])
	}

	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ---- Storage/WAL interfaces (impl in pkg/storage) ----

type SlotStore interface {
	SaveSlot(s Slot) error
	// GetSlot returns (nil, nil) for an unknown height
	GetSlot(height uint64) (*Slot, error)
	// LatestSlot returns (nil, nil) before the first slot
	LatestSlot() (*Slot, error)
}

type WAL interface {
	Append(line string)
}
