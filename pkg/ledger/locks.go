package ledger

import (
	"sort"
	"sync"
)

const lockStripes = 256

// lockTable serializes transactions that share accounts
// Keys map onto striped RW locks; stripes are always taken in ascending
// order so two transactions can never wait on each other.
type lockTable struct {
	stripes [lockStripes]sync.RWMutex
}

func stripeOf(key Pubkey) int { return int(key[0]) }

// acquire locks every key (exclusive when writable) and returns the release func
func (lt *lockTable) acquire(keys []Pubkey, writable map[Pubkey]bool) func() {
	modes := make(map[int]bool, len(keys))
	for _, key := range keys {
		s := stripeOf(key)
		modes[s] = modes[s] || writable[key]
	}
	order := make([]int, 0, len(modes))
	for s := range modes {
		order = append(order, s)
	}
	sort.Ints(order)

	for _, s := range order {
		if modes[s] {
			lt.stripes[s].Lock()
		} else {
			lt.stripes[s].RLock()
		}
	}
	return func() {
		for i := len(order) - 1; i >= 0; i-- {
			s := order[i]
			if modes[s] {
				lt.stripes[s].Unlock()
			} else {
				lt.stripes[s].RUnlock()
			}
		}
	}
}
