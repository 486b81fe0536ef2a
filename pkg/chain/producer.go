package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/mempool"
	"github.com/uhyunpark/escrowd/pkg/metrics"
	"github.com/uhyunpark/escrowd/pkg/util"
)

// Executor runs one transaction at a slot (implemented by *ledger.Runtime)
type Executor interface {
	Execute(ctx context.Context, tx *ledger.Transaction, slot uint64) (*ledger.Receipt, error)
}

// CommitHook observes every committed slot with the receipts it produced
type CommitHook func(slot Slot, receipts []*ledger.Receipt)

type Config struct {
	SlotTime time.Duration
	MaxTxs   int
}

// Producer drains the mempool on a fixed cadence and commits slots
type Producer struct {
	Runtime Executor
	Mempool *mempool.Mempool
	Store   SlotStore
	Clock   util.Clock
	Config  Config

	Logger *zap.SugaredLogger
	// Optional: slot journal
	WAL WAL

	mu     sync.Mutex
	height uint64
	head   common.Hash
	hooks  []CommitHook
}

func NewProducer(rt Executor, mp *mempool.Mempool, store SlotStore, clock util.Clock, cfg Config, logger *zap.SugaredLogger) *Producer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Producer{
		Runtime: rt,
		Mempool: mp,
		Store:   store,
		Clock:   clock,
		Config:  cfg,
		Logger:  logger,
	}
}

// OnCommit registers a hook called after each slot is persisted
func (p *Producer) OnCommit(h CommitHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, h)
}

// Height returns the last committed slot height
func (p *Producer) Height() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.height
}

// Restore resumes from the latest persisted slot
func (p *Producer) Restore() error {
	latest, err := p.Store.LatestSlot()
	if err != nil {
		return fmt.Errorf("failed to load latest slot: %w", err)
	}
	if latest == nil {
		return nil
	}
	p.mu.Lock()
	p.height = latest.Height
	p.head = latest.Hash
	p.mu.Unlock()
	p.Logger.Infow("slot_restored", "height", latest.Height, "hash", latest.Hash.Hex())
	return nil
}

// Run produces a slot every SlotTime until ctx is cancelled
func (p *Producer) Run(ctx context.Context) error {
	if err := p.Restore(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.Clock.After(p.Config.SlotTime):
		}
		if _, err := p.ProduceSlot(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Logger.Errorw("slot_failed", "error", err)
		}
	}
}

// ProduceSlot executes one batch of pending transactions and persists the slot.
// Empty batches still advance the height.
func (p *Producer) ProduceSlot(ctx context.Context) (*Slot, error) {
	txs := p.Mempool.SelectForSlot(p.Config.MaxTxs)
	metrics.Node().SetMempoolSize(p.Mempool.Len())

	p.mu.Lock()
	height := p.height + 1
	parent := p.head
	p.mu.Unlock()

	receipts := make([]*ledger.Receipt, len(txs))
	for _, wave := range scheduleWaves(txs) {
		g, gctx := errgroup.WithContext(ctx)
		for _, idx := range wave {
			g.Go(func() error {
				rcpt, err := p.Runtime.Execute(gctx, txs[idx], height)
				if rcpt == nil && err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					p.Logger.Infow("tx_rejected",
						"tx", txs[idx].ID().Hex(),
						"slot", height,
						"error", err,
					)
					return nil
				}
				receipts[idx] = rcpt
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	slot := Slot{
		Height: height,
		Parent: parent,
		Time:   p.Clock.Now(),
	}
	var committed []*ledger.Receipt
	for _, r := range receipts {
		if r == nil {
			continue
		}
		committed = append(committed, r)
		slot.TxIDs = append(slot.TxIDs, r.TxID)
		if r.Success {
			slot.Succeeded++
		} else {
			slot.Failed++
		}
	}
	slot.Hash = HashOfSlot(slot)

	if err := p.Store.SaveSlot(slot); err != nil {
		return nil, fmt.Errorf("failed to save slot %d: %w", height, err)
	}

	p.mu.Lock()
	p.height = height
	p.head = slot.Hash
	hooks := append([]CommitHook(nil), p.hooks...)
	p.mu.Unlock()

	if p.WAL != nil {
		p.WAL.Append(fmt.Sprintf("commit slot=%d hash=%s txs=%d failed=%d", height, slot.Hash.Hex(), len(slot.TxIDs), slot.Failed))
	}
	metrics.Node().SetSlotHeight(height)
	if len(slot.TxIDs) > 0 {
		p.Logger.Infow("slot_committed",
			"height", height,
			"hash", slot.Hash.Hex(),
			"txs", len(slot.TxIDs),
			"failed", slot.Failed,
		)
	}

	for _, h := range hooks {
		h(slot, committed)
	}
	return &slot, nil
}

// scheduleWaves splits txs into waves of mutually non-conflicting
// transactions. Two transactions conflict when they share an account and at
// least one writes it; conflicting transactions keep their relative order.
func scheduleWaves(txs []*ledger.Transaction) [][]int {
	type access struct {
		writes map[ledger.Pubkey]bool
		keys   []ledger.Pubkey
	}
	accesses := make([]access, len(txs))
	for i, tx := range txs {
		a := access{writes: make(map[ledger.Pubkey]bool), keys: tx.AccountKeys()}
		for _, ix := range tx.Instructions {
			for _, meta := range ix.Accounts {
				if meta.IsWritable {
					a.writes[meta.Pubkey] = true
				}
			}
		}
		accesses[i] = a
	}

	// latest wave that writes / reads each key
	lastWrite := make(map[ledger.Pubkey]int)
	lastRead := make(map[ledger.Pubkey]int)
	var waves [][]int
	for i, a := range accesses {
		wave := 0
		for _, key := range a.keys {
			if w, ok := lastWrite[key]; ok && w+1 > wave {
				wave = w + 1
			}
			if a.writes[key] {
				if r, ok := lastRead[key]; ok && r+1 > wave {
					wave = r + 1
				}
			}
		}
		for len(waves) <= wave {
			waves = append(waves, nil)
		}
		waves[wave] = append(waves[wave], i)
		for _, key := range a.keys {
			if a.writes[key] {
				lastWrite[key] = wave
			} else if r, ok := lastRead[key]; !ok || wave > r {
				lastRead[key] = wave
			}
		}
	}
	return waves
}
