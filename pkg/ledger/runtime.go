package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/metrics"
)

// NativeLoaderID owns every registered program account
var NativeLoaderID = MustPubkeyFromBase58("NativeLoader1111111111111111111111111111111")

// Runtime executes transactions against a Store
// Each transaction runs all-or-nothing: writable accounts and the receipt are
// committed in one batch, or only a failed receipt is stored.
type Runtime struct {
	store  Store
	rent   Rent
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	programs map[Pubkey]Program

	locks lockTable

	inflightMu sync.Mutex
	inflight   map[common.Hash]struct{}
}

// NewRuntime creates a runtime with the system program registered
func NewRuntime(store Store, logger *zap.SugaredLogger, programs ...Program) *Runtime {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Runtime{
		store:    store,
		rent:     DefaultRent(),
		logger:   logger,
		programs: make(map[Pubkey]Program),
		inflight: make(map[common.Hash]struct{}),
	}
	r.RegisterProgram(SystemProgram{})
	for _, p := range programs {
		r.RegisterProgram(p)
	}
	return r
}

// RegisterProgram binds p to its ID, replacing any previous binding
func (r *Runtime) RegisterProgram(p Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[p.ID()] = p
	r.logger.Debugw("program_registered", "program", p.ID().String())
}

func (r *Runtime) Rent() Rent { return r.rent }

// Store exposes the backing store for read paths (API queries)
func (r *Runtime) Store() Store { return r.store }

// GetAccount returns committed state; never-seen keys come back as empty
// system-owned accounts
func (r *Runtime) GetAccount(key Pubkey) (*Account, error) {
	if p := r.program(key); p != nil {
		return programAccount(), nil
	}
	acc, err := r.store.GetAccount(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", key, err)
	}
	if acc == nil {
		return NewEmptyAccount(), nil
	}
	return acc, nil
}

// GetReceipt looks up a committed transaction outcome
func (r *Runtime) GetReceipt(id common.Hash) (*Receipt, error) {
	return r.store.GetReceipt(id)
}

// Execute verifies, runs and commits tx at slot.
//
// Returns (nil, err) when tx is rejected before execution (bad signatures,
// duplicate). Returns (receipt, err) when execution failed: the failed
// receipt is stored and no account changes persist. Returns (receipt, nil) on
// success.
func (r *Runtime) Execute(ctx context.Context, tx *Transaction, slot uint64) (*Receipt, error) {
	start := time.Now()
	m := metrics.Node()

	signers, err := tx.VerifySignatures()
	if err != nil {
		m.ObserveTx("rejected", time.Since(start))
		return nil, err
	}
	id := tx.ID()

	if !r.beginInflight(id) {
		m.ObserveTx("rejected", time.Since(start))
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, id.Hex())
	}
	defer r.endInflight(id)

	keys := tx.AccountKeys()
	writable := make(map[Pubkey]bool, len(keys))
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsWritable {
				writable[meta.Pubkey] = true
			}
		}
	}

	release := r.locks.acquire(keys, writable)
	defer release()

	existing, err := r.store.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("failed to check receipt: %w", err)
	}
	if existing != nil {
		m.ObserveTx("rejected", time.Since(start))
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, id.Hex())
	}

	working, err := r.loadAccounts(keys)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	programs := make(map[Pubkey]Program, len(r.programs))
	for k, p := range r.programs {
		programs[k] = p
	}
	r.mu.RUnlock()

	ic := newInvokeContext(ctx, programs, r.rent, slot, working)
	var execErr error
	for i, ix := range tx.Instructions {
		if err := ic.processTopLevel(ix, signers); err != nil {
			execErr = &InstructionError{Index: i, Err: err}
			break
		}
	}

	receipt := &Receipt{
		TxID:    id,
		Slot:    slot,
		Success: execErr == nil,
		Logs:    ic.Logs(),
	}

	if execErr != nil {
		receipt.Err = execErr.Error()
		if err := r.store.CommitTransaction(receipt, nil); err != nil {
			return nil, fmt.Errorf("failed to store failed receipt: %w", err)
		}
		r.logger.Infow("tx_failed",
			"tx", id.Hex(),
			"slot", slot,
			"error", execErr,
		)
		m.ObserveTx("failed", time.Since(start))
		return receipt, execErr
	}

	receipt.Events = ic.Events()
	updates := make([]AccountUpdate, 0, len(writable))
	for _, key := range keys {
		if !writable[key] {
			continue
		}
		acc := working[key]
		if acc.Executable {
			continue
		}
		if acc.Lamports == 0 {
			// zero-balance accounts are purged
			updates = append(updates, AccountUpdate{Key: key})
			continue
		}
		updates = append(updates, AccountUpdate{Key: key, Account: acc})
	}

	if err := r.store.CommitTransaction(receipt, updates); err != nil {
		m.ObserveTx("failed", time.Since(start))
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debugw("tx_committed",
		"tx", id.Hex(),
		"slot", slot,
		"accounts_written", len(updates),
		"events", len(receipt.Events),
	)
	m.ObserveTx("success", time.Since(start))
	return receipt, nil
}

// Airdrop credits lamports to an account outside of any transaction
func (r *Runtime) Airdrop(ctx context.Context, to Pubkey, lamports uint64) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.program(to) != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutableModified, to)
	}
	release := r.locks.acquire([]Pubkey{to}, map[Pubkey]bool{to: true})
	defer release()

	accounts, err := r.loadAccounts([]Pubkey{to})
	if err != nil {
		return nil, err
	}
	acc := accounts[to]
	if acc.Lamports+lamports < acc.Lamports {
		return nil, ErrArithmeticOverflow
	}
	acc.Lamports += lamports
	if acc.Lamports == 0 {
		return acc, nil
	}
	if err := r.store.CommitTransaction(nil, []AccountUpdate{{Key: to, Account: acc}}); err != nil {
		return nil, fmt.Errorf("failed to commit airdrop: %w", err)
	}
	r.logger.Infow("airdrop",
		"to", to.String(),
		"lamports", lamports,
		"balance", acc.Lamports,
	)
	return acc, nil
}

func (r *Runtime) program(key Pubkey) Program {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.programs[key]
}

func programAccount() *Account {
	return &Account{Owner: NativeLoaderID, Executable: true, Lamports: 1}
}

func (r *Runtime) loadAccounts(keys []Pubkey) (map[Pubkey]*Account, error) {
	working := make(map[Pubkey]*Account, len(keys))
	for _, key := range keys {
		if r.program(key) != nil {
			working[key] = programAccount()
			continue
		}
		acc, err := r.store.GetAccount(key)
		if err != nil {
			return nil, fmt.Errorf("failed to load account %s: %w", key, err)
		}
		working[key] = acc.Clone()
	}
	return working, nil
}

func (r *Runtime) beginInflight(id common.Hash) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if _, ok := r.inflight[id]; ok {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Runtime) endInflight(id common.Hash) {
	r.inflightMu.Lock()
	delete(r.inflight, id)
	r.inflightMu.Unlock()
}

// IsRejected reports whether err means tx never executed
func IsRejected(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMissingRequiredSignature) ||
		errors.Is(err, ErrEmptyTransaction)
}
