package ledger

import (
	"bytes"
	"context"
	"fmt"

	"github.com/holiman/uint256"
)

// MaxInvokeDepth bounds the program call stack (top-level call included)
const MaxInvokeDepth = 5

// AccountInfo is a program's view of one account during a call
// The embedded *Account is shared with every other frame that holds the same
// key, so writes are visible to callers as soon as the callee returns.
type AccountInfo struct {
	Key        Pubkey
	IsSigner   bool
	IsWritable bool
	*Account
}

// Program is native code bound to a program ID
type Program interface {
	ID() Pubkey
	Process(ic *InvokeContext, accounts []*AccountInfo, data []byte) error
}

type privilege struct {
	signer   bool
	writable bool
}

// frame is one program activation
// pre is the state the current verification segment started from.
type frame struct {
	programID Pubkey
	privs     map[Pubkey]privilege
	pre       map[Pubkey]*Account
}

// InvokeContext carries per-transaction execution state through program calls
type InvokeContext struct {
	ctx      context.Context
	programs map[Pubkey]Program
	rent     Rent
	slot     uint64
	accounts map[Pubkey]*Account
	stack    []*frame
	logs     []string
	events   []Event
}

func newInvokeContext(ctx context.Context, programs map[Pubkey]Program, rent Rent, slot uint64, accounts map[Pubkey]*Account) *InvokeContext {
	return &InvokeContext{
		ctx:      ctx,
		programs: programs,
		rent:     rent,
		slot:     slot,
		accounts: accounts,
	}
}

func (ic *InvokeContext) Context() context.Context { return ic.ctx }

func (ic *InvokeContext) Rent() Rent { return ic.rent }

func (ic *InvokeContext) Slot() uint64 { return ic.slot }

// ProgramID returns the program currently executing
func (ic *InvokeContext) ProgramID() Pubkey {
	if len(ic.stack) == 0 {
		return Pubkey{}
	}
	return ic.stack[len(ic.stack)-1].programID
}

// Log appends a program log line to the receipt
func (ic *InvokeContext) Log(format string, args ...interface{}) {
	ic.logs = append(ic.logs, fmt.Sprintf("Program %s log: %s", ic.ProgramID(), fmt.Sprintf(format, args...)))
}

// Emit records an event; events are dropped if the transaction fails
func (ic *InvokeContext) Emit(evt Event) {
	ic.events = append(ic.events, evt)
}

// Logs returns the log lines collected so far
func (ic *InvokeContext) Logs() []string { return ic.logs }

// Events returns the events emitted so far
func (ic *InvokeContext) Events() []Event { return ic.events }

// Invoke calls another program with the caller's privileges
func (ic *InvokeContext) Invoke(ix Instruction) error {
	return ic.InvokeSigned(ix)
}

// InvokeSigned calls another program. Each entry of signerSeeds is re-derived
// against the calling program's ID; the resulting addresses count as signers.
func (ic *InvokeContext) InvokeSigned(ix Instruction, signerSeeds ...[][]byte) error {
	if len(ic.stack) == 0 {
		return fmt.Errorf("%w: invoke outside of program execution", ErrMissingAccount)
	}
	caller := ic.stack[len(ic.stack)-1]

	derived := make(map[Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := CreateProgramAddress(seeds, caller.programID)
		if err != nil {
			return fmt.Errorf("failed to derive signer: %w", err)
		}
		derived[addr] = true
	}

	privs := make(map[Pubkey]privilege, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		cp, ok := caller.privs[meta.Pubkey]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAccount, meta.Pubkey)
		}
		if meta.IsWritable && !cp.writable {
			return fmt.Errorf("%w: %s writable", ErrPrivilegeEscalation, meta.Pubkey)
		}
		if meta.IsSigner && !cp.signer && !derived[meta.Pubkey] {
			return fmt.Errorf("%w: %s signer", ErrPrivilegeEscalation, meta.Pubkey)
		}
		p := privs[meta.Pubkey]
		p.signer = p.signer || meta.IsSigner
		p.writable = p.writable || meta.IsWritable
		privs[meta.Pubkey] = p
	}

	if err := ic.verify(caller); err != nil {
		return err
	}
	err := ic.call(ix, privs)
	ic.snapshot(caller)
	return err
}

// processTopLevel runs one transaction instruction with privileges taken from
// its account metas (signatures were verified before execution).
func (ic *InvokeContext) processTopLevel(ix Instruction, signers map[Pubkey]bool) error {
	privs := make(map[Pubkey]privilege, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		p := privs[meta.Pubkey]
		p.signer = p.signer || (meta.IsSigner && signers[meta.Pubkey])
		p.writable = p.writable || meta.IsWritable
		privs[meta.Pubkey] = p
	}
	return ic.call(ix, privs)
}

func (ic *InvokeContext) call(ix Instruction, privs map[Pubkey]privilege) error {
	program, ok := ic.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID)
	}
	if len(ic.stack) >= MaxInvokeDepth {
		return ErrCallDepth
	}
	for _, f := range ic.stack {
		if f.programID == ix.ProgramID {
			return fmt.Errorf("%w: %s", ErrReentrancy, ix.ProgramID)
		}
	}
	if err := ic.ctx.Err(); err != nil {
		return err
	}

	f := &frame{programID: ix.ProgramID, privs: privs}
	ic.snapshot(f)

	infos := make([]*AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		p := privs[meta.Pubkey]
		infos[i] = &AccountInfo{
			Key:        meta.Pubkey,
			IsSigner:   p.signer,
			IsWritable: p.writable,
			Account:    ic.accounts[meta.Pubkey],
		}
	}

	ic.stack = append(ic.stack, f)
	depth := len(ic.stack)
	ic.logs = append(ic.logs, fmt.Sprintf("Program %s invoke [%d]", ix.ProgramID, depth))

	err := program.Process(ic, infos, ix.Data)
	if err == nil {
		err = ic.verify(f)
	}
	ic.stack = ic.stack[:len(ic.stack)-1]

	if err != nil {
		ic.logs = append(ic.logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return err
	}
	ic.logs = append(ic.logs, fmt.Sprintf("Program %s success", ix.ProgramID))
	return nil
}

// snapshot starts a new verification segment for f
func (ic *InvokeContext) snapshot(f *frame) {
	f.pre = make(map[Pubkey]*Account, len(f.privs))
	for key := range f.privs {
		f.pre[key] = ic.accounts[key].Clone()
	}
}

// verify checks every change made since f's segment began:
// only the owner debits or rewrites data; owner changes need writable,
// current-owner and zeroed data; read-only and program accounts stay put;
// total lamports are unchanged.
func (ic *InvokeContext) verify(f *frame) error {
	var preSum, postSum uint256.Int
	for key, pre := range f.pre {
		post := ic.accounts[key]
		p := f.privs[key]

		preSum.Add(&preSum, uint256.NewInt(pre.Lamports))
		postSum.Add(&postSum, uint256.NewInt(post.Lamports))

		if pre.Executable {
			if post.Lamports != pre.Lamports || post.Owner != pre.Owner || !post.Executable || !bytes.Equal(pre.Data, post.Data) {
				return fmt.Errorf("%w: %s", ErrExecutableModified, key)
			}
			continue
		}
		if post.Executable {
			return fmt.Errorf("%w: %s", ErrExecutableModified, key)
		}
		if post.Owner != pre.Owner {
			if !p.writable || pre.Owner != f.programID || !post.dataIsZeroed() {
				return fmt.Errorf("%w: %s", ErrModifiedOwner, key)
			}
		}
		if post.Lamports != pre.Lamports {
			if !p.writable {
				return fmt.Errorf("%w: %s lamports", ErrReadonlyModified, key)
			}
			if post.Lamports < pre.Lamports && pre.Owner != f.programID {
				return fmt.Errorf("%w: %s", ErrExternalLamportSpend, key)
			}
		}
		if !bytes.Equal(pre.Data, post.Data) {
			if !p.writable {
				return fmt.Errorf("%w: %s data", ErrReadonlyModified, key)
			}
			if pre.Owner != f.programID {
				return fmt.Errorf("%w: %s", ErrExternalDataModified, key)
			}
		}
	}
	if !preSum.Eq(&postSum) {
		return fmt.Errorf("%w: before %s after %s", ErrUnbalancedInstruction, preSum.Dec(), postSum.Dec())
	}
	return nil
}
