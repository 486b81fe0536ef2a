package escrow

import (
	"fmt"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// ensureCounter creates the counter singleton on first use and is a no-op
// once it holds data. counter must already be checked against its derived
// address; bump is the one that derivation returned.
func (p *Program) ensureCounter(ic *ledger.InvokeContext, authority, counter *ledger.AccountInfo, bump uint8) error {
	if len(counter.Data) != 0 {
		return nil
	}
	ic.Log("Creating order counter %s", counter.Key)

	lamports := ic.Rent().MinimumBalance(CounterSize)
	create := ledger.CreateAccountInstruction(authority.Key, counter.Key, lamports, CounterSize, p.id)
	if err := ic.InvokeSigned(create, withBump(counterSeeds(), bump)); err != nil {
		return fmt.Errorf("failed to create order counter: %w", err)
	}

	c := &OrderCounter{TotalOrders: 0, Authority: authority.Key}
	copy(counter.Data, c.Encode())
	ic.Emit(NewCounterInitializedEvent(counter.Key, c))
	return nil
}

// loadCounter reads the current counter value; the id it returns is the next
// one to issue and is not consumed until advanceCounter.
func (p *Program) loadCounter(counter *ledger.AccountInfo) (*OrderCounter, error) {
	if counter.Owner != p.id {
		return nil, fmt.Errorf("%w: counter owned by %s", ErrOwnershipMismatch, counter.Owner)
	}
	return DecodeCounter(counter.Data)
}

// advanceCounter consumes the current id and persists the increment
func advanceCounter(counter *ledger.AccountInfo, c *OrderCounter) error {
	if c.TotalOrders == ^uint64(0) {
		return fmt.Errorf("%w: order counter exhausted", ledger.ErrArithmeticOverflow)
	}
	c.TotalOrders++
	copy(counter.Data, c.Encode())
	return nil
}
