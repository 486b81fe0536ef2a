package escrow

import (
	"strconv"

	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/metrics"
)

const (
	EventTypeCounterInitialized = "escrow.counter_initialized"
	EventTypeOrderCreated       = "escrow.order_created"
	EventTypeOrderFulfilled     = "escrow.order_fulfilled"
)

// NewCounterInitializedEvent is emitted the first time the counter is created
func NewCounterInitializedEvent(counter ledger.Pubkey, c *OrderCounter) ledger.Event {
	return ledger.Event{
		Type: EventTypeCounterInitialized,
		Attributes: map[string]string{
			"counter":   counter.String(),
			"authority": c.Authority.String(),
		},
	}
}

// NewOrderCreatedEvent returns the canonical payload for a new sell order
func NewOrderCreatedEvent(o *SellOrder, holding ledger.Pubkey) ledger.Event {
	evt := newOrderEvent(EventTypeOrderCreated, o)
	evt.Attributes["holding"] = holding.String()
	return evt
}

// NewOrderFulfilledEvent returns the canonical payload for a settled order
func NewOrderFulfilledEvent(o *SellOrder, buyer ledger.Pubkey, paymentDue uint64) ledger.Event {
	evt := newOrderEvent(EventTypeOrderFulfilled, o)
	evt.Attributes["buyer"] = buyer.String()
	evt.Attributes["paymentDue"] = strconv.FormatUint(paymentDue, 10)
	return evt
}

func newOrderEvent(eventType string, o *SellOrder) ledger.Event {
	return ledger.Event{
		Type: eventType,
		Attributes: map[string]string{
			"orderId": strconv.FormatUint(o.OrderID, 10),
			"seller":  o.Seller.String(),
			"escrow":  o.EscrowAccount.String(),
			"amount":  strconv.FormatUint(o.Amount, 10),
			"price":   strconv.FormatUint(o.Price, 10),
			"status":  o.Status.String(),
		},
	}
}

// ObserveReceipt counts the escrow operations a committed receipt carries
func ObserveReceipt(r *ledger.Receipt) {
	if r == nil || !r.Success {
		return
	}
	m := metrics.Node()
	for _, evt := range r.Events {
		switch evt.Type {
		case EventTypeOrderCreated:
			m.ObserveEscrowOrder("create")
		case EventTypeOrderFulfilled:
			m.ObserveEscrowOrder("fulfil")
		}
	}
}
