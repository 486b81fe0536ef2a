package escrow_test

import (
	"errors"
	"testing"

	"github.com/uhyunpark/escrowd/pkg/escrow"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

func TestSellOrderCodec(t *testing.T) {
	o := &escrow.SellOrder{
		OrderID:       7,
		Seller:        ledger.HashPubkey("seller"),
		EscrowAccount: ledger.HashPubkey("escrow"),
		Amount:        1_000_000,
		Price:         3 * ledger.LamportsPerCoin,
		Status:        escrow.StatusActive,
	}
	data := o.Encode()
	if len(data) != escrow.SellOrderSize || len(data) != 89 {
		t.Fatalf("len = %d, want 89", len(data))
	}
	// little-endian order id leads the layout
	if data[0] != 7 || data[1] != 0 {
		t.Errorf("order id bytes = %x", data[:8])
	}
	got, err := escrow.DecodeSellOrder(data)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *o {
		t.Errorf("decoded %+v, want %+v", got, o)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, escrow.ErrUninitialized},
		{"short", data[:88], escrow.ErrDecode},
		{"long", append(append([]byte(nil), data...), 0), escrow.ErrDecode},
		{"unknown status", append(append([]byte(nil), data[:88]...), 3), escrow.ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := escrow.DecodeSellOrder(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	cancelled := append(append([]byte(nil), data[:88]...), byte(escrow.StatusCancelled))
	got, err = escrow.DecodeSellOrder(cancelled)
	if err != nil || got.Status != escrow.StatusCancelled {
		t.Errorf("cancelled status: %v, %v", got, err)
	}
}

func TestBuyOrderAndCounterCodec(t *testing.T) {
	b := &escrow.BuyOrder{
		OrderID:       3,
		Buyer:         ledger.HashPubkey("buyer"),
		EscrowAccount: ledger.HashPubkey("escrow"),
		Amount:        10,
	}
	if len(b.Encode()) != 80 {
		t.Fatalf("buy order len = %d, want 80", len(b.Encode()))
	}
	gotB, err := escrow.DecodeBuyOrder(b.Encode())
	if err != nil || *gotB != *b {
		t.Errorf("buy order = %+v, %v", gotB, err)
	}

	c := &escrow.OrderCounter{TotalOrders: 12, Authority: ledger.HashPubkey("auth")}
	if len(c.Encode()) != 40 {
		t.Fatalf("counter len = %d, want 40", len(c.Encode()))
	}
	gotC, err := escrow.DecodeCounter(c.Encode())
	if err != nil || *gotC != *c {
		t.Errorf("counter = %+v, %v", gotC, err)
	}
	if _, err := escrow.DecodeCounter(make([]byte, 39)); !errors.Is(err, escrow.ErrDecode) {
		t.Errorf("short counter: err = %v", err)
	}
}

func TestStatusString(t *testing.T) {
	for s, want := range map[escrow.Status]string{
		escrow.StatusActive:    "active",
		escrow.StatusCompleted: "completed",
		escrow.StatusCancelled: "cancelled",
		escrow.Status(9):       "status(9)",
	} {
		if got := s.String(); got != want {
			t.Errorf("Status(%d) = %q, want %q", s, got, want)
		}
	}
}

func TestPaymentDue(t *testing.T) {
	tests := []struct {
		name    string
		amount  uint64
		price   uint64
		want    uint64
		wantErr error
	}{
		{"one coin at price", ledger.LamportsPerCoin, 5, 5, nil},
		{"fraction of a coin", 1_000_000, 3 * ledger.LamportsPerCoin, 3_000_000, nil},
		{"rounds down", 1, 1, 0, nil},
		{"zero price", 1_000_000, 0, 0, nil},
		{"largest product", 1 << 32, (1 << 32) - 1, ((1 << 32) * ((1 << 32) - 1)) / ledger.LamportsPerCoin, nil},
		{"product overflows", 10_000_000_000, 10_000_000_000, 0, escrow.ErrPaymentOverflow},
		{"max operands", ^uint64(0), ^uint64(0), 0, escrow.ErrPaymentOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := escrow.PaymentDue(tt.amount, tt.price)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("PaymentDue(%d, %d) = %d, want %d", tt.amount, tt.price, got, tt.want)
			}
		})
	}
}

func TestAddressDerivation(t *testing.T) {
	pid := escrow.DefaultProgramID
	seller := ledger.HashPubkey("seller")
	other := ledger.HashPubkey("other")

	counter, _, err := escrow.CounterAddress(pid)
	if err != nil {
		t.Fatal(err)
	}
	if ledger.IsOnCurve(counter[:]) {
		t.Error("counter address must be off-curve")
	}
	again, _, _ := escrow.CounterAddress(pid)
	if counter != again {
		t.Error("counter derivation is not deterministic")
	}

	seen := map[ledger.Pubkey]string{counter: "counter"}
	for _, s := range []ledger.Pubkey{seller, other} {
		for id := uint64(0); id < 8; id++ {
			rec, _, err := escrow.OrderAddress(s, id, pid)
			if err != nil {
				t.Fatal(err)
			}
			hold, _, err := escrow.HoldingAddress(rec, pid)
			if err != nil {
				t.Fatal(err)
			}
			for _, addr := range []ledger.Pubkey{rec, hold} {
				if prev, dup := seen[addr]; dup {
					t.Fatalf("address %s collides with %s", addr, prev)
				}
				seen[addr] = s.String()
			}
		}
	}

	rec, _, _ := escrow.OrderAddress(seller, 0, pid)
	recOther, _, _ := escrow.OrderAddress(seller, 0, ledger.HashPubkey("another program"))
	if rec == recOther {
		t.Error("program id does not separate addresses")
	}
}
