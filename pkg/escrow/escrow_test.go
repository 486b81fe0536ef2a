package escrow_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/uhyunpark/escrowd/pkg/crypto"
	"github.com/uhyunpark/escrowd/pkg/escrow"
	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/storage"
	"github.com/uhyunpark/escrowd/pkg/token"
)

const (
	orderAmount = 1_000_000
	orderPrice  = 3 * ledger.LamportsPerCoin
	paymentDue  = 3_000_000
)

// market is a runtime with the token and escrow programs plus funded actors
type market struct {
	t     *testing.T
	store *storage.MemStore
	rt    *ledger.Runtime
	pid   ledger.Pubkey
	nonce uint64

	authority, seller, buyer *crypto.Signer
	mint                     *crypto.Signer
	sellerPay, buyerPay      *crypto.Signer
}

func signer(t *testing.T, n byte) *crypto.Signer {
	t.Helper()
	s, err := crypto.FromSeed(bytes.Repeat([]byte{n}, 32))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newMarket(t *testing.T) *market {
	t.Helper()
	store := storage.NewMemStore()
	m := &market{
		t:         t,
		store:     store,
		pid:       escrow.DefaultProgramID,
		authority: signer(t, 1),
		seller:    signer(t, 2),
		buyer:     signer(t, 3),
		mint:      signer(t, 10),
		sellerPay: signer(t, 11),
		buyerPay:  signer(t, 12),
	}
	m.rt = ledger.NewRuntime(store, nil, token.Program{}, escrow.NewProgram(m.pid, nil))

	m.airdrop(m.authority.Pubkey(), 10*ledger.LamportsPerCoin)
	m.airdrop(m.seller.Pubkey(), 10*ledger.LamportsPerCoin)

	rent := m.rt.Rent()
	a := m.authority.Pubkey()
	m.mustSend([]*crypto.Signer{m.authority, m.mint},
		token.CreateMintInstructions(a, m.mint.Pubkey(), a, 6, rent)...)
	ixs := token.CreateAccountInstructions(a, m.sellerPay.Pubkey(), m.mint.Pubkey(), m.seller.Pubkey(), rent)
	ixs = append(ixs, token.CreateAccountInstructions(a, m.buyerPay.Pubkey(), m.mint.Pubkey(), m.buyer.Pubkey(), rent)...)
	m.mustSend([]*crypto.Signer{m.authority, m.sellerPay, m.buyerPay}, ixs...)
	m.mustSend([]*crypto.Signer{m.authority},
		token.MintToInstruction(m.mint.Pubkey(), m.buyerPay.Pubkey(), a, paymentDue))
	return m
}

func (m *market) airdrop(to ledger.Pubkey, lamports uint64) {
	m.t.Helper()
	if _, err := m.rt.Airdrop(context.Background(), to, lamports); err != nil {
		m.t.Fatalf("airdrop: %v", err)
	}
}

func (m *market) tx(signers []*crypto.Signer, ixs ...ledger.Instruction) *ledger.Transaction {
	m.nonce++
	tx := ledger.NewTransaction(m.nonce, ixs...)
	for _, s := range signers {
		s.SignTransaction(tx)
	}
	return tx
}

func (m *market) send(signers []*crypto.Signer, ixs ...ledger.Instruction) (*ledger.Receipt, error) {
	m.t.Helper()
	return m.rt.Execute(context.Background(), m.tx(signers, ixs...), m.nonce)
}

func (m *market) mustSend(signers []*crypto.Signer, ixs ...ledger.Instruction) *ledger.Receipt {
	m.t.Helper()
	r, err := m.send(signers, ixs...)
	if err != nil {
		m.t.Fatalf("send: %v", err)
	}
	return r
}

func (m *market) lamports(key ledger.Pubkey) uint64 {
	m.t.Helper()
	acc, err := m.rt.GetAccount(key)
	if err != nil {
		m.t.Fatal(err)
	}
	return acc.Lamports
}

func (m *market) tokens(key ledger.Pubkey) uint64 {
	m.t.Helper()
	acc, err := m.rt.GetAccount(key)
	if err != nil {
		m.t.Fatal(err)
	}
	ta, err := token.DecodeAccount(acc.Data)
	if err != nil {
		m.t.Fatalf("decode token account %s: %v", key, err)
	}
	return ta.Amount
}

func (m *market) createIx(orderID, amount, price uint64) ledger.Instruction {
	m.t.Helper()
	ix, err := escrow.NewCreateSellOrderInstruction(escrow.CreateSellOrderParams{
		ProgramID: m.pid,
		Authority: m.authority.Pubkey(),
		Seller:    m.seller.Pubkey(),
		OrderID:   orderID,
		Amount:    amount,
		Price:     price,
	})
	if err != nil {
		m.t.Fatal(err)
	}
	return ix
}

func (m *market) fulfilIx(orderID, authorized uint64) ledger.Instruction {
	m.t.Helper()
	ix, err := escrow.NewFulfilBuyOrderInstruction(escrow.FulfilBuyOrderParams{
		ProgramID:        m.pid,
		Authority:        m.authority.Pubkey(),
		Seller:           m.seller.Pubkey(),
		Buyer:            m.buyer.Pubkey(),
		OrderID:          orderID,
		SellerPayment:    m.sellerPay.Pubkey(),
		BuyerPayment:     m.buyerPay.Pubkey(),
		AuthorizedAmount: authorized,
	})
	if err != nil {
		m.t.Fatal(err)
	}
	return ix
}

// createOrder opens the next order and returns its id
func (m *market) createOrder(amount, price uint64) uint64 {
	m.t.Helper()
	id, err := escrow.NextOrderID(m.store, m.pid)
	if err != nil {
		m.t.Fatal(err)
	}
	m.mustSend([]*crypto.Signer{m.authority, m.seller}, m.createIx(id, amount, price))
	return id
}

func TestCreateSellOrder(t *testing.T) {
	m := newMarket(t)
	rent := m.rt.Rent()
	authBefore := m.lamports(m.authority.Pubkey())
	sellerBefore := m.lamports(m.seller.Pubkey())

	receipt := m.mustSend([]*crypto.Signer{m.authority, m.seller}, m.createIx(0, orderAmount, 2))

	c, counterAddr, err := escrow.LoadCounter(m.store, m.pid)
	if err != nil {
		t.Fatal(err)
	}
	if c.TotalOrders != 1 || c.Authority != m.authority.Pubkey() {
		t.Errorf("counter = %+v", c)
	}
	if got := m.lamports(counterAddr); got != rent.MinimumBalance(escrow.CounterSize) {
		t.Errorf("counter lamports = %d", got)
	}

	order, addr, err := escrow.LoadSellOrder(m.store, m.pid, m.seller.Pubkey(), 0)
	if err != nil {
		t.Fatal(err)
	}
	want := escrow.SellOrder{
		OrderID:       0,
		Seller:        m.seller.Pubkey(),
		EscrowAccount: addr,
		Amount:        orderAmount,
		Price:         2,
		Status:        escrow.StatusActive,
	}
	if *order != want {
		t.Errorf("order = %+v, want %+v", order, want)
	}

	holding, _, _ := escrow.HoldingAddress(addr, m.pid)
	if got, want := m.lamports(holding), rent.MinimumBalance(0)+orderAmount; got != want {
		t.Errorf("holding = %d, want %d", got, want)
	}
	if got := m.lamports(m.seller.Pubkey()); got != sellerBefore-orderAmount {
		t.Errorf("seller = %d, want %d", got, sellerBefore-orderAmount)
	}
	spent := rent.MinimumBalance(escrow.CounterSize) + rent.MinimumBalance(escrow.SellOrderSize) + rent.MinimumBalance(0)
	if got := m.lamports(m.authority.Pubkey()); got != authBefore-spent {
		t.Errorf("authority = %d, want %d", got, authBefore-spent)
	}

	var types []string
	for _, evt := range receipt.Events {
		types = append(types, evt.Type)
	}
	if len(types) != 2 || types[0] != escrow.EventTypeCounterInitialized || types[1] != escrow.EventTypeOrderCreated {
		t.Errorf("events = %v", types)
	}
}

func TestCreateSellOrderIssuesSequentialIDs(t *testing.T) {
	m := newMarket(t)
	const n = 5
	seen := make(map[ledger.Pubkey]bool)
	for i := uint64(0); i < n; i++ {
		id := m.createOrder(orderAmount, orderPrice)
		if id != i {
			t.Fatalf("order %d got id %d", i, id)
		}
		order, addr, err := escrow.LoadSellOrder(m.store, m.pid, m.seller.Pubkey(), id)
		if err != nil {
			t.Fatal(err)
		}
		if order.OrderID != id || seen[addr] {
			t.Errorf("order %d at %s reused", id, addr)
		}
		seen[addr] = true
	}
	next, err := escrow.NextOrderID(m.store, m.pid)
	if err != nil || next != n {
		t.Errorf("NextOrderID = %d, %v; want %d", next, err, n)
	}
}

func TestCreateSellOrderRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *market, ix *ledger.Instruction) []*crypto.Signer
		wantErr error
	}{
		{
			name: "stale order id",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				*ix = m.createIx(1, orderAmount, orderPrice)
				return []*crypto.Signer{m.authority, m.seller}
			},
			wantErr: escrow.ErrOwnershipMismatch,
		},
		{
			name: "payload seller differs from signer",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				other := ledger.HashPubkey("someone else")
				copy(ix.Data[1+8:1+40], other[:])
				return []*crypto.Signer{m.authority, m.seller}
			},
			wantErr: escrow.ErrInvalidAccountData,
		},
		{
			name: "seller does not sign",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Accounts[3].IsSigner = false
				return []*crypto.Signer{m.authority}
			},
			wantErr: escrow.ErrMissingSignature,
		},
		{
			name: "wrong holding account",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Accounts[5].Pubkey = ledger.HashPubkey("not the holding account")
				return []*crypto.Signer{m.authority, m.seller}
			},
			wantErr: escrow.ErrAddressMismatch,
		},
		{
			name: "counter is not the derived singleton",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Accounts[1].Pubkey = ledger.HashPubkey("not the counter")
				return []*crypto.Signer{m.authority, m.seller}
			},
			wantErr: escrow.ErrAddressMismatch,
		},
		{
			name: "truncated payload",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Data = ix.Data[:40]
				return []*crypto.Signer{m.authority, m.seller}
			},
			wantErr: escrow.ErrDecode,
		},
		{
			name: "empty payload",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Data = ix.Data[:1]
				return []*crypto.Signer{m.authority, m.seller}
			},
			wantErr: escrow.ErrDecode,
		},
		{
			name: "deposit exceeds seller balance",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				*ix = m.createIx(0, 11*ledger.LamportsPerCoin, orderPrice)
				return []*crypto.Signer{m.authority, m.seller}
			},
			wantErr: ledger.ErrInsufficientLamports,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMarket(t)
			authBefore := m.lamports(m.authority.Pubkey())
			sellerBefore := m.lamports(m.seller.Pubkey())

			ix := m.createIx(0, orderAmount, orderPrice)
			signers := tt.mutate(m, &ix)
			_, err := m.send(signers, ix)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}

			if next, _ := escrow.NextOrderID(m.store, m.pid); next != 0 {
				t.Errorf("counter advanced to %d", next)
			}
			if got := m.lamports(m.authority.Pubkey()); got != authBefore {
				t.Errorf("authority = %d, want %d", got, authBefore)
			}
			if got := m.lamports(m.seller.Pubkey()); got != sellerBefore {
				t.Errorf("seller = %d, want %d", got, sellerBefore)
			}
		})
	}
}

func TestFulfilBuyOrder(t *testing.T) {
	m := newMarket(t)
	id := m.createOrder(orderAmount, orderPrice)
	rent := m.rt.Rent()

	escrowAddr, _, _ := escrow.OrderAddress(m.seller.Pubkey(), id, m.pid)
	holding, _, _ := escrow.HoldingAddress(escrowAddr, m.pid)
	involved := []ledger.Pubkey{m.authority.Pubkey(), m.buyer.Pubkey(), m.seller.Pubkey(), escrowAddr, holding}
	sum := func() (total uint64) {
		for _, k := range involved {
			total += m.lamports(k)
		}
		return total
	}
	before := sum()
	authBefore := m.lamports(m.authority.Pubkey())
	buyerBefore := m.lamports(m.buyer.Pubkey())

	receipt := m.mustSend([]*crypto.Signer{m.authority, m.buyer}, m.fulfilIx(id, orderAmount))

	if got := m.tokens(m.buyerPay.Pubkey()); got != 0 {
		t.Errorf("buyer tokens = %d, want 0", got)
	}
	if got := m.tokens(m.sellerPay.Pubkey()); got != paymentDue {
		t.Errorf("seller tokens = %d, want %d", got, paymentDue)
	}
	if got := m.lamports(m.buyer.Pubkey()); got != buyerBefore+orderAmount {
		t.Errorf("buyer lamports = %d, want %d", got, buyerBefore+orderAmount)
	}
	wantAuth := authBefore + rent.MinimumBalance(escrow.SellOrderSize) + rent.MinimumBalance(0)
	if got := m.lamports(m.authority.Pubkey()); got != wantAuth {
		t.Errorf("authority = %d, want %d", got, wantAuth)
	}
	if after := sum(); after != before {
		t.Errorf("lamports not conserved: %d -> %d", before, after)
	}

	for _, k := range []ledger.Pubkey{escrowAddr, holding} {
		if acc, _ := m.store.GetAccount(k); acc != nil {
			t.Errorf("account %s not closed: %+v", k, acc)
		}
	}
	if _, _, err := escrow.LoadSellOrder(m.store, m.pid, m.seller.Pubkey(), id); !errors.Is(err, escrow.ErrUninitialized) {
		t.Errorf("closed order: err = %v, want ErrUninitialized", err)
	}

	var fulfilled *ledger.Event
	for i := range receipt.Events {
		if receipt.Events[i].Type == escrow.EventTypeOrderFulfilled {
			fulfilled = &receipt.Events[i]
		}
	}
	if fulfilled == nil || fulfilled.Attributes["paymentDue"] != "3000000" || fulfilled.Attributes["status"] != "completed" {
		t.Errorf("fulfilled event = %+v", fulfilled)
	}

	// the record is gone, so a second purchase finds nothing to settle
	_, err := m.send([]*crypto.Signer{m.authority, m.buyer}, m.fulfilIx(id, orderAmount))
	if !errors.Is(err, escrow.ErrUninitialized) {
		t.Errorf("second fulfil: err = %v, want ErrUninitialized", err)
	}
}

func TestFulfilBuyOrderRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *market, ix *ledger.Instruction) []*crypto.Signer
		wantErr error
	}{
		{
			name: "authorized amount below reserved",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				*ix = m.fulfilIx(0, orderAmount-1)
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrInsufficientFunds,
		},
		{
			name: "order id differs from record",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Data[1] = 9
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrArgumentMismatch,
		},
		{
			name: "buyer differs from request",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				other := ledger.HashPubkey("another buyer")
				copy(ix.Data[1+8:1+40], other[:])
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrArgumentMismatch,
		},
		{
			name: "buyer does not sign",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Accounts[4].IsSigner = false
				return []*crypto.Signer{m.authority}
			},
			wantErr: escrow.ErrMissingSignature,
		},
		{
			name: "authority does not sign",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Accounts[0].IsSigner = false
				return []*crypto.Signer{m.buyer}
			},
			wantErr: escrow.ErrMissingSignature,
		},
		{
			name: "wrong seller",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Accounts[3].Pubkey = m.buyer.Pubkey()
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrAddressMismatch,
		},
		{
			name: "wrong holding account",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Accounts[8].Pubkey = ledger.HashPubkey("not the holding account")
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrArgumentMismatch,
		},
		{
			name: "wrong token program",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Accounts[1].Pubkey = ledger.SystemProgramID
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrOwnershipMismatch,
		},
		{
			name: "buyer cannot pay",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				// the seller's payment account is not the buyer's to debit
				ix.Accounts[7].Pubkey = m.sellerPay.Pubkey()
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: token.ErrOwnerMismatch,
		},
		{
			name: "seller payment owned by buyer",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				sink := signer(m.t, 13)
				a := m.authority.Pubkey()
				m.mustSend([]*crypto.Signer{m.authority, sink},
					token.CreateAccountInstructions(a, sink.Pubkey(), m.mint.Pubkey(), m.buyer.Pubkey(), m.rt.Rent())...)
				ix.Accounts[6].Pubkey = sink.Pubkey()
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrArgumentMismatch,
		},
		{
			name: "seller payment is not a token account",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Accounts[6].Pubkey = m.seller.Pubkey()
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrArgumentMismatch,
		},
		{
			name: "request escrow differs from supplied record",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				other := ledger.HashPubkey("another escrow")
				copy(ix.Data[1+40:1+72], other[:])
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrArgumentMismatch,
		},
		{
			name: "escrow record not owned by program",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				addr := ix.Accounts[5].Pubkey
				acc, err := m.store.GetAccount(addr)
				if err != nil || acc == nil {
					m.t.Fatalf("escrow record: %v", err)
				}
				acc.Owner = token.ProgramID
				if err := m.store.CommitTransaction(nil, []ledger.AccountUpdate{{Key: addr, Account: acc}}); err != nil {
					m.t.Fatal(err)
				}
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrOwnershipMismatch,
		},
		{
			name: "unknown opcode",
			mutate: func(m *market, ix *ledger.Instruction) []*crypto.Signer {
				ix.Data[0] = 7
				return []*crypto.Signer{m.authority, m.buyer}
			},
			wantErr: escrow.ErrInvalidInstruction,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMarket(t)
			id := m.createOrder(orderAmount, orderPrice)
			escrowAddr, _, _ := escrow.OrderAddress(m.seller.Pubkey(), id, m.pid)
			holding, _, _ := escrow.HoldingAddress(escrowAddr, m.pid)
			holdingBefore := m.lamports(holding)
			buyerBefore := m.lamports(m.buyer.Pubkey())

			ix := m.fulfilIx(id, orderAmount)
			signers := tt.mutate(m, &ix)
			_, err := m.send(signers, ix)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}

			record, err := m.store.GetAccount(escrowAddr)
			if err != nil || record == nil {
				t.Fatalf("order lost: %v", err)
			}
			order, err := escrow.DecodeSellOrder(record.Data)
			if err != nil {
				t.Fatal(err)
			}
			if order.Status != escrow.StatusActive {
				t.Errorf("status = %s, want active", order.Status)
			}
			if got := m.lamports(holding); got != holdingBefore {
				t.Errorf("holding = %d, want %d", got, holdingBefore)
			}
			if got := m.lamports(m.buyer.Pubkey()); got != buyerBefore {
				t.Errorf("buyer lamports = %d, want %d", got, buyerBefore)
			}
			if got := m.tokens(m.buyerPay.Pubkey()); got != paymentDue {
				t.Errorf("buyer tokens = %d, want %d", got, paymentDue)
			}
			if got := m.tokens(m.sellerPay.Pubkey()); got != 0 {
				t.Errorf("seller tokens = %d, want 0", got)
			}
		})
	}
}

func TestFulfilBuyOrderPaymentOverflow(t *testing.T) {
	m := newMarket(t)
	id := m.createOrder(orderAmount, ^uint64(0))
	_, err := m.send([]*crypto.Signer{m.authority, m.buyer}, m.fulfilIx(id, orderAmount))
	if !errors.Is(err, escrow.ErrPaymentOverflow) {
		t.Errorf("err = %v, want ErrPaymentOverflow", err)
	}
}

func TestFulfilBuyOrderByAnotherAuthority(t *testing.T) {
	m := newMarket(t)
	id := m.createOrder(orderAmount, orderPrice)
	rent := m.rt.Rent()

	settler := signer(t, 14)
	m.airdrop(settler.Pubkey(), ledger.LamportsPerCoin)
	authBefore := m.lamports(m.authority.Pubkey())

	ix, err := escrow.NewFulfilBuyOrderInstruction(escrow.FulfilBuyOrderParams{
		ProgramID:        m.pid,
		Authority:        settler.Pubkey(),
		Seller:           m.seller.Pubkey(),
		Buyer:            m.buyer.Pubkey(),
		OrderID:          id,
		SellerPayment:    m.sellerPay.Pubkey(),
		BuyerPayment:     m.buyerPay.Pubkey(),
		AuthorizedAmount: orderAmount,
	})
	if err != nil {
		t.Fatal(err)
	}
	m.mustSend([]*crypto.Signer{settler, m.buyer}, ix)

	want := ledger.LamportsPerCoin + rent.MinimumBalance(escrow.SellOrderSize) + rent.MinimumBalance(0)
	if got := m.lamports(settler.Pubkey()); got != want {
		t.Errorf("settler = %d, want %d", got, want)
	}
	if got := m.lamports(m.authority.Pubkey()); got != authBefore {
		t.Errorf("creating authority = %d, want %d", got, authBefore)
	}
	if got := m.tokens(m.sellerPay.Pubkey()); got != paymentDue {
		t.Errorf("seller tokens = %d, want %d", got, paymentDue)
	}
}

func TestFulfilBuyOrderConcurrentBuyers(t *testing.T) {
	m := newMarket(t)
	id := m.createOrder(orderAmount, orderPrice)

	// Two differently-nonced purchases of the same order race
	txs := []*ledger.Transaction{
		m.tx([]*crypto.Signer{m.authority, m.buyer}, m.fulfilIx(id, orderAmount)),
		m.tx([]*crypto.Signer{m.authority, m.buyer}, m.fulfilIx(id, orderAmount+1)),
	}
	errs := make([]error, len(txs))
	var wg sync.WaitGroup
	for i, tx := range txs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.rt.Execute(context.Background(), tx, 100)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, escrow.ErrUninitialized):
			t.Errorf("loser err = %v, want ErrUninitialized", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d purchases settled, want 1", ok)
	}
	if got := m.tokens(m.sellerPay.Pubkey()); got != paymentDue {
		t.Errorf("seller tokens = %d, want %d", got, paymentDue)
	}
}
