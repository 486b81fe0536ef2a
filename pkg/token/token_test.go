package token_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/uhyunpark/escrowd/pkg/crypto"
	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/storage"
	"github.com/uhyunpark/escrowd/pkg/token"
)

type harness struct {
	t     *testing.T
	rt    *ledger.Runtime
	nonce uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{t: t, rt: ledger.NewRuntime(storage.NewMemStore(), nil, token.Program{})}
}

func key(t *testing.T, n byte) *crypto.Signer {
	t.Helper()
	s, err := crypto.FromSeed(bytes.Repeat([]byte{n}, 32))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (h *harness) send(signers []*crypto.Signer, ixs ...ledger.Instruction) error {
	h.t.Helper()
	h.nonce++
	tx := ledger.NewTransaction(h.nonce, ixs...)
	for _, s := range signers {
		s.SignTransaction(tx)
	}
	_, err := h.rt.Execute(context.Background(), tx, h.nonce)
	return err
}

func (h *harness) mustSend(signers []*crypto.Signer, ixs ...ledger.Instruction) {
	h.t.Helper()
	if err := h.send(signers, ixs...); err != nil {
		h.t.Fatalf("send: %v", err)
	}
}

func (h *harness) tokenAccount(key ledger.Pubkey) *token.Account {
	h.t.Helper()
	acc, err := h.rt.GetAccount(key)
	if err != nil {
		h.t.Fatal(err)
	}
	ta, err := token.DecodeAccount(acc.Data)
	if err != nil {
		h.t.Fatalf("decode %s: %v", key, err)
	}
	return ta
}

// setup creates a mint owned by authority and two funded token accounts
func setup(t *testing.T) (h *harness, authority, alice, bob, mint, aliceTok, bobTok *crypto.Signer) {
	t.Helper()
	h = newHarness(t)
	authority, alice, bob = key(t, 1), key(t, 2), key(t, 3)
	mint, aliceTok, bobTok = key(t, 10), key(t, 11), key(t, 12)
	if _, err := h.rt.Airdrop(context.Background(), authority.Pubkey(), ledger.LamportsPerCoin); err != nil {
		t.Fatal(err)
	}
	rent := h.rt.Rent()

	h.mustSend([]*crypto.Signer{authority, mint},
		token.CreateMintInstructions(authority.Pubkey(), mint.Pubkey(), authority.Pubkey(), 6, rent)...)
	ixs := token.CreateAccountInstructions(authority.Pubkey(), aliceTok.Pubkey(), mint.Pubkey(), alice.Pubkey(), rent)
	ixs = append(ixs, token.CreateAccountInstructions(authority.Pubkey(), bobTok.Pubkey(), mint.Pubkey(), bob.Pubkey(), rent)...)
	h.mustSend([]*crypto.Signer{authority, aliceTok, bobTok}, ixs...)
	h.mustSend([]*crypto.Signer{authority},
		token.MintToInstruction(mint.Pubkey(), aliceTok.Pubkey(), authority.Pubkey(), 5_000_000))
	return
}

func TestMintCodec(t *testing.T) {
	m := &token.Mint{MintAuthority: ledger.HashPubkey("auth"), Supply: 42, Decimals: 6, Initialized: true}
	data := m.Encode()
	if len(data) != token.MintSize {
		t.Fatalf("len = %d, want %d", len(data), token.MintSize)
	}
	got, err := token.DecodeMint(data)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *m {
		t.Errorf("decoded %+v, want %+v", got, m)
	}

	data[token.MintSize-1] = 2
	if _, err := token.DecodeMint(data); !errors.Is(err, token.ErrInvalidAccountData) {
		t.Errorf("bad bool: err = %v", err)
	}
	if _, err := token.DecodeMint(data[:10]); !errors.Is(err, token.ErrInvalidAccountData) {
		t.Errorf("short: err = %v", err)
	}
}

func TestAccountCodec(t *testing.T) {
	a := &token.Account{Mint: ledger.HashPubkey("mint"), Owner: ledger.HashPubkey("owner"), Amount: 7, Initialized: true}
	got, err := token.DecodeAccount(a.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if *got != *a {
		t.Errorf("decoded %+v, want %+v", got, a)
	}
	if _, err := token.DecodeAccount(append(a.Encode(), 0)); !errors.Is(err, token.ErrInvalidAccountData) {
		t.Errorf("long: err = %v", err)
	}
}

func TestMintAndTransfer(t *testing.T) {
	h, _, alice, _, mint, aliceTok, bobTok := setup(t)

	h.mustSend([]*crypto.Signer{alice},
		token.TransferInstruction(aliceTok.Pubkey(), bobTok.Pubkey(), alice.Pubkey(), 3_000_000))

	if got := h.tokenAccount(aliceTok.Pubkey()).Amount; got != 2_000_000 {
		t.Errorf("alice = %d, want 2000000", got)
	}
	if got := h.tokenAccount(bobTok.Pubkey()).Amount; got != 3_000_000 {
		t.Errorf("bob = %d, want 3000000", got)
	}

	acc, _ := h.rt.GetAccount(mint.Pubkey())
	m, err := token.DecodeMint(acc.Data)
	if err != nil {
		t.Fatal(err)
	}
	if m.Supply != 5_000_000 || m.Decimals != 6 {
		t.Errorf("mint = %+v", m)
	}
}

func TestTransferErrors(t *testing.T) {
	tests := []struct {
		name    string
		build   func(alice, bob, aliceTok, bobTok ledger.Pubkey) ledger.Instruction
		signer  func(alice, bob *crypto.Signer) *crypto.Signer
		wantErr error
	}{
		{
			name: "insufficient funds",
			build: func(alice, _, aliceTok, bobTok ledger.Pubkey) ledger.Instruction {
				return token.TransferInstruction(aliceTok, bobTok, alice, 5_000_001)
			},
			signer:  func(alice, _ *crypto.Signer) *crypto.Signer { return alice },
			wantErr: token.ErrInsufficientFunds,
		},
		{
			name: "not the owner",
			build: func(_, bob, aliceTok, bobTok ledger.Pubkey) ledger.Instruction {
				return token.TransferInstruction(aliceTok, bobTok, bob, 1)
			},
			signer:  func(_, bob *crypto.Signer) *crypto.Signer { return bob },
			wantErr: token.ErrOwnerMismatch,
		},
		{
			name: "source not a token account",
			build: func(alice, _, _, bobTok ledger.Pubkey) ledger.Instruction {
				return token.TransferInstruction(alice, bobTok, alice, 1)
			},
			signer:  func(alice, _ *crypto.Signer) *crypto.Signer { return alice },
			wantErr: token.ErrInvalidAccountOwner,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, alice, bob, _, aliceTok, bobTok := setup(t)
			ix := tt.build(alice.Pubkey(), bob.Pubkey(), aliceTok.Pubkey(), bobTok.Pubkey())
			err := h.send([]*crypto.Signer{tt.signer(alice, bob)}, ix)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if got := h.tokenAccount(aliceTok.Pubkey()).Amount; got != 5_000_000 {
				t.Errorf("alice = %d, want 5000000", got)
			}
		})
	}
}

func TestMintToRequiresAuthority(t *testing.T) {
	h, _, alice, _, mint, aliceTok, _ := setup(t)
	err := h.send([]*crypto.Signer{alice},
		token.MintToInstruction(mint.Pubkey(), aliceTok.Pubkey(), alice.Pubkey(), 1))
	if !errors.Is(err, token.ErrOwnerMismatch) {
		t.Errorf("err = %v, want ErrOwnerMismatch", err)
	}
}

func TestInitializeTwice(t *testing.T) {
	h, authority, _, _, mint, _, _ := setup(t)
	err := h.send([]*crypto.Signer{authority},
		token.InitializeMintInstruction(mint.Pubkey(), authority.Pubkey(), 9))
	if !errors.Is(err, token.ErrAlreadyInitialized) {
		t.Errorf("err = %v, want ErrAlreadyInitialized", err)
	}
}
