package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrMissingRequiredSignature = errors.New("ledger: missing required signature")
	ErrInvalidSignature         = errors.New("ledger: invalid signature")
	ErrEmptyTransaction         = errors.New("ledger: transaction has no instructions")
)

// AccountMeta names an account an instruction touches and the privileges it needs
type AccountMeta struct {
	Pubkey     Pubkey `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// Instruction is one program call inside a transaction
type Instruction struct {
	ProgramID Pubkey        `json:"programId"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      hexutil.Bytes `json:"data"`
}

// Signature binds a signer identity to an ed25519 signature over Message()
type Signature struct {
	Pubkey    Pubkey        `json:"pubkey"`
	Signature hexutil.Bytes `json:"signature"`
}

// Transaction is the unit of atomic execution
// Nonce makes otherwise identical instruction lists produce distinct IDs
type Transaction struct {
	Nonce        uint64        `json:"nonce"`
	Instructions []Instruction `json:"instructions"`
	Signatures   []Signature   `json:"signatures"`
}

// NewTransaction creates an unsigned transaction
func NewTransaction(nonce uint64, ixs ...Instruction) *Transaction {
	return &Transaction{Nonce: nonce, Instructions: ixs}
}

// Message returns the canonical bytes every signer signs
//
// Layout (little-endian):
//
//	nonce u64 | n_ix u16 | { program 32 | n_acc u16 | { key 32 | flags u8 }* | len u32 | data }*
//
// flags: bit0 = signer, bit1 = writable
func (tx *Transaction) Message() []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	binary.LittleEndian.PutUint64(scratch[:], tx.Nonce)
	buf.Write(scratch[:8])
	binary.LittleEndian.PutUint16(scratch[:], uint16(len(tx.Instructions)))
	buf.Write(scratch[:2])

	for _, ix := range tx.Instructions {
		buf.Write(ix.ProgramID[:])
		binary.LittleEndian.PutUint16(scratch[:], uint16(len(ix.Accounts)))
		buf.Write(scratch[:2])
		for _, meta := range ix.Accounts {
			buf.Write(meta.Pubkey[:])
			var flags byte
			if meta.IsSigner {
				flags |= 1
			}
			if meta.IsWritable {
				flags |= 2
			}
			buf.WriteByte(flags)
		}
		binary.LittleEndian.PutUint32(scratch[:], uint32(len(ix.Data)))
		buf.Write(scratch[:4])
		buf.Write(ix.Data)
	}
	return buf.Bytes()
}

// ID is the Keccak-256 hash of the message (stable across re-signing)
func (tx *Transaction) ID() common.Hash {
	return ethcrypto.Keccak256Hash(tx.Message())
}

// Sign appends a signature from priv over the current message
func (tx *Transaction) Sign(priv ed25519.PrivateKey) {
	pub, _ := priv.Public().(ed25519.PublicKey)
	var pk Pubkey
	copy(pk[:], pub)
	tx.Signatures = append(tx.Signatures, Signature{
		Pubkey:    pk,
		Signature: ed25519.Sign(priv, tx.Message()),
	})
}

// RequiredSigners returns every key marked IsSigner, deduplicated, in first-seen order
func (tx *Transaction) RequiredSigners() []Pubkey {
	seen := make(map[Pubkey]bool)
	var out []Pubkey
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner && !seen[meta.Pubkey] {
				seen[meta.Pubkey] = true
				out = append(out, meta.Pubkey)
			}
		}
	}
	return out
}

// VerifySignatures checks every attached signature and that all required
// signers are present. Returns the verified signer set.
func (tx *Transaction) VerifySignatures() (map[Pubkey]bool, error) {
	if len(tx.Instructions) == 0 {
		return nil, ErrEmptyTransaction
	}
	msg := tx.Message()
	signers := make(map[Pubkey]bool, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		if len(sig.Signature) != ed25519.SignatureSize {
			return nil, fmt.Errorf("%w: %s: bad length %d", ErrInvalidSignature, sig.Pubkey, len(sig.Signature))
		}
		if !ed25519.Verify(ed25519.PublicKey(sig.Pubkey[:]), msg, sig.Signature) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, sig.Pubkey)
		}
		signers[sig.Pubkey] = true
	}
	for _, req := range tx.RequiredSigners() {
		if !signers[req] {
			return nil, fmt.Errorf("%w: %s", ErrMissingRequiredSignature, req)
		}
	}
	return signers, nil
}

// AccountKeys returns every referenced account (program ids excluded), sorted
func (tx *Transaction) AccountKeys() []Pubkey {
	seen := make(map[Pubkey]bool)
	var keys []Pubkey
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if !seen[meta.Pubkey] {
				seen[meta.Pubkey] = true
				keys = append(keys, meta.Pubkey)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Serialize converts the transaction to JSON bytes
func (tx *Transaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// DeserializeTransaction parses JSON bytes into a Transaction
func DeserializeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	if len(tx.Instructions) == 0 {
		return nil, ErrEmptyTransaction
	}
	return &tx, nil
}
