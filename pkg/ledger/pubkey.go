package ledger

import (
	"bytes"
	"fmt"

	sha256 "github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
)

// PubkeySize is the length of an identity in bytes
const PubkeySize = 32

// Pubkey is a 32-byte ledger identity (ed25519 public key or derived address)
// Rendered as base58 everywhere it leaves the process (logs, JSON, API paths)
type Pubkey [PubkeySize]byte

// SystemProgramID is the account-lifecycle program: all zero bytes
// ("11111111111111111111111111111111" in base58)
var SystemProgramID = Pubkey{}

// PubkeyFromBase58 parses a base58 identity
func PubkeyFromBase58(s string) (Pubkey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("invalid base58 pubkey %q: %w", s, err)
	}
	if len(raw) != PubkeySize {
		return Pubkey{}, fmt.Errorf("invalid pubkey length: got %d, want %d", len(raw), PubkeySize)
	}
	var pk Pubkey
	copy(pk[:], raw)
	return pk, nil
}

// MustPubkeyFromBase58 is PubkeyFromBase58 for package-level constants
func MustPubkeyFromBase58(s string) Pubkey {
	pk, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromBytes copies a 32-byte slice into a Pubkey
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != PubkeySize {
		return Pubkey{}, fmt.Errorf("invalid pubkey length: got %d, want %d", len(b), PubkeySize)
	}
	var pk Pubkey
	copy(pk[:], b)
	return pk, nil
}

// HashPubkey derives a well-known identity from a label (sha256)
// Used for program identities that have no keypair
func HashPubkey(label string) Pubkey {
	return Pubkey(sha256.Sum256([]byte(label)))
}

func (p Pubkey) String() string { return base58.Encode(p[:]) }

func (p Pubkey) Bytes() []byte { return p[:] }

func (p Pubkey) IsZero() bool { return p == Pubkey{} }

// Less orders keys bytewise (lock acquisition order)
func (p Pubkey) Less(o Pubkey) bool { return bytes.Compare(p[:], o[:]) < 0 }

func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	pk, err := PubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}
