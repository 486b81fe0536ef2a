package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// Signer manages an ed25519 key pair for signing transactions
type Signer struct {
	privateKey ed25519.PrivateKey
	pubkey     ledger.Pubkey
}

func newSigner(priv ed25519.PrivateKey) *Signer {
	s := &Signer{privateKey: priv}
	copy(s.pubkey[:], priv[ed25519.SeedSize:])
	return s
}

// GenerateKey creates a new random key pair
func GenerateKey() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newSigner(priv), nil
}

// FromSeed derives a key pair from a 32-byte seed (deterministic test identities)
func FromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return newSigner(ed25519.NewKeyFromSeed(seed)), nil
}

// FromPrivateKeyHex creates a Signer from a hex-encoded seed
// Format: "0x1234..." or "1234..." (64 hex chars)
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return FromSeed(seed)
}

// Pubkey returns the ledger identity of this key
func (s *Signer) Pubkey() ledger.Pubkey {
	return s.pubkey
}

// PrivateKeyHex returns the seed as hex string (WITHOUT 0x prefix)
// WARNING: Keep this secret! Never expose to users or logs
func (s *Signer) PrivateKeyHex() string {
	return hex.EncodeToString(s.privateKey.Seed())
}

// Sign signs an arbitrary message and returns the 64-byte signature
func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.privateKey, message)
}

// SignTransaction appends this key's signature over tx's message
func (s *Signer) SignTransaction(tx *ledger.Transaction) {
	tx.Sign(s.privateKey)
}

// VerifySignature reports whether signature was created by pubkey over message
func VerifySignature(pubkey ledger.Pubkey, message, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubkey[:]), message, signature)
}

// keyFile is the on-disk format used by escrowctl
type keyFile struct {
	Pubkey ledger.Pubkey `json:"pubkey"`
	Seed   string        `json:"seed"`
}

// SaveKeyFile writes the key pair to path with owner-only permissions
func (s *Signer) SaveKeyFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create key dir: %w", err)
	}
	data, err := json.MarshalIndent(keyFile{Pubkey: s.pubkey, Seed: s.PrivateKeyHex()}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// LoadKeyFile reads a key pair written by SaveKeyFile
func LoadKeyFile(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	s, err := FromPrivateKeyHex(kf.Seed)
	if err != nil {
		return nil, err
	}
	if s.pubkey != kf.Pubkey {
		return nil, fmt.Errorf("key file %s: pubkey does not match seed", path)
	}
	return s, nil
}

// GenerateNonce generates a cryptographically secure random nonce
// Used to make otherwise identical transactions distinct
func GenerateNonce() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
