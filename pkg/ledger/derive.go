package ledger

import (
	"errors"

	"filippo.io/edwards25519"
	sha256 "github.com/minio/sha256-simd"
)

// Derivation limits (per address)
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

// pdaMarker is appended to every derivation preimage so derived addresses
// live in a separate hash domain from ordinary keys
const pdaMarker = "ProgramDerivedAddress"

var (
	ErrMaxSeedLengthExceeded = errors.New("ledger: derivation seed too long or too many seeds")
	ErrInvalidSeeds          = errors.New("ledger: seeds produce an on-curve address")
	ErrNoViableBump          = errors.New("ledger: no off-curve address for seeds")
)

// CreateProgramAddress hashes seeds and programID into an address that no
// private key controls. Only programID can sign for it, by re-presenting the
// same seeds during a cross-program invocation.
//
// Format: sha256(seed_0 || ... || seed_n || programID || "ProgramDerivedAddress")
// The result must NOT decode as an ed25519 point.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Pubkey{}, ErrMaxSeedLengthExceeded
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Pubkey{}, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var addr Pubkey
	copy(addr[:], h.Sum(nil))
	if IsOnCurve(addr[:]) {
		return Pubkey{}, ErrInvalidSeeds
	}
	return addr, nil
}

// FindProgramAddress probes bump seeds 255..0 and returns the first off-curve
// address together with the bump that produced it. Deterministic for fixed
// seeds and programID.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return Pubkey{}, 0, err
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether b is a valid compressed ed25519 point
func IsOnCurve(b []byte) bool {
	if len(b) != PubkeySize {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
