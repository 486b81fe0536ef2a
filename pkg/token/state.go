package token

import (
	"encoding/binary"
	"fmt"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// Fixed on-ledger sizes
const (
	MintSize    = 32 + 8 + 1 + 1
	AccountSize = 32 + 32 + 8 + 1
)

// Mint describes one fungible asset
type Mint struct {
	MintAuthority ledger.Pubkey `json:"mintAuthority"`
	Supply        uint64        `json:"supply"`
	Decimals      uint8         `json:"decimals"`
	Initialized   bool          `json:"initialized"`
}

// Account holds a balance of one mint for one owner
type Account struct {
	Mint        ledger.Pubkey `json:"mint"`
	Owner       ledger.Pubkey `json:"owner"`
	Amount      uint64        `json:"amount"`
	Initialized bool          `json:"initialized"`
}

func (m *Mint) Encode() []byte {
	buf := make([]byte, MintSize)
	copy(buf[0:32], m.MintAuthority[:])
	binary.LittleEndian.PutUint64(buf[32:40], m.Supply)
	buf[40] = m.Decimals
	buf[41] = boolByte(m.Initialized)
	return buf
}

// DecodeMint parses mint account data
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("%w: mint data is %d bytes, want %d", ErrInvalidAccountData, len(data), MintSize)
	}
	m := &Mint{
		Supply:   binary.LittleEndian.Uint64(data[32:40]),
		Decimals: data[40],
	}
	copy(m.MintAuthority[:], data[0:32])
	init, err := decodeBool(data[41])
	if err != nil {
		return nil, err
	}
	m.Initialized = init
	return m, nil
}

func (a *Account) Encode() []byte {
	buf := make([]byte, AccountSize)
	copy(buf[0:32], a.Mint[:])
	copy(buf[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(buf[64:72], a.Amount)
	buf[72] = boolByte(a.Initialized)
	return buf
}

// DecodeAccount parses token account data
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("%w: token account data is %d bytes, want %d", ErrInvalidAccountData, len(data), AccountSize)
	}
	a := &Account{Amount: binary.LittleEndian.Uint64(data[64:72])}
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	init, err := decodeBool(data[72])
	if err != nil {
		return nil, err
	}
	a.Initialized = init
	return a, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func decodeBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bad bool byte %d", ErrInvalidAccountData, b)
	}
}
