package token

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

var (
	ErrInvalidAccountData  = errors.New("token: invalid account data")
	ErrInvalidAccountOwner = errors.New("token: account not owned by token program")
	ErrAlreadyInitialized  = errors.New("token: account already initialized")
	ErrUninitialized       = errors.New("token: account not initialized")
	ErrMintMismatch        = errors.New("token: account mint mismatch")
	ErrOwnerMismatch       = errors.New("token: owner does not match")
	ErrInsufficientFunds   = errors.New("token: insufficient funds")
	ErrOverflow            = errors.New("token: operation overflowed")
)

// Program is the payment-asset transfer service
type Program struct{}

func (Program) ID() ledger.Pubkey { return ProgramID }

func (p Program) Process(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return ledger.ErrInvalidInstructionData
	}
	switch data[0] {
	case TagInitializeMint:
		if len(data) != 2+ledger.PubkeySize {
			return ledger.ErrInvalidInstructionData
		}
		if len(accounts) < 1 {
			return ledger.ErrNotEnoughAccountKeys
		}
		var authority ledger.Pubkey
		copy(authority[:], data[2:])
		ic.Log("Instruction: InitializeMint")
		return initializeMint(accounts[0], authority, data[1])

	case TagInitializeAccount:
		if len(accounts) < 3 {
			return ledger.ErrNotEnoughAccountKeys
		}
		ic.Log("Instruction: InitializeAccount")
		return initializeAccount(accounts[0], accounts[1], accounts[2])

	case TagMintTo:
		if len(data) != 9 {
			return ledger.ErrInvalidInstructionData
		}
		if len(accounts) < 3 {
			return ledger.ErrNotEnoughAccountKeys
		}
		ic.Log("Instruction: MintTo")
		return mintTo(accounts[0], accounts[1], accounts[2], binary.LittleEndian.Uint64(data[1:]))

	case TagTransfer:
		if len(data) != 9 {
			return ledger.ErrInvalidInstructionData
		}
		if len(accounts) < 3 {
			return ledger.ErrNotEnoughAccountKeys
		}
		ic.Log("Instruction: Transfer")
		return transfer(accounts[0], accounts[1], accounts[2], binary.LittleEndian.Uint64(data[1:]))

	default:
		return fmt.Errorf("%w: token tag %d", ledger.ErrInvalidInstructionData, data[0])
	}
}

func initializeMint(mintInfo *ledger.AccountInfo, authority ledger.Pubkey, decimals uint8) error {
	if mintInfo.Owner != ProgramID {
		return fmt.Errorf("%w: %s", ErrInvalidAccountOwner, mintInfo.Key)
	}
	mint, err := DecodeMint(mintInfo.Data)
	if err != nil {
		return err
	}
	if mint.Initialized {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, mintInfo.Key)
	}
	mint.MintAuthority = authority
	mint.Decimals = decimals
	mint.Initialized = true
	copy(mintInfo.Data, mint.Encode())
	return nil
}

func initializeAccount(accInfo, mintInfo, ownerInfo *ledger.AccountInfo) error {
	if accInfo.Owner != ProgramID {
		return fmt.Errorf("%w: %s", ErrInvalidAccountOwner, accInfo.Key)
	}
	acc, err := DecodeAccount(accInfo.Data)
	if err != nil {
		return err
	}
	if acc.Initialized {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, accInfo.Key)
	}
	if _, err := loadMint(mintInfo); err != nil {
		return err
	}
	acc.Mint = mintInfo.Key
	acc.Owner = ownerInfo.Key
	acc.Initialized = true
	copy(accInfo.Data, acc.Encode())
	return nil
}

func mintTo(mintInfo, destInfo, authority *ledger.AccountInfo, amount uint64) error {
	mint, err := loadMint(mintInfo)
	if err != nil {
		return err
	}
	dest, err := loadAccount(destInfo)
	if err != nil {
		return err
	}
	if dest.Mint != mintInfo.Key {
		return fmt.Errorf("%w: %s", ErrMintMismatch, destInfo.Key)
	}
	if authority.Key != mint.MintAuthority || !authority.IsSigner {
		return fmt.Errorf("%w: mint authority %s", ErrOwnerMismatch, authority.Key)
	}
	if mint.Supply+amount < mint.Supply || dest.Amount+amount < dest.Amount {
		return ErrOverflow
	}
	mint.Supply += amount
	dest.Amount += amount
	copy(mintInfo.Data, mint.Encode())
	copy(destInfo.Data, dest.Encode())
	return nil
}

func transfer(srcInfo, destInfo, authority *ledger.AccountInfo, amount uint64) error {
	src, err := loadAccount(srcInfo)
	if err != nil {
		return err
	}
	dest, err := loadAccount(destInfo)
	if err != nil {
		return err
	}
	if src.Mint != dest.Mint {
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, srcInfo.Key, destInfo.Key)
	}
	if authority.Key != src.Owner || !authority.IsSigner {
		return fmt.Errorf("%w: %s does not own %s", ErrOwnerMismatch, authority.Key, srcInfo.Key)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	if srcInfo.Key == destInfo.Key {
		return nil
	}
	if dest.Amount+amount < dest.Amount {
		return ErrOverflow
	}
	src.Amount -= amount
	dest.Amount += amount
	copy(srcInfo.Data, src.Encode())
	copy(destInfo.Data, dest.Encode())
	return nil
}

func loadMint(info *ledger.AccountInfo) (*Mint, error) {
	if info.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccountOwner, info.Key)
	}
	mint, err := DecodeMint(info.Data)
	if err != nil {
		return nil, err
	}
	if !mint.Initialized {
		return nil, fmt.Errorf("%w: mint %s", ErrUninitialized, info.Key)
	}
	return mint, nil
}

func loadAccount(info *ledger.AccountInfo) (*Account, error) {
	if info.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccountOwner, info.Key)
	}
	acc, err := DecodeAccount(info.Data)
	if err != nil {
		return nil, err
	}
	if !acc.Initialized {
		return nil, fmt.Errorf("%w: %s", ErrUninitialized, info.Key)
	}
	return acc, nil
}
