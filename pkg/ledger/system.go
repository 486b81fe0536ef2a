package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// System program instruction tags (u32 little-endian prefix)
const (
	SystemCreateAccount uint32 = 0
	SystemAssign        uint32 = 1
	SystemTransfer      uint32 = 2
)

// MaxAccountDataSize caps allocations made by CreateAccount
const MaxAccountDataSize = 10 * 1024 * 1024

var ErrTransferFromDataAccount = errors.New("ledger: transfer source carries data")

// SystemProgram creates accounts, moves lamports between system-owned
// accounts and hands account ownership to other programs.
type SystemProgram struct{}

func (SystemProgram) ID() Pubkey { return SystemProgramID }

func (SystemProgram) Process(ic *InvokeContext, accounts []*AccountInfo, data []byte) error {
	if len(data) < 4 {
		return ErrInvalidInstructionData
	}
	tag := binary.LittleEndian.Uint32(data[:4])
	body := data[4:]

	switch tag {
	case SystemCreateAccount:
		if len(body) != 8+8+PubkeySize {
			return ErrInvalidInstructionData
		}
		if len(accounts) < 2 {
			return ErrNotEnoughAccountKeys
		}
		lamports := binary.LittleEndian.Uint64(body[0:8])
		space := binary.LittleEndian.Uint64(body[8:16])
		var owner Pubkey
		copy(owner[:], body[16:48])
		return createAccount(ic, accounts[0], accounts[1], lamports, space, owner)

	case SystemAssign:
		if len(body) != PubkeySize {
			return ErrInvalidInstructionData
		}
		if len(accounts) < 1 {
			return ErrNotEnoughAccountKeys
		}
		var owner Pubkey
		copy(owner[:], body)
		return assign(ic, accounts[0], owner)

	case SystemTransfer:
		if len(body) != 8 {
			return ErrInvalidInstructionData
		}
		if len(accounts) < 2 {
			return ErrNotEnoughAccountKeys
		}
		return transfer(ic, accounts[0], accounts[1], binary.LittleEndian.Uint64(body))

	default:
		return fmt.Errorf("%w: system tag %d", ErrInvalidInstructionData, tag)
	}
}

func createAccount(ic *InvokeContext, from, to *AccountInfo, lamports, space uint64, owner Pubkey) error {
	if !to.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingRequiredSignature, to.Key)
	}
	if to.Lamports > 0 || len(to.Data) != 0 || to.Owner != SystemProgramID {
		ic.Log("Create Account: account %s already in use", to.Key)
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, to.Key)
	}
	if space > MaxAccountDataSize {
		return fmt.Errorf("%w: space %d", ErrInvalidInstructionData, space)
	}
	to.Data = make([]byte, space)
	to.Owner = owner
	return transfer(ic, from, to, lamports)
}

func assign(ic *InvokeContext, account *AccountInfo, owner Pubkey) error {
	if account.Owner == owner {
		return nil
	}
	if !account.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingRequiredSignature, account.Key)
	}
	account.Owner = owner
	return nil
}

func transfer(ic *InvokeContext, from, to *AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingRequiredSignature, from.Key)
	}
	if len(from.Data) != 0 {
		return fmt.Errorf("%w: %s", ErrTransferFromDataAccount, from.Key)
	}
	if from.Lamports < lamports {
		ic.Log("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports)
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientLamports, from.Key, from.Lamports, lamports)
	}
	if to.Lamports+lamports < to.Lamports {
		return ErrArithmeticOverflow
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

// CreateAccountInstruction funds a new account at to and assigns it to owner
// Both from and to must sign (to via derivation seeds when it is derived).
func CreateAccountInstruction(from, to Pubkey, lamports, space uint64, owner Pubkey) Instruction {
	data := make([]byte, 4+8+8+PubkeySize)
	binary.LittleEndian.PutUint32(data[0:4], SystemCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	binary.LittleEndian.PutUint64(data[12:20], space)
	copy(data[20:], owner[:])
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

// AssignInstruction hands account to owner
func AssignInstruction(account, owner Pubkey) Instruction {
	data := make([]byte, 4+PubkeySize)
	binary.LittleEndian.PutUint32(data[0:4], SystemAssign)
	copy(data[4:], owner[:])
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{{Pubkey: account, IsSigner: true, IsWritable: true}},
		Data:      data,
	}
}

// TransferInstruction moves lamports from a system-owned account
func TransferInstruction(from, to Pubkey, lamports uint64) Instruction {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], SystemTransfer)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsWritable: true},
		},
		Data: data,
	}
}
