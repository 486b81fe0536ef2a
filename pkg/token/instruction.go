package token

import (
	"encoding/binary"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// Instruction tags (first data byte)
const (
	TagInitializeMint    uint8 = 0
	TagInitializeAccount uint8 = 1
	TagTransfer          uint8 = 3
	TagMintTo            uint8 = 7
)

// ProgramID is the well-known payment-asset program
var ProgramID = ledger.MustPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

// InitializeMintInstruction sets up an allocated MintSize account owned by the program
func InitializeMintInstruction(mint, authority ledger.Pubkey, decimals uint8) ledger.Instruction {
	data := make([]byte, 2+ledger.PubkeySize)
	data[0] = TagInitializeMint
	data[1] = decimals
	copy(data[2:], authority[:])
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts:  []ledger.AccountMeta{{Pubkey: mint, IsWritable: true}},
		Data:      data,
	}
}

// InitializeAccountInstruction binds an allocated AccountSize account to mint and owner
func InitializeAccountInstruction(account, mint, owner ledger.Pubkey) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: account, IsWritable: true},
			{Pubkey: mint},
			{Pubkey: owner},
		},
		Data: []byte{TagInitializeAccount},
	}
}

// MintToInstruction issues new units to dest, signed by the mint authority
func MintToInstruction(mint, dest, authority ledger.Pubkey, amount uint64) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: mint, IsWritable: true},
			{Pubkey: dest, IsWritable: true},
			{Pubkey: authority, IsSigner: true},
		},
		Data: amountData(TagMintTo, amount),
	}
}

// TransferInstruction moves amount from source to dest, signed by source's owner
func TransferInstruction(source, dest, owner ledger.Pubkey, amount uint64) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: source, IsWritable: true},
			{Pubkey: dest, IsWritable: true},
			{Pubkey: owner, IsSigner: true},
		},
		Data: amountData(TagTransfer, amount),
	}
}

func amountData(tag uint8, amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = tag
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}

// CreateMintInstructions allocates and initializes a mint at a fresh keypair address
func CreateMintInstructions(payer, mint, authority ledger.Pubkey, decimals uint8, rent ledger.Rent) []ledger.Instruction {
	return []ledger.Instruction{
		ledger.CreateAccountInstruction(payer, mint, rent.MinimumBalance(MintSize), MintSize, ProgramID),
		InitializeMintInstruction(mint, authority, decimals),
	}
}

// CreateAccountInstructions allocates and initializes a token account at a fresh keypair address
func CreateAccountInstructions(payer, account, mint, owner ledger.Pubkey, rent ledger.Rent) []ledger.Instruction {
	return []ledger.Instruction{
		ledger.CreateAccountInstruction(payer, account, rent.MinimumBalance(AccountSize), AccountSize, ProgramID),
		InitializeAccountInstruction(account, mint, owner),
	}
}
