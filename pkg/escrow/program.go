package escrow

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// Opcodes (first instruction byte)
const (
	OpCreateSellOrder uint8 = 0
	OpFulfilBuyOrder  uint8 = 1
)

// Program is the escrow marketplace
type Program struct {
	id     ledger.Pubkey
	logger *zap.SugaredLogger
}

// NewProgram binds the escrow logic to programID
func NewProgram(programID ledger.Pubkey, logger *zap.SugaredLogger) *Program {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Program{id: programID, logger: logger}
}

func (p *Program) ID() ledger.Pubkey { return p.id }

// Process dispatches on the opcode byte
func (p *Program) Process(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty instruction", ErrInvalidInstruction)
	}
	switch data[0] {
	case OpCreateSellOrder:
		return p.createSellOrder(ic, accounts, data[1:])
	case OpFulfilBuyOrder:
		return p.fulfilBuyOrder(ic, accounts, data[1:])
	default:
		return fmt.Errorf("%w: opcode %d", ErrInvalidInstruction, data[0])
	}
}

// payloadError folds "empty" into a plain decode failure; only stored
// records distinguish never-written accounts.
func payloadError(err error) error {
	if errors.Is(err, ErrUninitialized) {
		return fmt.Errorf("%w: empty payload", ErrDecode)
	}
	return err
}

func requireSigner(info *ledger.AccountInfo, role string) error {
	if !info.IsSigner {
		return fmt.Errorf("%w: %s %s", ErrMissingSignature, role, info.Key)
	}
	return nil
}

func requireWritable(info *ledger.AccountInfo, role string) error {
	if !info.IsWritable {
		return fmt.Errorf("%w: %s %s", ErrAccountNotWritable, role, info.Key)
	}
	return nil
}

func requireProgram(info *ledger.AccountInfo, want ledger.Pubkey, role string) error {
	if info.Key != want {
		return fmt.Errorf("%w: %s handle is %s, want %s", ErrOwnershipMismatch, role, info.Key, want)
	}
	return nil
}
