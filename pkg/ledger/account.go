package ledger

// LamportsPerCoin is one whole unit of the base asset in its smallest subdivision
const LamportsPerCoin uint64 = 1_000_000_000

// Account is the persisted state behind a Pubkey
// Lamports: base-asset balance (also funds the minimum live balance)
// Data:     program-defined bytes, only writable by Owner
// Owner:    the program that controls Data, debits and reassignment
type Account struct {
	Lamports   uint64 `json:"lamports"`
	Data       []byte `json:"data"`
	Owner      Pubkey `json:"owner"`
	Executable bool   `json:"executable,omitempty"`
}

// NewEmptyAccount returns the state every never-seen address starts with
func NewEmptyAccount() *Account {
	return &Account{Owner: SystemProgramID}
}

// Clone returns a deep copy (working sets never alias stored state)
func (a *Account) Clone() *Account {
	if a == nil {
		return NewEmptyAccount()
	}
	c := *a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return &c
}

// IsUnused reports whether the account can be created by the system program
func (a *Account) IsUnused() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && a.Owner == SystemProgramID
}

// dataIsZeroed reports whether every data byte is zero
func (a *Account) dataIsZeroed() bool {
	for _, b := range a.Data {
		if b != 0 {
			return false
		}
	}
	return true
}

// Rent models the minimum live-balance requirement
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64 // years of rent an account must hold up front
}

// accountStorageOverhead is charged for every account regardless of data size
const accountStorageOverhead = 128

// DefaultRent matches mainnet-style parameters
func DefaultRent() Rent {
	return Rent{LamportsPerByteYear: 3480, ExemptionThreshold: 2}
}

// MinimumBalance returns lamports an account with dataLen bytes must hold
// Formula: (128 + dataLen) × LamportsPerByteYear × ExemptionThreshold
func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (accountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionThreshold
}
