package p2p

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// MaxTxWireSize bounds one gossip message
const MaxTxWireSize = 64 << 10

var ErrBadWire = errors.New("p2p: malformed gossip message")

// TxWire is the gossip envelope for one pending transaction
type TxWire struct {
	Tx     []byte // JSON-serialized ledger.Transaction
	Origin string // peer ID of the node that first accepted it
}

// NewTxWire wraps tx for publication by origin
func NewTxWire(tx *ledger.Transaction, origin string) (TxWire, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return TxWire{}, fmt.Errorf("serialize tx: %w", err)
	}
	return TxWire{Tx: raw, Origin: origin}, nil
}

// Marshal gob-encodes the envelope
func (w TxWire) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, err
	}
	if buf.Len() > MaxTxWireSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrBadWire, buf.Len(), MaxTxWireSize)
	}
	return buf.Bytes(), nil
}

// UnmarshalTxWire decodes and sanity-checks a received envelope
func UnmarshalTxWire(b []byte) (TxWire, error) {
	if len(b) > MaxTxWireSize {
		return TxWire{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrBadWire, len(b), MaxTxWireSize)
	}
	var w TxWire
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&w); err != nil {
		return TxWire{}, fmt.Errorf("%w: %v", ErrBadWire, err)
	}
	if len(w.Tx) == 0 {
		return TxWire{}, fmt.Errorf("%w: empty transaction", ErrBadWire)
	}
	return w, nil
}
