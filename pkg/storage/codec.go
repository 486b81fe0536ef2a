package storage

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/escrowd/pkg/chain"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// Value encodings: accounts and receipts are JSON so they stay readable with
// generic tooling; slots are gob.

func encodeAccount(acc *ledger.Account) ([]byte, error) {
	data, err := json.Marshal(acc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account: %w", err)
	}
	return data, nil
}

func decodeAccount(data []byte) (*ledger.Account, error) {
	var acc ledger.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &acc, nil
}

func encodeReceipt(r *ledger.Receipt) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt: %w", err)
	}
	return data, nil
}

func decodeReceipt(data []byte) (*ledger.Receipt, error) {
	var r ledger.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return &r, nil
}

func encodeSlot(s chain.Slot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("encode slot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSlot(data []byte) (*chain.Slot, error) {
	var s chain.Slot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode slot: %w", err)
	}
	return &s, nil
}
