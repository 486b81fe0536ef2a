package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/api"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// ErrNotFound is returned for 404 responses
var ErrNotFound = errors.New("client: not found")

// APIError is a non-2xx response from the node
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("node returned %d: %s", e.Status, e.Message)
}

// Client talks to a node's REST API
type Client struct {
	base string
	http *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Status(ctx context.Context) (*api.ChainStatus, error) {
	var out api.ChainStatus
	return &out, c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out)
}

func (c *Client) Account(ctx context.Context, key ledger.Pubkey) (*api.AccountInfo, error) {
	var out api.AccountInfo
	return &out, c.do(ctx, http.MethodGet, "/api/v1/accounts/"+key.String(), nil, &out)
}

func (c *Client) TokenAccount(ctx context.Context, key ledger.Pubkey) (*api.TokenAccountInfo, error) {
	var out api.TokenAccountInfo
	return &out, c.do(ctx, http.MethodGet, "/api/v1/tokens/accounts/"+key.String(), nil, &out)
}

func (c *Client) Counter(ctx context.Context) (*api.CounterInfo, error) {
	var out api.CounterInfo
	return &out, c.do(ctx, http.MethodGet, "/api/v1/escrow/counter", nil, &out)
}

func (c *Client) Order(ctx context.Context, seller ledger.Pubkey, orderID uint64) (*api.SellOrderInfo, error) {
	var out api.SellOrderInfo
	path := fmt.Sprintf("/api/v1/escrow/orders/%s/%d", seller, orderID)
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *Client) Airdrop(ctx context.Context, to ledger.Pubkey, lamports uint64) (*api.AirdropResponse, error) {
	var out api.AirdropResponse
	return &out, c.do(ctx, http.MethodPost, "/api/v1/airdrop", api.AirdropRequest{Pubkey: to, Lamports: lamports}, &out)
}

// SubmitTx sends a signed transaction to the node's mempool
func (c *Client) SubmitTx(ctx context.Context, tx *ledger.Transaction) (*api.SubmitTxResponse, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return nil, err
	}
	var out api.SubmitTxResponse
	return &out, c.do(ctx, http.MethodPost, "/api/v1/transactions", json.RawMessage(raw), &out)
}

func (c *Client) TxStatus(ctx context.Context, id common.Hash) (*api.TxStatusResponse, error) {
	var out api.TxStatusResponse
	return &out, c.do(ctx, http.MethodGet, "/api/v1/transactions/"+id.Hex(), nil, &out)
}

// WaitForReceipt polls until id is committed or ctx expires
func (c *Client) WaitForReceipt(ctx context.Context, id common.Hash, every time.Duration) (*ledger.Receipt, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		st, err := c.TxStatus(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err == nil && st.Receipt != nil {
			return st.Receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := e.Error
		if e.Message != "" {
			msg += ": " + e.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
