package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/uhyunpark/escrowd/pkg/api"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

func TestClientDecodesResponses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/status":
			json.NewEncoder(w).Encode(api.ChainStatus{Height: 9, NextOrderID: 3})
		case "/api/v1/escrow/counter":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "counter not initialized"})
		case "/api/v1/airdrop":
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "airdrop failed", Message: "overflow"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := New(ts.URL + "/")
	ctx := context.Background()

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Height != 9 || st.NextOrderID != 3 {
		t.Errorf("status = %+v", st)
	}

	if _, err := c.Counter(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("counter err = %v, want ErrNotFound", err)
	}

	_, err = c.Airdrop(ctx, ledger.HashPubkey("a"), 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("airdrop err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "airdrop failed: overflow" {
		t.Errorf("api error = %+v", apiErr)
	}
}
