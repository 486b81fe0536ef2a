package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/chain"
	"github.com/uhyunpark/escrowd/pkg/escrow"
	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/mempool"
	"github.com/uhyunpark/escrowd/pkg/token"
)

// maxTxBytes bounds a submitted transaction body
const maxTxBytes = 1 << 20

// Broadcaster relays accepted transactions to peers
type Broadcaster interface {
	BroadcastTx(ctx context.Context, tx *ledger.Transaction) error
}

type Config struct {
	Runtime         *ledger.Runtime
	Mempool         *mempool.Mempool
	Slots           chain.SlotStore
	EscrowProgramID ledger.Pubkey
	Gossip          Broadcaster // optional
	Logger          *zap.SugaredLogger
	EnableAirdrop   bool
	AllowedOrigins  []string
}

// Server handles REST API and WebSocket connections
type Server struct {
	cfg    Config
	log    *zap.SugaredLogger
	router *mux.Router
	hub    *Hub // WebSocket hub
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	s := &Server{
		cfg:    cfg,
		log:    cfg.Logger,
		router: mux.NewRouter(),
		hub:    NewHub(cfg.Logger),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Chain endpoints
	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")
	api.HandleFunc("/slots/latest", s.handleGetLatestSlot).Methods("GET")
	api.HandleFunc("/slots/{height:[0-9]+}", s.handleGetSlot).Methods("GET")

	// Transactions
	api.HandleFunc("/transactions", s.handleSubmitTx).Methods("POST")
	api.HandleFunc("/transactions/{id}", s.handleGetTx).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{pubkey}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/tokens/accounts/{pubkey}", s.handleGetTokenAccount).Methods("GET")

	// Escrow endpoints
	api.HandleFunc("/escrow/counter", s.handleGetCounter).Methods("GET")
	api.HandleFunc("/escrow/orders/{seller}/{orderId:[0-9]+}", s.handleGetOrder).Methods("GET")

	if s.cfg.EnableAirdrop {
		api.HandleFunc("/airdrop", s.handleAirdrop).Methods("POST")
	}

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Prometheus scrape endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves the API on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	// Start WebSocket hub
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_listening", "addr", addr, "airdrop", s.cfg.EnableAirdrop)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status := ChainStatus{
		MempoolSize:     s.cfg.Mempool.Len(),
		EscrowProgramID: s.cfg.EscrowProgramID,
	}
	latest, err := s.cfg.Slots.LatestSlot()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read slot", err.Error())
		return
	}
	if latest != nil {
		status.Height = latest.Height
	}
	next, err := escrow.NextOrderID(s.cfg.Runtime, s.cfg.EscrowProgramID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read counter", err.Error())
		return
	}
	status.NextOrderID = next
	respondJSON(w, status)
}

func (s *Server) handleGetLatestSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := s.cfg.Slots.LatestSlot()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read slot", err.Error())
		return
	}
	if slot == nil {
		respondError(w, http.StatusNotFound, "no slots yet", "")
		return
	}
	respondJSON(w, newSlotUpdate(*slot))
}

func (s *Server) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid height", err.Error())
		return
	}
	slot, err := s.cfg.Slots.GetSlot(height)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read slot", err.Error())
		return
	}
	if slot == nil {
		respondError(w, http.StatusNotFound, "slot not found", "")
		return
	}
	respondJSON(w, newSlotUpdate(*slot))
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	if len(body) > maxTxBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "transaction too large", "")
		return
	}
	tx, err := ledger.DeserializeTransaction(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON transaction", err.Error())
		return
	}
	// Reject unsigned or forged transactions before they reach the mempool
	if _, err := tx.VerifySignatures(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid signatures", err.Error())
		return
	}
	id := tx.ID()
	if rcpt, err := s.cfg.Runtime.GetReceipt(id); err == nil && rcpt != nil {
		respondError(w, http.StatusConflict, "transaction already processed", id.Hex())
		return
	}

	class, err := s.cfg.Mempool.Push(tx)
	switch {
	case errors.Is(err, mempool.ErrDuplicate):
		respondError(w, http.StatusConflict, "transaction already pending", id.Hex())
		return
	case errors.Is(err, mempool.ErrFull):
		respondError(w, http.StatusServiceUnavailable, "mempool full", "")
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "rejected", err.Error())
		return
	}

	if s.cfg.Gossip != nil {
		if err := s.cfg.Gossip.BroadcastTx(r.Context(), tx); err != nil {
			s.log.Warnw("gossip_broadcast_failed", "tx", id.Hex(), "err", err)
		}
	}
	s.log.Infow("tx_submitted", "tx", id.Hex(), "type", class.String())

	respondJSONStatus(w, http.StatusAccepted, SubmitTxResponse{Status: "pending", TxID: id, Type: class.String()})
}

func (s *Server) handleGetTx(w http.ResponseWriter, r *http.Request) {
	b, err := hexToHash(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction id", err.Error())
		return
	}
	rcpt, err := s.cfg.Runtime.GetReceipt(b)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read receipt", err.Error())
		return
	}
	if rcpt == nil {
		if s.cfg.Mempool.Has(b) {
			respondJSON(w, TxStatusResponse{TxID: b, Status: "pending"})
			return
		}
		respondError(w, http.StatusNotFound, "transaction not found", "")
		return
	}
	status := "success"
	if !rcpt.Success {
		status = "failed"
	}
	respondJSON(w, TxStatusResponse{TxID: b, Status: status, Receipt: rcpt})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	key, ok := pubkeyVar(w, r, "pubkey")
	if !ok {
		return
	}
	acc, err := s.cfg.Runtime.GetAccount(key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read account", err.Error())
		return
	}
	respondJSON(w, AccountInfo{
		Pubkey:     key,
		Lamports:   acc.Lamports,
		Owner:      acc.Owner,
		Executable: acc.Executable,
		Data:       acc.Data,
	})
}

func (s *Server) handleGetTokenAccount(w http.ResponseWriter, r *http.Request) {
	key, ok := pubkeyVar(w, r, "pubkey")
	if !ok {
		return
	}
	acc, err := s.cfg.Runtime.GetAccount(key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read account", err.Error())
		return
	}
	if acc.Owner != token.ProgramID || len(acc.Data) == 0 {
		respondError(w, http.StatusNotFound, "token account not found", "")
		return
	}
	ta, err := token.DecodeAccount(acc.Data)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "not a token account", err.Error())
		return
	}
	respondJSON(w, TokenAccountInfo{Pubkey: key, Mint: ta.Mint, Owner: ta.Owner, Amount: ta.Amount})
}

func (s *Server) handleGetCounter(w http.ResponseWriter, r *http.Request) {
	c, addr, err := escrow.LoadCounter(s.cfg.Runtime, s.cfg.EscrowProgramID)
	if errors.Is(err, escrow.ErrUninitialized) {
		respondError(w, http.StatusNotFound, "counter not initialized", addr.String())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read counter", err.Error())
		return
	}
	respondJSON(w, CounterInfo{Address: addr, TotalOrders: c.TotalOrders, Authority: c.Authority})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	seller, ok := pubkeyVar(w, r, "seller")
	if !ok {
		return
	}
	orderID, err := strconv.ParseUint(mux.Vars(r)["orderId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid orderId", err.Error())
		return
	}
	programID := s.cfg.EscrowProgramID
	o, addr, err := escrow.LoadSellOrder(s.cfg.Runtime, programID, seller, orderID)
	if errors.Is(err, escrow.ErrUninitialized) {
		respondError(w, http.StatusNotFound, "order not found", "settled or never created")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read order", err.Error())
		return
	}
	holding, _, err := escrow.HoldingAddress(addr, programID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to derive holding", err.Error())
		return
	}
	hacc, err := s.cfg.Runtime.GetAccount(holding)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read holding", err.Error())
		return
	}
	respondJSON(w, newSellOrderInfo(addr, o, holding, hacc.Lamports))
}

func (s *Server) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	var req AirdropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Pubkey.IsZero() || req.Lamports == 0 {
		respondError(w, http.StatusBadRequest, "pubkey and lamports are required", "")
		return
	}
	acc, err := s.cfg.Runtime.Airdrop(r.Context(), req.Pubkey, req.Lamports)
	if err != nil {
		respondError(w, http.StatusBadRequest, "airdrop failed", err.Error())
		return
	}
	respondJSON(w, AirdropResponse{Pubkey: req.Pubkey, Lamports: acc.Lamports})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from the slot producer)
// ==============================

// OnSlotCommitted fans a committed slot out to WebSocket subscribers
func (s *Server) OnSlotCommitted(slot chain.Slot, receipts []*ledger.Receipt) {
	s.hub.BroadcastToChannel(ChannelSlots, newSlotUpdate(slot))
	for _, rcpt := range receipts {
		s.hub.BroadcastToChannel(ChannelReceipts, ReceiptUpdate{Type: "receipt", Receipt: rcpt})
		for _, evt := range rcpt.Events {
			s.hub.BroadcastOrder(OrderUpdate{
				Type:       "order",
				Event:      evt.Type,
				Slot:       rcpt.Slot,
				TxID:       rcpt.TxID,
				Attributes: evt.Attributes,
			})
		}
	}
}

func newSlotUpdate(slot chain.Slot) SlotUpdate {
	return SlotUpdate{
		Type:      "slot",
		Height:    slot.Height,
		Hash:      slot.Hash,
		TxIDs:     slot.TxIDs,
		Succeeded: slot.Succeeded,
		Failed:    slot.Failed,
		Timestamp: slot.Time.UnixMilli(),
	}
}

// ==============================
// Helper Functions
// ==============================

func pubkeyVar(w http.ResponseWriter, r *http.Request, name string) (ledger.Pubkey, bool) {
	key, err := ledger.PubkeyFromBase58(mux.Vars(r)[name])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name, err.Error())
		return ledger.Pubkey{}, false
	}
	return key, true
}

func hexToHash(s string) (common.Hash, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	var h common.Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return common.Hash{}, err
	}
	return h, nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
