package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/params"
	"github.com/uhyunpark/escrowd/pkg/api"
	"github.com/uhyunpark/escrowd/pkg/chain"
	"github.com/uhyunpark/escrowd/pkg/escrow"
	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/mempool"
	"github.com/uhyunpark/escrowd/pkg/p2p"
	"github.com/uhyunpark/escrowd/pkg/storage"
	"github.com/uhyunpark/escrowd/pkg/token"
	"github.com/uhyunpark/escrowd/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file when LOG_FILE is set)
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	} else {
		logger, err = util.NewLogger(cfg.Node.Verbose)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "verbose", cfg.Node.Verbose)

	escrowID := escrow.DefaultProgramID
	if cfg.Chain.EscrowProgramID != "" {
		escrowID, err = ledger.PubkeyFromBase58(cfg.Chain.EscrowProgramID)
		if err != nil {
			sugar.Fatalw("invalid_escrow_program_id", "value", cfg.Chain.EscrowProgramID, "err", err)
		}
	}

	// ---- Storage ----
	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		sugar.Fatalw("data_dir_failed", "dir", cfg.Node.DataDir, "err", err)
	}
	store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "ledger"))
	if err != nil {
		sugar.Fatalw("storage_open_failed", "err", err)
	}
	defer store.Close()

	walPath := filepath.Join(cfg.Node.DataDir, "slots.wal")
	if last, err := storage.LastWALEntry(walPath); err != nil {
		sugar.Warnw("wal_read_failed", "err", err)
	} else if last != "" {
		sugar.Infow("wal_resumed", "last", last)
	}
	wal, err := storage.NewFileWAL(walPath)
	if err != nil {
		sugar.Fatalw("wal_open_failed", "err", err)
	}
	defer wal.Close()

	// ---- Runtime: system, token and escrow programs ----
	rt := ledger.NewRuntime(store, sugar.Named("runtime"),
		token.Program{},
		escrow.NewProgram(escrowID, sugar.Named("escrow")),
	)

	mp := mempool.NewMempool(escrowID)

	producer := chain.NewProducer(rt, mp, store, util.RealClock{}, chain.Config{
		SlotTime: cfg.Chain.SlotTime,
		MaxTxs:   cfg.Chain.MaxTxsPerSlot,
	}, sugar.Named("chain"))
	producer.WAL = wal
	producer.OnCommit(func(_ chain.Slot, receipts []*ledger.Receipt) {
		for _, r := range receipts {
			escrow.ObserveReceipt(r)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- P2P: transaction gossip ----
	gossip, err := p2p.NewLibp2pNet(ctx, p2p.Libp2pConfig{
		ListenAddr: cfg.P2P.Listen,
		Bootstrap:  cfg.P2P.BootstrapPeers,
		Topic:      cfg.P2P.Topic,
		Pool:       mp,
		Logger:     sugar.Named("p2p"),
	})
	if err != nil {
		sugar.Fatalw("libp2p_init_failed", "err", err)
	}
	defer gossip.Close()
	for _, addr := range gossip.Addrs() {
		sugar.Infow("p2p_address", "addr", addr)
	}

	// ---- API Server ----
	apiServer := api.NewServer(api.Config{
		Runtime:         rt,
		Mempool:         mp,
		Slots:           store,
		EscrowProgramID: escrowID,
		Gossip:          gossip,
		Logger:          sugar.Named("api"),
		EnableAirdrop:   cfg.Node.EnableAirdrop,
	})
	// Hook API server to the producer: broadcast updates on every slot commit
	producer.OnCommit(apiServer.OnSlotCommitted)

	go func() {
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"escrow_program", escrowID.String(),
		"token_program", token.ProgramID.String(),
		"slot_time_ms", cfg.Chain.SlotTime.Milliseconds(),
		"max_txs_per_slot", cfg.Chain.MaxTxsPerSlot,
		"data_dir", cfg.Node.DataDir,
	)

	go func() {
		if err := producer.Run(ctx); err != nil && ctx.Err() == nil {
			sugar.Fatalw("producer_failed", "err", err)
		}
	}()

	// Progress logging loop
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			sugar.Info("node_stopping")
			return
		case <-ticker.C:
			sugar.Infow("chain_progress",
				"height", producer.Height(),
				"mempool", mp.Len(),
			)
		}
	}
}
