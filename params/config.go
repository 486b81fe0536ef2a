package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Chain struct {
	// SlotTime is the cadence at which pending transactions are executed
	//
	// Recommended values:
	//   - Devnet:  400ms
	//   - Tests:   driven manually, no timer
	SlotTime time.Duration
	// MaxTxsPerSlot caps how many transactions one slot drains (0 = unbounded)
	MaxTxsPerSlot int
	// EscrowProgramID is the base58 identity the escrow program is bound to
	// (empty = built-in default)
	EscrowProgramID string
}

type Node struct {
	DataDir string
	LogFile string // empty = stdout only
	Verbose bool
	APIAddr string
	// EnableAirdrop exposes POST /api/v1/airdrop (devnet only)
	EnableAirdrop bool
}

type P2P struct {
	Listen         string
	BootstrapPeers []string
	Topic          string
}

type Client struct {
	// NodeURL is the REST endpoint escrowctl talks to
	NodeURL string
	// PaymentDecimals is the default decimals for payment mints created by escrowctl
	PaymentDecimals uint8
}

type Config struct {
	Chain  Chain
	Node   Node
	P2P    P2P
	Client Client
}

func Default() Config {
	return Config{
		Chain: Chain{
			SlotTime:      400 * time.Millisecond,
			MaxTxsPerSlot: 1000,
		},
		Node: Node{
			DataDir:       "./data",
			APIAddr:       ":8080",
			EnableAirdrop: true, // Devnet default
		},
		P2P: P2P{
			Listen: "/ip4/0.0.0.0/tcp/4001",
			Topic:  "escrowd/tx/1",
		},
		Client: Client{
			NodeURL:         "http://localhost:8080",
			PaymentDecimals: 6,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.P2P.Listen = getEnv("LISTEN", cfg.P2P.Listen)
	cfg.Chain.EscrowProgramID = getEnv("ESCROW_PROGRAM_ID", cfg.Chain.EscrowProgramID)
	cfg.P2P.Topic = getEnv("P2P_TOPIC", cfg.P2P.Topic)
	cfg.Client.NodeURL = getEnv("NODE_URL", cfg.Client.NodeURL)

	if slot := os.Getenv("SLOT_TIME_MS"); slot != "" {
		if ms, err := strconv.Atoi(slot); err == nil && ms > 0 {
			cfg.Chain.SlotTime = time.Duration(ms) * time.Millisecond
		}
	}
	if maxTxs := os.Getenv("MAX_TXS_PER_SLOT"); maxTxs != "" {
		if n, err := strconv.Atoi(maxTxs); err == nil && n >= 0 {
			cfg.Chain.MaxTxsPerSlot = n
		}
	}
	if dec := os.Getenv("PAYMENT_DECIMALS"); dec != "" {
		if n, err := strconv.ParseUint(dec, 10, 8); err == nil {
			cfg.Client.PaymentDecimals = uint8(n)
		}
	}
	if airdrop := os.Getenv("ENABLE_AIRDROP"); airdrop != "" {
		cfg.Node.EnableAirdrop = airdrop == "true"
	}
	if verbose := os.Getenv("VERBOSE"); verbose != "" {
		cfg.Node.Verbose = verbose == "true"
	}

	// Bootstrap peers from comma-separated multiaddrs
	if peers := os.Getenv("BOOTSTRAP_PEERS"); peers != "" {
		for _, p := range strings.Split(peers, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.P2P.BootstrapPeers = append(cfg.P2P.BootstrapPeers, p)
			}
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
