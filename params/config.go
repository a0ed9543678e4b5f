package params

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/junhoyeo/dexmatch/pkg/market"
)

// Chain holds the settlement-layer connection parameters.
type Chain struct {
	RPCURL             string
	ChainID            int64
	SettlementContract common.Address
	// ExchangePrivateKey signs settlement transactions. Hex, no 0x prefix
	// required.
	ExchangePrivateKey string
}

// Store selects the book's persistence backend.
type Store struct {
	// Backend is one of "redis", "pebble", "memory".
	Backend    string
	RedisURL   string
	PebblePath string
}

// Pipeline bounds the settlement dispatch stages.
type Pipeline struct {
	SubmitWorkers       int
	ReceiptPollAttempts int
	ReceiptPollInterval time.Duration
	// ReinstateOnFailure restores a maker's resting amount when its trade
	// fails off-chain. Off by default: a failed trade usually means the
	// maker's funds moved, so the order would just fail again.
	ReinstateOnFailure bool
}

// Feed configures the trade event stream.
type Feed struct {
	KafkaBrokers []string
	KafkaTopic   string
}

type Config struct {
	Chain    Chain
	Store    Store
	Pipeline Pipeline
	Feed     Feed
	APIAddr  string
	Markets  map[string]market.Info
}

func Default() Config {
	return Config{
		Chain: Chain{
			RPCURL:  "http://localhost:8545",
			ChainID: 8453,
		},
		Store: Store{
			Backend:    "memory",
			RedisURL:   "redis://localhost:6379/0",
			PebblePath: "data/book",
		},
		Pipeline: Pipeline{
			SubmitWorkers:       20,
			ReceiptPollAttempts: 10,
			ReceiptPollInterval: time.Second,
			ReinstateOnFailure:  false,
		},
		Feed: Feed{
			KafkaTopic: "trades",
		},
		APIAddr: ":8080",
		Markets: map[string]market.Info{
			"WETH-USDC": {
				BaseToken:     common.HexToAddress("0x4200000000000000000000000000000000000006"),
				BaseDecimals:  18,
				QuoteToken:    common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
				QuoteDecimals: 6,
				Symbol:        "WETH-USDC",
			},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Optional .env file; missing is fine
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Chain.RPCURL = getEnv("RPC_URL", cfg.Chain.RPCURL)
	if id := os.Getenv("CHAIN_ID"); id != "" {
		if v, err := strconv.ParseInt(id, 10, 64); err == nil {
			cfg.Chain.ChainID = v
		}
	}
	if addr := os.Getenv("SETTLEMENT_CONTRACT_ADDRESS"); addr != "" {
		cfg.Chain.SettlementContract = common.HexToAddress(addr)
	}
	cfg.Chain.ExchangePrivateKey = getEnv("EXCHANGE_PRIVATE_KEY", cfg.Chain.ExchangePrivateKey)

	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.RedisURL = getEnv("REDIS_URL", cfg.Store.RedisURL)
	cfg.Store.PebblePath = getEnv("PEBBLE_PATH", cfg.Store.PebblePath)

	if v := os.Getenv("SUBMIT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.SubmitWorkers = n
		}
	}
	if v := os.Getenv("RECEIPT_POLL_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.ReceiptPollAttempts = n
		}
	}
	if v := os.Getenv("RECEIPT_POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Pipeline.ReceiptPollInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("REINSTATE_ON_FAILURE"); v != "" {
		cfg.Pipeline.ReinstateOnFailure = v == "true"
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Feed.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.Feed.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Feed.KafkaTopic)

	cfg.APIAddr = getEnv("API_ADDR", cfg.APIAddr)

	if path := os.Getenv("MARKETS_FILE"); path != "" {
		if markets, err := loadMarketsFile(path); err == nil {
			cfg.Markets = markets
		}
	}

	return cfg
}

// loadMarketsFile reads a ticker -> market info table from a JSON file,
// replacing the built-in market list entirely.
func loadMarketsFile(path string) (map[string]market.Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var markets map[string]market.Info
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("parse markets file %s: %w", path, err)
	}
	for ticker, info := range markets {
		if info.Symbol == "" {
			info.Symbol = ticker
			markets[ticker] = info
		}
	}
	return markets, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
