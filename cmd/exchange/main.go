package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/junhoyeo/dexmatch/params"
	"github.com/junhoyeo/dexmatch/pkg/api"
	"github.com/junhoyeo/dexmatch/pkg/book"
	"github.com/junhoyeo/dexmatch/pkg/crypto"
	"github.com/junhoyeo/dexmatch/pkg/feed"
	"github.com/junhoyeo/dexmatch/pkg/market"
	"github.com/junhoyeo/dexmatch/pkg/pipeline"
	"github.com/junhoyeo/dexmatch/pkg/settle"
	"github.com/junhoyeo/dexmatch/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := market.NewRegistry(cfg.Markets)

	// ---- Book store ----
	store, err := openStore(cfg.Store, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer store.Close()

	orderBook := book.New(store, registry, util.RealClock{}, logger, book.Options{
		ReinstateOnFailure: cfg.Pipeline.ReinstateOnFailure,
	})

	// ---- Settlement executor ----
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logger.Fatal("rpc dial failed", zap.String("url", cfg.Chain.RPCURL), zap.Error(err))
	}
	defer client.Close()

	signer, err := crypto.FromPrivateKeyHex(cfg.Chain.ExchangePrivateKey)
	if err != nil {
		logger.Fatal("exchange key invalid", zap.Error(err))
	}

	executor, err := settle.NewContractExecutor(
		client,
		cfg.Chain.SettlementContract,
		signer.PrivateKey(),
		big.NewInt(cfg.Chain.ChainID),
		logger,
	)
	if err != nil {
		logger.Fatal("executor init failed", zap.Error(err))
	}

	logger.Info("exchange starting",
		zap.String("signer", executor.From().Hex()),
		zap.String("contract", cfg.Chain.SettlementContract.Hex()),
		zap.Int64("chain_id", cfg.Chain.ChainID),
		zap.Strings("markets", registry.Tickers()),
	)

	// ---- Metrics ----
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	metrics := pipeline.NewMetrics(promReg)

	// ---- Pipeline + API ----
	// The pipeline pointer is needed by the server, the server's hub is a
	// trade event publisher for the pipeline. Build the server with the
	// pipeline slot filled after construction.
	publishers := feed.Multi{}
	if len(cfg.Feed.KafkaBrokers) > 0 {
		kafkaPub := feed.NewKafkaPublisher(cfg.Feed.KafkaBrokers, cfg.Feed.KafkaTopic, logger)
		defer kafkaPub.Close()
		publishers = append(publishers, kafkaPub)
		logger.Info("kafka feed enabled",
			zap.Strings("brokers", cfg.Feed.KafkaBrokers),
			zap.String("topic", cfg.Feed.KafkaTopic),
		)
	}

	pipe := pipeline.New(orderBook, executor, &publishers, util.RealClock{}, metrics, logger, pipeline.Config{
		SubmitWorkers: cfg.Pipeline.SubmitWorkers,
		PollAttempts:  cfg.Pipeline.ReceiptPollAttempts,
		PollInterval:  cfg.Pipeline.ReceiptPollInterval,
	})

	apiServer := api.NewServer(orderBook, pipe, registry, util.RealClock{}, promReg, logger)
	publishers = append(publishers, apiServer.Hub())

	pipeDone := make(chan struct{})
	go func() {
		defer close(pipeDone)
		pipe.Run(ctx)
	}()

	go func() {
		if err := apiServer.Start(cfg.APIAddr); err != nil {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown failed", zap.Error(err))
	}

	// Wait for the pipeline to drain queued requests and in-flight trades.
	select {
	case <-pipeDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline drain timed out")
	}
	logger.Info("exchange stopped")
}

func openStore(cfg params.Store, logger *zap.Logger) (book.Store, error) {
	switch cfg.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		store := book.NewRedisStore(client)
		if err := store.Ping(context.Background()); err != nil {
			return nil, err
		}
		logger.Info("redis store ready", zap.String("addr", opts.Addr))
		return store, nil
	case "pebble":
		store, err := book.OpenPebbleStore(cfg.PebblePath)
		if err != nil {
			return nil, err
		}
		logger.Info("pebble store ready", zap.String("path", cfg.PebblePath))
		return store, nil
	default:
		logger.Info("memory store ready")
		return book.NewMemStore(), nil
	}
}
