package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/archon-research/oracle-forge/internal/adapters/outbound/artifacts"
	"github.com/archon-research/oracle-forge/internal/adapters/outbound/evmrpc"
	"github.com/archon-research/oracle-forge/internal/adapters/outbound/memory"
	"github.com/archon-research/oracle-forge/internal/adapters/outbound/redis"
	"github.com/archon-research/oracle-forge/internal/adapters/outbound/telemetry"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain"
	"github.com/archon-research/oracle-forge/internal/pkg/env"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
	"github.com/archon-research/oracle-forge/internal/services/manipulator"
)

type appConfig struct {
	client       evmrpc.ClientConfig
	network      string
	redis        redis.Config
	otlpEndpoint string
	traceStdout  bool
}

func loadConfig() (appConfig, error) {
	client := evmrpc.ClientConfigDefaults()
	client.RPCURL = env.Get("RPC_URL", client.RPCURL)
	client.PrivateKey = env.Get("PRIVATE_KEY", client.PrivateKey)

	chainID, err := env.GetInt64("CHAIN_ID", blockchain.DevChainID)
	if err != nil {
		return appConfig{}, err
	}
	client.ChainID = big.NewInt(chainID)

	if client.RequestsPerSecond, err = env.GetFloat("RPC_RATE_LIMIT", 0); err != nil {
		return appConfig{}, err
	}
	if client.ReceiptPollInterval, err = env.GetDuration("RECEIPT_POLL_INTERVAL", client.ReceiptPollInterval); err != nil {
		return appConfig{}, err
	}
	maxPolls, err := env.GetInt64("RECEIPT_MAX_POLLS", int64(client.ReceiptMaxPolls))
	if err != nil {
		return appConfig{}, err
	}
	if maxPolls <= 0 {
		return appConfig{}, fmt.Errorf("RECEIPT_MAX_POLLS must be positive, got %d", maxPolls)
	}
	client.ReceiptMaxPolls = int(maxPolls)

	traceStdout, err := env.GetBool("TRACE_STDOUT", false)
	if err != nil {
		return appConfig{}, err
	}

	redisCfg := redis.ConfigDefaults()
	redisCfg.Addr = env.Get("REDIS_ADDR", "")
	redisCfg.KeyPrefix = env.Get("REDIS_KEY_PREFIX", redisCfg.KeyPrefix)

	return appConfig{
		client:       client,
		network:      env.Get("NETWORK", manipulator.ConfigDefaults().Network),
		redis:        redisCfg,
		otlpEndpoint: env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		traceStdout:  traceStdout,
	}, nil
}

// newEngine dials the node and wires the engine. The returned cleanup closes
// every resource opened here.
func newEngine(ctx context.Context, cfg appConfig, logger *slog.Logger) (*manipulator.Engine, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	shutdown, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    "oracle-forge",
		ServiceVersion: GitCommit,
		Network:        cfg.network,
		OTLPEndpoint:   cfg.otlpEndpoint,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing metrics: %w", err)
	}
	closers = append(closers, func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	})

	tracerCfg := telemetry.TracerConfig{
		ServiceName:    "oracle-forge",
		ServiceVersion: GitCommit,
		Network:        cfg.network,
		OTLPEndpoint:   cfg.otlpEndpoint,
	}
	if cfg.traceStdout {
		tracerCfg.Stdout = os.Stderr
	}
	shutdownTracer, err := telemetry.InitTracer(ctx, tracerCfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("initializing tracer: %w", err)
	}
	closers = append(closers, func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	})

	metrics, err := telemetry.NewMetrics("github.com/archon-research/oracle-forge")
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating metrics: %w", err)
	}

	client, err := evmrpc.Dial(ctx, cfg.client, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("connecting to node: %w", err)
	}
	closers = append(closers, client.Close)
	logger.Info("node connected", "url", cfg.client.RPCURL, "chainID", client.ChainID(), "sender", client.Sender().Hex())

	var originals outbound.OriginalPriceStore
	if cfg.redis.Addr != "" {
		store, err := redis.NewOriginalPriceStore(cfg.redis, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("creating redis store: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		if err := store.Ping(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		originals = store
		logger.Info("redis connected", "addr", cfg.redis.Addr)
	} else {
		originals = memory.NewOriginalPriceStore()
	}

	engine, err := manipulator.NewEngine(manipulator.Config{
		Network: cfg.network,
		Logger:  logger,
		Metrics: metrics,
	}, client, artifacts.NewProvider(), originals)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, cleanup, nil
}
