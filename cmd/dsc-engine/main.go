// Package main runs the stablecoin engine as a service: collateral and debt
// positions restored from PostgreSQL, prices read from Chainlink aggregators or
// a Redis price cache, ledger events written to the configured sink, and a
// health and position API over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	httpadapter "github.com/archon-research/dsc/internal/adapters/inbound/http"
	"github.com/archon-research/dsc/internal/adapters/outbound/chainlink"
	"github.com/archon-research/dsc/internal/adapters/outbound/memory"
	"github.com/archon-research/dsc/internal/adapters/outbound/postgres"
	redisadapter "github.com/archon-research/dsc/internal/adapters/outbound/redis"
	snsadapter "github.com/archon-research/dsc/internal/adapters/outbound/sns"
	"github.com/archon-research/dsc/internal/adapters/outbound/telemetry"
	"github.com/archon-research/dsc/internal/pkg/blockchain"
	"github.com/archon-research/dsc/internal/pkg/env"
	"github.com/archon-research/dsc/internal/ports/outbound"
	"github.com/archon-research/dsc/internal/services/dsc_engine"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// .env.local overrides .env; both are optional.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	logger.Info("starting dsc engine",
		"collateral", len(cfg.tokens), "priceSource", cfg.priceSource, "eventSink", cfg.eventSink)

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    "dsc-engine",
		ServiceVersion: env.Get("SERVICE_VERSION", "dev"),
		Environment:    cfg.environment,
		OTLPEndpoint:   cfg.otlpAddr,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Error("metrics shutdown failed", "error", err)
		}
	}()
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "dsc-engine",
		ServiceVersion: env.Get("SERVICE_VERSION", "dev"),
		Environment:    cfg.environment,
		OTLPEndpoint:   cfg.otlpAddr,
		Stdout:         cfg.traceStdout,
	})
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	var pool *pgxpool.Pool
	if cfg.dbURL != "" {
		pool, err = postgres.OpenPool(ctx, postgres.PoolConfigDefaults(cfg.dbURL))
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		logger.Info("PostgreSQL connected")
	}

	feeds, closeFeeds, err := newPriceFeedReader(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFeeds()

	events, err := newEventSink(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := events.Close(); err != nil {
			logger.Error("closing event sink", "error", err)
		}
	}()

	var positions outbound.PositionRepository
	if pool != nil {
		txm, err := postgres.NewTxManager(pool, logger)
		if err != nil {
			return fmt.Errorf("creating transaction manager: %w", err)
		}
		repo, err := postgres.NewPositionRepository(pool, txm, logger)
		if err != nil {
			return fmt.Errorf("creating position repository: %w", err)
		}
		positions = repo
	}

	tokens, dsc, err := newTokenLedgers(ctx, cfg, positions)
	if err != nil {
		return err
	}

	engine, err := dsc_engine.NewEngine(
		dsc_engine.Config{
			TokenAddresses:     cfg.tokens,
			PriceFeedAddresses: cfg.feeds,
			DscAddress:         cfg.dscAddress,
			EngineAddress:      cfg.engine,
			Logger:             logger,
		},
		dsc_engine.Dependencies{
			PriceFeeds: feeds,
			Tokens:     tokens,
			Dsc:        dsc,
			Events:     events,
			Positions:  positions,
			Metrics:    metrics,
		},
	)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	if positions != nil {
		if err := engine.Restore(ctx); err != nil {
			return fmt.Errorf("restoring positions: %w", err)
		}
	}

	var shuttingDown atomic.Bool
	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Addr:   cfg.httpAddr,
		Logger: logger,
		API:    httpadapter.NewHandler(engine, logger),
	}, engine, &shuttingDown)
	server.Start()

	logger.Info("service started")

	<-ctx.Done()
	logger.Info("shutting down...")
	shuttingDown.Store(true)

	if err := server.Shutdown(10 * time.Second); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// newPriceFeedReader returns the configured feed source and a function closing it.
func newPriceFeedReader(ctx context.Context, cfg cliConfig, logger *slog.Logger) (outbound.PriceFeedReader, func(), error) {
	switch cfg.priceSource {
	case priceSourceRedis:
		redisCfg := redisadapter.ConfigDefaults()
		redisCfg.Addr = cfg.redisAddr
		redisCfg.Password = env.Get("REDIS_PASSWORD", "")
		store, err := redisadapter.NewPriceFeedStore(redisCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating redis price feed: %w", err)
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("Redis connected", "addr", cfg.redisAddr)
		return store, func() { _ = store.Close() }, nil

	default:
		client, err := ethclient.DialContext(ctx, cfg.rpcURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to Ethereum node: %w", err)
		}
		chainlinkCfg := chainlink.ConfigDefaults()
		chainlinkCfg.Logger = logger
		reader, err := chainlink.NewFeedReader(client, chainlinkCfg)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("creating chainlink feed reader: %w", err)
		}
		for _, feed := range cfg.feeds {
			decimals, err := reader.Decimals(ctx, feed)
			if err != nil {
				client.Close()
				return nil, nil, fmt.Errorf("reading decimals of feed %s: %w", feed.Hex(), err)
			}
			if decimals != blockchain.FeedDecimals {
				client.Close()
				return nil, nil, fmt.Errorf("feed %s has %d decimals, want %d", feed.Hex(), decimals, blockchain.FeedDecimals)
			}
		}
		logger.Info("Ethereum node connected", "feeds", len(cfg.feeds))
		return reader, client.Close, nil
	}
}

func newEventSink(ctx context.Context, cfg cliConfig, pool *pgxpool.Pool, logger *slog.Logger) (outbound.EventSink, error) {
	switch cfg.eventSink {
	case eventSinkPostgres:
		return postgres.NewEventSink(pool, logger)

	case eventSinkSNS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(env.Get("AWS_REGION", "eu-west-1")),
		)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
			if cfg.snsEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.snsEndpoint)
			}
		})
		snsCfg := snsadapter.ConfigDefaults()
		snsCfg.Topics = snsadapter.TopicARNs{
			Deposits:     cfg.snsTopics[0],
			Redemptions:  cfg.snsTopics[1],
			Liquidations: cfg.snsTopics[2],
		}
		snsCfg.Logger = logger
		return snsadapter.NewEventSink(client, snsCfg)

	default:
		return newLogEventSink(logger), nil
	}
}

// newTokenLedgers builds the in-process collateral tokens and stablecoin. Token
// balances live only in memory, so the engine's custody balances and holders'
// stablecoin balances are rebuilt from the stored positions.
func newTokenLedgers(ctx context.Context, cfg cliConfig, positions outbound.PositionRepository) (*memory.TokenRegistry, *memory.Stablecoin, error) {
	registry := memory.NewTokenRegistry()
	collateral := make(map[string]*memory.Token, len(cfg.tokens))
	for _, addr := range cfg.tokens {
		token := memory.NewToken(addr.Hex())
		registry.Register(addr, token)
		collateral[addr.Hex()] = token
	}

	dsc, err := memory.NewStablecoin("DSC", cfg.engine)
	if err != nil {
		return nil, nil, fmt.Errorf("creating stablecoin: %w", err)
	}

	if positions == nil {
		return registry, dsc, nil
	}
	stored, err := positions.LoadPositions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading positions: %w", err)
	}
	for _, p := range stored {
		for _, addr := range p.Tokens() {
			token, ok := collateral[addr.Hex()]
			if !ok {
				return nil, nil, fmt.Errorf("position of %s holds unknown token %s", p.User.Hex(), addr.Hex())
			}
			if err := token.MintTo(cfg.engine, p.Collateral[addr]); err != nil {
				return nil, nil, fmt.Errorf("rebuilding custody of %s: %w", addr.Hex(), err)
			}
		}
		if p.Debt.IsZero() {
			continue
		}
		if _, err := dsc.Mint(ctx, cfg.engine, p.User, p.Debt); err != nil {
			return nil, nil, fmt.Errorf("rebuilding stablecoin balance of %s: %w", p.User.Hex(), err)
		}
	}
	return registry, dsc, nil
}
