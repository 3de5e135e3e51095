package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/dsc/internal/pkg/env"
)

const (
	priceSourceChainlink = "chainlink"
	priceSourceRedis     = "redis"

	eventSinkLog      = "log"
	eventSinkPostgres = "postgres"
	eventSinkSNS      = "sns"
)

type cliConfig struct {
	tokens      []common.Address
	feeds       []common.Address
	dscAddress  common.Address
	engine      common.Address
	priceSource string
	eventSink   string
	dbURL       string
	rpcURL      string
	redisAddr   string
	httpAddr    string
	otlpAddr    string
	traceStdout bool
	environment string
	snsTopics   [3]string
	snsEndpoint string
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("dsc-engine", flag.ContinueOnError)
	collateral := fs.String("collateral", "", "Collateral bindings token:feed,token:feed (env DSC_COLLATERAL)")
	priceSource := fs.String("price-source", "", "Price feed source: chainlink or redis (env PRICE_SOURCE)")
	eventSink := fs.String("event-sink", "", "Ledger event sink: log, postgres or sns (env EVENT_SINK)")
	dbURL := fs.String("db", "", "PostgreSQL connection URL (env DATABASE_URL)")
	httpAddr := fs.String("http", "", "Health and position API listen address (env HTTP_ADDR)")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		priceSource: orEnv(*priceSource, "PRICE_SOURCE", priceSourceChainlink),
		eventSink:   orEnv(*eventSink, "EVENT_SINK", eventSinkLog),
		dbURL:       orEnv(*dbURL, "DATABASE_URL", ""),
		httpAddr:    orEnv(*httpAddr, "HTTP_ADDR", ":8080"),
		rpcURL:      env.Get("ETH_RPC_URL", ""),
		redisAddr:   env.Get("REDIS_ADDR", "localhost:6379"),
		otlpAddr:    env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		traceStdout: env.Get("OTEL_TRACES_STDOUT", "") == "true",
		environment: env.Get("ENVIRONMENT", "local"),
		snsTopics: [3]string{
			env.Get("SNS_DEPOSITS_TOPIC_ARN", ""),
			env.Get("SNS_REDEMPTIONS_TOPIC_ARN", ""),
			env.Get("SNS_LIQUIDATIONS_TOPIC_ARN", ""),
		},
		snsEndpoint: env.Get("AWS_SNS_ENDPOINT", ""),
	}

	var err error
	cfg.tokens, cfg.feeds, err = parseCollateral(orEnv(*collateral, "DSC_COLLATERAL", ""))
	if err != nil {
		return cliConfig{}, err
	}
	if cfg.dscAddress, err = parseAddress("DSC_ADDRESS", env.Get("DSC_ADDRESS", "")); err != nil {
		return cliConfig{}, err
	}
	if cfg.engine, err = parseAddress("DSC_ENGINE_ADDRESS", env.Get("DSC_ENGINE_ADDRESS", "")); err != nil {
		return cliConfig{}, err
	}

	switch cfg.priceSource {
	case priceSourceChainlink:
		if cfg.rpcURL == "" {
			return cliConfig{}, fmt.Errorf("ETH_RPC_URL is required for the chainlink price source")
		}
	case priceSourceRedis:
	default:
		return cliConfig{}, fmt.Errorf("unknown price source %q (want chainlink or redis)", cfg.priceSource)
	}

	switch cfg.eventSink {
	case eventSinkLog, eventSinkSNS:
	case eventSinkPostgres:
		if cfg.dbURL == "" {
			return cliConfig{}, fmt.Errorf("DATABASE_URL is required for the postgres event sink")
		}
	default:
		return cliConfig{}, fmt.Errorf("unknown event sink %q (want log, postgres or sns)", cfg.eventSink)
	}

	return cfg, nil
}

// parseCollateral parses "token:feed,token:feed" into parallel lists.
func parseCollateral(raw string) ([]common.Address, []common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil, fmt.Errorf("collateral not provided (use -collateral flag or DSC_COLLATERAL env var)")
	}

	var tokens, feeds []common.Address
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(pair), ":")
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("invalid collateral binding %q (want token:feed)", pair)
		}
		token, err := parseAddress("collateral token", parts[0])
		if err != nil {
			return nil, nil, err
		}
		feed, err := parseAddress("price feed", parts[1])
		if err != nil {
			return nil, nil, err
		}
		tokens = append(tokens, token)
		feeds = append(feeds, feed)
	}
	return tokens, feeds, nil
}

func parseAddress(name, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, fmt.Errorf("%s is required", name)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func orEnv(flagValue, key, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return env.Get(key, defaultValue)
}
