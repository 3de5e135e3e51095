package main

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const (
	wethHex    = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	ethFeedHex = "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"
	wbtcHex    = "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"
	btcFeedHex = "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"
	dscHex     = "0x00000000000000000000000000000000000000d5"
	engineHex  = "0x00000000000000000000000000000000000000e1"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DSC_COLLATERAL", wethHex+":"+ethFeedHex)
	t.Setenv("DSC_ADDRESS", dscHex)
	t.Setenv("DSC_ENGINE_ADDRESS", engineHex)
	t.Setenv("ETH_RPC_URL", "http://localhost:8545")
	t.Setenv("PRICE_SOURCE", "")
	t.Setenv("EVENT_SINK", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("HTTP_ADDR", "")
}

func TestParseCollateral(t *testing.T) {
	tokens, feeds, err := parseCollateral(wethHex + ":" + ethFeedHex + ", " + wbtcHex + ":" + btcFeedHex)
	if err != nil {
		t.Fatalf("parseCollateral: %v", err)
	}
	if len(tokens) != 2 || len(feeds) != 2 {
		t.Fatalf("expected 2 bindings, got %d tokens and %d feeds", len(tokens), len(feeds))
	}
	if tokens[1] != common.HexToAddress(wbtcHex) || feeds[1] != common.HexToAddress(btcFeedHex) {
		t.Errorf("unexpected second binding %s:%s", tokens[1].Hex(), feeds[1].Hex())
	}
}

func TestParseCollateral_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"empty", "", "collateral not provided"},
		{"missing feed", wethHex, "want token:feed"},
		{"too many parts", wethHex + ":" + ethFeedHex + ":x", "want token:feed"},
		{"bad token", "0x12:" + ethFeedHex, "collateral token: invalid address"},
		{"bad feed", wethHex + ":nope", "price feed: invalid address"},
		{"empty feed", wethHex + ":", "price feed is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseCollateral(tt.raw)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := parseConfig(nil)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.priceSource != priceSourceChainlink {
		t.Errorf("expected chainlink price source, got %s", cfg.priceSource)
	}
	if cfg.eventSink != eventSinkLog {
		t.Errorf("expected log event sink, got %s", cfg.eventSink)
	}
	if cfg.httpAddr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.httpAddr)
	}
	if cfg.engine != common.HexToAddress(engineHex) || cfg.dscAddress != common.HexToAddress(dscHex) {
		t.Errorf("unexpected addresses %s, %s", cfg.engine.Hex(), cfg.dscAddress.Hex())
	}
}

func TestParseConfig_FlagsOverrideEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PRICE_SOURCE", "chainlink")

	cfg, err := parseConfig([]string{"-price-source", "redis", "-http", ":9090", "-collateral", wbtcHex + ":" + btcFeedHex})
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.priceSource != priceSourceRedis {
		t.Errorf("expected redis from flag, got %s", cfg.priceSource)
	}
	if cfg.httpAddr != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.httpAddr)
	}
	if len(cfg.tokens) != 1 || cfg.tokens[0] != common.HexToAddress(wbtcHex) {
		t.Errorf("expected collateral from flag, got %v", cfg.tokens)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing dsc address", map[string]string{"DSC_ADDRESS": ""}, "DSC_ADDRESS is required"},
		{"missing engine address", map[string]string{"DSC_ENGINE_ADDRESS": ""}, "DSC_ENGINE_ADDRESS is required"},
		{"unknown price source", map[string]string{"PRICE_SOURCE": "coingecko"}, "unknown price source"},
		{"chainlink without rpc", map[string]string{"ETH_RPC_URL": ""}, "ETH_RPC_URL is required"},
		{"unknown event sink", map[string]string{"EVENT_SINK": "kafka"}, "unknown event sink"},
		{"postgres sink without db", map[string]string{"EVENT_SINK": "postgres"}, "DATABASE_URL is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := parseConfig(nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
