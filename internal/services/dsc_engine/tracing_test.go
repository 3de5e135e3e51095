package dsc_engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/archon-research/dsc/internal/adapters/outbound/memory"
)

func TestEngine_OperationSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	weth := memory.NewToken("WETH")
	registry := memory.NewTokenRegistry()
	registry.Register(wethAddr, weth)
	dsc, _ := memory.NewStablecoin("DSC", engineAddr)
	feeds := memory.NewPriceFeeds(nil)
	feeds.SetAnswer(ethUsdFeed, big.NewInt(ethUsdPrice))

	engine, err := NewEngine(Config{
		TokenAddresses:     []common.Address{wethAddr},
		PriceFeedAddresses: []common.Address{ethUsdFeed},
		DscAddress:         dscAddr,
		EngineAddress:      engineAddr,
		TracerProvider:     provider,
	}, Dependencies{PriceFeeds: feeds, Tokens: registry, Dsc: dsc})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ctx := context.Background()
	_ = weth.MintTo(user, ether(1))
	_ = weth.Approve(user, engineAddr, ether(1))
	if err := engine.DepositCollateral(ctx, user, wethAddr, ether(1)); err != nil {
		t.Fatalf("DepositCollateral: %v", err)
	}
	_ = engine.MintDsc(ctx, user, new(uint256.Int))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	tests := []struct {
		name   string
		status codes.Code
		desc   string
	}{
		{"dsc.deposit_collateral", codes.Unset, ""},
		{"dsc.mint_dsc", codes.Error, "needs_more_than_zero"},
	}
	for i, tt := range tests {
		span := spans[i]
		if span.Name() != tt.name {
			t.Errorf("span %d: expected name %s, got %s", i, tt.name, span.Name())
		}
		if span.Status().Code != tt.status {
			t.Errorf("%s: expected status %v, got %v", tt.name, tt.status, span.Status().Code)
		}
		if span.Status().Description != tt.desc {
			t.Errorf("%s: expected description %q, got %q", tt.name, tt.desc, span.Status().Description)
		}
	}
}
