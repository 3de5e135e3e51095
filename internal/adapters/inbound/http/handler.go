// handler.go exposes the engine over HTTP. Queries:
//   - GET /v1/accounts/{user}:           debt, collateral value and health factor of an account
//   - GET /v1/collateral:                approved collateral tokens and their price feeds
//   - GET /v1/collateral/{asset}/price:  USD price of one whole token (1e18 base units)
//
// Position commands are in commands.go. Amounts are returned both raw (base
// units, decimal string) and scaled to 18 decimals for display.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/archon-research/dsc/internal/pkg/blockchain"
	"github.com/archon-research/dsc/internal/ports/inbound"
)

const displayDecimals = 18

var oneToken = uint256.NewInt(1_000_000_000_000_000_000)

// Handler implements HTTP handlers for the position API.
type Handler struct {
	service inbound.PositionService
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler with the given service.
func NewHandler(service inbound.PositionService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger.With("component", "position-api"),
	}
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/accounts/{user}", h.Account)
	mux.HandleFunc("GET /v1/collateral", h.Collateral)
	mux.HandleFunc("GET /v1/collateral/{asset}/price", h.Price)

	mux.HandleFunc("POST /v1/accounts/{user}/deposit", h.DepositCollateral)
	mux.HandleFunc("POST /v1/accounts/{user}/redeem", h.RedeemCollateral)
	mux.HandleFunc("POST /v1/accounts/{user}/mint", h.MintDsc)
	mux.HandleFunc("POST /v1/accounts/{user}/burn", h.BurnDsc)
	mux.HandleFunc("POST /v1/accounts/{user}/deposit-and-mint", h.DepositCollateralAndMintDsc)
	mux.HandleFunc("POST /v1/accounts/{user}/redeem-for-dsc", h.RedeemCollateralForDsc)
	mux.HandleFunc("POST /v1/accounts/{user}/liquidate", h.Liquidate)
}

// Amount is a uint256 rendered raw and scaled for display.
type Amount struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
}

func newAmount(v *uint256.Int) Amount {
	return Amount{
		Raw:       v.Dec(),
		Formatted: decimal.NewFromBigInt(v.ToBig(), -displayDecimals).String(),
	}
}

// CollateralBalance is one deposited token of an account.
type CollateralBalance struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// AccountResponse is the body of GET /v1/accounts/{user}.
type AccountResponse struct {
	User               string              `json:"user"`
	Debt               Amount              `json:"debt"`
	CollateralValueUSD Amount              `json:"collateralValueUsd"`
	HealthFactor       *Amount             `json:"healthFactor"`
	Collateral         []CollateralBalance `json:"collateral"`
}

// Account handles GET /v1/accounts/{user}.
// A debt-free account reports a null health factor. The health factor is
// derived from the same read as debt and collateral value.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	user, ok := h.parseAddress(w, r.PathValue("user"))
	if !ok {
		return
	}
	ctx := r.Context()

	debt, collateralUSD, err := h.service.AccountInformation(ctx, user)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	resp := AccountResponse{
		User:               user.Hex(),
		Debt:               newAmount(debt),
		CollateralValueUSD: newAmount(collateralUSD),
		Collateral:         []CollateralBalance{},
	}
	if !debt.IsZero() {
		hf, err := h.service.CalculateHealthFactor(debt, collateralUSD)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		a := newAmount(hf)
		resp.HealthFactor = &a
	}
	for _, token := range h.service.CollateralTokens() {
		balance := h.service.CollateralBalanceOf(ctx, user, token)
		if balance.IsZero() {
			continue
		}
		resp.Collateral = append(resp.Collateral, CollateralBalance{
			Token:  token.Hex(),
			Amount: balance.Dec(),
		})
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// CollateralAsset is one approved collateral binding.
type CollateralAsset struct {
	Token     string `json:"token"`
	PriceFeed string `json:"priceFeed"`
}

// Collateral handles GET /v1/collateral.
func (h *Handler) Collateral(w http.ResponseWriter, r *http.Request) {
	tokens := h.service.CollateralTokens()
	assets := make([]CollateralAsset, 0, len(tokens))
	for _, token := range tokens {
		feed, _ := h.service.CollateralTokenPriceFeed(token)
		assets = append(assets, CollateralAsset{
			Token:     token.Hex(),
			PriceFeed: feed.Hex(),
		})
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"collateral": assets})
}

// PriceResponse is the body of GET /v1/collateral/{asset}/price.
type PriceResponse struct {
	Token    string `json:"token"`
	PriceUSD Amount `json:"priceUsd"`
}

// Price handles GET /v1/collateral/{asset}/price.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.parseAddress(w, r.PathValue("asset"))
	if !ok {
		return
	}
	if _, allowed := h.service.CollateralTokenPriceFeed(asset); !allowed {
		h.respondError(w, http.StatusNotFound, "token is not approved collateral")
		return
	}

	usd, err := h.service.UsdValue(r.Context(), asset, oneToken)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, PriceResponse{
		Token:    asset.Hex(),
		PriceUSD: newAmount(usd),
	})
}

func (h *Handler) parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		h.respondError(w, http.StatusBadRequest, "invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// respondServiceError maps engine failures to a status. Price failures are
// 503: the engine refuses to value positions until feeds recover.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, blockchain.ErrStalePrice), errors.Is(err, blockchain.ErrInvalidPrice):
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, inbound.ErrNeedsMoreThanZero), errors.Is(err, inbound.ErrTokenNotAllowed):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, inbound.ErrReentrantCall):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, inbound.ErrBreaksHealthFactor),
		errors.Is(err, inbound.ErrHealthFactorOk),
		errors.Is(err, inbound.ErrHealthFactorNotImproved),
		errors.Is(err, inbound.ErrInsufficientCollateral),
		errors.Is(err, inbound.ErrInsufficientDebt),
		errors.Is(err, inbound.ErrTransferFailed),
		errors.Is(err, inbound.ErrArithmeticOverflow):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
