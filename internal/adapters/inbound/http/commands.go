// commands.go exposes the position commands over HTTP. The {user} path segment
// is the account acting on its own position; for a liquidation it is the
// liquidator and the body names the position being liquidated.
//   - POST /v1/accounts/{user}/deposit:           {"token", "amount"}
//   - POST /v1/accounts/{user}/redeem:            {"token", "amount"}
//   - POST /v1/accounts/{user}/mint:              {"amount"}
//   - POST /v1/accounts/{user}/burn:              {"amount"}
//   - POST /v1/accounts/{user}/deposit-and-mint:  {"token", "collateralAmount", "dscAmount"}
//   - POST /v1/accounts/{user}/redeem-for-dsc:    {"token", "collateralAmount", "dscAmount"}
//   - POST /v1/accounts/{user}/liquidate:         {"token", "user", "debtToCover"}
//
// Amounts are base-unit decimal strings. Rejected commands change nothing.

package http

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const maxBodyBytes = 64 << 10

// CollateralRequest is the body of deposit and redeem.
type CollateralRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// DscRequest is the body of mint and burn.
type DscRequest struct {
	Amount string `json:"amount"`
}

// CombinedRequest is the body of deposit-and-mint and redeem-for-dsc.
type CombinedRequest struct {
	Token            string `json:"token"`
	CollateralAmount string `json:"collateralAmount"`
	DscAmount        string `json:"dscAmount"`
}

// LiquidateRequest is the body of liquidate.
type LiquidateRequest struct {
	Token       string `json:"token"`
	User        string `json:"user"`
	DebtToCover string `json:"debtToCover"`
}

// CommandResponse acknowledges an applied command.
type CommandResponse struct {
	Operation string `json:"operation"`
	User      string `json:"user"`
}

// DepositCollateral handles POST /v1/accounts/{user}/deposit.
func (h *Handler) DepositCollateral(w http.ResponseWriter, r *http.Request) {
	var req CollateralRequest
	user, ok := h.parseCommand(w, r, &req)
	if !ok {
		return
	}
	token, ok := h.parseAddress(w, req.Token)
	if !ok {
		return
	}
	amount, ok := h.parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	h.respondCommand(w, "deposit_collateral", user, h.service.DepositCollateral(r.Context(), user, token, amount))
}

// RedeemCollateral handles POST /v1/accounts/{user}/redeem.
func (h *Handler) RedeemCollateral(w http.ResponseWriter, r *http.Request) {
	var req CollateralRequest
	user, ok := h.parseCommand(w, r, &req)
	if !ok {
		return
	}
	token, ok := h.parseAddress(w, req.Token)
	if !ok {
		return
	}
	amount, ok := h.parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	h.respondCommand(w, "redeem_collateral", user, h.service.RedeemCollateral(r.Context(), user, token, amount))
}

// MintDsc handles POST /v1/accounts/{user}/mint.
func (h *Handler) MintDsc(w http.ResponseWriter, r *http.Request) {
	var req DscRequest
	user, ok := h.parseCommand(w, r, &req)
	if !ok {
		return
	}
	amount, ok := h.parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	h.respondCommand(w, "mint_dsc", user, h.service.MintDsc(r.Context(), user, amount))
}

// BurnDsc handles POST /v1/accounts/{user}/burn.
func (h *Handler) BurnDsc(w http.ResponseWriter, r *http.Request) {
	var req DscRequest
	user, ok := h.parseCommand(w, r, &req)
	if !ok {
		return
	}
	amount, ok := h.parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	h.respondCommand(w, "burn_dsc", user, h.service.BurnDsc(r.Context(), user, amount))
}

// DepositCollateralAndMintDsc handles POST /v1/accounts/{user}/deposit-and-mint.
func (h *Handler) DepositCollateralAndMintDsc(w http.ResponseWriter, r *http.Request) {
	var req CombinedRequest
	user, ok := h.parseCommand(w, r, &req)
	if !ok {
		return
	}
	token, collateral, dsc, ok := h.parseCombined(w, req)
	if !ok {
		return
	}
	err := h.service.DepositCollateralAndMintDsc(r.Context(), user, token, collateral, dsc)
	h.respondCommand(w, "deposit_collateral_and_mint_dsc", user, err)
}

// RedeemCollateralForDsc handles POST /v1/accounts/{user}/redeem-for-dsc.
func (h *Handler) RedeemCollateralForDsc(w http.ResponseWriter, r *http.Request) {
	var req CombinedRequest
	user, ok := h.parseCommand(w, r, &req)
	if !ok {
		return
	}
	token, collateral, dsc, ok := h.parseCombined(w, req)
	if !ok {
		return
	}
	err := h.service.RedeemCollateralForDsc(r.Context(), user, token, collateral, dsc)
	h.respondCommand(w, "redeem_collateral_for_dsc", user, err)
}

// Liquidate handles POST /v1/accounts/{user}/liquidate.
func (h *Handler) Liquidate(w http.ResponseWriter, r *http.Request) {
	var req LiquidateRequest
	liquidator, ok := h.parseCommand(w, r, &req)
	if !ok {
		return
	}
	token, ok := h.parseAddress(w, req.Token)
	if !ok {
		return
	}
	user, ok := h.parseAddress(w, req.User)
	if !ok {
		return
	}
	debtToCover, ok := h.parseAmount(w, "debtToCover", req.DebtToCover)
	if !ok {
		return
	}
	h.respondCommand(w, "liquidate", liquidator, h.service.Liquidate(r.Context(), liquidator, token, user, debtToCover))
}

// parseCommand reads the acting account from the path and decodes the body into req.
func (h *Handler) parseCommand(w http.ResponseWriter, r *http.Request, req any) (common.Address, bool) {
	user, ok := h.parseAddress(w, r.PathValue("user"))
	if !ok {
		return common.Address{}, false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return common.Address{}, false
	}
	return user, true
}

func (h *Handler) parseCombined(w http.ResponseWriter, req CombinedRequest) (common.Address, *uint256.Int, *uint256.Int, bool) {
	token, ok := h.parseAddress(w, req.Token)
	if !ok {
		return common.Address{}, nil, nil, false
	}
	collateral, ok := h.parseAmount(w, "collateralAmount", req.CollateralAmount)
	if !ok {
		return common.Address{}, nil, nil, false
	}
	dsc, ok := h.parseAmount(w, "dscAmount", req.DscAmount)
	if !ok {
		return common.Address{}, nil, nil, false
	}
	return token, collateral, dsc, true
}

// parseAmount accepts a base-unit decimal string. Zero is left to the engine.
func (h *Handler) parseAmount(w http.ResponseWriter, field, raw string) (*uint256.Int, bool) {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid "+field)
		return nil, false
	}
	return v, true
}

func (h *Handler) respondCommand(w http.ResponseWriter, operation string, user common.Address, err error) {
	if err != nil {
		h.logger.Debug("command rejected", "operation", operation, "user", user.Hex(), "error", err)
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, CommandResponse{Operation: operation, User: user.Hex()})
}
