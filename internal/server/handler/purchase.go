package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// PurchaseService defines the settlement methods the purchase handler
// requires from the ledger.
type PurchaseService interface {
	Purchase(ctx context.Context, buyer, contract common.Address, tokenID, offered *big.Int) error
	PurchaseMulti(ctx context.Context, buyer, contract common.Address, tokenID *big.Int, quantity uint64, offered *big.Int) error
}

// PurchaseHandler serves settlement HTTP endpoints.
type PurchaseHandler struct {
	ledger PurchaseService
	logger *slog.Logger
}

// NewPurchaseHandler creates a PurchaseHandler with the given ledger and logger.
func NewPurchaseHandler(ledger PurchaseService, logger *slog.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		ledger: ledger,
		logger: logger,
	}
}

// purchaseRequest is the JSON body for a purchase. Offered value arrives as
// a decimal string in the smallest value unit.
type purchaseRequest struct {
	Buyer         string `json:"buyer"`
	AssetContract string `json:"asset_contract"`
	TokenID       string `json:"token_id"`
	Offered       string `json:"offered"`
	Quantity      uint64 `json:"quantity"` // multi-copy only
}

// Purchase settles the sale of a single-copy listing.
// POST /api/purchases
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePurchaseRequest(w, r)
	if !ok {
		return
	}

	if err := h.ledger.Purchase(r.Context(), req.buyer, req.contract, req.tokenID, req.offered); err != nil {
		h.logger.WarnContext(r.Context(), "handler: purchase failed",
			slog.String("buyer", req.buyer.Hex()),
			slog.String("contract", req.contract.Hex()),
			slog.String("token_id", req.tokenID.String()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

// PurchaseMulti settles the sale of a multi-copy listing as a whole lot.
// POST /api/purchases/multi
func (h *PurchaseHandler) PurchaseMulti(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePurchaseRequest(w, r)
	if !ok {
		return
	}
	if req.quantity == 0 {
		writeError(w, http.StatusBadRequest, "quantity must be greater than zero")
		return
	}

	if err := h.ledger.PurchaseMulti(r.Context(), req.buyer, req.contract, req.tokenID, req.quantity, req.offered); err != nil {
		h.logger.WarnContext(r.Context(), "handler: multi purchase failed",
			slog.String("buyer", req.buyer.Hex()),
			slog.String("contract", req.contract.Hex()),
			slog.String("token_id", req.tokenID.String()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

type parsedPurchaseRequest struct {
	buyer    common.Address
	contract common.Address
	tokenID  *big.Int
	offered  *big.Int
	quantity uint64
}

func (h *PurchaseHandler) decodePurchaseRequest(w http.ResponseWriter, r *http.Request) (parsedPurchaseRequest, bool) {
	var body purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return parsedPurchaseRequest{}, false
	}

	buyer, ok := parseAddress(body.Buyer)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid buyer address")
		return parsedPurchaseRequest{}, false
	}
	contract, ok := parseAddress(body.AssetContract)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset contract address")
		return parsedPurchaseRequest{}, false
	}
	tokenID, ok := parseBigInt(body.TokenID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return parsedPurchaseRequest{}, false
	}
	offered, ok := parseBigInt(body.Offered)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid offered value")
		return parsedPurchaseRequest{}, false
	}

	return parsedPurchaseRequest{
		buyer:    buyer,
		contract: contract,
		tokenID:  tokenID,
		offered:  offered,
		quantity: body.Quantity,
	}, true
}
