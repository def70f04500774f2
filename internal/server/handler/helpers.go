package handler

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps ledger sentinel errors onto HTTP status codes.
// Unknown errors become a generic 500 so internal detail is not leaked.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "listing not found")
	case errors.Is(err, domain.ErrInvalidPrice):
		writeError(w, http.StatusBadRequest, "price must be greater than zero")
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "invalid quantity")
	case errors.Is(err, domain.ErrAlreadySold):
		writeError(w, http.StatusConflict, "listing already sold")
	case errors.Is(err, domain.ErrInsufficientPayment):
		writeError(w, http.StatusPaymentRequired, "offered value below listing price")
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient funds")
	case errors.Is(err, domain.ErrTransferUnauthorized):
		writeError(w, http.StatusForbidden, "transfer not authorized")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "settlement in progress, retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// pathParam extracts a named path parameter using Go 1.22+ built-in routing.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseAddress validates and parses a hex address from request input.
func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseBigInt parses a non-negative decimal integer string.
func parseBigInt(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

// itemResponse is the wire representation of a market item. Token IDs and
// prices are rendered as decimal strings since they routinely exceed the
// range JSON numbers can carry losslessly.
type itemResponse struct {
	ItemID        uint64  `json:"item_id"`
	AssetContract string  `json:"asset_contract"`
	TokenID       string  `json:"token_id"`
	Price         string  `json:"price"`
	TotalPrice    string  `json:"total_price"`
	Quantity      uint64  `json:"quantity"`
	Seller        string  `json:"seller"`
	Custodian     string  `json:"custodian"`
	Sold          bool    `json:"sold"`
	Kind          string  `json:"kind"`
	CreatedAt     string  `json:"created_at"`
	SoldAt        *string `json:"sold_at,omitempty"`
}

func toItemResponse(item domain.MarketItem) itemResponse {
	resp := itemResponse{
		ItemID:        item.ItemID,
		AssetContract: item.AssetContract.Hex(),
		TokenID:       item.TokenID.String(),
		Price:         item.Price.String(),
		TotalPrice:    item.TotalPrice().String(),
		Quantity:      item.Quantity,
		Seller:        item.Seller.Hex(),
		Custodian:     item.Custodian.Hex(),
		Sold:          item.Sold,
		Kind:          string(item.Kind),
		CreatedAt:     item.CreatedAt.UTC().Format(time.RFC3339),
	}
	if item.SoldAt != nil {
		s := item.SoldAt.UTC().Format(time.RFC3339)
		resp.SoldAt = &s
	}
	return resp
}

func toItemResponses(items []domain.MarketItem) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	return out
}
