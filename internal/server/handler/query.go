package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

// QueryService defines the read-side methods the query handler requires
// from the ledger.
type QueryService interface {
	ListingsBySeller(ctx context.Context, seller common.Address) ([]domain.MarketItem, error)
	ListingsByOwner(ctx context.Context, owner common.Address) ([]domain.MarketItem, error)
	MetadataURI(ctx context.Context, kind domain.AssetKind, contract common.Address, tokenID *big.Int) (string, error)
}

// QueryHandler serves seller/owner index and asset metadata endpoints.
type QueryHandler struct {
	ledger QueryService
	logger *slog.Logger
}

// NewQueryHandler creates a QueryHandler with the given ledger and logger.
func NewQueryHandler(ledger QueryService, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		ledger: ledger,
		logger: logger,
	}
}

// ListBySeller returns every listing a seller has created, sold ones included.
// GET /api/sellers/{addr}/listings
func (h *QueryHandler) ListBySeller(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(pathParam(r, "addr"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid seller address")
		return
	}

	items, err := h.ledger.ListingsBySeller(r.Context(), addr)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list by seller failed",
			slog.String("seller", addr.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list seller listings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"listings": toItemResponses(items)})
}

// ListByOwner returns the items an address currently holds through the
// ledger: purchases it settled plus unsold listings it has in escrow.
// GET /api/owners/{addr}/listings
func (h *QueryHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(pathParam(r, "addr"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	items, err := h.ledger.ListingsByOwner(r.Context(), addr)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list by owner failed",
			slog.String("owner", addr.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list owner listings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"listings": toItemResponses(items)})
}

// GetMetadata resolves the metadata URI for an asset through its capability
// adapter. The kind query parameter defaults to single-copy.
// GET /api/assets/{contract}/{token}/metadata?kind=single|multi
func (h *QueryHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	contract, ok := parseAddress(pathParam(r, "contract"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset contract address")
		return
	}
	tokenID, ok := parseBigInt(pathParam(r, "token"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	kind := domain.AssetKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.AssetKindSingle
	}
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid asset kind")
		return
	}

	uri, err := h.ledger.MetadataURI(r.Context(), kind, contract, tokenID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"asset_contract": contract.Hex(),
		"token_id":       tokenID.String(),
		"uri":            uri,
	})
}
