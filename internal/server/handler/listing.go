package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

// ListingService defines the methods the listing handler requires from the
// ledger. It is declared locally so the handler package does not depend on
// the concrete ledger implementation.
type ListingService interface {
	CreateListing(ctx context.Context, seller, contract common.Address, tokenID, price *big.Int) (uint64, error)
	CreateListingMulti(ctx context.Context, seller, contract common.Address, tokenID, price *big.Int, quantity uint64) (uint64, error)
	GetListing(ctx context.Context, itemID uint64) (domain.MarketItem, error)
	UnsoldListings(ctx context.Context) ([]domain.MarketItem, error)
	ListingCount(ctx context.Context) (uint64, error)
}

// ListingHandler serves listing registry HTTP endpoints.
type ListingHandler struct {
	ledger ListingService
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler with the given ledger and logger.
func NewListingHandler(ledger ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		ledger: ledger,
		logger: logger,
	}
}

// createListingRequest is the JSON body for listing creation. Token IDs and
// prices arrive as decimal strings.
type createListingRequest struct {
	Seller        string `json:"seller"`
	AssetContract string `json:"asset_contract"`
	TokenID       string `json:"token_id"`
	Price         string `json:"price"`
	Quantity      uint64 `json:"quantity"` // multi-copy only
}

type createListingResponse struct {
	ItemID uint64 `json:"item_id"`
}

// CreateListing records a single-copy asset for sale.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCreateRequest(w, r)
	if !ok {
		return
	}

	itemID, err := h.ledger.CreateListing(r.Context(), req.seller, req.contract, req.tokenID, req.price)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create listing failed",
			slog.String("seller", req.seller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createListingResponse{ItemID: itemID})
}

// CreateListingMulti records a quantity of a multi-copy asset for sale.
// POST /api/listings/multi
func (h *ListingHandler) CreateListingMulti(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCreateRequest(w, r)
	if !ok {
		return
	}
	if req.quantity == 0 {
		writeError(w, http.StatusBadRequest, "quantity must be greater than zero")
		return
	}

	itemID, err := h.ledger.CreateListingMulti(r.Context(), req.seller, req.contract, req.tokenID, req.price, req.quantity)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create multi listing failed",
			slog.String("seller", req.seller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createListingResponse{ItemID: itemID})
}

// GetListing returns a single listing by item ID.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.ledger.GetListing(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toItemResponse(item))
}

// listListingsResponse wraps the list endpoint output with a total count of
// all items ever listed, sold ones included.
type listListingsResponse struct {
	Listings []itemResponse `json:"listings"`
	Total    uint64         `json:"total"`
}

// ListListings returns all unsold listings in ascending item-ID order.
// GET /api/listings
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	items, err := h.ledger.UnsoldListings(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list listings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}

	total, err := h.ledger.ListingCount(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count listings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count listings")
		return
	}

	writeJSON(w, http.StatusOK, listListingsResponse{
		Listings: toItemResponses(items),
		Total:    total,
	})
}

// parsedCreateRequest holds the validated fields of a create-listing body.
type parsedCreateRequest struct {
	seller   common.Address
	contract common.Address
	tokenID  *big.Int
	price    *big.Int
	quantity uint64
}

func (h *ListingHandler) decodeCreateRequest(w http.ResponseWriter, r *http.Request) (parsedCreateRequest, bool) {
	var body createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return parsedCreateRequest{}, false
	}

	seller, ok := parseAddress(body.Seller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid seller address")
		return parsedCreateRequest{}, false
	}
	contract, ok := parseAddress(body.AssetContract)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset contract address")
		return parsedCreateRequest{}, false
	}
	tokenID, ok := parseBigInt(body.TokenID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return parsedCreateRequest{}, false
	}
	price, ok := parseBigInt(body.Price)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid price")
		return parsedCreateRequest{}, false
	}

	return parsedCreateRequest{
		seller:   seller,
		contract: contract,
		tokenID:  tokenID,
		price:    price,
		quantity: body.Quantity,
	}, true
}
