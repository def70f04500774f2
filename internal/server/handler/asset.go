package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

// SingleMinter issues single-copy assets into the ledger's custody book.
type SingleMinter interface {
	Mint(contract common.Address, tokenID *big.Int, owner common.Address, uri string)
}

// MultiMinter issues a quantity of a multi-copy asset.
type MultiMinter interface {
	Mint(contract common.Address, tokenID *big.Int, owner common.Address, quantity uint64, uri string)
}

// ValueAccounts is the funding surface of the value ledger.
type ValueAccounts interface {
	Credit(addr common.Address, amount *big.Int)
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
}

// AssetHandler serves asset issuance and account funding endpoints. These
// exist so a deployment is self-contained: sellers mint what they list and
// buyers fund what they spend.
type AssetHandler struct {
	single SingleMinter
	multi  MultiMinter
	values ValueAccounts
	logger *slog.Logger
}

// NewAssetHandler creates an AssetHandler over the two custody books and the
// value ledger.
func NewAssetHandler(single SingleMinter, multi MultiMinter, values ValueAccounts, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		single: single,
		multi:  multi,
		values: values,
		logger: logger,
	}
}

type mintRequest struct {
	Kind          string `json:"kind"`
	AssetContract string `json:"asset_contract"`
	TokenID       string `json:"token_id"`
	Owner         string `json:"owner"`
	Quantity      uint64 `json:"quantity"` // multi-copy only
	URI           string `json:"uri"`
}

// Mint issues a new asset to an owner.
// POST /api/assets/mint
func (h *AssetHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var body mintRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind := domain.AssetKind(body.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid asset kind")
		return
	}
	contract, ok := parseAddress(body.AssetContract)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset contract address")
		return
	}
	tokenID, ok := parseBigInt(body.TokenID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}
	owner, ok := parseAddress(body.Owner)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	switch kind {
	case domain.AssetKindSingle:
		h.single.Mint(contract, tokenID, owner, body.URI)
	case domain.AssetKindMulti:
		if body.Quantity == 0 {
			writeError(w, http.StatusBadRequest, "quantity must be greater than zero")
			return
		}
		h.multi.Mint(contract, tokenID, owner, body.Quantity, body.URI)
	}

	h.logger.InfoContext(r.Context(), "handler: asset minted",
		slog.String("kind", string(kind)),
		slog.String("contract", contract.Hex()),
		slog.String("token_id", tokenID.String()),
		slog.String("owner", owner.Hex()),
	)

	writeJSON(w, http.StatusCreated, map[string]string{"status": "minted"})
}

type creditRequest struct {
	Amount string `json:"amount"`
}

// Credit funds an account on the value ledger.
// POST /api/accounts/{addr}/credit
func (h *AssetHandler) Credit(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(pathParam(r, "addr"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	var body creditRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, ok := parseBigInt(body.Amount)
	if !ok || amount.Sign() == 0 {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	h.values.Credit(addr, amount)

	balance, err := h.values.BalanceOf(r.Context(), addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"account": addr.Hex(),
		"balance": balance.String(),
	})
}

// Balance returns the value-ledger balance of an account.
// GET /api/accounts/{addr}/balance
func (h *AssetHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(pathParam(r, "addr"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	balance, err := h.values.BalanceOf(r.Context(), addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"account": addr.Hex(),
		"balance": balance.String(),
	})
}
