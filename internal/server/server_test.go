package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/curatorlabs/marketd/internal/bank"
	"github.com/curatorlabs/marketd/internal/crypto"
	"github.com/curatorlabs/marketd/internal/ledger"
	"github.com/curatorlabs/marketd/internal/server/handler"
	"github.com/curatorlabs/marketd/internal/store/memory"
	"github.com/curatorlabs/marketd/internal/token"
)

const testEscrowKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

const (
	sellerHex     = "0x0000000000000000000000000000000000000A01"
	buyerHex      = "0x0000000000000000000000000000000000000B01"
	collectionHex = "0x00000000000000000000000000000000000000C1"
)

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signer, err := crypto.NewReceiptSigner(testEscrowKey)
	require.NoError(t, err)

	single := token.NewSingleCopyBook()
	multi := token.NewMultiCopyBook()
	values := bank.New()

	ldg := ledger.New(ledger.Config{
		Escrow: signer.Address(),
		Items:  memory.NewItemStore(),
		Events: memory.NewEventStore(),
		Values: values,
		Single: single,
		Multi:  multi,
		Signer: signer,
		Logger: logger,
	})

	handlers := Handlers{
		Health:    handler.NewHealthHandler(logger),
		Listings:  handler.NewListingHandler(ldg, logger),
		Purchases: handler.NewPurchaseHandler(ldg, logger),
		Queries:   handler.NewQueryHandler(ldg, logger),
		Assets:    handler.NewAssetHandler(single, multi, values, logger),
	}

	return NewServer(cfg, handlers, nil, nil, logger).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func mintAndList(t *testing.T, h http.Handler, tokenID string, price string) uint64 {
	t.Helper()

	rec := doJSON(t, h, http.MethodPost, "/api/assets/mint", map[string]any{
		"kind":           "single",
		"asset_contract": collectionHex,
		"token_id":       tokenID,
		"owner":          sellerHex,
		"uri":            "ipfs://meta/" + tokenID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/listings", map[string]any{
		"seller":         sellerHex,
		"asset_contract": collectionHex,
		"token_id":       tokenID,
		"price":          price,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[map[string]uint64](t, rec)
	return resp["item_id"]
}

func creditBuyer(t *testing.T, h http.Handler, amount string) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/accounts/"+buyerHex+"/credit", map[string]string{
		"amount": amount,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, Config{Port: 8080})

	rec := doJSON(t, h, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]string](t, rec)
	require.Equal(t, "ok", resp["status"])
}

func TestListingLifecycleOverHTTP(t *testing.T) {
	h := newTestServer(t, Config{Port: 8080})

	id := mintAndList(t, h, "1", "1000")
	require.Equal(t, uint64(1), id)

	rec := doJSON(t, h, http.MethodGet, "/api/listings/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode[map[string]any](t, rec)
	require.Equal(t, "1000", item["price"])
	require.Equal(t, common.HexToAddress(sellerHex).Hex(), item["seller"])
	require.Equal(t, false, item["sold"])

	rec = doJSON(t, h, http.MethodGet, "/api/listings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Listings []map[string]any `json:"listings"`
		Total    uint64           `json:"total"`
	}](t, rec)
	require.Len(t, list.Listings, 1)
	require.Equal(t, uint64(1), list.Total)
}

func TestPurchaseOverHTTP(t *testing.T) {
	h := newTestServer(t, Config{Port: 8080})

	mintAndList(t, h, "1", "1000")
	creditBuyer(t, h, "1000")

	rec := doJSON(t, h, http.MethodPost, "/api/purchases", map[string]string{
		"buyer":          buyerHex,
		"asset_contract": collectionHex,
		"token_id":       "1",
		"offered":        "1000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The listing is now sold and owned by the buyer.
	rec = doJSON(t, h, http.MethodGet, "/api/listings/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode[map[string]any](t, rec)
	require.Equal(t, true, item["sold"])
	require.Equal(t, common.HexToAddress(buyerHex).Hex(), item["custodian"])

	rec = doJSON(t, h, http.MethodGet, "/api/owners/"+buyerHex+"/listings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/sellers/"+sellerHex+"/listings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Seller got paid.
	rec = doJSON(t, h, http.MethodGet, "/api/accounts/"+sellerHex+"/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bal := decode[map[string]string](t, rec)
	require.Equal(t, "1000", bal["balance"])
}

func TestPurchaseErrorStatuses(t *testing.T) {
	h := newTestServer(t, Config{Port: 8080})

	mintAndList(t, h, "1", "1000")
	creditBuyer(t, h, "5000")

	// Underpayment.
	rec := doJSON(t, h, http.MethodPost, "/api/purchases", map[string]string{
		"buyer":          buyerHex,
		"asset_contract": collectionHex,
		"token_id":       "1",
		"offered":        "999",
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	// Unknown token.
	rec = doJSON(t, h, http.MethodPost, "/api/purchases", map[string]string{
		"buyer":          buyerHex,
		"asset_contract": collectionHex,
		"token_id":       "42",
		"offered":        "1000",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Settle, then buy again.
	rec = doJSON(t, h, http.MethodPost, "/api/purchases", map[string]string{
		"buyer":          buyerHex,
		"asset_contract": collectionHex,
		"token_id":       "1",
		"offered":        "1000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/purchases", map[string]string{
		"buyer":          buyerHex,
		"asset_contract": collectionHex,
		"token_id":       "1",
		"offered":        "1000",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateListingValidationStatuses(t *testing.T) {
	h := newTestServer(t, Config{Port: 8080})

	rec := doJSON(t, h, http.MethodPost, "/api/listings", map[string]string{
		"seller":         "not-an-address",
		"asset_contract": collectionHex,
		"token_id":       "1",
		"price":          "1000",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Zero price maps to the price error, not a generic 500.
	rec = doJSON(t, h, http.MethodPost, "/api/assets/mint", map[string]any{
		"kind":           "single",
		"asset_contract": collectionHex,
		"token_id":       "1",
		"owner":          sellerHex,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/listings", map[string]string{
		"seller":         sellerHex,
		"asset_contract": collectionHex,
		"token_id":       "1",
		"price":          "0",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Listing someone else's token is forbidden.
	rec = doJSON(t, h, http.MethodPost, "/api/listings", map[string]string{
		"seller":         buyerHex,
		"asset_contract": collectionHex,
		"token_id":       "1",
		"price":          "1000",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetadataEndpoint(t *testing.T) {
	h := newTestServer(t, Config{Port: 8080})

	mintAndList(t, h, "5", "1")

	rec := doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/assets/%s/5/metadata", collectionHex), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]string](t, rec)
	require.Equal(t, "ipfs://meta/5", resp["uri"])

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/assets/%s/99/metadata", collectionHex), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMultiCopyListingOverHTTP(t *testing.T) {
	h := newTestServer(t, Config{Port: 8080})

	rec := doJSON(t, h, http.MethodPost, "/api/assets/mint", map[string]any{
		"kind":           "multi",
		"asset_contract": collectionHex,
		"token_id":       "7",
		"owner":          sellerHex,
		"quantity":       10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/listings/multi", map[string]any{
		"seller":         sellerHex,
		"asset_contract": collectionHex,
		"token_id":       "7",
		"price":          "100",
		"quantity":       10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	creditBuyer(t, h, "1000")
	rec = doJSON(t, h, http.MethodPost, "/api/purchases/multi", map[string]any{
		"buyer":          buyerHex,
		"asset_contract": collectionHex,
		"token_id":       "7",
		"offered":        "1000",
		"quantity":       10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/listings/1", nil)
	item := decode[map[string]any](t, rec)
	require.Equal(t, true, item["sold"])
	require.Equal(t, "1000", item["total_price"])
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestServer(t, Config{Port: 8080, APIKey: "sekret"})

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.Header.Set("X-API-Key", "sekret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, Config{Port: 8080, CORSOrigins: []string{"https://store.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/listings", nil)
	req.Header.Set("Origin", "https://store.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://store.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/listings", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
