package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/nftbay/nftbay-backend/internal/config"
	"github.com/nftbay/nftbay-backend/internal/market"
	"github.com/nftbay/nftbay-backend/internal/store"
	"github.com/nftbay/nftbay-backend/internal/token"
	"github.com/nftbay/nftbay-backend/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router   *chi.Mux
	registry *token.AssetRegistry
	ledger   *token.PaymentLedger
	engine   *market.Engine
	hub      *ws.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Env:      "dev",
		HTTPAddr: ":0",
		Market: config.MarketConfig{
			OwnerAddress:    "0xowner",
			EscrowAddress:   "0xmarketplace",
			FeeBasisPoints:  250,
			PaymentDecimals: 9,
		},
		Security: config.SecurityConfig{
			RateLimitRPM:       6000,
			CORSAllowedOrigins: []string{"http://localhost:3000"},
		},
	}

	logger := zap.NewNop().Sugar()
	registry := token.NewAssetRegistry()
	ledger := token.NewPaymentLedger()
	require.NoError(t, registry.Mint("0xcats", 1, "0xalice"))
	require.NoError(t, registry.Mint("0xcats", 2, "0xalice"))
	ledger.Credit("0xbob", 1_000_000)

	listings := market.NewListingStore()
	fees, err := market.NewFeeLedger(cfg.Market.FeeBasisPoints)
	require.NoError(t, err)

	cache := store.NewMemoryCache(logger, nil)
	t.Cleanup(func() { cache.Close() })

	sink := store.NewEventPublisher(cache, logger)
	engine := market.NewEngine(
		token.Address(cfg.Market.OwnerAddress),
		token.Address(cfg.Market.EscrowAddress),
		listings, fees, registry, ledger, sink, logger, nil)
	view := market.NewStatisticsView(listings)

	hub := ws.NewHub(cache, cfg.Security.CORSAllowedOrigins, logger, nil)

	handler := NewHandler(engine, view, nil, cache, hub, cfg, logger)
	router := handler.Routes(NewMiddleware(logger, nil),
		cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	return &testServer{router: router, registry: registry, ledger: ledger, engine: engine, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set("X-User-Address", caller)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *testServer) createListing(t *testing.T, price uint64, assetID uint64) ListingDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/listings", "0xalice", CreateListingRequest{
		AssetContract: "0xcats", AssetID: assetID, Price: price,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ListingDTO](t, rec)
}

func TestCreateListingEndpoint(t *testing.T) {
	s := newTestServer(t)

	dto := s.createListing(t, 10000, 1)
	assert.Equal(t, uint64(1), dto.ID)
	assert.Equal(t, "0xalice", dto.Seller)
	assert.Equal(t, "active", dto.Status)
	assert.Equal(t, uint64(10000), dto.Price)
	assert.Equal(t, "0.00001", dto.PriceDisplay)
}

func TestCreateListingValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/listings", "", CreateListingRequest{AssetContract: "0xcats", AssetID: 1, Price: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_PARAMETER", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/v1/listings", "0xalice", CreateListingRequest{AssetID: 1, Price: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_PARAMETER", decode[ErrorResponse](t, rec).Code)

	// Asset not owned by the caller.
	rec = s.do(t, http.MethodPost, "/v1/listings", "0xbob", CreateListingRequest{AssetContract: "0xcats", AssetID: 1, Price: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CUSTODY_TRANSFER_FAILED", decode[ErrorResponse](t, rec).Code)
}

func TestGetListingEndpoint(t *testing.T) {
	s := newTestServer(t)
	dto := s.createListing(t, 10000, 1)

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/v1/listings/%d", dto.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.ID, decode[ListingDTO](t, rec).ID)

	rec = s.do(t, http.MethodGet, "/v1/listings/999", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "LISTING_NOT_FOUND", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/v1/listings/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListListingsFilters(t *testing.T) {
	s := newTestServer(t)
	s.createListing(t, 100, 1)
	dto := s.createListing(t, 300, 2)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/v1/listings/%d/buy", dto.ID), "0xbob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/listings/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ListingDTO](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/v1/listings/?status=active", "", nil)
	assert.Len(t, decode[[]ListingDTO](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/v1/listings/?seller=0xalice&status=sold", "", nil)
	assert.Len(t, decode[[]ListingDTO](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/v1/listings/?assetContract=0xdogs", "", nil)
	assert.Len(t, decode[[]ListingDTO](t, rec), 0)
}

func TestUpdateListingEndpoint(t *testing.T) {
	s := newTestServer(t)
	dto := s.createListing(t, 10000, 1)

	rec := s.do(t, http.MethodPatch, fmt.Sprintf("/v1/listings/%d", dto.ID), "0xalice", UpdateListingRequest{Price: 20000})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(20000), decode[ListingDTO](t, rec).Price)

	rec = s.do(t, http.MethodPatch, fmt.Sprintf("/v1/listings/%d", dto.ID), "0xbob", UpdateListingRequest{Price: 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[ErrorResponse](t, rec).Code)
}

func TestRemoveListingEndpoint(t *testing.T) {
	s := newTestServer(t)
	dto := s.createListing(t, 10000, 1)

	rec := s.do(t, http.MethodDelete, fmt.Sprintf("/v1/listings/%d", dto.ID), "0xbob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/v1/listings/%d", dto.ID), "0xalice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/v1/listings/%d", dto.ID), "0xalice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "LISTING_NOT_ACTIVE", decode[ErrorResponse](t, rec).Code)
}

func TestBuyNFTEndpoint(t *testing.T) {
	s := newTestServer(t)
	dto := s.createListing(t, 10000, 1)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/v1/listings/%d/buy", dto.ID), "0xbob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sold := decode[ListingDTO](t, rec)
	assert.Equal(t, "sold", sold.Status)
	assert.NotZero(t, sold.ClosedAt)

	// A sold listing cannot be bought again.
	rec = s.do(t, http.MethodPost, fmt.Sprintf("/v1/listings/%d/buy", dto.ID), "0xbob", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "LISTING_NOT_ACTIVE", decode[ErrorResponse](t, rec).Code)
}

func TestBuyNFTInsufficientFunds(t *testing.T) {
	s := newTestServer(t)
	dto := s.createListing(t, 2_000_000, 1)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/v1/listings/%d/buy", dto.ID), "0xbob", nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "PAYMENT_FAILED", decode[ErrorResponse](t, rec).Code)
}

func TestStatsEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.createListing(t, 100, 1)
	dto := s.createListing(t, 300, 2)

	rec := s.do(t, http.MethodGet, "/v1/stats/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	live := decode[StatsDTO](t, rec)
	assert.Equal(t, uint64(400), live.TotalVolume)
	assert.Equal(t, uint64(200), live.AveragePrice)
	assert.Equal(t, uint64(2), live.Count)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/v1/listings/%d/buy", dto.ID), "0xbob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/stats/sold", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sold := decode[StatsDTO](t, rec)
	assert.Equal(t, uint64(300), sold.TotalVolume)
	assert.Equal(t, uint64(1), sold.Count)
}

func TestAdminFeeEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/admin/fees", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint32(250), decode[FeeInfoDTO](t, rec).BasisPoints)

	rec = s.do(t, http.MethodPut, "/v1/admin/fee-rate", "0xalice", SetFeeRateRequest{BasisPoints: 500})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/v1/admin/fee-rate", "0xowner", SetFeeRateRequest{BasisPoints: 10001})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FEE_RATE", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPut, "/v1/admin/fee-rate", "0xowner", SetFeeRateRequest{BasisPoints: 500})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint32(500), decode[FeeInfoDTO](t, rec).BasisPoints)
}

func TestAdminWithdrawEndpoint(t *testing.T) {
	s := newTestServer(t)
	dto := s.createListing(t, 10000, 1)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/v1/listings/%d/buy", dto.ID), "0xbob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/admin/withdraw", "0xbob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/admin/withdraw", "0xowner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	withdrawn := decode[WithdrawDTO](t, rec)
	assert.Equal(t, uint64(250), withdrawn.Amount)

	// Second withdrawal is an empty no-op.
	rec = s.do(t, http.MethodPost, "/v1/admin/withdraw", "0xowner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(0), decode[WithdrawDTO](t, rec).Amount)
}

func TestRecentSalesWithoutDatabase(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/sales/recent", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "PERSISTENCE_DISABLED", decode[ErrorResponse](t, rec).Code)
}

func TestWebSocketEndpointStreamsEvents(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	// The upgrade must succeed through the full middleware chain.
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "websocket handshake failed")
	defer conn.Close()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	// Give the hub a moment to register the client before publishing.
	time.Sleep(100 * time.Millisecond)

	s.createListing(t, 10000, 1)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg ws.Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "update", msg.Type)
	assert.Equal(t, store.ChannelEvents, msg.Topic)

	var ev market.Event
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, market.EventListingCreated, ev.Type)
	assert.Equal(t, uint64(1), ev.ListingID)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())
}
