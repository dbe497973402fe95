package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nftbay/nftbay-backend/internal/config"
	"github.com/nftbay/nftbay-backend/internal/market"
	"github.com/nftbay/nftbay-backend/internal/repository"
	"github.com/nftbay/nftbay-backend/internal/store"
	"github.com/nftbay/nftbay-backend/internal/token"
	"github.com/nftbay/nftbay-backend/internal/ws"
	"go.uber.org/zap"
)

type Handler struct {
	engine *market.Engine
	view   *market.StatisticsView
	repo   *repository.Repository // nil when persistence is disabled
	cache  *store.Cache
	wsHub  *ws.Hub
	config *config.Config
	logger *zap.SugaredLogger
}

func NewHandler(
	engine *market.Engine,
	view *market.StatisticsView,
	repo *repository.Repository,
	cache *store.Cache,
	wsHub *ws.Hub,
	config *config.Config,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		engine: engine,
		view:   view,
		repo:   repo,
		cache:  cache,
		wsHub:  wsHub,
		config: config,
		logger: logger,
	}
}

// caller extracts the acting account from the X-User-Address header. Requests
// are trusted at this layer; signature checks belong to the token substrate.
func (h *Handler) caller(r *http.Request) token.Address {
	return token.Address(r.Header.Get("X-User-Address"))
}

func (h *Handler) decimals() int32 {
	return h.config.Market.PaymentDecimals
}

// Listing endpoints

func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	caller := h.caller(r)
	if caller.IsZero() {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "X-User-Address header is required")
		return
	}

	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}
	if req.AssetContract == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "assetContract is required")
		return
	}

	listing, err := h.engine.CreateListing(r.Context(), caller,
		token.Address(req.AssetContract), req.AssetID, req.Price)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, listingDTO(listing, h.decimals()))
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "listing id must be a number")
		return
	}

	var cached ListingDTO
	if h.cache.GetListing(r.Context(), id, &cached) == nil {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	listing, err := h.view.Listing(id)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}

	dto := listingDTO(listing, h.decimals())
	if err := h.cache.SetListing(r.Context(), id, dto); err != nil {
		h.logger.Warnw("Failed to cache listing", "listingId", id, "error", err)
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	status := market.ParseStatus(r.URL.Query().Get("status"))
	seller := r.URL.Query().Get("seller")
	assetContract := r.URL.Query().Get("assetContract")

	var listings []market.Listing
	switch {
	case seller != "":
		listings = h.view.BySeller(token.Address(seller), status)
	case assetContract != "":
		listings = h.view.ByAsset(token.Address(assetContract), status)
	default:
		listings = h.view.All(status)
	}

	out := make([]ListingDTO, 0, len(listings))
	for _, l := range listings {
		out = append(out, listingDTO(l, h.decimals()))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	caller := h.caller(r)
	if caller.IsZero() {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "X-User-Address header is required")
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "listing id must be a number")
		return
	}

	var req UpdateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	if err := h.engine.UpdateListing(r.Context(), caller, id, req.Price); err != nil {
		h.writeMarketError(w, err)
		return
	}

	listing, err := h.view.Listing(id)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listingDTO(listing, h.decimals()))
}

func (h *Handler) RemoveListing(w http.ResponseWriter, r *http.Request) {
	caller := h.caller(r)
	if caller.IsZero() {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "X-User-Address header is required")
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "listing id must be a number")
		return
	}

	if err := h.engine.RemoveListing(r.Context(), caller, id); err != nil {
		h.writeMarketError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) BuyNFT(w http.ResponseWriter, r *http.Request) {
	caller := h.caller(r)
	if caller.IsZero() {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "X-User-Address header is required")
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "listing id must be a number")
		return
	}

	sold, err := h.engine.BuyNFT(r.Context(), caller, id)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, listingDTO(sold, h.decimals()))
}

// Statistics endpoints

func (h *Handler) GetLiveStats(w http.ResponseWriter, r *http.Request) {
	var cached StatsDTO
	if h.cache.GetLiveStats(r.Context(), &cached) == nil && cached.AsOf > 0 {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	dto := statsDTO(h.view.Live(), h.decimals())
	if err := h.cache.SetLiveStats(r.Context(), dto); err != nil {
		h.logger.Warnw("Failed to cache live stats", "error", err)
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetSoldStats(w http.ResponseWriter, r *http.Request) {
	var cached StatsDTO
	if h.cache.GetSoldStats(r.Context(), &cached) == nil && cached.AsOf > 0 {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	dto := statsDTO(h.view.Sold(), h.decimals())
	if err := h.cache.SetSoldStats(r.Context(), dto); err != nil {
		h.logger.Warnw("Failed to cache sold stats", "error", err)
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetRecentSales(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writeError(w, http.StatusServiceUnavailable, "PERSISTENCE_DISABLED", "Sale history requires the database")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sales, err := h.repo.RecentSales(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "QUERY_ERROR", err.Error())
		return
	}
	if sales == nil {
		sales = []repository.Sale{}
	}
	h.writeJSON(w, http.StatusOK, sales)
}

// Admin endpoints

func (h *Handler) GetFeeInfo(w http.ResponseWriter, r *http.Request) {
	fees := h.engine.Fees()
	h.writeJSON(w, http.StatusOK, FeeInfoDTO{
		BasisPoints:    fees.Rate(),
		Accrued:        fees.Accrued(),
		AccruedDisplay: displayAmount(fees.Accrued(), h.decimals()),
	})
}

func (h *Handler) SetFeeRate(w http.ResponseWriter, r *http.Request) {
	caller := h.caller(r)
	if caller.IsZero() {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "X-User-Address header is required")
		return
	}

	var req SetFeeRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	if err := h.engine.SetFeeRate(r.Context(), caller, req.BasisPoints); err != nil {
		h.writeMarketError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, FeeInfoDTO{
		BasisPoints:    h.engine.Fees().Rate(),
		Accrued:        h.engine.Fees().Accrued(),
		AccruedDisplay: displayAmount(h.engine.Fees().Accrued(), h.decimals()),
	})
}

func (h *Handler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	caller := h.caller(r)
	if caller.IsZero() {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "X-User-Address header is required")
		return
	}

	amount, err := h.engine.WithdrawFees(r.Context(), caller)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, WithdrawDTO{
		Amount:        amount,
		AmountDisplay: displayAmount(amount, h.decimals()),
	})
}

// Live updates

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.HandleWebSocket(w, r)
}

// Health endpoints

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", err.Error())
		return
	}
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// writeMarketError maps domain errors onto HTTP statuses and stable codes.
// REENTRANT_CALL means the request lost a race for the engine's single
// settlement guard; clients may retry it.
func (h *Handler) writeMarketError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "LISTING_NOT_FOUND", err.Error())
	case errors.Is(err, market.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, "UNAUTHORIZED", err.Error())
	case errors.Is(err, market.ErrNotActive):
		h.writeError(w, http.StatusConflict, "LISTING_NOT_ACTIVE", err.Error())
	case errors.Is(err, market.ErrInvalidAsset):
		h.writeError(w, http.StatusBadRequest, "INVALID_ASSET", err.Error())
	case errors.Is(err, market.ErrInvalidFeeRate):
		h.writeError(w, http.StatusBadRequest, "INVALID_FEE_RATE", err.Error())
	case errors.Is(err, market.ErrPaymentFailed):
		h.writeError(w, http.StatusPaymentRequired, "PAYMENT_FAILED", err.Error())
	case errors.Is(err, market.ErrCustodyTransferFailed):
		h.writeError(w, http.StatusConflict, "CUSTODY_TRANSFER_FAILED", err.Error())
	case errors.Is(err, market.ErrReentrant):
		h.writeError(w, http.StatusConflict, "REENTRANT_CALL", err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}
