package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// PriceSource returns the latest cached reference price of an asset.
type PriceSource interface {
	GetPrice(ctx context.Context, assetID string) (float64, time.Time, error)
}

// PriceHandler serves the BTC and STX reference prices used for conversion.
type PriceHandler struct {
	cache    PriceSource
	ctrl     SyncController
	btcAsset string
	stxAsset string
	logger   *slog.Logger
}

// NewPriceHandler reads from cache when set, otherwise from the last
// committed cycle of ctrl.
func NewPriceHandler(cache PriceSource, ctrl SyncController, btcAsset, stxAsset string, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{cache: cache, ctrl: ctrl, btcAsset: btcAsset, stxAsset: stxAsset, logger: logger}
}

// GetReferencePrices returns the BTC/USD and STX/USD prices.
// GET /api/prices/reference
func (h *PriceHandler) GetReferencePrices(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		prices, err := h.fromCache(r.Context())
		if err == nil {
			writeJSON(w, http.StatusOK, prices)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "handler: read cached prices failed", slog.String("error", err.Error()))
		}
	}

	if h.ctrl != nil {
		if st := h.ctrl.Status(); st.LastReport != nil {
			writeJSON(w, http.StatusOK, st.LastReport.Prices)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no reference prices available yet")
}

func (h *PriceHandler) fromCache(ctx context.Context) (domain.ReferencePrices, error) {
	btc, btcAt, err := h.cache.GetPrice(ctx, h.btcAsset)
	if err != nil {
		return domain.ReferencePrices{}, err
	}
	stx, stxAt, err := h.cache.GetPrice(ctx, h.stxAsset)
	if err != nil {
		return domain.ReferencePrices{}, err
	}
	at := btcAt
	if stxAt.Before(at) {
		at = stxAt
	}
	return domain.ReferencePrices{BtcUsd: btc, StxUsd: stx, FetchedAt: at}, nil
}
