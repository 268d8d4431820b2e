package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// TokenReader is the read side of the token store used by the facade.
type TokenReader interface {
	ListTokensPage(ctx context.Context, opts domain.ListOpts) ([]domain.Token, error)
	CountTokens(ctx context.Context) (int64, error)
	GetToken(ctx context.Context, ticker string) (domain.Token, error)
}

// ListingReader is the read side of the listing store.
type ListingReader interface {
	ListListingsByTicker(ctx context.Context, ticker string, opts domain.ListOpts) ([]domain.Listing, error)
	GetListing(ctx context.Context, id string) (domain.Listing, error)
}

// PriceDataReader reads marketplace price statistics.
type PriceDataReader interface {
	GetPriceData(ctx context.Context, ticker string) (domain.PriceData, error)
}

// TokenHandler serves tokens, their listings and their price data.
type TokenHandler struct {
	tokens    TokenReader
	listings  ListingReader
	priceData PriceDataReader
	logger    *slog.Logger
}

// NewTokenHandler creates a TokenHandler. priceData may be nil when the
// price data sync is disabled.
func NewTokenHandler(tokens TokenReader, listings ListingReader, priceData PriceDataReader, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		tokens:    tokens,
		listings:  listings,
		priceData: priceData,
		logger:    logger,
	}
}

// ListTokens returns tokens ordered by ticker.
// GET /api/tokens?limit=50&offset=0
func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	tokens, err := h.tokens.ListTokensPage(r.Context(), opts)
	if err != nil {
		h.internalError(w, r, "list tokens", err)
		return
	}
	total, err := h.tokens.CountTokens(r.Context())
	if err != nil {
		h.internalError(w, r, "count tokens", err)
		return
	}

	views := make([]tokenView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, newTokenView(t))
	}
	writeJSON(w, http.StatusOK, listResponse[tokenView]{
		Data:   views,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetToken returns one token.
// GET /api/tokens/{ticker}
func (h *TokenHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")

	token, err := h.tokens.GetToken(r.Context(), ticker)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not found")
			return
		}
		h.internalError(w, r, "get token", err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenView(token))
}

// ListTokenListings returns a token's listings, cheapest first.
// GET /api/tokens/{ticker}/listings?limit=50&offset=0
func (h *TokenHandler) ListTokenListings(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	opts := parseListOpts(r)

	if _, err := h.tokens.GetToken(r.Context(), ticker); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not found")
			return
		}
		h.internalError(w, r, "get token", err)
		return
	}

	listings, err := h.listings.ListListingsByTicker(r.Context(), ticker, opts)
	if err != nil {
		h.internalError(w, r, "list listings", err)
		return
	}

	views := make([]listingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, newListingView(l))
	}
	writeJSON(w, http.StatusOK, listResponse[listingView]{
		Data:   views,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetTokenPriceData returns the marketplace price statistics of a token.
// GET /api/tokens/{ticker}/price-data
func (h *TokenHandler) GetTokenPriceData(w http.ResponseWriter, r *http.Request) {
	if h.priceData == nil {
		writeError(w, http.StatusNotFound, "price data is not enabled")
		return
	}
	ticker := r.PathValue("ticker")

	data, err := h.priceData.GetPriceData(r.Context(), ticker)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "price data not found")
			return
		}
		h.internalError(w, r, "get price data", err)
		return
	}
	writeJSON(w, http.StatusOK, newPriceDataView(data))
}

// GetListing returns one listing by marketplace id.
// GET /api/listings/{id}
func (h *TokenHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	listing, err := h.listings.GetListing(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		h.internalError(w, r, "get listing", err)
		return
	}
	writeJSON(w, http.StatusOK, newListingView(listing))
}

func (h *TokenHandler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}
