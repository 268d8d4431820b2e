package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// BalanceReader reads per-address balances.
type BalanceReader interface {
	ListBalances(ctx context.Context, address string) ([]domain.Balance, error)
}

// BalanceHandler serves address balances.
type BalanceHandler struct {
	balances BalanceReader
	logger   *slog.Logger
}

func NewBalanceHandler(balances BalanceReader, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{balances: balances, logger: logger}
}

// ListBalances returns every known balance of an address. An unknown
// address yields an empty list.
// GET /api/balances/{address}
func (h *BalanceHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")

	balances, err := h.balances.ListBalances(r.Context(), address)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list balances failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list balances")
		return
	}

	views := make([]balanceView, 0, len(balances))
	for _, b := range balances {
		views = append(views, balanceView{
			Address:    b.Address,
			Ticker:     b.Ticker,
			Balance:    b.Amount,
			UpdateDate: timePtr(b.UpdatedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address, "data": views})
}
