package reconcile

import "github.com/alanyoungcy/stx20sync/internal/domain"

// TokenPlan lists the token rows to insert and the rows whose remaining
// mintable supply changed.
type TokenPlan struct {
	Create []domain.Token
	Update []domain.Token
}

// Tokens diffs remote tokens against local ones by ticker. New tickers are
// always created; known tickers are updated only when SupplyLeftToMint moved.
// Tokens that exist only locally are left alone.
func Tokens(remote, local []domain.Token) TokenPlan {
	localByTicker := make(map[string]domain.Token, len(local))
	for _, t := range local {
		localByTicker[t.Ticker] = t
	}

	var plan TokenPlan
	for _, r := range dedupTokens(remote) {
		stored, ok := localByTicker[r.Ticker]
		switch {
		case !ok:
			plan.Create = append(plan.Create, r)
		case stored.SupplyLeftToMint != r.SupplyLeftToMint:
			plan.Update = append(plan.Update, r)
		}
	}
	return plan
}

// dedupTokens keeps the last occurrence of every ticker, in first-seen order.
func dedupTokens(in []domain.Token) []domain.Token {
	idx := make(map[string]int, len(in))
	out := make([]domain.Token, 0, len(in))
	for _, t := range in {
		if i, ok := idx[t.Ticker]; ok {
			out[i] = t
			continue
		}
		idx[t.Ticker] = len(out)
		out = append(out, t)
	}
	return out
}
