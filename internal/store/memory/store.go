// Package memory is an in-process implementation of the store interfaces.
// It backs the orchestrator tests and the database-less "dry" run.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

type state struct {
	tokens    map[string]domain.Token
	listings  map[string]domain.Listing
	priceData map[string]domain.PriceData
	balances  map[string]map[string]domain.Balance // address -> ticker
}

func newState() *state {
	return &state{
		tokens:    make(map[string]domain.Token),
		listings:  make(map[string]domain.Listing),
		priceData: make(map[string]domain.PriceData),
		balances:  make(map[string]map[string]domain.Balance),
	}
}

func (s *state) clone() *state {
	c := &state{
		tokens:    make(map[string]domain.Token, len(s.tokens)),
		listings:  make(map[string]domain.Listing, len(s.listings)),
		priceData: s.priceData,
		balances:  s.balances,
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	return c
}

// Store keeps all rows in maps guarded by one RWMutex. Transactions work on
// a copy that replaces the live state only on success.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

var (
	_ domain.SyncStore      = (*Store)(nil)
	_ domain.PriceDataStore = (*Store)(nil)
	_ domain.BalanceStore   = (*Store)(nil)
)

// ---- tokens ----

func (s *Store) ListTokens(_ context.Context) ([]domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedTokens(s.st.tokens), nil
}

func (s *Store) ListTokensPage(ctx context.Context, opts domain.ListOpts) ([]domain.Token, error) {
	all, _ := s.ListTokens(ctx)
	return page(all, opts), nil
}

func (s *Store) GetToken(_ context.Context, ticker string) (domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.st.tokens[ticker]
	if !ok {
		return domain.Token{}, fmt.Errorf("memory: token %s: %w", ticker, domain.ErrNotFound)
	}
	return t, nil
}

// DeleteToken removes a token and its listings.
func (s *Store) DeleteToken(_ context.Context, ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.tokens[ticker]; !ok {
		return fmt.Errorf("memory: token %s: %w", ticker, domain.ErrNotFound)
	}
	delete(s.st.tokens, ticker)
	for id, l := range s.st.listings {
		if l.Ticker == ticker {
			delete(s.st.listings, id)
		}
	}
	return nil
}

func (s *Store) CountTokens(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.st.tokens)), nil
}

// ---- listings ----

func (s *Store) ListListings(_ context.Context) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedListings(s.st.listings, ""), nil
}

// ListListingsByTicker returns a ticker's listings, cheapest first.
func (s *Store) ListListingsByTicker(_ context.Context, ticker string, opts domain.ListOpts) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := sortedListings(s.st.listings, ticker)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriceRate < out[j].PriceRate })
	return page(out, opts), nil
}

func (s *Store) GetListing(_ context.Context, id string) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.st.listings[id]
	if !ok {
		return domain.Listing{}, fmt.Errorf("memory: listing %s: %w", id, domain.ErrNotFound)
	}
	return l, nil
}

// ---- transactions ----

// WithTx runs fn against a private copy of the tokens and listings and
// publishes the copy only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.SyncTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &syncTx{st: s.st.clone(), now: s.now()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory: commit: %w", err)
	}
	s.st = tx.st
	return nil
}

type syncTx struct {
	st  *state
	now time.Time
}

func (t *syncTx) CreateTokens(_ context.Context, tokens []domain.Token) (int64, error) {
	var n int64
	for _, tok := range tokens {
		if _, ok := t.st.tokens[tok.Ticker]; ok {
			continue
		}
		tok.UpdatedAt = t.now
		t.st.tokens[tok.Ticker] = tok
		n++
	}
	return n, nil
}

func (t *syncTx) UpdateTokenSupply(_ context.Context, tok domain.Token) error {
	cur, ok := t.st.tokens[tok.Ticker]
	if !ok {
		return fmt.Errorf("memory: token %s: %w", tok.Ticker, domain.ErrNotFound)
	}
	cur.SupplyLeftToMint = tok.SupplyLeftToMint
	cur.PercentMinted = tok.PercentMinted
	cur.UpdatedAt = t.now
	t.st.tokens[tok.Ticker] = cur
	return nil
}

func (t *syncTx) DeleteListings(_ context.Context, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := t.st.listings[id]; ok {
			delete(t.st.listings, id)
			n++
		}
	}
	return n, nil
}

func (t *syncTx) CreateListings(_ context.Context, listings []domain.Listing) (int64, error) {
	var n int64
	for _, l := range listings {
		if _, ok := t.st.listings[l.ID]; ok {
			continue
		}
		if _, ok := t.st.tokens[l.Ticker]; !ok {
			return n, fmt.Errorf("memory: listing %s references missing token %s", l.ID, l.Ticker)
		}
		t.st.listings[l.ID] = l
		n++
	}
	return n, nil
}

func (t *syncTx) UpdateListing(_ context.Context, l domain.Listing) error {
	if _, ok := t.st.listings[l.ID]; !ok {
		return fmt.Errorf("memory: listing %s: %w", l.ID, domain.ErrNotFound)
	}
	t.st.listings[l.ID] = l
	return nil
}

func (t *syncTx) UpdateTokenPricing(_ context.Context, ticker string, p domain.TokenPricing) error {
	cur, ok := t.st.tokens[ticker]
	if !ok {
		return fmt.Errorf("memory: token %s: %w", ticker, domain.ErrNotFound)
	}
	floor := p.Floor
	cur.Floor = &floor
	cur.ActiveListings = p.ActiveListings
	cur.History = p.History
	cur.UpdatedAt = t.now
	t.st.tokens[ticker] = cur
	return nil
}

// ---- price data ----

func (s *Store) UpsertPriceData(_ context.Context, data []domain.PriceData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range data {
		s.st.priceData[d.Ticker] = d
	}
	return nil
}

func (s *Store) GetPriceData(_ context.Context, ticker string) (domain.PriceData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.st.priceData[ticker]
	if !ok {
		return domain.PriceData{}, fmt.Errorf("memory: price data %s: %w", ticker, domain.ErrNotFound)
	}
	return d, nil
}

func (s *Store) ListPriceDataTickers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.st.priceData))
	for t := range s.st.priceData {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// ---- balances ----

func (s *Store) UpsertBalances(_ context.Context, balances []domain.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range balances {
		byTicker, ok := s.st.balances[b.Address]
		if !ok {
			byTicker = make(map[string]domain.Balance)
			s.st.balances[b.Address] = byTicker
		}
		byTicker[b.Ticker] = b
	}
	return nil
}

func (s *Store) ListBalances(_ context.Context, address string) ([]domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Balance, 0, len(s.st.balances[address]))
	for _, b := range s.st.balances[address] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func sortedTokens(m map[string]domain.Token) []domain.Token {
	out := make([]domain.Token, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

func sortedListings(m map[string]domain.Listing, ticker string) []domain.Listing {
	out := make([]domain.Listing, 0, len(m))
	for _, l := range m {
		if ticker == "" || l.Ticker == ticker {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func page[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return []T{}
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}
