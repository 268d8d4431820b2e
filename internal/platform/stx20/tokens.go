package stx20

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// DefaultPageSize is the page size used when walking the token list.
const DefaultPageSize = 200

// maxTokenPages bounds pagination when upstream reports an inconsistent
// total.
const maxTokenPages = 10_000

// Client is the REST client for the STX20 token API.
type Client struct {
	rest
	pageSize int
}

// NewClient creates a token API client.
//
// baseURL is the API root, e.g. "https://api.stx20.com/api/v1".
func NewClient(baseURL string, pageSize int, opts ...Option) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{rest: newRest(baseURL, opts), pageSize: pageSize}
}

// GetTokenPage returns one raw page of the token list. Pages are zero-based.
func (c *Client) GetTokenPage(ctx context.Context, page int) (TokenPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(c.pageSize))

	var out TokenPage
	if err := c.doGet(ctx, "token?"+params.Encode(), &out); err != nil {
		return TokenPage{}, fmt.Errorf("stx20: get token page %d: %w", page, err)
	}
	return out, nil
}

// FetchAllTokens walks every token page until the reported total is reached
// or a page comes back empty. Tokens that fail validation are skipped and
// counted in rejected.
func (c *Client) FetchAllTokens(ctx context.Context) (tokens []domain.Token, rejected int, err error) {
	fetched := 0
	for page := 0; page < maxTokenPages; page++ {
		resp, err := c.GetTokenPage(ctx, page)
		if err != nil {
			return nil, 0, err
		}
		if len(resp.Data) == 0 {
			break
		}
		fetched += len(resp.Data)

		for _, raw := range resp.Data {
			t, saturated, err := raw.ToDomain()
			if err != nil {
				rejected++
				c.logger.WarnContext(ctx, "stx20: rejected token",
					slog.String("ticker", raw.Ticker),
					slog.String("error", err.Error()),
				)
				continue
			}
			c.noteSaturated(ctx, "token", t.Ticker, saturated)
			tokens = append(tokens, t)
		}

		if fetched >= resp.Total {
			break
		}
	}
	return tokens, rejected, nil
}

// GetToken returns a single token by ticker. It returns domain.ErrNotFound
// when upstream does not know the ticker.
func (c *Client) GetToken(ctx context.Context, ticker string) (domain.Token, error) {
	var out TokenDetail
	if err := c.doGet(ctx, "token/"+url.PathEscape(ticker), &out); err != nil {
		return domain.Token{}, fmt.Errorf("stx20: get token %s: %w", ticker, err)
	}
	if len(out.Data) == 0 {
		return domain.Token{}, fmt.Errorf("stx20: get token %s: %w: %s", ticker, domain.ErrNotFound, out.Message)
	}
	t, saturated, err := out.Data[0].ToDomain()
	if err != nil {
		return domain.Token{}, fmt.Errorf("stx20: get token %s: %w", ticker, err)
	}
	c.noteSaturated(ctx, "token", t.Ticker, saturated)
	return t, nil
}

// GetBalances returns every STX20 balance held by address.
func (c *Client) GetBalances(ctx context.Context, address string) ([]domain.Balance, error) {
	var out BalanceResponse
	if err := c.doGet(ctx, "balance/"+url.PathEscape(address), &out); err != nil {
		return nil, fmt.Errorf("stx20: get balances %s: %w", address, err)
	}

	balances := make([]domain.Balance, 0, len(out.Balances))
	for _, raw := range out.Balances {
		b, saturated, err := raw.ToDomain(address)
		if err != nil {
			c.logger.WarnContext(ctx, "stx20: rejected balance",
				slog.String("address", address),
				slog.String("error", err.Error()),
			)
			continue
		}
		if saturated {
			c.noteSaturated(ctx, "balance", address+"/"+b.Ticker, []string{"balance"})
		}
		balances = append(balances, b)
	}
	return balances, nil
}
