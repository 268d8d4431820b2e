// Package coincap is a REST client for the CoinCap asset price feed, used to
// fetch the BTC and STX reference prices of each sync cycle.
package coincap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// Client fetches asset prices in USD.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a CoinCap client.
//
// baseURL is the API root, e.g. "https://api.coincap.io/v2". apiKey may be
// empty for keyless access.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type assetResponse struct {
	Data struct {
		ID       string `json:"id"`
		Symbol   string `json:"symbol"`
		PriceUsd string `json:"priceUsd"`
	} `json:"data"`
	Timestamp int64 `json:"timestamp"`
}

// GetPriceUsd returns the current USD price of an asset such as "bitcoin".
func (c *Client) GetPriceUsd(ctx context.Context, assetID string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/assets/"+url.PathEscape(assetID), nil)
	if err != nil {
		return 0, fmt.Errorf("coincap: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coincap: get %s: %w", assetID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("coincap: read %s: %w", assetID, err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return 0, fmt.Errorf("coincap: get %s: %w", assetID, err)
	}

	var out assetResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("coincap: decode %s: %w", assetID, err)
	}
	price, err := strconv.ParseFloat(out.Data.PriceUsd, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("coincap: %w: %s priceUsd %q", domain.ErrInvalidRecord, assetID, out.Data.PriceUsd)
	}
	return price, nil
}

// GetReferencePrices fetches the BTC and STX prices concurrently.
func (c *Client) GetReferencePrices(ctx context.Context, btcAsset, stxAsset string) (domain.ReferencePrices, error) {
	var ref domain.ReferencePrices
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.GetPriceUsd(gctx, btcAsset)
		ref.BtcUsd = p
		return err
	})
	g.Go(func() error {
		p, err := c.GetPriceUsd(gctx, stxAsset)
		ref.StxUsd = p
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ReferencePrices{}, err
	}
	ref.FetchedAt = time.Now().UTC()
	return ref, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
