/*
This file quotes spot prices from the CryptoCompare API.

Feed ids take the form "FROM:TO", e.g. "ATOM:USD". The API reports no publish time, so quotes are
stamped with the fetch time and carry a zero confidence interval.
*/

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/banana-dao/banana-vaults/internal/types"
)

const (
	CRYPTOCOMPARE_BASE_URL = "https://min-api.cryptocompare.com/data/price"
	TIMEOUT_SECONDS        = 30
)

var (
	ErrAPIConfiguration = errors.New("API configuration error")

	cryptoCompareFeedPattern = regexp.MustCompile(`^[A-Z0-9]{2,12}:[A-Z0-9]{2,12}$`)
)

// CryptoCompareSource quotes the single-symbol price endpoint.
type CryptoCompareSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	retrier *Retrier
	shifts  map[string]int32
	now     func() time.Time
}

// NewCryptoCompareSource creates a source. An empty baseURL selects the public endpoint.
func NewCryptoCompareSource(baseURL, apiKey string, retrier *Retrier, shifts map[string]int32) (*CryptoCompareSource, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: CRYPTOCOMPARE_API key is required", ErrAPIConfiguration)
	}
	if baseURL == "" {
		baseURL = CRYPTOCOMPARE_BASE_URL
	}
	if retrier == nil {
		retrier = NewRetrier()
	}
	if shifts == nil {
		shifts = map[string]int32{}
	}
	return &CryptoCompareSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: TIMEOUT_SECONDS * time.Second},
		retrier: retrier,
		shifts:  shifts,
		now:     time.Now,
	}, nil
}

// Quote implements PriceSource.
func (c *CryptoCompareSource) Quote(ctx context.Context, feedID string) (types.PriceQuote, error) {
	from, to, ok := strings.Cut(feedID, ":")
	if !ok {
		return types.PriceQuote{}, fmt.Errorf("%w: feed %q is not FROM:TO", ErrInvalidQuote, feedID)
	}

	raw, err := DoWithData(c.retrier, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return c.fetch(ctx, from, to)
	})
	if err != nil {
		oracleLogger.Warn().Err(err).Str("feed", feedID).Msg("CryptoCompare price request failed")
		if errors.Is(err, ErrNoQuote) {
			return types.PriceQuote{}, err
		}
		return types.PriceQuote{}, fmt.Errorf("%w: cryptocompare %s: %w", ErrSourceFailure, feedID, err)
	}

	price, err := NormalizePrice(raw, c.shifts[feedID])
	if err != nil {
		return types.PriceQuote{}, err
	}
	return types.PriceQuote{
		FeedID:      feedID,
		Price:       price,
		Confidence:  sdkmath.LegacyZeroDec(),
		PublishTime: c.now(),
	}, nil
}

func (c *CryptoCompareSource) fetch(ctx context.Context, from, to string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("fsym", from)
	query.Set("tsyms", to)
	query.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("API returned status %d for %s", resp.StatusCode, from)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to read response body: %w", err)
	}

	// Errors come back as 200 with {"Response":"Error","Message":...}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", ErrInvalidQuote, err)
	}
	if msg, ok := payload["Message"]; ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrNoQuote, string(msg))
	}
	value, ok := payload[to]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s:%s", ErrNoQuote, from, to)
	}
	return decimal.NewFromString(string(value))
}

// ValidFeed implements FeedValidator.
func (c *CryptoCompareSource) ValidFeed(feedID string) bool {
	return cryptoCompareFeedPattern.MatchString(feedID)
}
