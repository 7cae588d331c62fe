package fyers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"volumetracker/internal/quote"

	"github.com/tidwall/gjson"
)

// QuotesClient fetches batched quotes from the data API.
type QuotesClient struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
}

func NewQuotesClient(baseURL, clientID string, timeout time.Duration) *QuotesClient {
	return &QuotesClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchBatch issues exactly one quotes request for symbols. Symbols missing
// from the response, or reported with a per-row error, are absent from the
// result. A rejected token yields quote.ErrAuthExpired; every other failure
// yields quote.ErrFetch.
func (c *QuotesClient) FetchBatch(ctx context.Context, symbols []string, token string) (map[string]quote.RawObservation, error) {
	endpoint := c.baseURL + quotesPath + "?symbols=" + url.QueryEscape(strings.Join(symbols, ","))

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", quote.ErrFetch, err)
	}
	req.Header.Set("Authorization", c.clientID+":"+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: making request: %v", quote.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: http 401", quote.ErrAuthExpired)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", quote.ErrFetch, err)
	}
	if resp.StatusCode != http.StatusOK && gjson.GetBytes(body, pathCode).Int() != codeUnauthorized {
		return nil, fmt.Errorf("%w: http %d: %s", quote.ErrFetch, resp.StatusCode, body)
	}

	return ParseQuotes(body)
}

// ParseQuotes decodes a quotes envelope.
func ParseQuotes(body []byte) (map[string]quote.RawObservation, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed response", quote.ErrFetch)
	}
	res := gjson.ParseBytes(body)

	if res.Get(pathCode).Int() == codeUnauthorized {
		return nil, fmt.Errorf("%w: %s", quote.ErrAuthExpired, res.Get(pathMsg).Str)
	}
	if res.Get(pathStatus).Str != statusOK {
		return nil, fmt.Errorf("%w: status %q: %s", quote.ErrFetch, res.Get(pathStatus).Str, res.Get(pathMsg).Str)
	}

	rows := res.Get(pathRows)
	if !rows.IsArray() {
		return nil, fmt.Errorf("%w: missing data rows", quote.ErrFetch)
	}

	out := make(map[string]quote.RawObservation)
	for _, row := range rows.Array() {
		name := row.Get(rowName).Str
		if name == "" || row.Get(rowStatus).Str == statusError {
			continue
		}
		out[name] = parseRow(row)
	}
	return out, nil
}

func parseRow(row gjson.Result) quote.RawObservation {
	price := row.Get(valLastPrice).Float()
	if price == 0 {
		price = row.Get(valLastPriceAlt).Float()
	}

	obs := quote.RawObservation{
		LastPrice:        max(price, 0),
		CumulativeVolume: max(row.Get(valVolume).Int(), 0),
	}

	bid, ask := row.Get(valDepthBid), row.Get(valDepthAsk)
	if !bid.Exists() || !ask.Exists() {
		bid, ask = row.Get(valBid), row.Get(valAsk)
	}
	if bid.Exists() && ask.Exists() && bid.Float() > 0 && ask.Float() > 0 {
		b, a := bid.Float(), ask.Float()
		obs.BestBid, obs.BestAsk = &b, &a
	}
	return obs
}
