package fyers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"volumetracker/internal/quote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleQuotes = `{
  "s": "ok", "code": 200,
  "d": [
    {"n": "NSE:SBIN-EQ", "s": "ok",
     "v": {"lp": 812.4, "volume": 1203344,
           "depth": {"buy": [{"price": 812.35, "qty": 10}], "sell": [{"price": 812.4, "qty": 4}]}}},
    {"n": "NSE:INFY-EQ", "s": "ok", "v": {"ltp": 1510.05, "volume": 88000}},
    {"n": "NSE:TCS-EQ", "s": "ok", "v": {"lp": 3900, "volume": 500, "bid": 3899.5, "ask": 3900.5}},
    {"n": "NSE:BAD-EQ", "s": "error", "v": {"errmsg": "invalid symbol"}}
  ]
}`

// go test -v --run TestFetchBatch
func TestFetchBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/quotes", r.URL.Path)
		assert.Equal(t, "NSE:SBIN-EQ,NSE:INFY-EQ,NSE:TCS-EQ,NSE:BAD-EQ", r.URL.Query().Get("symbols"))
		assert.Equal(t, "APP-100:tok", r.Header.Get("Authorization"))
		w.Write([]byte(sampleQuotes))
	}))
	defer srv.Close()

	c := NewQuotesClient(srv.URL+"/data/", "APP-100", time.Second)
	got, err := c.FetchBatch(context.Background(),
		[]string{"NSE:SBIN-EQ", "NSE:INFY-EQ", "NSE:TCS-EQ", "NSE:BAD-EQ"}, "tok")
	require.NoError(t, err)
	require.Len(t, got, 3)

	sbin := got["NSE:SBIN-EQ"]
	assert.Equal(t, 812.4, sbin.LastPrice)
	assert.Equal(t, int64(1203344), sbin.CumulativeVolume)
	require.NotNil(t, sbin.BestBid)
	require.NotNil(t, sbin.BestAsk)
	assert.Equal(t, 812.35, *sbin.BestBid)
	assert.Equal(t, 812.4, *sbin.BestAsk)

	infy := got["NSE:INFY-EQ"]
	assert.Equal(t, 1510.05, infy.LastPrice, "ltp is used when lp is missing")
	assert.Nil(t, infy.BestBid)

	tcs := got["NSE:TCS-EQ"]
	require.NotNil(t, tcs.BestAsk)
	assert.Equal(t, 3900.5, *tcs.BestAsk)

	_, ok := got["NSE:BAD-EQ"]
	assert.False(t, ok, "error rows are treated as absent")
}

// go test -v --run TestFetchBatchErrors
func TestFetchBatchErrors(t *testing.T) {
	testCases := []struct {
		desc   string
		status int
		body   string
		want   error
	}{
		{"http 401", http.StatusUnauthorized, `{"s":"error"}`, quote.ErrAuthExpired},
		{"envelope 401", http.StatusOK, `{"s":"error","code":401,"message":"token expired"}`, quote.ErrAuthExpired},
		{"non ok status", http.StatusOK, `{"s":"error","code":500,"message":"internal"}`, quote.ErrFetch},
		{"malformed body", http.StatusOK, `{"s":"ok","d":[`, quote.ErrFetch},
		{"missing rows", http.StatusOK, `{"s":"ok","code":200}`, quote.ErrFetch},
		{"server error page", http.StatusInternalServerError, `oops`, quote.ErrFetch},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewQuotesClient(srv.URL, "APP-100", time.Second)
			_, err := c.FetchBatch(context.Background(), []string{"NSE:SBIN-EQ"}, "tok")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

// go test -v --run TestFetchBatchTimeout
func TestFetchBatchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewQuotesClient(srv.URL, "APP-100", 50*time.Millisecond)
	_, err := c.FetchBatch(context.Background(), []string{"NSE:SBIN-EQ"}, "tok")
	require.Error(t, err)
	assert.True(t, errors.Is(err, quote.ErrFetch))
}
