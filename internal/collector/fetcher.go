package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"MarketStructure/internal/model"
)

// Fetcher loads OHLCV bars from an upstream market data provider.
// Bars are returned ascending by time with from <= t < to.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Bar, error)
	Name() string
}

// newHTTPClient builds a client with an optional proxy.
func newHTTPClient(timeout time.Duration, proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// window keeps bars with from <= t < to.
func window(bars []model.Bar, from, to time.Time) []model.Bar {
	out := bars[:0]
	for _, b := range bars {
		if !b.Time.Before(from) && b.Time.Before(to) {
			out = append(out, b)
		}
	}
	return out
}
