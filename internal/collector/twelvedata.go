package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"MarketStructure/internal/model"
)

const twelveDataBaseURL = "https://api.twelvedata.com"

var twelveDataIntervals = map[model.Timeframe]string{
	model.TF1m:  "1min",
	model.TF5m:  "5min",
	model.TF15m: "15min",
	model.TF30m: "30min",
	model.TF1h:  "1h",
	model.TF1d:  "1day",
}

// TwelveDataFetcher implements Fetcher using the Twelve Data time_series endpoint.
type TwelveDataFetcher struct {
	BaseURL  string
	APIKey   string
	Timezone string
	Client   *http.Client
}

// NewTwelveDataFetcher creates a fetcher with optional proxy support.
func NewTwelveDataFetcher(baseURL, apiKey, timezone, proxyURL string, timeout time.Duration) *TwelveDataFetcher {
	if baseURL == "" {
		baseURL = twelveDataBaseURL
	}
	if timezone == "" {
		timezone = "America/New_York"
	}
	return &TwelveDataFetcher{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Timezone: timezone,
		Client:   newHTTPClient(timeout, proxyURL),
	}
}

func (f *TwelveDataFetcher) Name() string { return "twelvedata" }

// tdValue is one bar as Twelve Data encodes it: every number is a string.
type tdValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

func (f *TwelveDataFetcher) FetchBars(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Bar, error) {
	interval, ok := twelveDataIntervals[tf]
	if !ok {
		return nil, fmt.Errorf("twelvedata: unsupported timeframe %q", tf)
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return nil, fmt.Errorf("twelvedata timezone: %w", err)
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("start_date", from.In(loc).Format("2006-01-02 15:04:05"))
	q.Set("end_date", to.In(loc).Format("2006-01-02 15:04:05"))
	q.Set("timezone", f.Timezone)
	q.Set("order", "ASC")
	q.Set("outputsize", "5000")
	q.Set("apikey", f.APIKey)
	endpoint := fmt.Sprintf("%s/time_series?%s", f.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twelvedata fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("twelvedata read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twelvedata: status %d, body: %s", resp.StatusCode, string(body))
	}

	// errors arrive as 200 with {"status":"error","code":...,"message":...}
	if gjson.GetBytes(body, "status").String() == "error" {
		code := gjson.GetBytes(body, "code").Int()
		msg := gjson.GetBytes(body, "message").String()
		if code == 400 || code == 404 {
			return nil, &model.AnalysisError{Kind: model.KindInvalidSymbol, Scope: symbol, Msg: msg}
		}
		return nil, fmt.Errorf("twelvedata api error %d: %s", code, msg)
	}

	raw := gjson.GetBytes(body, "values")
	if !raw.Exists() {
		return nil, fmt.Errorf("twelvedata: no values returned")
	}
	var values []tdValue
	if err := json.Unmarshal([]byte(raw.Raw), &values); err != nil {
		return nil, fmt.Errorf("twelvedata decode: %w", err)
	}

	layout := "2006-01-02 15:04:05"
	if tf == model.TF1d {
		layout = "2006-01-02"
	}
	bars := make([]model.Bar, 0, len(values))
	for _, v := range values {
		ts, err := time.ParseInLocation(layout, v.Datetime, loc)
		if err != nil {
			return nil, fmt.Errorf("twelvedata datetime %q: %w", v.Datetime, err)
		}
		bar := model.Bar{Time: ts, Timeframe: tf}
		for _, fld := range []struct {
			dst *float64
			src string
		}{{&bar.Open, v.Open}, {&bar.High, v.High}, {&bar.Low, v.Low}, {&bar.Close, v.Close}, {&bar.Volume, v.Volume}} {
			if fld.src == "" {
				continue
			}
			n, err := strconv.ParseFloat(fld.src, 64)
			if err != nil {
				return nil, fmt.Errorf("twelvedata number %q: %w", fld.src, err)
			}
			*fld.dst = n
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return window(bars, from, to), nil
}
