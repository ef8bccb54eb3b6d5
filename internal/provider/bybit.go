package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	appconfig "aggticker/config"
	"aggticker/internal/instrument"
	"aggticker/internal/metrics"
	"aggticker/internal/models"
	"aggticker/internal/symbols"
	"aggticker/logger"
)

// bybitEnvelope mirrors the v5 response wrapper.
type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

type bybitTickerList struct {
	Category string             `json:"category"`
	List     []bybitTickerEntry `json:"list"`
}

type bybitTickerEntry struct {
	Symbol        string `json:"symbol"`
	Bid1Price     string `json:"bid1Price"`
	Bid1Size      string `json:"bid1Size"`
	Bid1Iv        string `json:"bid1Iv"`
	Ask1Price     string `json:"ask1Price"`
	Ask1Size      string `json:"ask1Size"`
	Ask1Iv        string `json:"ask1Iv"`
	IndexPrice    string `json:"indexPrice"`
	UsdIndexPrice string `json:"usdIndexPrice"`
	Delta         string `json:"delta"`
}

// Bybit queries the Bybit v5 market tickers endpoint.
type Bybit struct {
	client *bybit.Client
	log    *logger.Log
}

// NewBybit creates a Bybit provider backed by a pooled HTTP transport.
func NewBybit(cfg appconfig.BybitConfig, timeout time.Duration) *Bybit {
	log := logger.GetLogger()

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
	}
	if cfg.LocalIP != "" {
		if ip := net.ParseIP(cfg.LocalIP); ip != nil {
			dialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}
			transport.DialContext = dialer.DialContext
		}
	}

	base := cfg.URL
	if parsed, err := url.Parse(cfg.URL); err == nil && parsed.Host != "" {
		base = fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	}

	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(base))
	client.HTTPClient = &http.Client{Transport: transport, Timeout: timeout}

	log.WithComponent("bybit_provider").WithFields(logger.Fields{
		"url":     base,
		"timeout": timeout,
	}).Info("bybit provider initialized")

	return &Bybit{client: client, log: log}
}

func (b *Bybit) Name() string { return appconfig.VenueBybit }

// Fetch requests the option chain of the base coin, or every spot ticker.
func (b *Bybit) Fetch(ctx context.Context, currency string, kind instrument.Kind) ([]models.RawTicker, error) {
	log := b.log.WithComponent("bybit_provider").WithFields(logger.Fields{
		"currency":  currency,
		"kind":      kind.String(),
		"operation": "fetch",
	})

	params := map[string]interface{}{"category": "spot"}
	if kind == instrument.KindOption {
		params = map[string]interface{}{
			"category": "option",
			"baseCoin": strings.ToUpper(currency),
		}
	}

	start := time.Now()
	tickers, err := b.fetch(ctx, params)
	duration := time.Since(start)
	metrics.RecordFetch(b.log, b.Name(), duration, err)
	if err != nil {
		log.WithError(err).Warn("bybit fetch failed")
		return nil, err
	}

	logger.LogPerformanceEntry(log, "bybit_provider", "fetch", duration, logger.Fields{"tickers": len(tickers)})
	return tickers, nil
}

func (b *Bybit) fetch(ctx context.Context, params map[string]interface{}) ([]models.RawTicker, error) {
	resp, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("get market tickers: %w", err)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal market tickers: %w", err)
	}
	return decodeBybitTickers(payload)
}

// decodeBybitTickers converts a v5 tickers response into venue-neutral tickers.
func decodeBybitTickers(payload []byte) ([]models.RawTicker, error) {
	var env bybitEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode market tickers: %w", err)
	}
	if env.RetCode != 0 {
		return nil, fmt.Errorf("bybit error %d: %s", env.RetCode, env.RetMsg)
	}

	var list bybitTickerList
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &list); err != nil {
			return nil, fmt.Errorf("decode market tickers result: %w", err)
		}
	}

	tickers := make([]models.RawTicker, 0, len(list.List))
	for _, entry := range list.List {
		ticker, err := entry.ticker(env.Time)
		if err != nil {
			return nil, fmt.Errorf("ticker %s: %w", entry.Symbol, err)
		}
		tickers = append(tickers, ticker)
	}
	return tickers, nil
}

func (e bybitTickerEntry) ticker(timestamp int64) (models.RawTicker, error) {
	var p floatParser
	ticker := models.RawTicker{
		InstrumentName: symbols.Canonical(appconfig.VenueBybit, e.Symbol),
		BestBidPrice:   p.parse("bid1Price", e.Bid1Price),
		BestBidAmount:  p.parse("bid1Size", e.Bid1Size),
		BidIV:          p.parse("bid1Iv", e.Bid1Iv) * 100,
		BestAskPrice:   p.parse("ask1Price", e.Ask1Price),
		BestAskAmount:  p.parse("ask1Size", e.Ask1Size),
		AskIV:          p.parse("ask1Iv", e.Ask1Iv) * 100,
		IndexPrice:     p.parse("indexPrice", e.IndexPrice),
		State:          "open",
		Timestamp:      timestamp,
	}
	if ticker.IndexPrice == 0 {
		ticker.IndexPrice = p.parse("usdIndexPrice", e.UsdIndexPrice)
	}
	if e.Delta != "" {
		delta := p.parse("delta", e.Delta)
		ticker.Greeks = &models.Greeks{Delta: &delta}
	}
	if p.err != nil {
		return models.RawTicker{}, p.err
	}
	return ticker, nil
}

// floatParser keeps the first malformed field. Absent fields read as zero.
type floatParser struct {
	err error
}

func (p *floatParser) parse(field, s string) float64 {
	if s == "" || p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("field %s: %w", field, err)
		return 0
	}
	return v
}
