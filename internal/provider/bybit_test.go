package provider

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	appconfig "aggticker/config"
	"aggticker/internal/instrument"
)

func TestDecodeBybitTickersOption(t *testing.T) {
	payload := []byte(`{
		"retCode": 0,
		"retMsg": "SUCCESS",
		"result": {
			"category": "option",
			"list": [{
				"symbol": "BTC-27DEC24-68000-C-USDT",
				"bid1Price": "105",
				"bid1Size": "1.5",
				"bid1Iv": "0.5",
				"ask1Price": "108.125",
				"ask1Size": "2",
				"ask1Iv": "0.51",
				"indexPrice": "67123.456",
				"delta": "0.5"
			}]
		},
		"time": 1700000000000
	}`)

	tickers, err := decodeBybitTickers(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tickers) != 1 {
		t.Fatalf("expected 1 ticker, got %d", len(tickers))
	}
	got := tickers[0]
	if got.InstrumentName != "BTC-27DEC24-68000-C" {
		t.Fatalf("unexpected instrument name %q", got.InstrumentName)
	}
	if got.BestBidPrice != 105 || got.BestAskPrice != 108.125 || got.BestAskAmount != 2 {
		t.Fatalf("unexpected prices: %+v", got)
	}
	if math.Abs(got.BidIV-50) > 1e-9 || math.Abs(got.AskIV-51) > 1e-9 {
		t.Fatalf("expected implied vols in percent, got %v/%v", got.BidIV, got.AskIV)
	}
	if got.State != "open" || got.Timestamp != 1700000000000 {
		t.Fatalf("unexpected state or timestamp: %q %d", got.State, got.Timestamp)
	}
	if got.Delta() != 0.5 {
		t.Fatalf("unexpected delta %v", got.Delta())
	}
}

func TestDecodeBybitTickersSpot(t *testing.T) {
	payload := []byte(`{"retCode":0,"retMsg":"OK","result":{"category":"spot","list":[
		{"symbol":"BTCUSDT","bid1Price":"67000.1","bid1Size":"0.3","ask1Price":"67000.2","ask1Size":"0.1","usdIndexPrice":"67000.15"}
	]},"time":1700000000001}`)

	tickers, err := decodeBybitTickers(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := tickers[0]
	if got.InstrumentName != "BTC_USDT" {
		t.Fatalf("unexpected instrument name %q", got.InstrumentName)
	}
	if got.IndexPrice != 67000.15 {
		t.Fatalf("expected usd index price fallback, got %v", got.IndexPrice)
	}
	if got.Greeks != nil {
		t.Fatalf("spot ticker should carry no greeks")
	}
}

func TestDecodeBybitTickersError(t *testing.T) {
	_, err := decodeBybitTickers([]byte(`{"retCode":10001,"retMsg":"params error","result":{},"time":1}`))
	if err == nil {
		t.Fatal("expected error for non-zero retCode")
	}
	if err.Error() != "bybit error 10001: params error" {
		t.Fatalf("unexpected error %q", err.Error())
	}
}

func TestDecodeBybitTickersMalformedNumber(t *testing.T) {
	payload := []byte(`{"retCode":0,"retMsg":"OK","result":{"category":"option","list":[
		{"symbol":"BTC-27DEC24-68000-C","bid1Price":"105","bid1Size":"1","ask1Price":"1,08e2","ask1Size":"2"}
	]},"time":1}`)

	_, err := decodeBybitTickers(payload)
	if err == nil {
		t.Fatal("expected error for malformed ask price")
	}
	if !strings.Contains(err.Error(), "ticker BTC-27DEC24-68000-C: field ask1Price") {
		t.Fatalf("unexpected error %q", err.Error())
	}
}

func newBybitServer(t *testing.T, queries chan<- url.Values) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v5/market/tickers" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		queries <- r.URL.Query()

		symbol := "BTCUSDT"
		if r.URL.Query().Get("category") == "option" {
			symbol = "BTC-27DEC24-68000-C-USDT"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"retCode":0,"retMsg":"SUCCESS","result":{"category":%q,"list":[
			{"symbol":%q,"bid1Price":"105","bid1Size":"1.5","bid1Iv":"0.5","ask1Price":"108","ask1Size":"2","ask1Iv":"0.51","indexPrice":"67123.456","delta":"0.5"}
		]},"retExtInfo":{},"time":1700000000000}`, r.URL.Query().Get("category"), symbol)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBybitFetchOptionChain(t *testing.T) {
	queries := make(chan url.Values, 1)
	srv := newBybitServer(t, queries)

	b := NewBybit(appconfig.BybitConfig{URL: srv.URL + "/v5"}, time.Second)
	tickers, err := b.Fetch(context.Background(), "btc", instrument.KindOption)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := <-queries
	if q.Get("category") != "option" || q.Get("baseCoin") != "BTC" {
		t.Fatalf("unexpected query %v", q)
	}
	if len(tickers) != 1 {
		t.Fatalf("expected 1 ticker, got %d", len(tickers))
	}
	got := tickers[0]
	if got.InstrumentName != "BTC-27DEC24-68000-C" || got.Timestamp != 1700000000000 {
		t.Fatalf("unexpected ticker %+v", got)
	}
	if got.BestBidPrice != 105 || got.BestAskPrice != 108 || math.Abs(got.BidIV-50) > 1e-9 {
		t.Fatalf("unexpected quote %+v", got)
	}
}

func TestBybitFetchSpot(t *testing.T) {
	queries := make(chan url.Values, 1)
	srv := newBybitServer(t, queries)

	tickers, err := NewBybit(appconfig.BybitConfig{URL: srv.URL}, time.Second).Fetch(context.Background(), "BTC", instrument.KindSpot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := <-queries
	if q.Get("category") != "spot" || q.Has("baseCoin") {
		t.Fatalf("unexpected query %v", q)
	}
	if len(tickers) != 1 || tickers[0].InstrumentName != "BTC_USDT" {
		t.Fatalf("unexpected tickers %+v", tickers)
	}
}

func TestBybitFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":10001,"retMsg":"params error","result":{},"time":1}`)
	}))
	t.Cleanup(srv.Close)

	_, err := NewBybit(appconfig.BybitConfig{URL: srv.URL}, time.Second).Fetch(context.Background(), "BTC", instrument.KindOption)
	if err == nil {
		t.Fatal("expected venue error for non-zero retCode")
	}
}
