package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	appconfig "aggticker/config"
	"aggticker/internal/instrument"
	"aggticker/internal/metrics"
	"aggticker/internal/models"
	"aggticker/logger"
)

const (
	methodGetInstruments = "public/get_instruments"
	methodTicker         = "public/ticker"
	methodBookSummary    = "public/get_book_summary_by_currency"
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type deribitInstrument struct {
	InstrumentName string `json:"instrument_name"`
}

// deribitBookSummary is one entry of get_book_summary_by_currency. Prices are null when
// the side is empty.
type deribitBookSummary struct {
	InstrumentName         string   `json:"instrument_name"`
	BidPrice               *float64 `json:"bid_price"`
	AskPrice               *float64 `json:"ask_price"`
	MarkIV                 *float64 `json:"mark_iv"`
	EstimatedDeliveryPrice float64  `json:"estimated_delivery_price"`
	CreationTimestamp      int64    `json:"creation_timestamp"`
}

func (s deribitBookSummary) ticker() models.RawTicker {
	iv := valueOr(s.MarkIV)
	return models.RawTicker{
		InstrumentName: s.InstrumentName,
		BestBidPrice:   valueOr(s.BidPrice),
		BidIV:          iv,
		BestAskPrice:   valueOr(s.AskPrice),
		AskIV:          iv,
		IndexPrice:     s.EstimatedDeliveryPrice,
		State:          "open",
		Timestamp:      s.CreationTimestamp,
	}
}

func valueOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Deribit queries the Deribit JSON-RPC websocket API.
type Deribit struct {
	url     string
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	nextID  atomic.Uint64
	log     *logger.Log
}

// NewDeribit creates a Deribit provider. Requests on a connection are throttled to the
// configured rate.
func NewDeribit(cfg appconfig.DeribitConfig) *Deribit {
	log := logger.GetLogger()

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Proxy:            websocket.DefaultDialer.Proxy,
	}
	if cfg.LocalIP != "" {
		if ip := net.ParseIP(cfg.LocalIP); ip != nil {
			netDialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}
			dialer.NetDialContext = netDialer.DialContext
		}
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = rps
	}

	d := &Deribit{
		url:     cfg.URL,
		dialer:  dialer,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}

	log.WithComponent("deribit_provider").WithFields(logger.Fields{
		"url":                 cfg.URL,
		"requests_per_second": rps,
		"burst":               burst,
		"local_ip":            cfg.LocalIP,
	}).Info("deribit provider initialized")

	return d
}

func (d *Deribit) Name() string { return appconfig.VenueDeribit }

// Fetch returns the book summary of every active instrument of the currency and class
// in a single request. Summaries carry no sizes, per-side vols or greeks.
func (d *Deribit) Fetch(ctx context.Context, currency string, kind instrument.Kind) ([]models.RawTicker, error) {
	return d.observe(ctx, "fetch", currency, kind, func(conn *websocket.Conn) ([]models.RawTicker, error) {
		return d.bookSummaries(ctx, conn, currency, kind)
	})
}

// FetchInstrument returns the full ticker of name, or nothing when the venue does not
// list it. It costs two requests regardless of the size of the chain.
func (d *Deribit) FetchInstrument(ctx context.Context, currency string, kind instrument.Kind, name string) ([]models.RawTicker, error) {
	return d.observe(ctx, "fetch_instrument", currency, kind, func(conn *websocket.Conn) ([]models.RawTicker, error) {
		return d.instrumentTicker(ctx, conn, currency, kind, name)
	})
}

func (d *Deribit) observe(ctx context.Context, operation, currency string, kind instrument.Kind, fn func(*websocket.Conn) ([]models.RawTicker, error)) ([]models.RawTicker, error) {
	log := d.log.WithComponent("deribit_provider").WithFields(logger.Fields{
		"currency":  currency,
		"kind":      kind.String(),
		"operation": operation,
	})

	start := time.Now()
	tickers, err := d.withConn(ctx, fn)
	duration := time.Since(start)
	metrics.RecordFetch(d.log, d.Name(), duration, err)
	if err != nil {
		log.WithError(err).Warn("deribit fetch failed")
		return nil, err
	}

	logger.LogPerformanceEntry(log, "deribit_provider", operation, duration, logger.Fields{"tickers": len(tickers)})
	return tickers, nil
}

func (d *Deribit) withConn(ctx context.Context, fn func(*websocket.Conn) ([]models.RawTicker, error)) ([]models.RawTicker, error) {
	conn, _, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to deribit: %w", err)
	}
	defer conn.Close()

	// Unblock pending reads when the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	return fn(conn)
}

func (d *Deribit) bookSummaries(ctx context.Context, conn *websocket.Conn, currency string, kind instrument.Kind) ([]models.RawTicker, error) {
	var summaries []deribitBookSummary
	params := map[string]interface{}{
		"currency": currency,
		"kind":     kind.String(),
	}
	if err := d.call(ctx, conn, methodBookSummary, params, &summaries); err != nil {
		return nil, fmt.Errorf("get book summary: %w", err)
	}

	tickers := make([]models.RawTicker, 0, len(summaries))
	for _, s := range summaries {
		tickers = append(tickers, s.ticker())
	}
	return tickers, nil
}

func (d *Deribit) instrumentTicker(ctx context.Context, conn *websocket.Conn, currency string, kind instrument.Kind, name string) ([]models.RawTicker, error) {
	var instruments []deribitInstrument
	params := map[string]interface{}{
		"currency": currency,
		"kind":     kind.String(),
		"expired":  false,
	}
	if err := d.call(ctx, conn, methodGetInstruments, params, &instruments); err != nil {
		return nil, fmt.Errorf("get instruments: %w", err)
	}

	listed := false
	for _, inst := range instruments {
		if inst.InstrumentName == name {
			listed = true
			break
		}
	}
	if !listed {
		return []models.RawTicker{}, nil
	}

	var ticker models.RawTicker
	if err := d.call(ctx, conn, methodTicker, map[string]interface{}{"instrument_name": name}, &ticker); err != nil {
		return nil, fmt.Errorf("ticker %s: %w", name, err)
	}
	if ticker.InstrumentName == "" {
		ticker.InstrumentName = name
	}
	return []models.RawTicker{ticker}, nil
}

func (d *Deribit) call(ctx context.Context, conn *websocket.Conn, method string, params interface{}, out interface{}) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	id := d.nextID.Add(1)
	if err := conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	for {
		var resp rpcResponse
		if err := conn.ReadJSON(&resp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read %s: %w", method, err)
		}
		// Skip notifications and replies to other requests.
		if resp.ID == nil || *resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s: %w", method, err)
		}
		return nil
	}
}
