package refresher

import (
	"context"
	"sync"
	"testing"
	"time"

	appconfig "aggticker/config"
	"aggticker/internal/models"
)

type countingService struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingService) Aggregate(ctx context.Context, name string) (models.AggregatedTicker, error) {
	return models.AggregatedTicker{}, nil
}

func (c *countingService) AggregateAndPublish(ctx context.Context, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
}

func (c *countingService) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func TestRefresherPublishesEveryInstrument(t *testing.T) {
	svc := &countingService{calls: make(map[string]int)}
	r := New(appconfig.RefreshConfig{
		Interval:    10 * time.Millisecond,
		Instruments: []string{"BTC-27DEC24-68000-C", "ETH-27DEC24-3000-P"},
	}, svc)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	time.Sleep(55 * time.Millisecond)
	r.Stop()

	for _, name := range []string{"BTC-27DEC24-68000-C", "ETH-27DEC24-3000-P"} {
		if got := svc.count(name); got < 2 {
			t.Fatalf("expected repeated publishes for %s, got %d", name, got)
		}
	}

	after := svc.count("BTC-27DEC24-68000-C")
	time.Sleep(30 * time.Millisecond)
	if svc.count("BTC-27DEC24-68000-C") != after {
		t.Fatal("refresher kept publishing after Stop")
	}
}

func TestRefresherStartTwice(t *testing.T) {
	r := New(appconfig.RefreshConfig{Interval: time.Second}, &countingService{calls: make(map[string]int)})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer r.Stop()

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error when starting twice")
	}
}

func TestRefresherRejectsZeroInterval(t *testing.T) {
	r := New(appconfig.RefreshConfig{}, &countingService{calls: make(map[string]int)})
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestRefresherStopsWithParentContext(t *testing.T) {
	svc := &countingService{calls: make(map[string]int)}
	r := New(appconfig.RefreshConfig{Interval: 5 * time.Millisecond, Instruments: []string{"X"}}, svc)

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after parent cancellation")
	}
}
