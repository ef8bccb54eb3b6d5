package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "aggticker/config"
	"aggticker/internal/service"
	"aggticker/logger"
)

// Refresher periodically aggregates and publishes a fixed set of instruments.
type Refresher struct {
	cfg     appconfig.RefreshConfig
	svc     service.AggTicker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func New(cfg appconfig.RefreshConfig, svc service.AggTicker) *Refresher {
	log := logger.GetLogger()

	log.WithComponent("refresher").WithFields(logger.Fields{
		"instruments": cfg.Instruments,
		"interval":    cfg.Interval,
	}).Info("refresher initialized")

	return &Refresher{
		cfg: cfg,
		svc: svc,
		wg:  &sync.WaitGroup{},
		log: log,
	}
}

// Start launches one worker per instrument. Each publishes immediately and then on
// every interval until Stop is called or ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher already running")
	}
	if r.cfg.Interval <= 0 {
		r.mu.Unlock()
		return fmt.Errorf("refresh interval must be greater than 0")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	for _, name := range r.cfg.Instruments {
		r.wg.Add(1)
		go r.worker(name)
	}

	r.log.WithComponent("refresher").WithFields(logger.Fields{
		"workers": len(r.cfg.Instruments),
	}).Info("refresher started")
	return nil
}

// Stop cancels the workers and waits for in-flight publishes to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.log.WithComponent("refresher").Info("stopping refresher")
	r.wg.Wait()
	r.log.WithComponent("refresher").Info("refresher stopped")
}

func (r *Refresher) worker(name string) {
	defer r.wg.Done()

	log := r.log.WithComponent("refresher").WithFields(logger.Fields{
		"instrument": name,
		"worker":     "publisher",
	})
	log.Debug("starting refresh worker")

	r.svc.AggregateAndPublish(r.ctx, name)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Debug("worker stopped due to context cancellation")
			return
		case <-ticker.C:
			r.svc.AggregateAndPublish(r.ctx, name)
		}
	}
}
