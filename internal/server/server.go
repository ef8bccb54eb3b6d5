package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"aggticker/config"
	"aggticker/internal/aggregator"
	"aggticker/internal/codec"
	"aggticker/internal/instrument"
	"aggticker/internal/metrics"
	"aggticker/internal/publisher"
	"aggticker/internal/service"
	"aggticker/logger"
)

// Server exposes the aggregation service over HTTP.
type Server struct {
	cfg           config.ServerConfig
	svc           service.AggTicker
	log           *logger.Log
	events        *recent[metricEvent]
	problems      *problemLog
	metricHandler metrics.MetricHandlerID
	httpServer    *http.Server
	background    sync.WaitGroup
}

// NewServer constructs the HTTP server. When the server is disabled the returned
// server is nil.
func NewServer(cfg config.ServerConfig, svc service.AggTicker, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if svc == nil {
		return nil, errors.New("server requires an aggregation service")
	}

	cfg.Address = normalizeAddress(cfg.Address)

	events := newRecent[metricEvent](cfg.History)
	handlerID := metrics.RegisterMetricHandler(func(m metrics.Metric) {
		events.add(metricEventOf(m))
	})

	problems := newProblemLog(cfg.History)
	log.AddHook(problems)

	return &Server{
		cfg:           cfg,
		svc:           svc,
		log:           log,
		events:        events,
		problems:      problems,
		metricHandler: handlerID,
	}, nil
}

// Run serves HTTP until ctx is cancelled or the listener fails. In-flight background
// publishes are awaited before Run returns.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithComponent("server").WithFields(logger.Fields{"address": s.cfg.Address}).Info("http server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		s.background.Wait()
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.problems != nil {
		s.problems.close()
	}
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": appName})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1")
	api.GET("/aggregate/:instrument", s.handleAggregate)
	api.POST("/aggregate/:instrument/publish", s.handlePublish)

	api.GET("/recent/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"metrics": s.events.snapshot()})
	})
	api.GET("/recent/problems", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.problems.snapshot()})
	})

	return router, nil
}

func (s *Server) handleAggregate(c *gin.Context) {
	name := c.Param("instrument")

	agg, err := s.svc.Aggregate(c.Request.Context(), name)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	payload, err := codec.Encode(agg)
	if err != nil {
		s.log.WithComponent("server").WithError(err).WithFields(logger.Fields{"instrument": name}).Error("failed to encode aggregated ticker")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, codec.ContentType, payload)
}

// handlePublish starts an aggregate-and-publish that outlives the request.
func (s *Server) handlePublish(c *gin.Context) {
	name := c.Param("instrument")
	ctx := context.WithoutCancel(c.Request.Context())

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.svc.AggregateAndPublish(ctx, name)
	}()

	c.JSON(http.StatusAccepted, gin.H{"instrument": name, "topic": publisher.Topic(name)})
}

func statusOf(err error) int {
	var (
		parseErr    *instrument.ParseError
		priceErr    *aggregator.PriceError
		providerErr *service.ProviderError
	)
	switch {
	case errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.As(err, &priceErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
