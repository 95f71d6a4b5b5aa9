package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/aggregator"
	"github.com/protego/threat-monitor/internal/config"
	"github.com/protego/threat-monitor/internal/handlers"
	"github.com/protego/threat-monitor/internal/ingest"
	"github.com/protego/threat-monitor/internal/kafka"
	"github.com/protego/threat-monitor/internal/metrics"
	"github.com/protego/threat-monitor/internal/query"
	"github.com/protego/threat-monitor/internal/realtime"
	"github.com/protego/threat-monitor/internal/simulator"
	"github.com/protego/threat-monitor/internal/store"
	"github.com/protego/threat-monitor/internal/vip"
)

// Server wires the threat monitor components together and runs the HTTP
// server plus the background loops.
type Server struct {
	config *config.Config
	logger *zap.Logger

	eventStore store.EventStore
	vips       vip.Registry
	aggregator *aggregator.Aggregator
	hub        *realtime.Hub
	ingestor   *ingest.Ingestor
	queries    *query.Service
	collector  *metrics.Collector
	consumer   *kafka.Consumer

	router     *gin.Engine
	httpServer *http.Server

	cancel context.CancelFunc
}

// New creates a server instance from configuration.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: logger.Named("server"),
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) initialize() error {
	eventStore, err := store.New(s.config.Store, s.logger.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to initialize event store: %w", err)
	}
	s.eventStore = eventStore

	if err := s.initRegistry(); err != nil {
		return err
	}

	if s.config.Metrics.Enabled {
		s.collector = metrics.NewCollector(prometheus.DefaultRegisterer)
	}

	var fanout *redis.Client
	if s.config.Realtime.RedisFanout {
		fanout = redis.NewClient(&redis.Options{
			Addr:     s.config.Store.Redis.Addr(),
			Password: s.config.Store.Redis.Password,
			DB:       s.config.Store.Redis.Database,
		})
	}
	s.hub = realtime.NewHub(s.config.Realtime, fanout, s.logger.Named("realtime"))
	if s.collector != nil {
		s.hub.SetHooks(s.collector.FramesDropped, s.collector.Broadcast)
	}

	s.aggregator = aggregator.New(
		s.config.Analytics.RecentRingSize,
		s.config.Analytics.TimelineDays,
		s.logger.Named("aggregator"))

	s.ingestor = ingest.New(
		s.eventStore,
		s.aggregator,
		s.hub,
		s.collector,
		s.config.Analytics.RetentionDays,
		s.logger.Named("ingest"))

	// Warm the aggregates from whatever the store already holds.
	if err := s.ingestor.Rebuild(context.Background()); err != nil {
		return fmt.Errorf("failed to rebuild aggregates: %w", err)
	}

	s.queries = query.New(s.eventStore, s.ingestor, s.vips, s.config.Analytics, s.logger.Named("query"))

	if s.config.Kafka.Enabled {
		s.consumer = kafka.NewConsumer(s.config.Kafka, s.ingestor, s.logger.Named("kafka"))
	}

	s.initRouter()
	return nil
}

// initRegistry picks the VIP registry backend matching the event store.
func (s *Server) initRegistry() error {
	if pg, ok := s.eventStore.(*store.PostgresStore); ok {
		registry, err := vip.NewGormRegistry(pg.DB())
		if err != nil {
			return fmt.Errorf("failed to initialize vip registry: %w", err)
		}
		s.vips = registry
		return nil
	}
	s.vips = vip.NewMemoryRegistry()
	return nil
}

func (s *Server) initRouter() {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.CORSMiddleware())
	router.Use(requestLogger(s.logger.Named("http")))

	wsHandler := realtime.NewWSHandler(s.hub, s.config.Server.WebSocket, s.logger.Named("ws"))
	handler := handlers.NewHandler(
		s.ingestor,
		s.queries,
		s.eventStore,
		s.vips,
		s.hub,
		wsHandler,
		s.logger.Named("handlers"))
	handler.RegisterRoutes(router)

	if s.config.Metrics.Enabled {
		router.GET(s.config.Metrics.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", s.config.Server.HTTP.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(s.config.Server.HTTP.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(s.config.Server.HTTP.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(s.config.Server.HTTP.IdleTimeout) * time.Second,
		MaxHeaderBytes: s.config.Server.HTTP.MaxHeaderBytes,
	}
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start launches the background loops and serves HTTP until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.hub.RunHeartbeat(ctx)
	if s.config.Realtime.RedisFanout {
		go s.hub.RunRedisFanout(ctx)
	}
	go s.ingestor.RunRetention(ctx, s.config.Analytics.EvictionInterval)
	go s.trackConnections(ctx)

	if s.config.Simulator.Enabled {
		sim := simulator.New(s.ingestor, s.vips, s.config.Simulator, s.logger.Named("simulator"))
		go sim.Run(ctx)
	}

	if s.consumer != nil {
		go func() {
			if err := s.consumer.Run(ctx); err != nil {
				s.logger.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// trackConnections mirrors the subscriber count into the metrics gauge.
func (s *Server) trackConnections(ctx context.Context) {
	if s.collector == nil {
		return
	}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collector.SetConnections(s.hub.SubscriberCount())
		}
	}
}

// Shutdown stops the background loops and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	if s.cancel != nil {
		s.cancel()
	}
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.logger.Warn("failed to close kafka consumer", zap.Error(err))
		}
	}

	err := s.httpServer.Shutdown(ctx)
	if storeErr := s.eventStore.Close(); storeErr != nil && err == nil {
		err = storeErr
	}
	return err
}

// requestLogger logs each request with structured fields.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
