// Package main provides the MedForce Gateway server implementation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	glebarezsqlite "github.com/glebarez/sqlite"

	"github.com/shreya-uprety/medforce-gateway/api/handlers"
	"github.com/shreya-uprety/medforce-gateway/config"
	"github.com/shreya-uprety/medforce-gateway/gateway"
	"github.com/shreya-uprety/medforce-gateway/gateway/agents"
	"github.com/shreya-uprety/medforce-gateway/gateway/channels"
	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
	"github.com/shreya-uprety/medforce-gateway/gateway/heartbeat"
	"github.com/shreya-uprety/medforce-gateway/gateway/identity"
	"github.com/shreya-uprety/medforce-gateway/gateway/permissions"
	"github.com/shreya-uprety/medforce-gateway/gateway/safety"
	"github.com/shreya-uprety/medforce-gateway/gwerrors"
	"github.com/shreya-uprety/medforce-gateway/internal/authstore"
	"github.com/shreya-uprety/medforce-gateway/internal/cache"
	"github.com/shreya-uprety/medforce-gateway/internal/database"
	"github.com/shreya-uprety/medforce-gateway/internal/metrics"
	"github.com/shreya-uprety/medforce-gateway/internal/server"
	"github.com/shreya-uprety/medforce-gateway/internal/telemetry"
	"github.com/shreya-uprety/medforce-gateway/resilience/idempotency"
)

// Server is the MedForce Gateway's process: it owns the HTTP ingress
// listener, the metrics listener, the Gateway control loop, and the
// heartbeat scheduler that feeds it.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	gw          *gateway.Gateway
	identityRes *identity.Resolver
	wsDispatch  *channels.WebSocketDispatcher
	heartbeats  *heartbeat.Scheduler
	authStore   *authstore.Store
	otel        *telemetry.Providers

	shutdownRateLimiter context.CancelFunc

	emitHandler          *handlers.EmitHandler
	introspectionHandler *handlers.IntrospectionHandler
	apiKeyHandler        *handlers.APIKeyHandler
	healthHandler        *handlers.HealthHandler

	metricsCollector *metrics.Collector

	cacheMgr *cache.Manager
	mongoCli *mongo.Client
	authPool *database.PoolManager

	wg sync.WaitGroup
}

// NewServer builds an un-started Server around cfg.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start wires every subsystem, starts the heartbeat scheduler, and opens
// both listeners. Non-blocking: call WaitForShutdown to block until a
// signal arrives.
func (s *Server) Start() error {
	otelProviders, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otel = otelProviders

	if err := s.initStorage(); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if err := s.initGateway(); err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("init handlers: %w", err)
	}
	s.startHeartbeat()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// initStorage opens Mongo (diary store), Redis (idempotency tracking), and
// the authstore database.
func (s *Server) initStorage() error {
	clientOpts := options.Client().ApplyURI(s.cfg.Mongo.URI)
	mongoCli, err := mongo.Connect(clientOpts)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Mongo.Timeout)
	defer cancel()
	if err := mongoCli.Ping(pingCtx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	s.mongoCli = mongoCli

	cacheMgr, err := cache.NewManager(cache.Config{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	s.cacheMgr = cacheMgr

	authDB, err := openAuthDatabase(s.cfg.Auth)
	if err != nil {
		return fmt.Errorf("open auth database: %w", err)
	}
	authPool, err := database.NewPoolManager(authDB, database.DefaultPoolConfig(), s.logger)
	if err != nil {
		return fmt.Errorf("wrap auth database pool: %w", err)
	}
	s.authPool = authPool
	s.authStore = authstore.New(authPool.DB())
	if s.cfg.Auth.Driver == "sqlite" {
		if err := s.authStore.AutoMigrate(context.Background()); err != nil {
			return fmt.Errorf("auto-migrate authstore: %w", err)
		}
	}

	return nil
}

func openAuthDatabase(cfg config.AuthConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "gateway_auth.db"
		}
		return gorm.Open(glebarezsqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported auth database driver: %s", cfg.Driver)
	}
}

// initGateway builds every subsystem the Gateway control loop depends on
// and the Gateway itself.
func (s *Server) initGateway() error {
	diaryColl := s.mongoCli.Database(s.cfg.Mongo.Database).Collection(s.cfg.Mongo.Collection)
	store := diary.NewStore(diaryColl, s.cfg.Mongo.Timeout)

	idempotencyTracker := idempotency.NewRedisTracker(s.cacheMgr.Client(), "medforce:idempotency", s.logger)
	rateLimiter := safety.NewRateLimiter(s.cfg.Safety.RateLimitWindow, s.cfg.Safety.RateLimitMaxMsgs)

	s.identityRes = identity.NewResolver()
	s.wsDispatch = channels.NewWebSocketDispatcher(s.logger)

	channelRegistry := channels.NewRegistry(s.logger)
	channelRegistry.Register("ws", s.wsDispatch)

	agentRegistry := agents.NewRegistry(map[string]agents.Agent{
		"intake":         agents.IntakeAgent{},
		"clinical":       agents.ClinicalAgent{},
		"booking":        agents.BookingAgent{},
		"monitoring":     agents.MonitoringAgent{},
		"gp_comms":       agents.GPCommsAgent{},
		"helper_manager": agents.HelperManagerAgent{},
		"error_handler":  agents.ErrorHandlerAgent{},
	})

	s.gw = gateway.New(gateway.Config{
		Store:       store,
		Idempotency: idempotencyTracker,
		RateLimiter: rateLimiter,
		Permissions: permissions.NewChecker(),
		Agents:      agentRegistry,
		Channels:    channelRegistry,
		Logger:      s.logger,
	})

	return nil
}

// startHeartbeat wires the milestone scheduler's Source to the Gateway's
// diary store and its Emit callback back into Gateway.Submit.
func (s *Server) startHeartbeat() {
	diaryColl := s.mongoCli.Database(s.cfg.Mongo.Database).Collection(s.cfg.Mongo.Collection)
	store := diary.NewStore(diaryColl, s.cfg.Mongo.Timeout)

	s.heartbeats = heartbeat.NewScheduler(store, s.gw.Submit, heartbeat.Config{
		CheckInterval: s.cfg.Heartbeat.CheckInterval,
		MilestoneDays: s.cfg.Heartbeat.MilestoneDays,
		GPReminderAge: s.cfg.Heartbeat.GPReminderAge,
	}, s.logger)

	s.heartbeats.Start(context.Background())
}

func (s *Server) initHandlers() error {
	s.emitHandler = handlers.NewEmitHandler(s.gw, s.logger)
	s.introspectionHandler = handlers.NewIntrospectionHandler(s.gw, s.logger)
	s.apiKeyHandler = handlers.NewAPIKeyHandler(s.authStore, s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.gw, s.logger)

	s.healthHandler.RegisterCheck(handlers.NewMongoHealthCheck("mongo", func(ctx context.Context) error {
		return s.mongoCli.Ping(ctx, nil)
	}))
	s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.cacheMgr.Ping))
	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("authstore", s.authPool.Ping))

	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/gateway/emit", s.emitHandler.HandleEmit)
	mux.HandleFunc("GET /api/gateway/diary/{patient_id}", s.introspectionHandler.HandleGetDiary)
	mux.HandleFunc("GET /api/gateway/events/{patient_id}", s.introspectionHandler.HandleGetEvents)
	mux.HandleFunc("GET /api/gateway/dlq", s.introspectionHandler.HandleListDLQ)
	mux.HandleFunc("POST /api/gateway/dlq/{event_id}/replay", s.introspectionHandler.HandleReplayDLQ)
	mux.HandleFunc("POST /api/gateway/keys", s.apiKeyHandler.HandleIssue)
	mux.HandleFunc("GET /api/gateway/keys", s.apiKeyHandler.HandleList)
	mux.HandleFunc("DELETE /api/gateway/keys/{id}", s.apiKeyHandler.HandleRevoke)

	mux.HandleFunc("/ws/{channel_id}", s.handleWebSocket)

	shutdownCtx, cancel := context.WithCancel(context.Background())
	s.shutdownRateLimiter = cancel

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(nil),
		RateLimiter(shutdownCtx, 20, 40, s.logger),
		APIKeyAuth(s.authStore, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// handleWebSocket upgrades a connection once its ?token= query parameter
// verifies as a connection token for the requesting patient. The {channel_id}
// path segment becomes the connection's address in wsDispatch: it's the
// same value agent responses must set as OutboundMessage.ChannelID to reach
// this socket, so a client picks one when it connects (e.g. the id returned
// by whatever out-of-band step handed it a connection token) and any reply
// routed to that patient over the "ws" channel finds its way back here.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	patientID, err := parseConnectionToken(s.cfg.Auth.JWTSecret, r.URL.Query().Get("token"))
	if err != nil {
		handlers.WriteError(w, gwerrors.New(gwerrors.CodeUnauthorized, "invalid or expired connection token").WithCause(err), s.logger)
		return
	}

	connID := r.PathValue("channel_id")
	if connID == "" {
		handlers.WriteError(w, gwerrors.New(gwerrors.CodeValidationFailed, "channel_id is required"), s.logger)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err), zap.String("patient_id", patientID))
		return
	}

	s.wsDispatch.Register(connID, conn)
	s.logger.Info("websocket connected", zap.String("patient_id", patientID), zap.String("conn_id", connID))

	defer func() {
		s.wsDispatch.Unregister(connID)
		conn.Close(websocket.StatusNormalClosure, "closed")
	}()

	for {
		var inbound struct {
			Text string `json:"text"`
		}
		if err := wsjson.Read(r.Context(), conn, &inbound); err != nil {
			s.logger.Debug("websocket closed", zap.String("conn_id", connID), zap.Error(err))
			return
		}
		s.gw.Submit(events.NewUserMessage(patientID, inbound.Text))
	}
}

func (s *Server) startMetricsServer() error {
	s.metricsCollector = metrics.NewCollector("medforce_gateway", s.logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks on the HTTP manager's signal handling, then
// runs cleanup.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown tears every subsystem down in reverse dependency order.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.heartbeats != nil {
		s.heartbeats.Stop()
	}
	if s.shutdownRateLimiter != nil {
		s.shutdownRateLimiter()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.gw != nil {
		if err := s.gw.Shutdown(ctx); err != nil {
			s.logger.Error("gateway shutdown error", zap.Error(err))
		}
	}
	if s.cacheMgr != nil {
		if err := s.cacheMgr.Close(); err != nil {
			s.logger.Error("cache manager close error", zap.Error(err))
		}
	}
	if s.authPool != nil {
		if err := s.authPool.Close(); err != nil {
			s.logger.Error("auth pool close error", zap.Error(err))
		}
	}
	if s.mongoCli != nil {
		if err := s.mongoCli.Disconnect(ctx); err != nil {
			s.logger.Error("mongo disconnect error", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()
	s.logger.Info("graceful shutdown completed")
}
