// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/paygate/internal/audit"
	"github.com/mbd888/paygate/internal/chain"
	"github.com/mbd888/paygate/internal/circuitbreaker"
	"github.com/mbd888/paygate/internal/config"
	"github.com/mbd888/paygate/internal/health"
	"github.com/mbd888/paygate/internal/logging"
	"github.com/mbd888/paygate/internal/metrics"
	"github.com/mbd888/paygate/internal/paywall"
	"github.com/mbd888/paygate/internal/policy"
	"github.com/mbd888/paygate/internal/providers"
	"github.com/mbd888/paygate/internal/ratelimit"
	"github.com/mbd888/paygate/internal/realtime"
	"github.com/mbd888/paygate/internal/reconciliation"
	"github.com/mbd888/paygate/internal/reliability"
	"github.com/mbd888/paygate/internal/replay"
	"github.com/mbd888/paygate/internal/settlement"
	"github.com/mbd888/paygate/internal/verify"
)

// snapshotInterval is how often provider reliability stats are persisted.
const snapshotInterval = time.Minute

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	verifier     settlement.Verifier
	guard        settlement.Guard
	oracle       settlement.Oracle
	submitter    settlement.Submitter
	chainClient  chain.Client
	settler      *chain.Settler // nil when a submitter was injected
	orchestrator *settlement.Orchestrator
	providers    *providers.Registry
	tracker      *reliability.Tracker
	snapshots    reliability.SnapshotStore
	policies     *policy.Registry
	audits       *audit.Service
	queue        *reconciliation.Queue
	reconciler   *reconciliation.Timer
	realtimeHub  *realtime.Hub
	breaker      *circuitbreaker.Breaker
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithChain injects chain collaborators, bypassing the RPC dial (for testing)
func WithChain(oracle settlement.Oracle, submitter settlement.Submitter) Option {
	return func(s *Server) {
		s.oracle = oracle
		s.submitter = submitter
	}
}

// WithVerifier overrides the signature verifier (for testing)
func WithVerifier(v settlement.Verifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set chain collaborators/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		guard := replay.NewPostgresStore(db)
		if err := guard.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate replay store", "error", err)
		}
		s.guard = guard

		auditStore := audit.NewPostgresStore(db)
		if err := auditStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate audit store", "error", err)
		}
		s.audits = audit.NewService(auditStore, audit.NewSigner(cfg.AuditHMACSecret))

		snapshots := reliability.NewPostgresSnapshotStore(db)
		if err := snapshots.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate reliability snapshot store", "error", err)
		}
		s.snapshots = snapshots
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.guard = replay.NewMemoryStore()
		s.audits = audit.NewService(audit.NewMemoryStore(), audit.NewSigner(cfg.AuditHMACSecret))
		s.snapshots = reliability.NewMemorySnapshotStore()
	}

	// Provider reliability tracker, restored from the last snapshot
	s.tracker = reliability.NewTracker()
	if stats, err := s.snapshots.Load(ctx); err != nil {
		s.logger.Warn("failed to load reliability snapshot", "error", err)
	} else if len(stats) > 0 {
		s.tracker.Restore(stats)
		s.logger.Info("provider reliability restored", "providers", len(stats))
	}

	s.providers = providers.NewRegistry(s.tracker)
	s.policies = policy.NewRegistry()

	// Authorization verifier, bound to one asset domain
	s.verifier = verify.New(verify.Config{
		ChainID:      cfg.ChainID,
		AssetName:    cfg.AssetName,
		AssetVersion: cfg.AssetVersion,
		AssetAddress: cfg.USDCContract,
	})

	// Chain collaborators unless injected
	if s.oracle == nil || s.submitter == nil {
		client, err := chain.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
		}
		s.chainClient = client

		oracle, err := chain.NewOracle(client, cfg.USDCContract)
		if err != nil {
			return nil, fmt.Errorf("failed to create balance oracle: %w", err)
		}
		s.oracle = oracle

		settler, err := chain.NewSettler(client, chain.SettlerConfig{
			ChainID:      cfg.ChainID,
			AssetAddress: cfg.USDCContract,
			PrivateKey:   cfg.PrivateKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create settler: %w", err)
		}
		s.settler = settler
		s.submitter = settler
		s.logger.Info("settlement signer ready", "account", settler.Address())
	}

	// Realtime hub streams settlement outcomes over /ws
	s.realtimeHub = realtime.NewHub(s.logger)

	// Circuit breaker guards downstream EXECUTE calls per endpoint
	s.breaker = circuitbreaker.New(cfg.BreakerThreshold, time.Duration(cfg.BreakerOpenSec)*time.Second)

	s.queue = reconciliation.NewQueue()

	s.orchestrator = settlement.New(settlement.Config{
		Verifier:       s.verifier,
		Guard:          s.guard,
		Oracle:         s.oracle,
		Submitter:      s.submitter,
		Forwarder:      settlement.NewGuardedForwarder(settlement.NewForwarder(), s.breaker),
		Policies:       s.policies,
		Tracker:        s.tracker,
		Audit:          s.audits,
		Queue:          s.queue,
		Notifier:       s.realtimeHub,
		Logger:         s.logger,
		ConfirmTimeout: time.Duration(cfg.SettleTimeoutSec) * time.Second,
	})

	// Reconciliation worker needs direct receipt access; skipped when
	// the chain client was replaced by injected collaborators.
	if s.chainClient != nil {
		runner := reconciliation.NewRunner(s.queue, s.chainClient, s.audits, s.logger)
		s.reconciler = reconciliation.NewTimer(runner, s.logger)
	}

	s.setupHealthChecks()

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupHealthChecks() {
	s.checks = health.NewRegistry()

	if s.db != nil {
		s.checks.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}

	if s.chainClient != nil {
		s.checks.Register("rpc", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if _, err := s.chainClient.HeaderByNumber(ctx, nil); err != nil {
				return health.Status{Name: "rpc", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "rpc", Healthy: true}
		})
	}
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Rate limiting
	limitCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limitCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limitCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time settlement streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// Facilitator API: verify and settle payloads for external resource
	// servers that run their own paywall.
	facilitator := s.router.Group("/facilitator")
	{
		facilitator.POST("/verify", s.facilitatorVerify)
		facilitator.POST("/settle", s.facilitatorSettle)
		facilitator.GET("/supported", s.facilitatorSupported)
	}

	// V1 API group
	v1 := s.router.Group("/v1")
	{
		// Provider registry management
		v1.POST("/providers", s.registerProvider)
		v1.GET("/providers", s.listProviders)
		v1.GET("/providers/:id", s.getProvider)
		v1.DELETE("/providers/:id", s.removeProvider)
		v1.GET("/providers/:id/reliability", s.providerReliability)

		// Audit trail
		v1.GET("/audits/:id", s.getAudit)
		v1.GET("/audits/:id/verify", s.verifyAudit)
		v1.GET("/payers/:address/audits", s.listPayerAudits)
		v1.GET("/attempts/:id/audits", s.listAttemptAudits)

		// Reconciliation visibility
		v1.GET("/reconciliation", s.reconciliationStatus)
	}
}

// PaywallConfig builds the middleware config for paid routes backed by
// this server's orchestrator and provider registry.
func (s *Server) PaywallConfig() paywall.Config {
	return paywall.Config{
		Orchestrator: s.orchestrator,
		Providers:    s.providers,
		Network:      s.cfg.Network,
		Asset:        s.cfg.USDCContract,
		PayTo:        s.cfg.PayTo,
		Strategy:     s.cfg.RoutingStrategy,
	}
}

// RegisterPaidRoute exposes one paid resource at path: a provider kind,
// its price, and the policy judging the provider's responses.
func (s *Server) RegisterPaidRoute(path string, route paywall.Route, pol policy.ResultPolicy) {
	if pol != nil {
		s.policies.Register(pol)
	}
	s.router.POST(path, paywall.Middleware(s.PaywallConfig(), route))
}

// Providers returns the provider registry for programmatic registration.
func (s *Server) Providers() *providers.Registry {
	return s.providers
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "paygate",
		"description": "x402 payment facilitator and atomic settlement engine",
		"version":     "0.1.0",
		"network":     s.cfg.Network,
		"asset":       s.cfg.USDCContract,
		"payTo":       s.cfg.PayTo,
	})
}

// registerProvider handles POST /v1/providers
func (s *Server) registerProvider(c *gin.Context) {
	var req struct {
		ID         string `json:"id" binding:"required"`
		Kind       string `json:"kind" binding:"required"`
		Endpoint   string `json:"endpoint" binding:"required"`
		Price      string `json:"price" binding:"required"`
		TimeoutSec int    `json:"timeoutSec"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "id, kind, endpoint and price are required",
		})
		return
	}

	p := providers.Provider{
		ID:       req.ID,
		Kind:     req.Kind,
		Endpoint: req.Endpoint,
		Price:    req.Price,
		Timeout:  time.Duration(req.TimeoutSec) * time.Second,
	}
	if err := s.providers.Register(p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_provider",
			"message": err.Error(),
		})
		return
	}

	s.logger.Info("provider registered", "id", p.ID, "kind", p.Kind, "endpoint", p.Endpoint)
	c.JSON(http.StatusCreated, gin.H{"provider": p})
}

func (s *Server) listProviders(c *gin.Context) {
	all := s.providers.All()
	c.JSON(http.StatusOK, gin.H{
		"providers": all,
		"count":     len(all),
	})
}

func (s *Server) getProvider(c *gin.Context) {
	p, err := s.providers.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "no such provider",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": p})
}

func (s *Server) removeProvider(c *gin.Context) {
	s.providers.Remove(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("id")})
}

func (s *Server) providerReliability(c *gin.Context) {
	id := c.Param("id")
	score := s.tracker.Score(id)
	metrics.ProviderScore.WithLabelValues(id).Set(score)

	resp := gin.H{
		"provider": id,
		"score":    score,
	}
	if stat, ok := s.tracker.Stat(id); ok {
		resp["observations"] = stat.Observations()
		resp["successRate"] = stat.SuccessRate()
		resp["avgLatencyMs"] = stat.AvgLatencyMs()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getAudit(c *gin.Context) {
	record, err := s.audits.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "no such audit record",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": record})
}

func (s *Server) verifyAudit(c *gin.Context) {
	resp, err := s.audits.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "no such audit record",
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listPayerAudits(c *gin.Context) {
	records, err := s.audits.ListByPayer(c.Request.Context(), c.Param("address"), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "failed to list audit records",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) listAttemptAudits(c *gin.Context) {
	records, err := s.audits.ListByAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "failed to list audit records",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) reconciliationStatus(c *gin.Context) {
	pending := s.queue.Pending()
	cases := make([]gin.H, 0, len(pending))
	for _, p := range pending {
		cases = append(cases, gin.H{
			"attemptId":  p.Attempt.ID,
			"txHash":     p.Attempt.TxHash,
			"payer":      p.Attempt.Payer,
			"amount":     p.Attempt.Amount,
			"enqueuedAt": p.EnqueuedAt,
			"checks":     p.Checks,
			"lastError":  p.LastError,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"pending": cases,
		"count":   len(cases),
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"network", s.cfg.Network,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start reconciliation timer
	if s.reconciler != nil {
		go s.reconciler.Start(runCtx)
	}

	// Persist provider reliability snapshots
	go s.snapshotLoop(runCtx)

	// Collect database pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// snapshotLoop persists provider stats and exports score gauges.
func (s *Server) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.tracker.All()
			for _, stat := range stats {
				metrics.ProviderScore.WithLabelValues(stat.ProviderID).Set(s.tracker.Score(stat.ProviderID))
			}
			if err := s.snapshots.Save(ctx, stats); err != nil {
				s.logger.Warn("failed to save reliability snapshot", "error", err)
			}
		}
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timers)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop reconciliation timer
	if s.reconciler != nil {
		s.reconciler.Stop()
		s.logger.Info("reconciliation timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Final reliability snapshot before exit
	if err := s.snapshots.Save(context.Background(), s.tracker.All()); err != nil {
		s.logger.Warn("failed to save final reliability snapshot", "error", err)
	}

	// Zero the settlement key
	if s.settler != nil {
		if err := s.settler.Close(); err != nil {
			s.logger.Error("settler close error", "error", err)
		}
	}
	if s.chainClient != nil {
		s.chainClient.Close()
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
