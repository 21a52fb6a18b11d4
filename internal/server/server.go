// Package server wires the deal marketplace together: HTTP API, escrow
// strategies, background jobs, and the realtime hub.
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/tonpost/tonpost/internal/config"
	"github.com/tonpost/tonpost/internal/deal"
	"github.com/tonpost/tonpost/internal/escrow"
	"github.com/tonpost/tonpost/internal/health"
	"github.com/tonpost/tonpost/internal/logging"
	"github.com/tonpost/tonpost/internal/metrics"
	"github.com/tonpost/tonpost/internal/notifybot"
	"github.com/tonpost/tonpost/internal/payment"
	"github.com/tonpost/tonpost/internal/posting"
	"github.com/tonpost/tonpost/internal/ratelimit"
	"github.com/tonpost/tonpost/internal/realtime"
	"github.com/tonpost/tonpost/internal/security"
	"github.com/tonpost/tonpost/internal/ton"
	"github.com/tonpost/tonpost/internal/traces"
	"github.com/tonpost/tonpost/internal/validation"
)

// Server wraps the HTTP server and all its dependencies.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	router  *gin.Engine
	httpSrv *http.Server

	db *sql.DB

	tonClient *ton.Client
	chain     ton.ChainAPI // test override, nil in production

	deals    *deal.Service
	payments *payment.Service
	posts    *posting.Service
	poster   posting.Poster

	timeoutTimer *deal.TimeoutTimer
	verifyTimer  *posting.VerificationTimer

	hub         *realtime.Hub
	rateLimiter *ratelimit.Limiter
	checks      *health.Registry

	shutdownTraces func(context.Context) error
	cancelRunCtx   context.CancelFunc

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

// WithChain injects a chain client, bypassing lite-server discovery.
// Used by tests; production connects via the TON global config.
func WithChain(chain ton.ChainAPI) Option {
	return func(s *Server) {
		s.chain = chain
	}
}

// WithPoster overrides the channel poster. The default logs posts
// instead of delivering them, which is what you want everywhere except
// against a live bot.
func WithPoster(p posting.Poster) Option {
	return func(s *Server) {
		s.poster = p
	}
}

// New creates a fully wired server
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set chain/poster/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Chain access: injected for tests, lite-servers otherwise
	chain := s.chain
	if chain == nil {
		var err error
		chain, err = ton.Connect(ctx, cfg.TONConfigURL, cfg.TONTestnet)
		if err != nil {
			return nil, fmt.Errorf("connect to TON: %w", err)
		}
	}

	tonClient, err := ton.New(ton.Config{
		EncryptionKey:       cfg.EncryptionKey,
		MasterSeed:          strings.Fields(cfg.WalletMnemonic),
		ConfirmPollInterval: cfg.ConfirmPollInterval,
		ConfirmMaxAttempts:  cfg.ConfirmMaxAttempts,
	}, ton.WithChainAPI(chain))
	if err != nil {
		return nil, fmt.Errorf("create wallet client: %w", err)
	}
	s.tonClient = tonClient

	// Escrow custody strategy is a startup decision
	var strategy escrow.Strategy
	switch cfg.EscrowStrategy {
	case config.StrategyContract:
		strategy, err = escrow.NewContractStrategy(tonClient, cfg.ContractAddress)
		if err != nil {
			return nil, fmt.Errorf("contract strategy: %w", err)
		}
		s.logger.Info("escrow strategy: shared contract", "address", cfg.ContractAddress)
	default:
		strategy = escrow.NewWalletStrategy(tonClient)
		s.logger.Info("escrow strategy: per-deal wallets")
	}

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		dealStore deal.Store
		payStore  payment.Store
		postStore posting.Store
	)
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
		dealStore = deal.NewPostgresStore(db)
		payStore = payment.NewPostgresStore(db)
		postStore = posting.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		dealStore = deal.NewMemoryStore()
		payStore = payment.NewMemoryStore()
		postStore = posting.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Realtime hub feeds websocket clients and the hub notifier
	s.hub = realtime.NewHub(s.logger)

	notifier := notifybot.NewFanout(
		notifybot.NewLogNotifier(s.logger),
		notifybot.NewHubNotifier(s.hub),
	)

	s.deals = deal.NewService(dealStore, notifier)
	s.payments = payment.NewService(payStore, s.deals, strategy, tonClient)

	if s.poster == nil {
		s.poster = notifybot.NewLogPoster(s.logger)
	}
	s.posts = posting.NewService(postStore, s.deals, s.poster, s.payments, cfg.VerificationWindow)

	// Background jobs: stale-deal timeouts and post verification
	s.timeoutTimer = deal.NewTimeoutTimer(s.deals, s.payments, cfg.DealTimeout, cfg.TimeoutJobInterval, s.logger)
	s.verifyTimer = posting.NewVerificationTimer(s.posts, s.deals, s.payments, cfg.VerifyJobInterval, s.logger)

	s.setupHealthChecks()

	// Tracing is optional; disabled when no OTLP endpoint is configured
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing disabled", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
	}

	// Setup router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

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

	s.checks.Register("chain", func(ctx context.Context) health.Status {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		master, err := s.tonClient.MasterAddress()
		if err == nil {
			_, err = s.tonClient.Balance(ctx, master)
		}
		if err != nil {
			return health.Status{Name: "chain", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "chain", Healthy: true}
	})

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

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
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

// requireHeaderSecret gates a route group on a shared-secret header. If
// no secret is configured the group is disabled outright.
func requireHeaderSecret(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Endpoint not enabled",
			})
			return
		}
		provided := c.GetHeader(header)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or missing " + header,
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket endpoint for realtime events
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")
	{
		deal.NewHandler(s.deals).RegisterRoutes(v1)

		payHandler := payment.NewHandler(s.payments)
		payHandler.RegisterRoutes(v1)

		posting.NewHandler(s.posts).RegisterRoutes(v1)

		// Service-to-service operations (release/refund). These move
		// funds and are never exposed to end users directly.
		internal := v1.Group("/internal")
		internal.Use(requireHeaderSecret("X-Internal-Key", s.cfg.InternalAPIKey))
		payHandler.RegisterInternalRoutes(internal)

		// Operator endpoints
		admin := v1.Group("/admin")
		admin.Use(requireHeaderSecret("X-Admin-Secret", s.cfg.AdminSecret))
		payHandler.RegisterAdminRoutes(admin)
		admin.GET("/realtime/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, s.hub.Stats())
		})
		admin.POST("/timeouts/run", s.runTimeoutsHandler)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// runTimeoutsHandler triggers one stale-deal pass outside the timer
// cadence. Useful when an operator shortens DEAL_TIMEOUT and wants the
// backlog cleared now.
func (s *Server) runTimeoutsHandler(c *gin.Context) {
	cancelled := s.timeoutTimer.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
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
		master, _ := s.tonClient.MasterAddress()
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"master_wallet", master,
			"escrow_strategy", s.cfg.EscrowStrategy,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start background jobs
	go s.timeoutTimer.Start(runCtx)
	go s.verifyTimer.Start(runCtx)

	// Export connection pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 30*time.Second)
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

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timers)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop background jobs
	if s.timeoutTimer != nil {
		s.timeoutTimer.Stop()
		s.logger.Info("timeout timer stopped")
	}
	if s.verifyTimer != nil {
		s.verifyTimer.Stop()
		s.logger.Info("verification timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
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
