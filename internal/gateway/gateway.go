// ABOUTME: Gateway orchestrator that wires the store, broadcaster, auth, and AI pipeline
// ABOUTME: Manages the HTTP server lifecycle, routes, and health endpoints

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuschat/gateway/internal/ai"
	"github.com/campuschat/gateway/internal/auth"
	"github.com/campuschat/gateway/internal/broadcast"
	"github.com/campuschat/gateway/internal/config"
	"github.com/campuschat/gateway/internal/metrics"
	"github.com/campuschat/gateway/internal/store"
)

// Gateway orchestrates the chat-gateway server components. It owns the
// HTTP server carrying the WebSocket endpoints, the REST API, health
// checks, and the metrics endpoint.
type Gateway struct {
	config        *config.Config
	store         store.Store
	broadcaster   broadcast.Broadcaster
	authenticator auth.Authenticator
	verifier      *auth.JWTVerifier
	orchestrator  *ai.Orchestrator
	assembler     *ai.Assembler
	httpServer    *http.Server
	logger        *slog.Logger
}

// initStore creates a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CHAT_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initBroadcaster creates the fanout backend: redis pub/sub when
// enabled, otherwise in-process.
func initBroadcaster(cfg *config.Config, logger *slog.Logger) (broadcast.Broadcaster, error) {
	if !cfg.Redis.Enabled {
		return broadcast.NewMemoryBroadcaster(logger), nil
	}
	b, err := broadcast.NewRedisBroadcaster(context.Background(), cfg.Redis.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing redis broadcaster: %w", err)
	}
	logger.Info("redis fanout enabled", "url", cfg.Redis.URL)
	return b, nil
}

// initCompletionClient creates the completion client from config. A
// missing API key is allowed at startup; AI endpoints then fail with an
// upstream error instead of blocking chat functionality.
func initCompletionClient(cfg *config.Config, logger *slog.Logger) ai.CompletionClient {
	if cfg.AI.APIKey == "" {
		logger.Warn("ai.api_key not configured - AI conversations will fail")
		return unconfiguredClient{}
	}
	client, err := ai.NewOpenAIClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model)
	if err != nil {
		logger.Warn("completion client unavailable", "error", err)
		return unconfiguredClient{}
	}
	return client
}

// unconfiguredClient fails every call; used when no provider is configured.
type unconfiguredClient struct{}

func (unconfiguredClient) Complete(context.Context, []ai.PromptMessage) (*ai.Completion, error) {
	return nil, errors.New("no completion provider configured")
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	broadcaster, err := initBroadcaster(cfg, logger)
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	assembler := ai.NewAssembler(s, logger)
	orchestrator := ai.NewOrchestrator(s, assembler, initCompletionClient(cfg, logger), logger)

	gw := &Gateway{
		config:        cfg,
		store:         s,
		broadcaster:   broadcaster,
		authenticator: auth.NewJWTAuthenticator(verifier, s),
		verifier:      verifier,
		orchestrator:  orchestrator,
		assembler:     assembler,
		logger:        logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// registerRoutes registers all HTTP routes on the mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	if g.config.Metrics.Enabled {
		mux.Handle(g.config.Metrics.Path, promhttp.Handler())
	}

	// WebSocket endpoints authenticate inside the handler so rejection
	// can happen before the upgrade
	mux.HandleFunc("/ws/chat/", g.handleChatWS)
	mux.HandleFunc("/ws/ai-chat/", g.handleAIChatWS)

	// REST API - bearer token required
	authMiddleware := auth.Middleware(g.authenticator)
	mux.Handle("/api/chats/", authMiddleware(http.HandlerFunc(g.handleChatRoutes)))
	mux.Handle("/api/ai/chats", authMiddleware(http.HandlerFunc(g.handleAIChats)))
	mux.Handle("/api/ai/chats/", authMiddleware(http.HandlerFunc(g.handleAIChatRoutes)))
}

// Handler returns the gateway's HTTP handler. Used by tests to mount
// the full route table on an httptest server.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// runTurn executes one AI conversation turn and records its metrics.
func (g *Gateway) runTurn(ctx context.Context, user *store.User, conversationID string, frame sendFrame) (*ai.TurnResult, error) {
	start := time.Now()
	result, err := g.orchestrator.SendMessage(ctx, user, conversationID, frame.Content, ai.TurnOptions{
		IncludeContext: frame.IncludeRelatedChatContext,
		ContextLimit:   frame.ContextMessageLimit,
	})
	switch {
	case err == nil:
		metrics.CompletionsTotal.WithLabelValues("success").Inc()
		metrics.CompletionDuration.Observe(time.Since(start).Seconds())
		metrics.CompletionTokens.WithLabelValues("prompt").Add(float64(result.Usage.PromptTokens))
		metrics.CompletionTokens.WithLabelValues("completion").Add(float64(result.Usage.CompletionTokens))
	case errors.Is(err, ai.ErrExternalService):
		metrics.CompletionsTotal.WithLabelValues("error").Inc()
	}
	return result, err
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, closes all broadcast channels, and
// closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var firstErr error
	if g.httpServer != nil {
		if err := g.httpServer.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("HTTP server shutdown: %w", err)
		}
	}
	g.broadcaster.Close()
	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	g.logger.Info("gateway shutdown complete")
	return firstErr
}

// TokenGenerator exposes token minting for the CLI's token subcommand.
func (g *Gateway) TokenGenerator() *auth.JWTVerifier {
	return g.verifier
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store is reachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.GetUser(r.Context(), "readiness-probe"); err != nil && !errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
