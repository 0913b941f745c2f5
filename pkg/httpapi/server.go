package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/swarmdb/node/pkg/authgate"
	"github.com/swarmdb/node/pkg/httpapi/middleware"
	"github.com/swarmdb/node/pkg/identity"
	"github.com/swarmdb/node/pkg/node"
	"github.com/swarmdb/node/pkg/reqctx"
	"github.com/valyala/fasthttp"
)

// ServerConfig configures the node's HTTP boundary.
type ServerConfig struct {
	// ListenAddr is the REST API's fasthttp listen address (host:port).
	ListenAddr string

	// WSListenAddr is the streaming endpoints' net/http listen address.
	WSListenAddr string

	// SessionSecret signs and verifies bearer session tokens.
	SessionSecret string

	// Gate verifies the manifest/dev-cert handshake for POST /auth.
	Gate *identity.Gate

	// RateLimit bounds requests per client; a zero value falls back to
	// middleware.DefaultRateLimitConfig's 100 req/min per client.
	RateLimit middleware.RateLimitConfig

	// ExtraMiddleware is appended to the global chain after Recovery and
	// before RateLimit, letting a caller observe every request (metrics,
	// tracing) without this package importing those collectors directly
	// and creating an import cycle back through pkg/metrics' own
	// Middleware integration.
	ExtraMiddleware []Middleware
}

// Server runs the node's HTTP boundary: the fasthttp REST API plus the
// net/http websocket streaming endpoints, per spec.md §6.
type Server struct {
	cfg      ServerConfig
	router   *Router
	handlers *Handlers
	ws       *WebSocketBridge

	fasthttpServer *fasthttp.Server
	wsServer       *http.Server
}

// NewServer builds (but does not start) the node's HTTP boundary bound
// to n.
func NewServer(cfg ServerConfig, n *node.Node) *Server {
	router := NewRouter()
	handlers := NewHandlers(n)
	ws := NewWebSocketBridge(n)

	router.Use(requestIDMiddleware, middleware.Recovery(middleware.DefaultRecoveryConfig()))
	router.Use(cfg.ExtraMiddleware...)
	router.Use(
		middleware.RateLimit(cfg.RateLimit),
		middleware.Timeout(middleware.DefaultTimeoutConfig(30*time.Second)),
		authgate.SessionAuth(authgate.SessionTokenConfig{
			SecretKey:    cfg.SessionSecret,
			ValidMethods: []string{"HS256"},
			SkipPaths:    []string{"/auth", "/node_id"},
		}),
	)

	issuer := authgate.NewSessionTokenIssuer([]byte(cfg.SessionSecret))
	router.POST("/auth", authgate.Handshake(authgate.HandshakeConfig{Gate: cfg.Gate, Issuer: issuer, TTL: time.Hour}))

	router.POST("/events", handlers.PostEvents)
	router.POST("/query", handlers.PostQuery)
	router.GET("/offsets", handlers.GetOffsets)
	router.GET("/node_id", handlers.GetNodeID)
	router.GET("/topics", handlers.GetTopics)
	router.DELETE("/topics/:topic", handlers.DeleteTopic)
	router.GET("/settings/:key", handlers.GetSetting)
	router.Handle(fasthttp.MethodPut, "/settings/:key", handlers.PutSetting)

	return &Server{cfg: cfg, router: router, handlers: handlers, ws: ws}
}

// requestIDMiddleware assigns a fresh request id to every incoming
// request before any other handler runs.
func requestIDMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestContext) error {
		ctx.requestID = reqctx.NewRequestID()
		return next(ctx)
	}
}

// ListenAndServe starts both listeners and blocks until either fails or
// Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.fasthttpServer = &fasthttp.Server{
		Handler: func(rc *fasthttp.RequestCtx) {
			s.router.Serve(&RequestContext{RequestCtx: rc})
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/subscribe", s.ws.HandleSubscribe)
	mux.HandleFunc("/subscribe_monotonic", s.ws.HandleSubscribe)
	s.wsServer = &http.Server{Addr: s.cfg.WSListenAddr, Handler: mux}

	errCh := make(chan error, 2)
	go func() { errCh <- s.fasthttpServer.ListenAndServe(s.cfg.ListenAddr) }()
	go func() { errCh <- s.wsServer.ListenAndServe() }()

	err := <-errCh
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: server exited: %w", err)
	}
	return nil
}

// Shutdown gracefully stops both listeners.
func (s *Server) Shutdown() error {
	if s.fasthttpServer != nil {
		if err := s.fasthttpServer.Shutdown(); err != nil {
			return err
		}
	}
	if s.wsServer != nil {
		return s.wsServer.Close()
	}
	return nil
}
