package httpapi

import (
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
)

// RequestHandler handles one request after routing and middleware.
type RequestHandler func(ctx *RequestContext) error

// Middleware wraps a RequestHandler with cross-cutting behavior.
type Middleware func(next RequestHandler) RequestHandler

type route struct {
	method     string
	path       string
	handler    RequestHandler
	middleware []Middleware
}

// Router is a small path-parameter router for the node's HTTP boundary.
// Grounded on the teacher's fastRouter (github.com/fluxorio/fluxor
// pkg/web/fast_router.go), trimmed of the dual std-http/fasthttp
// compatibility layer this node doesn't need.
type Router struct {
	mu         sync.RWMutex
	routes     []*route
	middleware []Middleware
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Use registers global middleware, applied to every route in registration
// order (outermost first).
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Handle registers a route for method+path, optionally with per-route
// middleware applied inside the global middleware chain.
func (r *Router) Handle(method, path string, handler RequestHandler, mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, &route{
		method:     method,
		path:       path,
		handler:    handler,
		middleware: append([]Middleware(nil), mw...),
	})
}

func (r *Router) GET(path string, handler RequestHandler, mw ...Middleware) {
	r.Handle(fasthttp.MethodGet, path, handler, mw...)
}

func (r *Router) POST(path string, handler RequestHandler, mw ...Middleware) {
	r.Handle(fasthttp.MethodPost, path, handler, mw...)
}

func (r *Router) DELETE(path string, handler RequestHandler, mw ...Middleware) {
	r.Handle(fasthttp.MethodDelete, path, handler, mw...)
}

// Serve dispatches ctx to the matching route. Unmatched requests get 404.
func (r *Router) Serve(ctx *RequestContext) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	method := ctx.Method()
	path := ctx.Path()

	for _, rt := range r.routes {
		if rt.method != method || !matchPath(rt.path, path) {
			continue
		}
		if ctx.Params == nil {
			ctx.Params = make(map[string]string)
		}
		extractParams(rt.path, path, ctx.Params)

		handler := rt.handler
		for i := len(rt.middleware) - 1; i >= 0; i-- {
			handler = rt.middleware[i](handler)
		}
		for i := len(r.middleware) - 1; i >= 0; i-- {
			handler = r.middleware[i](handler)
		}

		if err := handler(ctx); err != nil {
			ctx.Error(fasthttp.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	ctx.Error(fasthttp.StatusNotFound, "not_found", "no route for "+method+" "+path)
}

func matchPath(pattern, path string) bool {
	pp := strings.Split(pattern, "/")
	ap := strings.Split(path, "/")
	if len(pp) != len(ap) {
		return false
	}
	for i, part := range pp {
		if strings.HasPrefix(part, ":") {
			continue
		}
		if part != ap[i] {
			return false
		}
	}
	return true
}

func extractParams(pattern, path string, out map[string]string) {
	pp := strings.Split(pattern, "/")
	ap := strings.Split(path, "/")
	for i, part := range pp {
		if strings.HasPrefix(part, ":") && i < len(ap) {
			out[strings.TrimPrefix(part, ":")] = ap[i]
		}
	}
}
