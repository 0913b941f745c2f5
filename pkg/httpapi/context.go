package httpapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/swarmdb/node/pkg/reqctx"
	"github.com/valyala/fasthttp"
)

// RequestContext wraps a fasthttp request with the node-specific
// conveniences every handler needs: JSON binding, path params, and a
// context.Context carrying the request id for logging/tracing.
type RequestContext struct {
	RequestCtx *fasthttp.RequestCtx
	Params     map[string]string
	requestID  string
}

// JSON writes a JSON response.
func (c *RequestContext) JSON(statusCode int, data interface{}) error {
	if statusCode < 100 || statusCode > 599 {
		return fmt.Errorf("invalid status code: %d", statusCode)
	}
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("application/json")
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	_, err = c.RequestCtx.Write(body)
	return err
}

// Error writes a typed error envelope. Callers translate errs.Kind into
// the matching HTTP status before calling this.
func (c *RequestContext) Error(statusCode int, code, message string) {
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("application/json")
	_, _ = c.RequestCtx.WriteString(fmt.Sprintf(`{"error":%q,"message":%q,"request_id":%q}`, code, message, c.requestID))
}

// BindJSON decodes the request body into v.
func (c *RequestContext) BindJSON(v interface{}) error {
	body := c.RequestCtx.PostBody()
	if len(body) == 0 {
		return fmt.Errorf("empty request body")
	}
	return json.Unmarshal(body, v)
}

// Query returns a query-string parameter.
func (c *RequestContext) Query(key string) string {
	return string(c.RequestCtx.QueryArgs().Peek(key))
}

// Param returns a path parameter extracted by the router.
func (c *RequestContext) Param(key string) string {
	return c.Params[key]
}

// Method returns the request method.
func (c *RequestContext) Method() string {
	return string(c.RequestCtx.Method())
}

// Path returns the request path.
func (c *RequestContext) Path() string {
	return string(c.RequestCtx.Path())
}

// RequestID returns the request id assigned to this request.
func (c *RequestContext) RequestID() string {
	return c.requestID
}

// Context returns a context.Context carrying the request id, suitable for
// passing to cancellable node operations (query execution, subscriptions).
func (c *RequestContext) Context() context.Context {
	return reqctx.WithRequestID(context.Background(), c.requestID)
}

// BearerToken extracts the bearer token from the Authorization header, if any.
func (c *RequestContext) BearerToken() (string, bool) {
	const prefix = "Bearer "
	auth := string(c.RequestCtx.Request.Header.Peek("Authorization"))
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return "", false
	}
	return auth[len(prefix):], true
}

// Set stores a value keyed by name on this request's context bag,
// accessible to downstream handlers via Get. Used by authentication
// middleware to hand the verified principal to the handler.
func (c *RequestContext) Set(key string, v interface{}) {
	c.RequestCtx.SetUserValue(key, v)
}

// Get retrieves a value previously stored with Set.
func (c *RequestContext) Get(key string) interface{} {
	return c.RequestCtx.UserValue(key)
}
