package metrics

import (
	"time"

	"github.com/swarmdb/node/pkg/httpapi"
)

// HTTPMiddleware returns middleware that records HTTP metrics for every
// request passing through the router.
func HTTPMiddleware() httpapi.Middleware {
	m := GetMetrics()
	return func(next httpapi.RequestHandler) httpapi.RequestHandler {
		return func(ctx *httpapi.RequestContext) error {
			start := time.Now()
			method := ctx.Method()
			path := ctx.Path()
			requestSize := int64(len(ctx.RequestCtx.PostBody()))

			err := next(ctx)

			duration := time.Since(start)
			status := ctx.RequestCtx.Response.StatusCode()
			statusStr := statusCodeClass(status)
			responseSize := int64(ctx.RequestCtx.Response.Header.ContentLength())
			if responseSize < 0 {
				responseSize = 0
			}

			m.RecordHTTPRequest(method, path, statusStr, duration, requestSize, responseSize)
			return err
		}
	}
}

// UpdateFromBackpressure mirrors a backpressure controller's admission
// state into the server gauges.
func UpdateFromBackpressure(bp httpapi.BackpressureMetrics, queued int64) {
	GetMetrics().UpdateServerMetrics(bp.CurrentLoad, bp.Capacity, bp.Utilization, bp.Rejected, queued)
}

func statusCodeClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
