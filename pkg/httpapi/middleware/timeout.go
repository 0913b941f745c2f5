package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/swarmdb/node/pkg/httpapi"
	"github.com/swarmdb/node/pkg/logging"
)

// TimeoutConfig configures request timeout middleware.
type TimeoutConfig struct {
	// Timeout is the request timeout duration.
	Timeout time.Duration

	// Logger is the logger used for timeout logging (default: logging.NewDefaultLogger()).
	Logger logging.Logger

	// Message is the error message returned when a timeout occurs.
	Message string

	// SkipPaths lists request paths exempt from the timeout (streaming
	// endpoints like /subscribe, which are long-lived by design).
	SkipPaths []string
}

// DefaultTimeoutConfig returns a default timeout configuration.
func DefaultTimeoutConfig(timeout time.Duration) TimeoutConfig {
	return TimeoutConfig{
		Timeout:   timeout,
		Logger:    logging.NewDefaultLogger(),
		Message:   "request timeout",
		SkipPaths: []string{},
	}
}

// Timeout middleware enforces a request deadline on the downstream
// handler, returning 504 when exceeded. Handlers must respect
// ctx.Context()'s cancellation for this to actually bound work.
func Timeout(config TimeoutConfig) httpapi.Middleware {
	if config.Timeout <= 0 {
		panic("Timeout: timeout duration must be positive")
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	message := config.Message
	if message == "" {
		message = "request timeout"
	}

	return func(next httpapi.RequestHandler) httpapi.RequestHandler {
		return func(ctx *httpapi.RequestContext) error {
			path := ctx.Path()
			for _, skipPath := range config.SkipPaths {
				if path == skipPath || strings.HasPrefix(path, skipPath) {
					return next(ctx)
				}
			}

			timeoutCtx, cancel := context.WithTimeout(ctx.Context(), config.Timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- next(ctx)
			}()

			select {
			case err := <-done:
				return err
			case <-timeoutCtx.Done():
				fields := map[string]interface{}{
					"request_id": ctx.RequestID(),
					"method":     ctx.Method(),
					"path":       path,
					"timeout":    config.Timeout.String(),
				}
				logger.WithFields(fields).Warnf("request timeout: %s %s", ctx.Method(), path)

				ctx.Error(504, "timeout", message)
				return nil
			}
		}
	}
}
