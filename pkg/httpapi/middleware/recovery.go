package middleware

import (
	"fmt"

	"github.com/swarmdb/node/pkg/httpapi"
	"github.com/swarmdb/node/pkg/logging"
)

// RecoveryConfig configures panic recovery middleware.
type RecoveryConfig struct {
	// Logger is the logger used for panic logging (default: logging.NewDefaultLogger()).
	Logger logging.Logger

	// StackTrace includes the panic value in the error response. Use with
	// caution in production; off by default.
	StackTrace bool
}

// DefaultRecoveryConfig returns a default recovery configuration.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Logger:     logging.NewDefaultLogger(),
		StackTrace: false,
	}
}

// Recovery middleware recovers from panics in downstream handlers and
// returns a 500 error envelope instead of letting the server crash.
func Recovery(config RecoveryConfig) httpapi.Middleware {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return func(next httpapi.RequestHandler) httpapi.RequestHandler {
		return func(ctx *httpapi.RequestContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					fields := map[string]interface{}{
						"request_id": ctx.RequestID(),
						"method":     ctx.Method(),
						"path":       ctx.Path(),
						"panic":      r,
					}
					logger.WithFields(fields).Errorf("panic recovered: %v", r)

					message := "internal server error"
					if config.StackTrace {
						message = fmt.Sprintf("panic: %v", r)
					}
					ctx.Error(500, "internal_error", message)
					err = nil
				}
			}()

			return next(ctx)
		}
	}
}
