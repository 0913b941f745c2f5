package httpapi

import (
	"errors"

	"github.com/swarmdb/node/pkg/errs"
)

// WriteError translates err into the matching HTTP status and writes
// the typed error envelope, per the error kind's external visibility:
// PeerUnreachable is replication-internal and should never reach here,
// but is mapped defensively rather than panicking if it does.
func WriteError(ctx *RequestContext, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		ctx.Error(500, "internal_error", err.Error())
		return
	}

	switch e.Kind {
	case errs.KindNotFound:
		ctx.Error(404, string(e.Kind), e.Error())
	case errs.KindAuthFailed:
		ctx.Error(401, string(e.Kind), e.Error())
	case errs.KindQueryError, errs.KindConflict, errs.KindDuplicate:
		ctx.Error(400, string(e.Kind), e.Error())
	case errs.KindBackpressure:
		ctx.Error(429, string(e.Kind), e.Error())
	case errs.KindCancelled:
		ctx.Error(499, string(e.Kind), e.Error())
	case errs.KindInvariantViolation, errs.KindStorage, errs.KindPeerUnreachable:
		ctx.Error(500, string(e.Kind), e.Error())
	default:
		ctx.Error(500, string(e.Kind), e.Error())
	}
}
