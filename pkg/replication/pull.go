package mesh

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/swarmdb/node/pkg/errs"
	"github.com/swarmdb/node/pkg/tracing"
	"github.com/swarmdb/node/pkg/wire"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultCreditWindow bounds how many events a single pull request asks
// for at once, multiplexing multiple in-flight pulls per peer per the
// Replication Engine's backpressure model.
const DefaultCreditWindow = 256

// PullRequestTimeout bounds how long a single pull round waits for a reply.
const PullRequestTimeout = 5 * time.Second

// LocalLog is the subset of the Event Log a pull responder needs to
// answer PullRequests.
type LocalLog interface {
	ReadRange(streamID string, fromOffset, toOffsetInclusive uint64) ([]wire.Event, error)
}

// ServePulls answers incoming pull requests for this node's own
// streams out of log, until unsubscribed.
func ServePulls(nc *nats.Conn, cfg SwarmConfig, streamID string, log LocalLog) (*nats.Subscription, error) {
	return nc.Subscribe(cfg.subjectPull(streamID), func(msg *nats.Msg) {
		plain, err := Open(cfg.Key, msg.Data)
		if err != nil {
			return
		}
		req, err := wire.DecodePullRequest(plain)
		if err != nil {
			return
		}

		var resp wire.PullResponse
		to := req.FromOffset + uint64(req.Limit) - 1
		events, err := log.ReadRange(req.StreamID, req.FromOffset, to)
		if err != nil {
			resp.Err = err.Error()
		} else {
			resp.Events = events
		}

		body, err := resp.Encode()
		if err != nil {
			return
		}
		sealed, err := Seal(cfg.Key, body)
		if err != nil {
			return
		}
		_ = nc.Publish(msg.Reply, sealed)
	})
}

// Acceptor durably applies events pulled from a peer. eventlog.EventLog
// satisfies this directly.
type Acceptor interface {
	AppendRemote(e wire.Event) error
}

// PullSession drives one stream's catch-up against one peer: request a
// credit window starting at local_offset+1, apply the response in
// strict offset order, abort on any ordering violation or conflict.
type PullSession struct {
	nc      *nats.Conn
	cfg     SwarmConfig
	breaker *CircuitBreaker
}

// NewPullSession creates a pull session guarded by breaker for
// PeerUnreachable retry-with-backoff, per spec.md §4.E.5.
func NewPullSession(nc *nats.Conn, cfg SwarmConfig, breaker *CircuitBreaker) *PullSession {
	return &PullSession{nc: nc, cfg: cfg, breaker: breaker}
}

// PullUpTo pulls streamID forward from fromOffset (inclusive) through
// remoteOffset (inclusive), applying each event to acceptor in strict
// offset order. Returns the next offset still to be applied (one past
// the last event applied, or fromOffset if none was); on an error,
// returns that same next offset with the error, so the caller resumes
// from it on the next attempt.
func (s *PullSession) PullUpTo(acceptor Acceptor, streamID string, fromOffset, remoteOffset uint64) (uint64, error) {
	_, span := tracing.Tracer().Start(context.Background(), "mesh.PullSession.PullUpTo")
	span.SetAttributes(
		tracing.StreamAttribute(streamID),
		attribute.Int64("swarmdb.from_offset", int64(fromOffset)),
		attribute.Int64("swarmdb.remote_offset", int64(remoteOffset)),
	)
	defer span.End()

	if !s.breaker.Allow() {
		err := errs.PeerUnreachable(streamID, "circuit breaker open")
		span.SetStatus(codes.Error, err.Error())
		return fromOffset, err
	}

	cursor := fromOffset
	for cursor <= remoteOffset {
		window := remoteOffset - cursor + 1
		if window > DefaultCreditWindow {
			window = DefaultCreditWindow
		}

		events, err := s.requestBatch(streamID, cursor, int(window))
		if err != nil {
			s.breaker.Failure()
			pErr := errs.PeerUnreachable(streamID, err.Error())
			span.SetStatus(codes.Error, pErr.Error())
			return cursor, pErr
		}
		s.breaker.Success()

		if len(events) == 0 {
			span.SetAttributes(attribute.Int64("swarmdb.reached_offset", int64(cursor)))
			return cursor, nil
		}

		for _, e := range events {
			if e.Offset != cursor {
				err := errs.InvariantViolation(streamID, e.Offset)
				span.SetStatus(codes.Error, err.Error())
				return cursor, err
			}
			if err := acceptor.AppendRemote(e); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return cursor, err
			}
			cursor++
		}
	}
	span.SetAttributes(attribute.Int64("swarmdb.reached_offset", int64(cursor)))
	return cursor, nil
}

func (s *PullSession) requestBatch(streamID string, fromOffset uint64, limit int) ([]wire.Event, error) {
	req := wire.PullRequest{StreamID: streamID, FromOffset: fromOffset, Limit: limit}
	body, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("mesh: encoding pull request: %w", err)
	}
	sealed, err := Seal(s.cfg.Key, body)
	if err != nil {
		return nil, err
	}

	msg, err := s.nc.Request(s.cfg.subjectPull(streamID), sealed, PullRequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("mesh: pull request for %s: %w", streamID, err)
	}

	plain, err := Open(s.cfg.Key, msg.Data)
	if err != nil {
		return nil, fmt.Errorf("mesh: opening pull response for %s: %w", streamID, err)
	}
	resp, err := wire.DecodePullResponse(plain)
	if err != nil {
		return nil, err
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("mesh: peer reported error for %s: %s", streamID, resp.Err)
	}
	return resp.Events, nil
}
