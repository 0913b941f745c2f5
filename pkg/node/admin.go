package node

import (
	"context"

	"github.com/swarmdb/node/pkg/errs"
	"github.com/swarmdb/node/pkg/query"
	"github.com/swarmdb/node/pkg/wire"
)

// AdminOps is the admin surface an external CLI driver calls: list/
// delete topics, dump offsets, run a parsed query, get/set settings.
// Kept as a Go API rather than a command parser per spec.md §6 — the
// CLI binary that turns flags into these calls, and these results into
// an exit code, is an explicit out-of-scope collaborator.
type AdminOps struct {
	n *Node
}

// NewAdminOps builds the admin surface bound to n.
func NewAdminOps(n *Node) *AdminOps {
	return &AdminOps{n: n}
}

// ListTopics returns every topic with at least one stream assigned.
func (a *AdminOps) ListTopics() ([]string, error) {
	return a.n.Catalog.Topics()
}

// DeleteTopic removes every stream assigned to topic from the Tag
// Index and Stream Registry, and drops the topic's catalog assignment.
// The local stream is never removable, per the Stream Registry's own
// DeleteTopic guard.
func (a *AdminOps) DeleteTopic(topic string) error {
	streamIDs, err := a.n.Catalog.StreamsForTopic(topic)
	if err != nil {
		return err
	}
	if len(streamIDs) == 0 {
		return errs.NotFound("no streams assigned to topic " + topic)
	}

	a.n.Tags.DeleteTopic(streamIDs)
	a.n.Registry.DeleteTopic(streamIDs)
	return a.n.Catalog.RemoveTopic(topic)
}

// DumpOffsets returns the present offset map across every known stream.
func (a *AdminOps) DumpOffsets() wire.OffsetMap {
	return wire.OffsetMap(a.n.Registry.PresentSnapshot())
}

// RunQuery executes an already-parsed plan in bounded mode against the
// node's current present snapshot as the upper bound.
func (a *AdminOps) RunQuery(ctx context.Context, plan *query.Plan, lowerBound wire.OffsetMap, order query.Order) ([]query.Result, error) {
	upper := wire.OffsetMap(a.n.Registry.PresentSnapshot())
	return a.n.Query.QueryRange(ctx, plan, lowerBound, upper, order)
}

// GetSetting returns the stored value for key, if any.
func (a *AdminOps) GetSetting(key string) (string, bool, error) {
	return a.n.Settings.Get(key)
}

// SetSetting stores value for key.
func (a *AdminOps) SetSetting(key, value string) error {
	return a.n.Settings.Set(key, value)
}
