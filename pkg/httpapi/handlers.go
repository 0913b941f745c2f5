package httpapi

import (
	"github.com/swarmdb/node/pkg/node"
	"github.com/swarmdb/node/pkg/query"
	"github.com/swarmdb/node/pkg/wire"
)

// Handlers binds the node's components to the HTTP boundary's request
// handlers, per spec.md §6.
type Handlers struct {
	n     *node.Node
	admin *node.AdminOps
}

// NewHandlers builds the HTTP boundary's handler set bound to n.
func NewHandlers(n *node.Node) *Handlers {
	return &Handlers{n: n, admin: node.NewAdminOps(n)}
}

type appendRequest struct {
	Tags    []string `json:"tags"`
	Payload []byte   `json:"payload"`
	AppID   string   `json:"app_id"`
}

type appendResponse struct {
	Event wire.Event `json:"event"`
	ID    string     `json:"id"`
}

// PostEvents handles POST /events: append_local.
func (h *Handlers) PostEvents(ctx *RequestContext) error {
	var req appendRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.Error(400, "bad_request", "invalid append request body")
		return nil
	}

	e, err := h.n.AppendLocal(req.Tags, req.Payload, req.AppID)
	if err != nil {
		WriteError(ctx, err)
		return nil
	}
	return ctx.JSON(200, appendResponse{Event: e, ID: e.ID()})
}

type queryRequest struct {
	Plan       *query.Plan    `json:"plan"`
	LowerBound wire.OffsetMap `json:"lower_bound"`
	Order      query.Order    `json:"order"`
}

type queryResponse struct {
	Results []query.Result `json:"results"`
}

// PostQuery handles POST /query: query_range against the node's current
// present snapshot as the upper bound. AQL parsing happens upstream of
// this boundary; the body already carries a parsed plan.
func (h *Handlers) PostQuery(ctx *RequestContext) error {
	var req queryRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.Error(400, "bad_request", "invalid query request body")
		return nil
	}
	if req.Plan == nil {
		ctx.Error(400, "bad_request", "query request missing plan")
		return nil
	}

	results, err := h.admin.RunQuery(ctx.Context(), req.Plan, req.LowerBound, req.Order)
	if err != nil {
		WriteError(ctx, err)
		return nil
	}
	return ctx.JSON(200, queryResponse{Results: results})
}

type offsetsResponse struct {
	Offsets wire.OffsetMap `json:"offsets"`
}

// GetOffsets handles GET /offsets: dump the present offset map.
func (h *Handlers) GetOffsets(ctx *RequestContext) error {
	return ctx.JSON(200, offsetsResponse{Offsets: h.admin.DumpOffsets()})
}

type nodeIDResponse struct {
	Fingerprint string `json:"fingerprint"`
	StreamID    string `json:"stream_id"`
}

// GetNodeID handles GET /node_id: this node's fingerprint and local
// stream id.
func (h *Handlers) GetNodeID(ctx *RequestContext) error {
	return ctx.JSON(200, nodeIDResponse{
		Fingerprint: h.n.Identity.Fingerprint(),
		StreamID:    h.n.Registry.LocalStreamID(),
	})
}

type topicsResponse struct {
	Topics []string `json:"topics"`
}

// GetTopics handles GET /topics: the admin list-topics operation.
func (h *Handlers) GetTopics(ctx *RequestContext) error {
	topics, err := h.admin.ListTopics()
	if err != nil {
		WriteError(ctx, err)
		return nil
	}
	return ctx.JSON(200, topicsResponse{Topics: topics})
}

// DeleteTopic handles DELETE /topics/:topic: the admin delete-topic operation.
func (h *Handlers) DeleteTopic(ctx *RequestContext) error {
	topic := ctx.Param("topic")
	if topic == "" {
		ctx.Error(400, "bad_request", "missing topic path parameter")
		return nil
	}
	if err := h.admin.DeleteTopic(topic); err != nil {
		WriteError(ctx, err)
		return nil
	}
	ctx.RequestCtx.SetStatusCode(204)
	return nil
}

type settingRequest struct {
	Value string `json:"value"`
}

type settingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetSetting handles GET /settings/:key.
func (h *Handlers) GetSetting(ctx *RequestContext) error {
	key := ctx.Param("key")
	value, ok, err := h.admin.GetSetting(key)
	if err != nil {
		WriteError(ctx, err)
		return nil
	}
	if !ok {
		ctx.Error(404, "not_found", "no setting for key "+key)
		return nil
	}
	return ctx.JSON(200, settingResponse{Key: key, Value: value})
}

// PutSetting handles PUT /settings/:key.
func (h *Handlers) PutSetting(ctx *RequestContext) error {
	key := ctx.Param("key")
	var req settingRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.Error(400, "bad_request", "invalid setting request body")
		return nil
	}
	if err := h.admin.SetSetting(key, req.Value); err != nil {
		WriteError(ctx, err)
		return nil
	}
	return ctx.JSON(200, settingResponse{Key: key, Value: req.Value})
}
