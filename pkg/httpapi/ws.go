package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/swarmdb/node/pkg/logging"
	"github.com/swarmdb/node/pkg/node"
	"github.com/swarmdb/node/pkg/query"
	"github.com/swarmdb/node/pkg/reqctx"
	"github.com/swarmdb/node/pkg/wire"
)

// wsMessage is the streaming delivery frame sent to a /subscribe or
// /subscribe_monotonic client, and the one subscribe request frame it
// sends first. Grounded on the teacher's WebSocketEventBusBridge
// message loop (pkg/core/eventbus_ws.go), narrowed from a general
// pub/sub envelope to one subscription's lifecycle: a request, then a
// stream of results/caught_up/time_travel markers.
type wsMessage struct {
	Op string `json:"op,omitempty"` // client->server: "subscribe"

	Tags       []string       `json:"tags,omitempty"`
	Mode       query.TagMode  `json:"mode,omitempty"`
	LowerBound wire.OffsetMap `json:"lower_bound,omitempty"`

	Result     *query.Result `json:"result,omitempty"`
	CaughtUp   bool          `json:"caught_up,omitempty"`
	TimeTravel bool          `json:"time_travel,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// WebSocketBridge serves the /subscribe and /subscribe_monotonic
// streaming endpoints over a plain net/http listener, since gorilla/
// websocket upgrades a net/http connection rather than a fasthttp one;
// Server runs this bridge's handler on its own listener alongside the
// fasthttp REST API.
type WebSocketBridge struct {
	n        *node.Node
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewWebSocketBridge builds a streaming bridge bound to n.
func NewWebSocketBridge(n *node.Node) *WebSocketBridge {
	return &WebSocketBridge{
		n: n,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logging.NewDefaultLogger(),
	}
}

// HandleSubscribe upgrades the connection, reads one subscribe request,
// and streams every Delivery back as a JSON frame until the client
// disconnects.
func (b *WebSocketBridge) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Errorf("subscribe websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var req wsMessage
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(wsMessage{Error: "invalid subscribe request: " + err.Error()})
		return
	}

	ctx := reqctx.WithNewRequestID(context.Background())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	plan := query.SourcePlan(query.Source{Tags: req.Tags, Mode: req.Mode})
	sub, err := b.n.Query.Subscribe(ctx, plan, req.LowerBound, 64)
	if err != nil {
		_ = conn.WriteJSON(wsMessage{Error: err.Error()})
		return
	}
	defer sub.Close()

	go b.drainClientDisconnect(conn, cancel)

	for delivery := range sub.Out() {
		frame := wsMessage{
			Result:     delivery.Result,
			CaughtUp:   delivery.CaughtUp,
			TimeTravel: delivery.TimeTravel,
		}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
		if delivery.TimeTravel {
			return
		}
	}
}

// drainClientDisconnect reads (and discards) client frames so a closed
// connection is detected and cancels ctx, unblocking the delivery loop.
func (b *WebSocketBridge) drainClientDisconnect(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
