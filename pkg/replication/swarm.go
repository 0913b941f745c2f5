package mesh

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// SwarmConfig configures this node's participation in one swarm's
// peer-to-peer overlay.
type SwarmConfig struct {
	// Fingerprint namespaces every subject this node uses for this
	// swarm: "<fingerprint>.gossip", "<fingerprint>.pull.<stream_id>".
	Fingerprint string

	// Key seals every gossip and pull frame.
	Key SwarmKey

	// ListenHost/ListenPort configure the embedded NATS server other
	// local peers can join. Port 0 (or -1) picks a random free port.
	ListenHost string
	ListenPort int

	// Seeds lists NATS URLs of known peers to dial out to in addition
	// to whatever joins this node's embedded server.
	Seeds []string
}

// subjectGossip returns the swarm's present-offset-map gossip subject.
func (c SwarmConfig) subjectGossip() string {
	return c.Fingerprint + ".gossip"
}

// subjectPull returns the per-stream pull-request subject.
func (c SwarmConfig) subjectPull(streamID string) string {
	return c.Fingerprint + ".pull." + streamID
}

// EmbeddedServer runs a NATS server instance local peers can join,
// grounded on the teacher's own embedded-server test harness
// (eventbus_cluster_nats_test.go's runTestNATSServer).
func EmbeddedServer(cfg SwarmConfig) (*server.Server, error) {
	opts := &server.Options{
		Host: cfg.ListenHost,
		Port: cfg.ListenPort,
	}
	if opts.Port == 0 {
		opts.Port = -1
	}

	s, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("mesh: starting embedded NATS server: %w", err)
	}
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		return nil, fmt.Errorf("mesh: embedded NATS server did not become ready")
	}
	return s, nil
}

// Dial connects to a NATS URL, one connection per configured seed plus
// this node's own embedded server's client URL.
func Dial(url string, connName string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, func(o *nats.Options) error {
		if connName != "" {
			o.Name = connName
		}
		o.MaxReconnect = -1
		o.ReconnectWait = 500 * time.Millisecond
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mesh: connecting to %s: %w", url, err)
	}
	return nc, nil
}
