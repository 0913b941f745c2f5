// Package node wires every component into the running daemon: the
// Event Log, Tag Index, Stream Registry, Subscription Bus, Query
// Engine, and Replication Engine share one lamport clock and one
// append path. Grounded on the teacher's application-assembly entry
// point (pkg/fluxor/fluxor.go + pkg/fx), simplified to explicit
// constructor wiring since this node's component graph is fixed and
// small enough that the teacher's reflection-based DI container buys
// nothing over calling the constructors directly.
package node

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/swarmdb/node/pkg/eventlog"
	"github.com/swarmdb/node/pkg/failfast"
	"github.com/swarmdb/node/pkg/identity"
	"github.com/swarmdb/node/pkg/lamport"
	"github.com/swarmdb/node/pkg/logging"
	"github.com/swarmdb/node/pkg/query"
	mesh "github.com/swarmdb/node/pkg/replication"
	"github.com/swarmdb/node/pkg/streamreg"
	"github.com/swarmdb/node/pkg/subbus"
	"github.com/swarmdb/node/pkg/tagindex"
	"github.com/swarmdb/node/pkg/taskpool"
	"github.com/swarmdb/node/pkg/wire"
)

// Config configures one running node.
type Config struct {
	// DataDir roots the event log, tag index, and settings catalog.
	DataDir string

	// Durability controls when append_local is acknowledged.
	Durability eventlog.Config

	// Swarm configures this node's replication overlay. A zero-value
	// Fingerprint disables replication (single-node mode).
	Swarm mesh.SwarmConfig

	// BoundedQueryWorkers sizes the Query Engine's executor.
	BoundedQueryWorkers int

	// PgSnapshot, if set (non-empty DSN), periodically checkpoints the
	// present offset map to Postgres for operators running a fleet of
	// nodes behind a shared dashboard. This is additive persistence,
	// never the source of truth — the event log segments are.
	PgSnapshot streamreg.PgSnapshotConfig
}

// Node owns every long-lived component for one running instance.
type Node struct {
	cfg Config
	log logging.Logger

	Identity *identity.Identity
	EventLog *eventlog.EventLog
	Tags     *tagindex.Index
	Catalog  *tagindex.Catalog
	Registry *streamreg.Registry
	Bus      *subbus.Bus
	Clock    *lamport.Clock
	Query    *query.Engine
	Settings *Settings

	mesh      *mesh.Engine
	nc        *nats.Conn
	pool      taskpool.Executor
	pullPool  taskpool.Executor
	pgSnap    *streamreg.PgSnapshot
	pgSnapCtx context.CancelFunc
}

// replicationPullWorkers bounds how many streams the Replication
// Engine can be mid-pull on at once. Separate from the Query Engine's
// executor so a swarm catching up on many lagging streams can't starve
// bounded query scans of workers, or vice versa.
const replicationPullWorkers = 8

// Open takes the caller's identity (it does not load or create one)
// and opens every component, but does
// not yet start the replication overlay or the Postgres snapshot
// checkpointer; call Start for that.
func Open(cfg Config, id *identity.Identity) (*Node, error) {
	failfast.NotNil(id, "identity")
	log := logging.NewLogger(logging.LoggerConfig{Level: "INFO"}).WithFields(map[string]interface{}{"component": "node"})

	elCfg := cfg.Durability
	elCfg.Dir = cfg.DataDir
	evLog, err := eventlog.Open(elCfg)
	if err != nil {
		return nil, fmt.Errorf("node: open event log: %w", err)
	}

	catalog, err := tagindex.OpenCatalog(filepath.Join(cfg.DataDir, "catalog.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("node: open tag catalog: %w", err)
	}

	reg := streamreg.New(id)
	bus := subbus.New()

	workers := cfg.BoundedQueryWorkers
	if workers <= 0 {
		workers = 4
	}
	poolCfg := taskpool.DefaultExecutorConfig()
	poolCfg.Workers = workers
	poolCfg.Logger = log.WithFields(map[string]interface{}{"pool": "query"})
	pool := taskpool.NewExecutor(context.Background(), poolCfg)

	tags := tagindex.New()
	qe := query.NewEngine(evLog, tags, reg, bus, pool)

	settings, err := OpenSettings(filepath.Join(cfg.DataDir, "settings.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("node: open settings store: %w", err)
	}

	return &Node{
		cfg:      cfg,
		log:      log,
		Identity: id,
		EventLog: evLog,
		Tags:     tags,
		Catalog:  catalog,
		Registry: reg,
		Bus:      bus,
		Clock:    lamport.New(),
		Query:    qe,
		Settings: settings,
		pool:     pool,
	}, nil
}

// Start brings up the replication overlay, if configured, and begins
// gossiping/pulling with peers. A zero Fingerprint means single-node
// mode: replication is then skipped. It also starts the optional
// Postgres snapshot checkpointer when PgSnapshot.DSN is set.
func (n *Node) Start(ctx context.Context) error {
	if n.cfg.PgSnapshot.DSN != "" {
		snap, err := streamreg.OpenPgSnapshot(ctx, n.cfg.PgSnapshot)
		if err != nil {
			return fmt.Errorf("node: open postgres snapshot: %w", err)
		}
		n.pgSnap = snap
		snapCtx, cancel := context.WithCancel(ctx)
		n.pgSnapCtx = cancel
		go snap.Run(snapCtx, n.Registry.PresentSnapshot)
	}

	if n.cfg.Swarm.Fingerprint == "" {
		return nil
	}

	srv, err := mesh.EmbeddedServer(n.cfg.Swarm)
	if err != nil {
		return err
	}
	nc, err := mesh.Dial(srv.ClientURL(), "node-"+n.Identity.Fingerprint())
	if err != nil {
		srv.Shutdown()
		return err
	}
	n.nc = nc

	n.mesh = mesh.New(nc, n.cfg.Swarm, n.Registry, meshLog{n})
	pullPoolCfg := taskpool.DefaultExecutorConfig()
	pullPoolCfg.Workers = replicationPullWorkers
	pullPoolCfg.Logger = n.log.WithFields(map[string]interface{}{"pool": "replication_pull"})
	n.pullPool = taskpool.NewExecutor(context.Background(), pullPoolCfg)
	n.mesh.SetPool(n.pullPool)
	go func() {
		if err := n.mesh.Start(ctx); err != nil {
			n.log.Errorf("replication engine stopped: %v", err)
		}
	}()
	return nil
}

// Close releases every component's resources.
func (n *Node) Close() error {
	if n.pgSnapCtx != nil {
		n.pgSnapCtx()
	}
	if n.pgSnap != nil {
		n.pgSnap.Close()
	}
	if n.mesh != nil {
		_ = n.mesh.Close()
	}
	if n.nc != nil {
		n.nc.Close()
	}
	if n.pullPool != nil {
		_ = n.pullPool.Shutdown(context.Background())
	}
	_ = n.pool.Shutdown(context.Background())
	_ = n.Catalog.Close()
	_ = n.Settings.Close()
	return n.EventLog.Close()
}

// AppendLocal appends a new event to this node's own stream, reflecting
// it into the tag index, stream registry, and subscription bus in the
// same order every local append must: durable write first, then the
// in-memory indexes that depend on it being durable.
func (n *Node) AppendLocal(tags []string, payload []byte, appID string) (wire.Event, error) {
	e, err := n.EventLog.AppendLocal(n.Registry.LocalStreamID(), tags, payload, appID, n.Clock, 0)
	if err != nil {
		return wire.Event{}, err
	}
	n.Tags.Index(e)
	for _, t := range e.Tags {
		_ = n.Catalog.RecordTag(t)
	}
	n.Registry.Advance(e.StreamID, e.Offset)
	n.Bus.Publish([]wire.Event{e})
	return e, nil
}

// meshLog adapts Node to the replication engine's Log interface
// (Acceptor + LocalLog), so a pulled event flows through the exact same
// append_remote/ReadRange paths the Event Log already exposes.
type meshLog struct{ n *Node }

func (m meshLog) AppendRemote(e wire.Event) error {
	if err := m.n.EventLog.AppendRemote(e); err != nil {
		return err
	}
	m.n.Tags.Index(e)
	for _, t := range e.Tags {
		_ = m.n.Catalog.RecordTag(t)
	}
	m.n.Clock.Observe(e.Lamport)
	m.n.Bus.Publish([]wire.Event{e})
	return nil
}

func (m meshLog) ReadRange(streamID string, fromOffset, toOffsetInclusive uint64) ([]wire.Event, error) {
	return m.n.EventLog.ReadRange(streamID, fromOffset, toOffsetInclusive)
}
