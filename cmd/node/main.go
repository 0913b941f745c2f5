// Command node runs one swarmdb node: the event log, tag index, stream
// registry, query engine, optional replication overlay, and the HTTP
// boundary, all wired together by pkg/node.Node. Grounded on the
// teacher's cmd/main.go (fx-based app bring-up, signal-driven graceful
// shutdown, promhttp metrics endpoint) and cmd/gateway/main.go (the
// plainer context-cancel/Stop shutdown shape used here since this
// node's component graph is wired directly rather than through fx).
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swarmdb/node/pkg/appendlog"
	"github.com/swarmdb/node/pkg/config"
	"github.com/swarmdb/node/pkg/eventlog"
	"github.com/swarmdb/node/pkg/httpapi"
	"github.com/swarmdb/node/pkg/httpapi/middleware"
	"github.com/swarmdb/node/pkg/identity"
	"github.com/swarmdb/node/pkg/metrics"
	"github.com/swarmdb/node/pkg/node"
	mesh "github.com/swarmdb/node/pkg/replication"
	"github.com/swarmdb/node/pkg/streamreg"
	"github.com/swarmdb/node/pkg/tracing"
)

// fileConfig is the on-disk shape loaded by pkg/config; zero values
// throughout mean single-node mode with no replication, no Postgres
// snapshotting, and tracing disabled.
type fileConfig struct {
	DataDir           string `yaml:"data_dir"`
	ListenAddr        string `yaml:"listen_addr"`
	WSListenAddr      string `yaml:"ws_listen_addr"`
	MetricsListenAddr string `yaml:"metrics_listen_addr"`
	SessionSecret     string `yaml:"session_secret"`
	DevMode           bool   `yaml:"dev_mode"`
	AXPublicKeyHex    string `yaml:"ax_public_key_hex"`

	RateLimitPerMinute  int `yaml:"rate_limit_per_minute"`
	BoundedQueryWorkers int `yaml:"bounded_query_workers"`

	Swarm struct {
		Fingerprint string   `yaml:"fingerprint"`
		KeyHex      string   `yaml:"key_hex"`
		ListenHost  string   `yaml:"listen_host"`
		ListenPort  int      `yaml:"listen_port"`
		Seeds       []string `yaml:"seeds"`
	} `yaml:"swarm"`

	PgSnapshot struct {
		DSN            string `yaml:"dsn"`
		CheckpointEach string `yaml:"checkpoint_each"`
	} `yaml:"pg_snapshot"`

	Tracing struct {
		Backend  string `yaml:"backend"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tracing"`
}

func main() {
	configPath := flag.String("config", "node.yaml", "path to node config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("node: %v", err)
	}
}

func run(configPath string) error {
	var fc fileConfig
	if _, err := os.Stat(configPath); err == nil {
		if err := config.LoadWithEnv(configPath, "SWARMDB", &fc); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config: %w", err)
	}
	applyDefaults(&fc)

	shutdownTracing, err := tracing.Setup(context.Background(), tracing.Config{
		Backend:     tracing.Backend(fc.Tracing.Backend),
		Endpoint:    fc.Tracing.Endpoint,
		ServiceName: "swarmdb-node",
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	id, err := identity.Load(filepath.Join(fc.DataDir, "identity.key"))
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}

	nodeCfg := node.Config{
		DataDir:             fc.DataDir,
		Durability:          eventlog.Config{Durability: appendlog.DurabilityFsync},
		BoundedQueryWorkers: fc.BoundedQueryWorkers,
	}
	if fc.Swarm.Fingerprint != "" {
		swarmKey, err := parseSwarmKey(fc.Swarm.KeyHex)
		if err != nil {
			return fmt.Errorf("parsing swarm key: %w", err)
		}
		nodeCfg.Swarm = mesh.SwarmConfig{
			Fingerprint: fc.Swarm.Fingerprint,
			Key:         swarmKey,
			ListenHost:  fc.Swarm.ListenHost,
			ListenPort:  fc.Swarm.ListenPort,
			Seeds:       fc.Swarm.Seeds,
		}
	}
	if fc.PgSnapshot.DSN != "" {
		checkpointEach, err := time.ParseDuration(fc.PgSnapshot.CheckpointEach)
		if err != nil {
			return fmt.Errorf("parsing pg_snapshot.checkpoint_each: %w", err)
		}
		nodeCfg.PgSnapshot = streamreg.PgSnapshotConfig{
			DSN:            fc.PgSnapshot.DSN,
			NodeID:         id.Fingerprint(),
			CheckpointEach: checkpointEach,
		}
	}

	n, err := node.Open(nodeCfg, id)
	if err != nil {
		return fmt.Errorf("opening node: %w", err)
	}
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}

	gate, err := buildGate(fc)
	if err != nil {
		return fmt.Errorf("building identity gate: %w", err)
	}

	srv := httpapi.NewServer(httpapi.ServerConfig{
		ListenAddr:    fc.ListenAddr,
		WSListenAddr:  fc.WSListenAddr,
		SessionSecret: fc.SessionSecret,
		Gate:          gate,
		RateLimit:     middleware.RateLimitConfig{RequestsPerMinute: fc.RateLimitPerMinute},
		ExtraMiddleware: []httpapi.Middleware{
			metrics.HTTPMiddleware(),
		},
	}, n)

	metricsSrv := &http.Server{Addr: fc.MetricsListenAddr, Handler: promhttp.HandlerFor(metrics.DefaultRegistry, promhttp.HandlerOpts{})}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ListenAndServe() }()
	go func() { errCh <- metricsSrv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("node: received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("node: server exited: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	return srv.Shutdown()
}

func applyDefaults(fc *fileConfig) {
	if fc.DataDir == "" {
		fc.DataDir = "./data"
	}
	if fc.ListenAddr == "" {
		fc.ListenAddr = ":8443"
	}
	if fc.WSListenAddr == "" {
		fc.WSListenAddr = ":8444"
	}
	if fc.MetricsListenAddr == "" {
		fc.MetricsListenAddr = ":9090"
	}
	if fc.BoundedQueryWorkers <= 0 {
		fc.BoundedQueryWorkers = 4
	}
	if fc.RateLimitPerMinute <= 0 {
		fc.RateLimitPerMinute = 100
	}
}

func buildGate(fc fileConfig) (*identity.Gate, error) {
	var axKey ed25519.PublicKey
	if fc.AXPublicKeyHex != "" {
		decoded, err := hex.DecodeString(fc.AXPublicKeyHex)
		if err != nil {
			return nil, fmt.Errorf("decoding ax_public_key_hex: %w", err)
		}
		axKey = ed25519.PublicKey(decoded)
	}
	if fc.DevMode {
		return identity.NewDevGate(axKey), nil
	}
	return identity.NewGate(axKey), nil
}

func parseSwarmKey(hexKey string) (mesh.SwarmKey, error) {
	var key mesh.SwarmKey
	decoded, err := hex.DecodeString(hexKey)
	if err != nil {
		return key, err
	}
	if len(decoded) != len(key) {
		return key, fmt.Errorf("swarm key must be %d bytes, got %d", len(key), len(decoded))
	}
	copy(key[:], decoded)
	return key, nil
}
