package mesh

import (
	"testing"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
)

// runTestNATSServer starts an embedded NATS server on a random free
// port, grounded on the teacher's own embedded-server test helper.
func runTestNATSServer(t *testing.T) *natssrv.Server {
	t.Helper()
	s, err := natssrv.NewServer(&natssrv.Options{Port: -1})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		t.Fatalf("nats server not ready")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func testSwarmConfig(t *testing.T) SwarmConfig {
	t.Helper()
	key, err := GenerateSwarmKey()
	if err != nil {
		t.Fatalf("GenerateSwarmKey: %v", err)
	}
	return SwarmConfig{Fingerprint: "node-a", Key: key}
}

func TestEmbeddedServer_AcceptsConnections(t *testing.T) {
	s, err := EmbeddedServer(SwarmConfig{ListenPort: 0})
	if err != nil {
		t.Fatalf("EmbeddedServer: %v", err)
	}
	defer s.Shutdown()

	nc, err := Dial(s.ClientURL(), "test")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer nc.Close()

	if !nc.IsConnected() {
		t.Fatalf("expected an established connection")
	}
}

func TestSwarmConfig_SubjectsAreFingerprintNamespaced(t *testing.T) {
	cfg := SwarmConfig{Fingerprint: "abcd1234"}
	if got, want := cfg.subjectGossip(), "abcd1234.gossip"; got != want {
		t.Fatalf("subjectGossip() = %q, want %q", got, want)
	}
	if got, want := cfg.subjectPull("abcd1234-0"), "abcd1234.pull.abcd1234-0"; got != want {
		t.Fatalf("subjectPull() = %q, want %q", got, want)
	}
}
