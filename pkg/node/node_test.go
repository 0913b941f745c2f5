package node

import (
	"context"
	"testing"

	"github.com/swarmdb/node/pkg/appendlog"
	"github.com/swarmdb/node/pkg/eventlog"
	"github.com/swarmdb/node/pkg/identity"
	"github.com/swarmdb/node/pkg/query"
	"github.com/swarmdb/node/pkg/wire"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	cfg := Config{
		DataDir:    t.TempDir(),
		Durability: eventlog.Config{Durability: appendlog.DurabilityMemory},
	}
	n, err := Open(cfg, id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestNode_AppendLocalIsQueryable(t *testing.T) {
	n := newTestNode(t)
	if _, err := n.AppendLocal([]string{"x"}, []byte(`{"n":1}`), "com.example.test"); err != nil {
		t.Fatalf("AppendLocal: %v", err)
	}

	admin := NewAdminOps(n)
	results, err := admin.RunQuery(context.Background(), query.SourcePlan(query.Source{Tags: []string{"x"}, Mode: query.TagModeAny}), wire.OffsetMap{}, query.OrderForward)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestNode_DumpOffsetsReflectsLocalAppends(t *testing.T) {
	n := newTestNode(t)
	n.AppendLocal(nil, []byte(`{}`), "com.example.test")
	n.AppendLocal(nil, []byte(`{}`), "com.example.test")

	admin := NewAdminOps(n)
	offsets := admin.DumpOffsets()
	got, ok := offsets.Get(n.Registry.LocalStreamID())
	if !ok || got != 1 {
		t.Fatalf("got %+v, want local stream present at 1", offsets)
	}
}

func TestNode_SettingsRoundTrip(t *testing.T) {
	n := newTestNode(t)
	admin := NewAdminOps(n)

	if err := admin.SetSetting("replica_factor", "3"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	got, ok, err := admin.GetSetting("replica_factor")
	if err != nil || !ok || got != "3" {
		t.Fatalf("got (%q, %v, %v), want (3, true, nil)", got, ok, err)
	}
}

func TestNode_StartIsNoopInSingleNodeModeWithoutPgSnapshot(t *testing.T) {
	n := newTestNode(t)
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestNode_AdminPasswordIsNeverStoredInPlaintext(t *testing.T) {
	n := newTestNode(t)
	if err := n.Settings.SetAdminPassword("correct horse battery staple"); err != nil {
		t.Fatalf("SetAdminPassword: %v", err)
	}

	ok, err := n.Settings.CheckAdminPassword("correct horse battery staple")
	if err != nil || !ok {
		t.Fatalf("expected the correct password to check out, got (%v, %v)", ok, err)
	}
	ok, err = n.Settings.CheckAdminPassword("wrong")
	if err != nil || ok {
		t.Fatalf("expected the wrong password to fail, got (%v, %v)", ok, err)
	}

	stored, _, _ := n.Settings.Get(adminPasswordHashKey)
	if stored == "correct horse battery staple" {
		t.Fatalf("admin password must never be stored in plaintext")
	}
}
