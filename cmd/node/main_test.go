package main

import (
	"encoding/hex"
	"testing"
)

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	var fc fileConfig
	applyDefaults(&fc)

	if fc.DataDir == "" || fc.ListenAddr == "" || fc.WSListenAddr == "" || fc.MetricsListenAddr == "" {
		t.Fatalf("applyDefaults left an address/dir empty: %+v", fc)
	}
	if fc.BoundedQueryWorkers <= 0 || fc.RateLimitPerMinute <= 0 {
		t.Fatalf("applyDefaults left a non-positive tunable: %+v", fc)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	fc := fileConfig{DataDir: "/var/lib/swarmdb", BoundedQueryWorkers: 9}
	applyDefaults(&fc)

	if fc.DataDir != "/var/lib/swarmdb" {
		t.Fatalf("got DataDir %q, want it untouched", fc.DataDir)
	}
	if fc.BoundedQueryWorkers != 9 {
		t.Fatalf("got BoundedQueryWorkers %d, want 9", fc.BoundedQueryWorkers)
	}
}

func TestParseSwarmKey_RoundTripsValidHex(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	key, err := parseSwarmKey(hex.EncodeToString(raw))
	if err != nil {
		t.Fatalf("parseSwarmKey: %v", err)
	}
	if hex.EncodeToString(key[:]) != hex.EncodeToString(raw) {
		t.Fatalf("key round-trip mismatch")
	}
}

func TestParseSwarmKey_RejectsWrongLength(t *testing.T) {
	if _, err := parseSwarmKey(hex.EncodeToString([]byte("too short"))); err == nil {
		t.Fatalf("expected an error for a short key")
	}
}

func TestParseSwarmKey_RejectsInvalidHex(t *testing.T) {
	if _, err := parseSwarmKey("not hex at all!!"); err == nil {
		t.Fatalf("expected an error for invalid hex")
	}
}

func TestBuildGate_DevModeAcceptsEmptyAXKey(t *testing.T) {
	gate, err := buildGate(fileConfig{DevMode: true})
	if err != nil {
		t.Fatalf("buildGate: %v", err)
	}
	if gate == nil {
		t.Fatalf("expected a non-nil gate")
	}
}

func TestBuildGate_RejectsInvalidAXKeyHex(t *testing.T) {
	if _, err := buildGate(fileConfig{AXPublicKeyHex: "zz"}); err == nil {
		t.Fatalf("expected an error for invalid hex")
	}
}
