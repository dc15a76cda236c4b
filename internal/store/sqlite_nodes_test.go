package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "store.db")
	s, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertNodeMergesRatherThanOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertNode(ctx, Node{NodeNum: 1, LongName: "Alpha", ShortName: "A", Favorite: true, UpdatedAt: 100}); err != nil {
		t.Fatalf("upsert node: %v", err)
	}
	// Second write omits LongName; the merge rule keeps the prior value.
	if err := s.UpsertNode(ctx, Node{NodeNum: 1, ShortName: "A", LastHeard: 200, UpdatedAt: 50}); err != nil {
		t.Fatalf("upsert node again: %v", err)
	}

	n, err := s.GetNode(ctx, 1)
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if n == nil {
		t.Fatal("expected node, got nil")
	}
	if n.LongName != "Alpha" {
		t.Errorf("LongName = %q, want %q (merge should preserve non-empty prior value)", n.LongName, "Alpha")
	}
	if n.LastHeard != 200 {
		t.Errorf("LastHeard = %d, want 200", n.LastHeard)
	}
	if n.UpdatedAt != 100 {
		t.Errorf("UpdatedAt = %d, want 100 (older write must not regress the timestamp)", n.UpdatedAt)
	}
}

func TestNodeID(t *testing.T) {
	got := NodeID(0xDEADBEEF)
	want := "!deadbeef"
	if got != want {
		t.Errorf("NodeID(0xDEADBEEF) = %q, want %q", got, want)
	}
}

func TestAcceptPositionNoExisting(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	if !acceptPosition(nil, NodePosition{}, now) {
		t.Error("expected accept when no existing position")
	}
}

func TestAcceptPositionNoExistingPrecisionMetadata(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	existing := &NodePosition{Latitude: 1, Longitude: 1, TimestampMs: now.UnixMilli()}
	if !acceptPosition(existing, NodePosition{PrecisionBits: uint32Ptr(2)}, now) {
		t.Error("expected accept when existing position lacks precision metadata")
	}
}

func TestAcceptPositionLowerPrecisionWithinWindowRejected(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	recent := now.Add(-1 * time.Hour).UnixMilli()
	existing := &NodePosition{PrecisionBits: uint32Ptr(16), TimestampMs: recent}
	incoming := NodePosition{PrecisionBits: uint32Ptr(10)}
	if acceptPosition(existing, incoming, now) {
		t.Error("expected reject: lower precision update within 12h of a precise fix")
	}
}

func TestAcceptPositionLowerPrecisionAfterWindowAccepted(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	stale := now.Add(-13 * time.Hour).UnixMilli()
	existing := &NodePosition{PrecisionBits: uint32Ptr(16), TimestampMs: stale}
	incoming := NodePosition{PrecisionBits: uint32Ptr(10)}
	if !acceptPosition(existing, incoming, now) {
		t.Error("expected accept: existing fix is stale, so a lower-precision update wins")
	}
}

func TestAcceptPositionHigherPrecisionAlwaysAccepted(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	recent := now.Add(-1 * time.Minute).UnixMilli()
	existing := &NodePosition{PrecisionBits: uint32Ptr(10), TimestampMs: recent}
	incoming := NodePosition{PrecisionBits: uint32Ptr(16)}
	if !acceptPosition(existing, incoming, now) {
		t.Error("expected accept: higher precision should always win")
	}
}

func TestAcceptPositionMissingIncomingPrecisionTreatedAsWorst(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	recent := now.Add(-1 * time.Minute).UnixMilli()
	existing := &NodePosition{PrecisionBits: uint32Ptr(10), TimestampMs: recent}
	if acceptPosition(existing, NodePosition{}, now) {
		t.Error("expected reject: incoming position with no precision metadata is treated as precision 0")
	}
}

func TestApplyPositionPersistsWhenAccepted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	if err := s.UpsertNode(ctx, Node{NodeNum: 5}); err != nil {
		t.Fatalf("upsert node: %v", err)
	}

	accepted, err := s.ApplyPosition(ctx, 5, NodePosition{Latitude: 12.5, Longitude: 45.5, PrecisionBits: uint32Ptr(16), TimestampMs: now.UnixMilli()}, now)
	if err != nil {
		t.Fatalf("apply position: %v", err)
	}
	if !accepted {
		t.Fatal("expected first position to be accepted")
	}

	n, err := s.GetNode(ctx, 5)
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if n.Position == nil {
		t.Fatal("expected a position to be stored")
	}
	if n.Position.Latitude != 12.5 {
		t.Errorf("Latitude = %v, want 12.5", n.Position.Latitude)
	}

	// A lower-precision fix arriving immediately after should be rejected.
	accepted, err = s.ApplyPosition(ctx, 5, NodePosition{Latitude: 0, Longitude: 0, PrecisionBits: uint32Ptr(8), TimestampMs: now.Add(time.Minute).UnixMilli()}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("apply second position: %v", err)
	}
	if accepted {
		t.Error("expected lower-precision update to be rejected")
	}

	n, err = s.GetNode(ctx, 5)
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if n.Position.Latitude != 12.5 {
		t.Errorf("position should be unchanged after rejected update, got Latitude = %v", n.Position.Latitude)
	}
}

func TestScanKeySecurityDetectsDuplicatesAndLowEntropy(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sharedKey := []byte{0x01, 0x02, 0x03}
	lowEntropyKey := []byte{0xAA, 0xAA, 0xAA}

	if err := s.UpsertNode(ctx, Node{NodeNum: 1, PublicKey: sharedKey}); err != nil {
		t.Fatalf("upsert node 1: %v", err)
	}
	if err := s.UpsertNode(ctx, Node{NodeNum: 2, PublicKey: sharedKey}); err != nil {
		t.Fatalf("upsert node 2: %v", err)
	}
	if err := s.UpsertNode(ctx, Node{NodeNum: 3, PublicKey: lowEntropyKey}); err != nil {
		t.Fatalf("upsert node 3: %v", err)
	}

	if err := s.ScanKeySecurity(ctx, [][]byte{lowEntropyKey}); err != nil {
		t.Fatalf("scan key security: %v", err)
	}

	n1, _ := s.GetNode(ctx, 1)
	n2, _ := s.GetNode(ctx, 2)
	n3, _ := s.GetNode(ctx, 3)

	if !n1.DuplicateKeyDetected || !n2.DuplicateKeyDetected {
		t.Error("expected both nodes sharing a public key to be flagged as duplicates")
	}
	if n3.DuplicateKeyDetected {
		t.Error("node 3 has a unique key and should not be flagged as a duplicate")
	}
	if !n3.KeyIsLowEntropy {
		t.Error("expected node 3 to be flagged low-entropy")
	}
	if n1.KeyIsLowEntropy {
		t.Error("node 1's key is not in the low-entropy list and should not be flagged")
	}

	// Rescanning with no low-entropy keys should clear stale flags, not accumulate them.
	if err := s.ScanKeySecurity(ctx, nil); err != nil {
		t.Fatalf("rescan key security: %v", err)
	}
	n3, _ = s.GetNode(ctx, 3)
	if n3.KeyIsLowEntropy {
		t.Error("expected rescan without the key in the low-entropy list to clear the flag")
	}
}

func uint32Ptr(v uint32) *uint32 { return &v }
