package store

import (
	"context"
	"testing"
	"time"
)

func TestPurgeOlderThanMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	old := Message{ID: "old", From: 1, To: 2, Channel: 0, TimestampMs: now.Add(-48 * time.Hour).UnixMilli()}
	fresh := Message{ID: "fresh", From: 1, To: 2, Channel: 0, TimestampMs: now.Add(-1 * time.Hour).UnixMilli()}
	if _, err := s.InsertMessage(ctx, old); err != nil {
		t.Fatalf("insert old message: %v", err)
	}
	if _, err := s.InsertMessage(ctx, fresh); err != nil {
		t.Fatalf("insert fresh message: %v", err)
	}

	stats, err := s.PurgeOlderThan(ctx, RetentionThresholds{Messages: 24 * time.Hour}, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if stats.Messages != 1 {
		t.Errorf("Messages purged = %d, want 1", stats.Messages)
	}

	if got, err := s.GetMessageByID(ctx, "old"); err != nil || got != nil {
		t.Errorf("expected old message to be purged, got %+v (err=%v)", got, err)
	}
	if got, err := s.GetMessageByID(ctx, "fresh"); err != nil || got == nil {
		t.Errorf("expected fresh message to survive, got nil (err=%v)", err)
	}
}

func TestPurgeOlderThanTelemetryExtendsForFavoritedNodes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	if err := s.UpsertNode(ctx, Node{NodeNum: 1, Favorite: true}); err != nil {
		t.Fatalf("upsert favorited node: %v", err)
	}
	if err := s.UpsertNode(ctx, Node{NodeNum: 2, Favorite: false}); err != nil {
		t.Fatalf("upsert plain node: %v", err)
	}

	oldTs := now.Add(-10 * 24 * time.Hour).UnixMilli()
	if err := s.InsertTelemetry(ctx, TelemetrySample{NodeID: NodeID(1), Type: "battery", TimestampMs: oldTs, Value: 80}); err != nil {
		t.Fatalf("insert favorited telemetry: %v", err)
	}
	if err := s.InsertTelemetry(ctx, TelemetrySample{NodeID: NodeID(2), Type: "battery", TimestampMs: oldTs, Value: 80}); err != nil {
		t.Fatalf("insert plain telemetry: %v", err)
	}

	stats, err := s.PurgeOlderThan(ctx, RetentionThresholds{
		Telemetry:              7 * 24 * time.Hour,
		TelemetryFavoritedNode: 30 * 24 * time.Hour,
	}, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if stats.Telemetry != 1 {
		t.Errorf("Telemetry purged = %d, want 1 (only the non-favorited node's sample)", stats.Telemetry)
	}

	favorited, err := s.ListTelemetry(ctx, NodeID(1), "battery", 10)
	if err != nil {
		t.Fatalf("list favorited telemetry: %v", err)
	}
	if len(favorited) != 1 {
		t.Errorf("expected the favorited node's old telemetry to survive the short window, got %d rows", len(favorited))
	}

	plain, err := s.ListTelemetry(ctx, NodeID(2), "battery", 10)
	if err != nil {
		t.Fatalf("list plain telemetry: %v", err)
	}
	if len(plain) != 0 {
		t.Errorf("expected the non-favorited node's old telemetry to be purged, got %d rows", len(plain))
	}
}

func TestPurgeOlderThanZeroThresholdDisables(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	old := Message{ID: "old", From: 1, To: 2, Channel: 0, TimestampMs: now.Add(-100 * 24 * time.Hour).UnixMilli()}
	if _, err := s.InsertMessage(ctx, old); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	stats, err := s.PurgeOlderThan(ctx, RetentionThresholds{}, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if stats.Messages != 0 {
		t.Errorf("Messages purged = %d, want 0 with a zero threshold", stats.Messages)
	}
	if got, err := s.GetMessageByID(ctx, "old"); err != nil || got == nil {
		t.Errorf("expected message to survive a zero (disabled) threshold, got nil (err=%v)", err)
	}
}
