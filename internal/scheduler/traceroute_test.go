package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// fakeSender records every call a task made, for assertions, and never
// fails so budget/filter behavior can be tested independent of
// transport errors.
type fakeSender struct {
	tracerouteCalls []uint32
	adminCalls      []uint32
	textCalls       []uint32
}

func (f *fakeSender) SendText(ctx context.Context, dest, channel uint32, text string, wantAck bool) (*store.Message, error) {
	f.textCalls = append(f.textCalls, dest)
	return &store.Message{ID: "1"}, nil
}

func (f *fakeSender) SendAdmin(ctx context.Context, dest uint32, admin *meshtastic.AdminMessage) (uint32, error) {
	f.adminCalls = append(f.adminCalls, dest)
	return 1, nil
}

func (f *fakeSender) SendAdminAwait(ctx context.Context, dest uint32, admin *meshtastic.AdminMessage) (*meshtastic.AdminMessage, error) {
	f.adminCalls = append(f.adminCalls, dest)
	return &meshtastic.AdminMessage{}, nil
}

func (f *fakeSender) SendTraceroute(ctx context.Context, dest, channel uint32) (uint32, error) {
	f.tracerouteCalls = append(f.tracerouteCalls, dest)
	return 1, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

// TestAutoTracerouteBudgetScenario is spec.md scenario S6: budget=5 over
// a filter matching 40 nodes emits exactly 5 sends per tick, with 35
// skipped-rate-limit entries, until the round is exhausted.
func TestAutoTracerouteBudgetScenario(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for i := uint32(1); i <= 40; i++ {
		if err := st.UpsertNode(ctx, store.Node{NodeNum: i, LongName: fmt.Sprintf("node-%d", i)}); err != nil {
			t.Fatalf("upsert node %d: %v", i, err)
		}
	}

	sender := &fakeSender{}
	task := NewAutoTracerouteTask("auto-traceroute", time.Hour, AutoTracerouteConfig{Budget: 5}, sender, st)

	overran := task.tick(ctx)
	if overran {
		t.Fatalf("unexpected overrun on first tick")
	}
	if len(sender.tracerouteCalls) != 5 {
		t.Fatalf("sent %d traceroutes, want 5", len(sender.tracerouteCalls))
	}

	entries, err := st.ListAuditLog(ctx, 100)
	if err != nil {
		t.Fatalf("list audit log: %v", err)
	}
	var sent, skipped int
	for _, e := range entries {
		if e.Category != "auto-traceroute" {
			continue
		}
		switch {
		case containsSubstring(e.Message, string(OutcomeSent)):
			sent++
		case containsSubstring(e.Message, string(OutcomeSkippedRateLimit)):
			skipped++
		}
	}
	if sent != 5 {
		t.Fatalf("logged %d sent entries, want 5", sent)
	}
	if skipped != 35 {
		t.Fatalf("logged %d skipped-rate-limit entries, want 35", skipped)
	}
}

// TestAutoTracerouteRoundRobinsAcrossTicks confirms the budget window
// advances each tick rather than always hitting the same nodes, and
// wraps back to the start once the whole filtered set has been probed.
func TestAutoTracerouteRoundRobinsAcrossTicks(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for i := uint32(1); i <= 10; i++ {
		if err := st.UpsertNode(ctx, store.Node{NodeNum: i}); err != nil {
			t.Fatalf("upsert node %d: %v", i, err)
		}
	}

	sender := &fakeSender{}
	task := NewAutoTracerouteTask("auto-traceroute", time.Hour, AutoTracerouteConfig{Budget: 4}, sender, st)

	task.tick(ctx) // nodes 1-4
	task.tick(ctx) // nodes 5-8
	if len(sender.tracerouteCalls) != 8 {
		t.Fatalf("after two ticks expected 8 sends, got %d", len(sender.tracerouteCalls))
	}
	task.tick(ctx) // nodes 9-10, round resets for the leftover
	if len(sender.tracerouteCalls) != 10 {
		t.Fatalf("after three ticks expected 10 sends, got %d", len(sender.tracerouteCalls))
	}
	task.tick(ctx) // round restarts from the top of the filtered set
	if len(sender.tracerouteCalls) != 14 {
		t.Fatalf("after four ticks expected 14 sends (round restarted), got %d", len(sender.tracerouteCalls))
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
