package gateway

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/scheduler"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

type fakeSender struct{}

func (f *fakeSender) SendText(_ context.Context, _, _ uint32, _ string, _ bool) (*store.Message, error) {
	return &store.Message{}, nil
}

func (f *fakeSender) SendAdmin(_ context.Context, _ uint32, _ *meshtastic.AdminMessage) (uint32, error) {
	return 0, nil
}

func (f *fakeSender) SendAdminAwait(_ context.Context, _ uint32, _ *meshtastic.AdminMessage) (*meshtastic.AdminMessage, error) {
	return nil, nil
}

func (f *fakeSender) SendTraceroute(_ context.Context, _, _ uint32) (uint32, error) {
	return 0, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func TestRegisterAutomationsSkipsDisabled(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sch := scheduler.New(st, nil)
	if err := registerAutomations(ctx, sch, &fakeSender{}, st); err != nil {
		t.Fatalf("registerAutomations: %v", err)
	}
	if got := sch.TaskCount(); got != 0 {
		t.Fatalf("task count = %d, want 0 with no settings configured", got)
	}
}

func TestRegisterAutomationsRegistersEnabledAutoAnnounce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SetSetting(ctx, "automation.auto_announce", `{"Enabled":true,"Interval":"1h","Channel":0,"Text":"hello mesh"}`); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	sch := scheduler.New(st, nil)
	if err := registerAutomations(ctx, sch, &fakeSender{}, st); err != nil {
		t.Fatalf("registerAutomations: %v", err)
	}
	if got := sch.TaskCount(); got != 1 {
		t.Fatalf("task count = %d, want 1", got)
	}
	if _, ok := sch.Task("auto-announce"); !ok {
		t.Fatalf("expected auto-announce task to be registered")
	}
}

func TestRegisterAutomationsRegistersMultipleTimerTriggers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	triggers := `[{"Name":"morning","Hours":[8],"Text":"good morning"},{"Name":"evening","Hours":[20],"Text":"good night"}]`
	if err := st.SetSetting(ctx, "automation.timer_triggers", triggers); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	sch := scheduler.New(st, nil)
	if err := registerAutomations(ctx, sch, &fakeSender{}, st); err != nil {
		t.Fatalf("registerAutomations: %v", err)
	}
	if got := sch.TaskCount(); got != 2 {
		t.Fatalf("task count = %d, want 2", got)
	}
	if _, ok := sch.Task("timer-trigger.morning"); !ok {
		t.Fatalf("expected timer-trigger.morning to be registered")
	}
	if _, ok := sch.Task("timer-trigger.evening"); !ok {
		t.Fatalf("expected timer-trigger.evening to be registered")
	}
}

func TestNewResponderReturnsNilWhenUnconfigured(t *testing.T) {
	st := newTestStore(t)
	r, err := newResponder(context.Background(), st, &fakeSender{})
	if err != nil {
		t.Fatalf("newResponder: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil responder when no settings entry exists")
	}
}

func TestNewResponderBuildsRulesFromSettings(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rules := `[{"Pattern":"ping","Action":"reply","ReplyText":"pong"}]`
	if err := st.SetSetting(ctx, "automation.responder_rules", rules); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	r, err := newResponder(ctx, st, &fakeSender{})
	if err != nil {
		t.Fatalf("newResponder: %v", err)
	}
	if r == nil {
		t.Fatalf("expected a responder to be built")
	}
	r.HandleMessage(store.Message{From: 1, Channel: store.DirectMessageChannel, Text: "ping"})
}

func TestNewOutputsBuildsEnabledStdoutSink(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	settings := `[{"Name":"console","Type":"stdout","Enabled":true,"Options":{"format":"text"}}]`
	if err := st.SetSetting(ctx, "outputs", settings); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	outputs, err := newOutputs(ctx, st)
	if err != nil {
		t.Fatalf("newOutputs: %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("len(outputs) = %d, want 1", len(outputs))
	}
	if outputs[0].Name() != "stdout" {
		t.Fatalf("output name = %q, want stdout", outputs[0].Name())
	}
}

func TestNewOutputsSkipsDisabledEntries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	settings := `[{"Name":"console","Type":"stdout","Enabled":false}]`
	if err := st.SetSetting(ctx, "outputs", settings); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	outputs, err := newOutputs(ctx, st)
	if err != nil {
		t.Fatalf("newOutputs: %v", err)
	}
	if len(outputs) != 0 {
		t.Fatalf("len(outputs) = %d, want 0 for a disabled entry", len(outputs))
	}
}
