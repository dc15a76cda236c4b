package store

import (
	"context"
	"testing"
)

func TestUpsertChannelRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ch := Channel{Index: 0, Name: "Primary", Psk: []byte{1, 2, 3}, Role: 1, UplinkEnabled: true}
	if err := s.UpsertChannel(ctx, ch); err != nil {
		t.Fatalf("upsert channel: %v", err)
	}

	ch.Name = "Primary Renamed"
	ch.DownlinkEnabled = true
	if err := s.UpsertChannel(ctx, ch); err != nil {
		t.Fatalf("upsert channel again: %v", err)
	}

	channels, err := s.ListChannels(ctx)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(channels))
	}
	if channels[0].Name != "Primary Renamed" {
		t.Errorf("Name = %q, want %q", channels[0].Name, "Primary Renamed")
	}
	if !channels[0].UplinkEnabled || !channels[0].DownlinkEnabled {
		t.Error("expected both uplink and downlink enabled after second upsert")
	}
}

func TestIgnoreNodeSetsAndClearsFlag(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertNode(ctx, Node{NodeNum: 9}); err != nil {
		t.Fatalf("upsert node: %v", err)
	}

	if err := s.IgnoreNode(ctx, 9, "spamming the channel"); err != nil {
		t.Fatalf("ignore node: %v", err)
	}

	ignored, err := s.IsIgnored(ctx, 9)
	if err != nil {
		t.Fatalf("is ignored: %v", err)
	}
	if !ignored {
		t.Error("expected node to be ignored")
	}

	n, err := s.GetNode(ctx, 9)
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if !n.Ignored {
		t.Error("expected node.Ignored to be set alongside the ignored_nodes row")
	}

	if err := s.UnignoreNode(ctx, 9); err != nil {
		t.Fatalf("unignore node: %v", err)
	}

	ignored, err = s.IsIgnored(ctx, 9)
	if err != nil {
		t.Fatalf("is ignored after unignore: %v", err)
	}
	if ignored {
		t.Error("expected node to no longer be ignored")
	}

	n, err = s.GetNode(ctx, 9)
	if err != nil {
		t.Fatalf("get node after unignore: %v", err)
	}
	if n.Ignored {
		t.Error("expected node.Ignored to be cleared alongside the ignored_nodes row")
	}
}
