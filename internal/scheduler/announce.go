package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// AutoAnnounceConfig configures the auto-announce task.
type AutoAnnounceConfig struct {
	Channel uint32
	Text    string
}

// NewAutoAnnounceTask sends a fixed text message on Channel every tick.
func NewAutoAnnounceTask(name string, interval time.Duration, cfg AutoAnnounceConfig, sess Sender, st store.Store) *Task {
	return &Task{
		Name:     name,
		Interval: interval,
		Fn: func(ctx context.Context, tickStart time.Time) error {
			_, err := sess.SendText(ctx, BroadcastNodeNum, cfg.Channel, cfg.Text, false)
			if err != nil {
				return err
			}
			auditf(ctx, st, tickStart.UnixMilli(), "auto-announce", "announced on channel %d", cfg.Channel)
			return nil
		},
	}
}

// AutoWelcomeConfig configures the auto-welcome task.
type AutoWelcomeConfig struct {
	Channel         uint32
	Text            string
	RequireLongName bool
	MaxHops         uint32 // 0 means no hop limit
}

// NewAutoWelcomeTask direct-messages any node observed for the first
// time that hasn't yet been welcomed. The first tick after the task is
// enabled bulk-marks every already-known node as welcomed so enabling
// the feature on an established mesh doesn't fire a welcome storm at
// every existing member.
func NewAutoWelcomeTask(name string, interval time.Duration, cfg AutoWelcomeConfig, sess Sender, st store.Store) *Task {
	var once sync.Once
	var initErr error

	return &Task{
		Name:     name,
		Interval: interval,
		Fn: func(ctx context.Context, tickStart time.Time) error {
			once.Do(func() {
				initErr = st.BulkMarkWelcomed(ctx)
			})
			if initErr != nil {
				return fmt.Errorf("scheduler: bulk mark welcomed: %w", initErr)
			}

			nodes, err := st.ListNodes(ctx)
			if err != nil {
				return fmt.Errorf("scheduler: list nodes: %w", err)
			}
			for _, n := range nodes {
				if n.Welcomed {
					continue
				}
				if cfg.RequireLongName && n.LongName == "" {
					continue
				}
				if cfg.MaxHops > 0 && n.HopsAway > cfg.MaxHops {
					continue
				}

				if _, err := sess.SendText(ctx, n.NodeNum, cfg.Channel, cfg.Text, false); err != nil {
					auditf(ctx, st, tickStart.UnixMilli(), "auto-welcome", "welcome to node %s failed: %v", store.NodeID(n.NodeNum), err)
					continue
				}
				if err := st.MarkWelcomed(ctx, n.NodeNum); err != nil {
					continue
				}
				auditf(ctx, st, tickStart.UnixMilli(), "auto-welcome", "welcomed node %s", store.NodeID(n.NodeNum))
			}
			return nil
		},
	}
}
