package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// AutoTimeSyncConfig configures the auto-time-sync task.
type AutoTimeSyncConfig struct {
	Filter NodeFilter
	Budget int
}

// NewAutoTimeSyncTask pushes a set_time admin message to nodes matching
// Filter, budgeted per tick the same way auto-traceroute is.
func NewAutoTimeSyncTask(name string, interval time.Duration, cfg AutoTimeSyncConfig, sess Sender, st store.Store) *Task {
	cursor := 0
	return &Task{
		Name:     name,
		Interval: interval,
		Fn: func(ctx context.Context, tickStart time.Time) error {
			nodes, err := st.ListNodes(ctx)
			if err != nil {
				return fmt.Errorf("scheduler: list nodes: %w", err)
			}
			matched := SelectNodes(nodes, cfg.Filter, false)
			if len(matched) == 0 {
				return nil
			}
			if cursor >= len(matched) {
				cursor = 0
			}
			budget := cfg.Budget
			if budget <= 0 {
				budget = len(matched)
			}
			end := cursor + budget
			if end > len(matched) {
				end = len(matched)
			}
			for _, n := range matched[cursor:end] {
				admin := meshtastic.NewSetTime(uint32(tickStart.Unix()))
				_, err := sess.SendAdmin(ctx, n.NodeNum, admin)
				auditf(ctx, st, tickStart.UnixMilli(), "auto-time-sync", "time sync -> node %s: %v", store.NodeID(n.NodeNum), errOrOK(err))
			}
			cursor = end
			return nil
		},
	}
}

func errOrOK(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
