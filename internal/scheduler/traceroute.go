package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// TracerouteOutcome is one auto-traceroute log entry's result, per §4.4.
type TracerouteOutcome string

const (
	OutcomeSent             TracerouteOutcome = "sent"
	OutcomeSkippedRateLimit TracerouteOutcome = "skipped-rate-limit"
	OutcomeSkippedFilter    TracerouteOutcome = "skipped-filter"
	OutcomeError            TracerouteOutcome = "error"
)

// AutoTracerouteConfig configures the auto-traceroute task.
type AutoTracerouteConfig struct {
	Filter         NodeFilter
	Budget         int // K: at most this many traceroutes submitted per tick
	SortByHopsDesc bool
	Channel        uint32
}

// NewAutoTracerouteTask builds the auto-traceroute task (§4.4): each tick
// selects nodes matching Filter, submits at most Budget traceroutes, and
// round-robins across the filtered set so every matching node eventually
// gets probed rather than always favoring the same prefix (spec.md
// scenario S6: budget=5 over 40 matching nodes yields 5 sent + 35
// skipped-rate-limit per tick until the round is exhausted).
func NewAutoTracerouteTask(name string, interval time.Duration, cfg AutoTracerouteConfig, sess Sender, st store.Store) *Task {
	cursor := 0
	return &Task{
		Name:     name,
		Interval: interval,
		Fn: func(ctx context.Context, tickStart time.Time) error {
			nodes, err := st.ListNodes(ctx)
			if err != nil {
				return fmt.Errorf("scheduler: list nodes: %w", err)
			}
			matched := SelectNodes(nodes, cfg.Filter, cfg.SortByHopsDesc)
			if len(matched) == 0 {
				return nil
			}
			if cursor >= len(matched) {
				cursor = 0 // the round completed; start a fresh round
			}

			budget := cfg.Budget
			if budget <= 0 {
				budget = len(matched)
			}

			for i, n := range matched {
				var outcome TracerouteOutcome
				inBudgetWindow := i >= cursor && i < cursor+budget
				switch {
				case inBudgetWindow:
					if _, err := sess.SendTraceroute(ctx, n.NodeNum, cfg.Channel); err != nil {
						outcome = OutcomeError
					} else {
						outcome = OutcomeSent
					}
				default:
					outcome = OutcomeSkippedRateLimit
				}
				logTracerouteOutcome(ctx, st, tickStart, n.NodeNum, outcome)
			}

			cursor += budget
			return nil
		},
	}
}

func logTracerouteOutcome(ctx context.Context, st store.Store, at time.Time, targetNodeNum uint32, outcome TracerouteOutcome) {
	details, _ := json.Marshal(map[string]any{
		"targetNodeNum": targetNodeNum,
		"outcome":       outcome,
	})
	_ = st.AppendAuditLog(ctx, store.AuditLogEntry{
		TimestampMs: at.UnixMilli(),
		Category:    "auto-traceroute",
		Message:     fmt.Sprintf("traceroute %s -> node %s", outcome, store.NodeID(targetNodeNum)),
		Details:     string(details),
	})
}
