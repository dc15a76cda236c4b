package store

import (
	"context"
	"fmt"
	"time"
)

// PurgeOlderThan runs the §4.3.5 maintenance pass: each kind of row older
// than its configured threshold is removed. A zero threshold disables
// purging for that kind. Telemetry belonging to a favorited node uses the
// extended TelemetryFavoritedNode window instead of Telemetry.
func (s *sqliteStore) PurgeOlderThan(ctx context.Context, t RetentionThresholds, now time.Time) (PurgeStats, error) {
	var stats PurgeStats

	if t.Messages > 0 {
		cutoff := now.Add(-t.Messages).UnixMilli()
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM messages WHERE COALESCE(NULLIF(rx_time_ms,0), timestamp_ms) < ?
		`, cutoff)
		if err != nil {
			return stats, fmt.Errorf("purge messages: %w", err)
		}
		stats.Messages, _ = res.RowsAffected()
	}

	if t.Telemetry > 0 {
		cutoff := now.Add(-t.Telemetry).UnixMilli()
		favoritedCutoff := int64(0)
		if t.TelemetryFavoritedNode > 0 {
			favoritedCutoff = now.Add(-t.TelemetryFavoritedNode).UnixMilli()
		}
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM telemetry
			WHERE timestamp_ms < ?
			  AND node_id NOT IN (
			      SELECT '!' || printf('%08x', node_num) FROM nodes WHERE favorite = 1
			  )
		`, cutoff)
		if err != nil {
			return stats, fmt.Errorf("purge telemetry: %w", err)
		}
		n, _ := res.RowsAffected()
		stats.Telemetry += n

		if favoritedCutoff > 0 {
			res, err := s.db.ExecContext(ctx, `
				DELETE FROM telemetry
				WHERE timestamp_ms < ?
				  AND node_id IN (
				      SELECT '!' || printf('%08x', node_num) FROM nodes WHERE favorite = 1
				  )
			`, favoritedCutoff)
			if err != nil {
				return stats, fmt.Errorf("purge favorited telemetry: %w", err)
			}
			n, _ := res.RowsAffected()
			stats.Telemetry += n
		}
	}

	if t.Traceroutes > 0 {
		cutoff := now.Add(-t.Traceroutes).UnixMilli()
		res, err := s.db.ExecContext(ctx, `DELETE FROM traceroutes WHERE timestamp_ms < ?`, cutoff)
		if err != nil {
			return stats, fmt.Errorf("purge traceroutes: %w", err)
		}
		stats.Traceroutes, _ = res.RowsAffected()
	}

	if t.RouteSegments > 0 {
		cutoff := now.Add(-t.RouteSegments).UnixMilli()
		res, err := s.db.ExecContext(ctx, `DELETE FROM route_segments WHERE last_seen_ms < ?`, cutoff)
		if err != nil {
			return stats, fmt.Errorf("purge route segments: %w", err)
		}
		stats.RouteSegments, _ = res.RowsAffected()
	}

	if t.NeighborInfo > 0 {
		cutoff := now.Add(-t.NeighborInfo).UnixMilli()
		res, err := s.db.ExecContext(ctx, `DELETE FROM neighbor_info WHERE last_heard_ms < ?`, cutoff)
		if err != nil {
			return stats, fmt.Errorf("purge neighbor info: %w", err)
		}
		stats.NeighborInfo, _ = res.RowsAffected()
	}

	return stats, nil
}
