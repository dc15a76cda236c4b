package store

import (
	"context"
	"encoding/json"
	"fmt"
)

func (s *sqliteStore) InsertTraceroute(ctx context.Context, tr Traceroute) (int64, error) {
	var routeJSON any
	if tr.Route != nil {
		encoded, err := json.Marshal(tr.Route)
		if err != nil {
			return 0, fmt.Errorf("encode route: %w", err)
		}
		routeJSON = string(encoded)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO traceroutes(from_num, to_num, timestamp_ms, route_json) VALUES (?, ?, ?, ?)
	`, tr.From, tr.To, tr.TimestampMs, routeJSON)
	if err != nil {
		return 0, fmt.Errorf("insert traceroute: %w", err)
	}
	return res.LastInsertId()
}

func (s *sqliteStore) UpsertRouteSegment(ctx context.Context, seg RouteSegment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO route_segments(from_num, to_num, last_seen_ms, hops_observed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_num, to_num) DO UPDATE SET
			last_seen_ms = CASE WHEN excluded.last_seen_ms > route_segments.last_seen_ms THEN excluded.last_seen_ms ELSE route_segments.last_seen_ms END,
			hops_observed = excluded.hops_observed
	`, seg.FromNodeNum, seg.ToNodeNum, seg.LastSeenMs, seg.HopsObserved)
	if err != nil {
		return fmt.Errorf("upsert route segment: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListRouteSegments(ctx context.Context) ([]RouteSegment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_num, to_num, last_seen_ms, hops_observed FROM route_segments`)
	if err != nil {
		return nil, fmt.Errorf("list route segments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RouteSegment
	for rows.Next() {
		var seg RouteSegment
		if err := rows.Scan(&seg.FromNodeNum, &seg.ToNodeNum, &seg.LastSeenMs, &seg.HopsObserved); err != nil {
			return nil, fmt.Errorf("scan route segment: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// UpsertNeighborInfo keeps only the latest observation per unordered pair,
// per §3's NeighborInfo invariant — the caller is expected to have already
// canonicalized (nodeNum, neighborNodeNum) ordering if that matters to it;
// the store itself keys on the pair as given.
func (s *sqliteStore) UpsertNeighborInfo(ctx context.Context, n NeighborInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO neighbor_info(node_num, neighbor_node_num, snr, last_heard_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_num, neighbor_node_num) DO UPDATE SET
			snr = excluded.snr,
			last_heard_ms = CASE WHEN excluded.last_heard_ms > neighbor_info.last_heard_ms THEN excluded.last_heard_ms ELSE neighbor_info.last_heard_ms END
	`, n.NodeNum, n.NeighborNodeNum, n.SNR, n.LastHeardMs)
	if err != nil {
		return fmt.Errorf("upsert neighbor info: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListNeighborInfo(ctx context.Context) ([]NeighborInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT node_num, neighbor_node_num, snr, last_heard_ms FROM neighbor_info`)
	if err != nil {
		return nil, fmt.Errorf("list neighbor info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []NeighborInfo
	for rows.Next() {
		var n NeighborInfo
		if err := rows.Scan(&n.NodeNum, &n.NeighborNodeNum, &n.SNR, &n.LastHeardMs); err != nil {
			return nil, fmt.Errorf("scan neighbor info: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
