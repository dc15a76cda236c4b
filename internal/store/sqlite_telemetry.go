package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *sqliteStore) InsertTelemetry(ctx context.Context, t TelemetrySample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO telemetry(node_id, telemetry_type, timestamp_ms, value, unit, packet_id, channel, precision_bits, gps_accuracy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.NodeID, t.Type, t.TimestampMs, t.Value, t.Unit,
		nullableUint32Ptr(t.PacketID), nullableUint32Ptr(t.Channel), nullableUint32Ptr(t.PrecisionBits), nullableUint32Ptr(t.GPSAccuracy))
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListTelemetry(ctx context.Context, nodeID string, telemetryType string, limit int) ([]TelemetrySample, error) {
	if limit <= 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, telemetry_type, timestamp_ms, value, unit, packet_id, channel, precision_bits, gps_accuracy
		FROM telemetry
		WHERE node_id = ? AND telemetry_type = ?
		ORDER BY timestamp_ms DESC
		LIMIT ?
	`, nodeID, telemetryType, limit)
	if err != nil {
		return nil, fmt.Errorf("list telemetry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TelemetrySample
	for rows.Next() {
		var (
			t        TelemetrySample
			packetID sql.NullInt64
			channel  sql.NullInt64
			prec     sql.NullInt64
			gps      sql.NullInt64
		)
		if err := rows.Scan(&t.NodeID, &t.Type, &t.TimestampMs, &t.Value, &t.Unit, &packetID, &channel, &prec, &gps); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		if packetID.Valid {
			v := uint32(packetID.Int64)
			t.PacketID = &v
		}
		if channel.Valid {
			v := uint32(channel.Int64)
			t.Channel = &v
		}
		if prec.Valid {
			v := uint32(prec.Int64)
			t.PrecisionBits = &v
		}
		if gps.Valid {
			v := uint32(gps.Int64)
			t.GPSAccuracy = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
