package store

import (
	"context"
	"fmt"
)

func (s *sqliteStore) UpsertChannel(ctx context.Context, ch Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels(idx, name, psk, role, uplink_enabled, downlink_enabled, position_precision)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idx) DO UPDATE SET
			name = excluded.name,
			psk = excluded.psk,
			role = excluded.role,
			uplink_enabled = excluded.uplink_enabled,
			downlink_enabled = excluded.downlink_enabled,
			position_precision = excluded.position_precision
	`, ch.Index, ch.Name, nullableBytes(ch.Psk), ch.Role, boolToInt(ch.UplinkEnabled), boolToInt(ch.DownlinkEnabled), ch.PositionPrecision)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, name, psk, role, uplink_enabled, downlink_enabled, position_precision
		FROM channels ORDER BY idx ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Channel
	for rows.Next() {
		var (
			ch       Channel
			psk      []byte
			uplink   int
			downlink int
		)
		if err := rows.Scan(&ch.Index, &ch.Name, &psk, &ch.Role, &uplink, &downlink, &ch.PositionPrecision); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch.Psk = psk
		ch.UplinkEnabled = uplink != 0
		ch.DownlinkEnabled = downlink != 0
		out = append(out, ch)
	}
	return out, rows.Err()
}
