package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *sqliteStore) UpsertNode(ctx context.Context, n Node) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes(node_num, long_name, short_name, hw_model, role, last_heard, hops_away, snr, public_key, favorite, ignored, firmware_version, reboot_count, last_channel, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_num) DO UPDATE SET
			long_name = CASE WHEN excluded.long_name <> '' THEN excluded.long_name ELSE nodes.long_name END,
			short_name = CASE WHEN excluded.short_name <> '' THEN excluded.short_name ELSE nodes.short_name END,
			hw_model = CASE WHEN excluded.hw_model <> 0 THEN excluded.hw_model ELSE nodes.hw_model END,
			role = excluded.role,
			last_heard = CASE WHEN excluded.last_heard > nodes.last_heard THEN excluded.last_heard ELSE nodes.last_heard END,
			hops_away = excluded.hops_away,
			snr = excluded.snr,
			public_key = COALESCE(excluded.public_key, nodes.public_key),
			favorite = excluded.favorite,
			firmware_version = CASE WHEN excluded.firmware_version <> '' THEN excluded.firmware_version ELSE nodes.firmware_version END,
			reboot_count = excluded.reboot_count,
			last_channel = excluded.last_channel,
			updated_at = CASE WHEN excluded.updated_at > nodes.updated_at THEN excluded.updated_at ELSE nodes.updated_at END
	`, n.NodeNum, n.LongName, n.ShortName, n.HwModel, n.Role, n.LastHeard, n.HopsAway, n.SNR,
		nullableBytes(n.PublicKey), boolToInt(n.Favorite), boolToInt(n.Ignored), n.FirmwareVersion,
		n.RebootCount, n.LastChannel, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetNode(ctx context.Context, nodeNum uint32) (*Node, error) {
	row := s.db.QueryRowContext(ctx, nodeSelectColumns+` FROM nodes WHERE node_num = ?`, nodeNum)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) ListNodes(ctx context.Context) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, nodeSelectColumns+` FROM nodes ORDER BY last_heard DESC`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

const nodeSelectColumns = `SELECT
	node_num, long_name, short_name, hw_model, role, last_heard, hops_away, snr, public_key,
	favorite, ignored, firmware_version, reboot_count, last_channel,
	pos_latitude, pos_longitude, pos_altitude, pos_precision_bits, pos_gps_accuracy, pos_hdop, pos_channel, pos_timestamp_ms,
	override_enabled, override_latitude, override_longitude, override_altitude, override_private,
	key_is_low_entropy, duplicate_key_detected, key_security_issue_details,
	has_remote_admin, has_remote_admin_checked_at, welcomed, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var (
		n                Node
		publicKey        []byte
		posLat, posLon   sql.NullFloat64
		posAlt           sql.NullFloat64
		posPrecisionBits sql.NullInt64
		posGPSAccuracy   int64
		posHDOP          int64
		posChannel       int64
		posTimestampMs   int64
		overrideEnabled  int
		overrideLat      float64
		overrideLon      float64
		overrideAlt      float64
		overridePrivate  int
		favorite         int
		ignored          int
		lowEntropy       int
		duplicate        int
		hasRemoteAdmin   int
	)
	if err := row.Scan(
		&n.NodeNum, &n.LongName, &n.ShortName, &n.HwModel, &n.Role, &n.LastHeard, &n.HopsAway, &n.SNR, &publicKey,
		&favorite, &ignored, &n.FirmwareVersion, &n.RebootCount, &n.LastChannel,
		&posLat, &posLon, &posAlt, &posPrecisionBits, &posGPSAccuracy, &posHDOP, &posChannel, &posTimestampMs,
		&overrideEnabled, &overrideLat, &overrideLon, &overrideAlt, &overridePrivate,
		&lowEntropy, &duplicate, &n.KeySecurityIssueDetails,
		&hasRemoteAdmin, &n.HasRemoteAdminCheckedAt, &n.Welcomed, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	n.PublicKey = publicKey
	n.Favorite = favorite != 0
	n.Ignored = ignored != 0
	n.KeyIsLowEntropy = lowEntropy != 0
	n.DuplicateKeyDetected = duplicate != 0
	n.HasRemoteAdmin = hasRemoteAdmin != 0

	if posLat.Valid {
		pos := &NodePosition{
			Latitude:    posLat.Float64,
			Longitude:   posLon.Float64,
			Altitude:    posAlt.Float64,
			GPSAccuracy: uint32(posGPSAccuracy),
			HDOP:        uint32(posHDOP),
			Channel:     uint32(posChannel),
			TimestampMs: posTimestampMs,
		}
		if posPrecisionBits.Valid {
			v := uint32(posPrecisionBits.Int64)
			pos.PrecisionBits = &v
		}
		n.Position = pos
	}
	if overrideEnabled != 0 || overrideLat != 0 || overrideLon != 0 {
		n.PositionOverride = &PositionOverride{
			Enabled:   overrideEnabled != 0,
			Latitude:  overrideLat,
			Longitude: overrideLon,
			Altitude:  overrideAlt,
			Private:   overridePrivate != 0,
		}
	}
	return &n, nil
}

// ApplyPosition runs the §4.3.2 precision-arbitration law against the
// node's existing position and persists the result iff accepted.
func (s *sqliteStore) ApplyPosition(ctx context.Context, nodeNum uint32, pos NodePosition, now time.Time) (bool, error) {
	existing, err := s.GetNode(ctx, nodeNum)
	if err != nil {
		return false, err
	}

	var existingPos *NodePosition
	if existing != nil {
		existingPos = existing.Position
	}
	if !acceptPosition(existingPos, pos, now) {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes(node_num, pos_latitude, pos_longitude, pos_altitude, pos_precision_bits, pos_gps_accuracy, pos_hdop, pos_channel, pos_timestamp_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_num) DO UPDATE SET
			pos_latitude = excluded.pos_latitude,
			pos_longitude = excluded.pos_longitude,
			pos_altitude = excluded.pos_altitude,
			pos_precision_bits = excluded.pos_precision_bits,
			pos_gps_accuracy = excluded.pos_gps_accuracy,
			pos_hdop = excluded.pos_hdop,
			pos_channel = excluded.pos_channel,
			pos_timestamp_ms = excluded.pos_timestamp_ms,
			updated_at = CASE WHEN excluded.updated_at > nodes.updated_at THEN excluded.updated_at ELSE nodes.updated_at END
	`, nodeNum, pos.Latitude, pos.Longitude, pos.Altitude, nullableUint32Ptr(pos.PrecisionBits),
		pos.GPSAccuracy, pos.HDOP, pos.Channel, pos.TimestampMs, now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("apply position: %w", err)
	}
	return true, nil
}

// acceptPosition implements §4.3.2 verbatim: no existing position, or no
// precision metadata on the existing position, always accepts; otherwise a
// lower-precision update is rejected unless the existing position is at
// least 12h old, in which case the stale position is overwritten outright.
func acceptPosition(existing *NodePosition, incoming NodePosition, now time.Time) bool {
	if existing == nil {
		return true
	}
	if existing.PrecisionBits == nil {
		return true
	}

	oldPrec := *existing.PrecisionBits
	var newPrec uint32
	if incoming.PrecisionBits != nil {
		newPrec = *incoming.PrecisionBits
	}

	age := time.Duration(1<<63 - 1) // treated as infinite when no existing timestamp
	if existing.TimestampMs != 0 {
		age = now.Sub(time.UnixMilli(existing.TimestampMs))
	}

	reject := newPrec < oldPrec && age < 12*time.Hour
	return !reject
}

func (s *sqliteStore) SetPositionOverride(ctx context.Context, nodeNum uint32, override PositionOverride) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes(node_num, override_enabled, override_latitude, override_longitude, override_altitude, override_private)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_num) DO UPDATE SET
			override_enabled = excluded.override_enabled,
			override_latitude = excluded.override_latitude,
			override_longitude = excluded.override_longitude,
			override_altitude = excluded.override_altitude,
			override_private = excluded.override_private
	`, nodeNum, boolToInt(override.Enabled), override.Latitude, override.Longitude, override.Altitude, boolToInt(override.Private))
	if err != nil {
		return fmt.Errorf("set position override: %w", err)
	}
	return nil
}

func (s *sqliteStore) SetKeySecurityFlags(ctx context.Context, nodeNum uint32, lowEntropy, duplicate bool, details string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes(node_num, key_is_low_entropy, duplicate_key_detected, key_security_issue_details)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_num) DO UPDATE SET
			key_is_low_entropy = excluded.key_is_low_entropy,
			duplicate_key_detected = excluded.duplicate_key_detected,
			key_security_issue_details = excluded.key_security_issue_details
	`, nodeNum, boolToInt(lowEntropy), boolToInt(duplicate), details)
	if err != nil {
		return fmt.Errorf("set key security flags: %w", err)
	}
	return nil
}

// ScanKeySecurity re-derives keyIsLowEntropy and duplicateKeyDetected for
// every node per §4.3.3: low-entropy membership against a known-bad list,
// duplicates by grouping nodes sharing an identical public key. Stale
// flags are cleared before re-marking, so rescans are idempotent.
func (s *sqliteStore) ScanKeySecurity(ctx context.Context, lowEntropyKeys [][]byte) error {
	nodes, err := s.ListNodes(ctx)
	if err != nil {
		return err
	}

	lowEntropy := make(map[string]bool, len(lowEntropyKeys))
	for _, k := range lowEntropyKeys {
		lowEntropy[string(k)] = true
	}

	byKey := make(map[string][]uint32)
	for _, n := range nodes {
		if len(n.PublicKey) == 0 {
			continue
		}
		byKey[string(n.PublicKey)] = append(byKey[string(n.PublicKey)], n.NodeNum)
	}

	for _, n := range nodes {
		isLow := len(n.PublicKey) > 0 && lowEntropy[string(n.PublicKey)]
		isDup := false
		details := ""
		if len(n.PublicKey) > 0 {
			peers := byKey[string(n.PublicKey)]
			if len(peers) >= 2 {
				isDup = true
				details = formatCoOffenders(n.NodeNum, peers)
			}
		}
		if isLow == n.KeyIsLowEntropy && isDup == n.DuplicateKeyDetected && details == n.KeySecurityIssueDetails {
			continue
		}
		if err := s.SetKeySecurityFlags(ctx, n.NodeNum, isLow, isDup, details); err != nil {
			return err
		}
	}
	return nil
}

func formatCoOffenders(self uint32, peers []uint32) string {
	out := ""
	for _, p := range peers {
		if p == self {
			continue
		}
		if out != "" {
			out += ","
		}
		out += NodeID(p)
	}
	return out
}

func (s *sqliteStore) MarkWelcomed(ctx context.Context, nodeNum uint32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes(node_num, welcomed) VALUES (?, 1)
		ON CONFLICT(node_num) DO UPDATE SET welcomed = 1
	`, nodeNum)
	if err != nil {
		return fmt.Errorf("mark welcomed: %w", err)
	}
	return nil
}

// BulkMarkWelcomed marks every existing node as welcomed in one statement,
// so enabling the auto-welcome task doesn't DM the entire known node list.
func (s *sqliteStore) BulkMarkWelcomed(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE nodes SET welcomed = 1`); err != nil {
		return fmt.Errorf("bulk mark welcomed: %w", err)
	}
	return nil
}

func (s *sqliteStore) SetHasRemoteAdmin(ctx context.Context, nodeNum uint32, has bool, checkedAt time.Time, metadata string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes(node_num, has_remote_admin, has_remote_admin_checked_at, remote_admin_metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_num) DO UPDATE SET
			has_remote_admin = excluded.has_remote_admin,
			has_remote_admin_checked_at = excluded.has_remote_admin_checked_at,
			remote_admin_metadata = excluded.remote_admin_metadata
	`, nodeNum, boolToInt(has), checkedAt.UnixMilli(), metadata)
	if err != nil {
		return fmt.Errorf("set has remote admin: %w", err)
	}
	return nil
}
