package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// sqliteStore is the only backend shipped: a pure-Go SQLite driver, chosen
// to match the teacher's static-binary posture (no cgo).
type sqliteStore struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite-backed Store at path, running
// any pending migrations before returning.
func Open(ctx context.Context, path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

const schemaVersion = 1

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			node_num INTEGER PRIMARY KEY,
			long_name TEXT NOT NULL DEFAULT '',
			short_name TEXT NOT NULL DEFAULT '',
			hw_model INTEGER NOT NULL DEFAULT 0,
			role INTEGER NOT NULL DEFAULT 0,
			last_heard INTEGER NOT NULL DEFAULT 0,
			hops_away INTEGER NOT NULL DEFAULT 0,
			snr REAL NOT NULL DEFAULT 0,
			public_key BLOB NULL,
			favorite INTEGER NOT NULL DEFAULT 0,
			ignored INTEGER NOT NULL DEFAULT 0,
			firmware_version TEXT NOT NULL DEFAULT '',
			reboot_count INTEGER NOT NULL DEFAULT 0,
			last_channel INTEGER NOT NULL DEFAULT 0,
			pos_latitude REAL NULL,
			pos_longitude REAL NULL,
			pos_altitude REAL NULL,
			pos_precision_bits INTEGER NULL,
			pos_gps_accuracy INTEGER NOT NULL DEFAULT 0,
			pos_hdop INTEGER NOT NULL DEFAULT 0,
			pos_channel INTEGER NOT NULL DEFAULT 0,
			pos_timestamp_ms INTEGER NOT NULL DEFAULT 0,
			override_enabled INTEGER NOT NULL DEFAULT 0,
			override_latitude REAL NOT NULL DEFAULT 0,
			override_longitude REAL NOT NULL DEFAULT 0,
			override_altitude REAL NOT NULL DEFAULT 0,
			override_private INTEGER NOT NULL DEFAULT 0,
			key_is_low_entropy INTEGER NOT NULL DEFAULT 0,
			duplicate_key_detected INTEGER NOT NULL DEFAULT 0,
			key_security_issue_details TEXT NOT NULL DEFAULT '',
			has_remote_admin INTEGER NOT NULL DEFAULT 0,
			has_remote_admin_checked_at INTEGER NOT NULL DEFAULT 0,
			remote_admin_metadata TEXT NOT NULL DEFAULT '',
			welcomed INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS nodes_last_heard_idx ON nodes(last_heard DESC);`,

		`CREATE TABLE IF NOT EXISTS channels (
			idx INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			psk BLOB NULL,
			role INTEGER NOT NULL DEFAULT 0,
			uplink_enabled INTEGER NOT NULL DEFAULT 0,
			downlink_enabled INTEGER NOT NULL DEFAULT 0,
			position_precision INTEGER NOT NULL DEFAULT 0
		);`,

		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			from_num INTEGER NOT NULL,
			to_num INTEGER NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			channel INTEGER NOT NULL,
			port_num INTEGER NOT NULL DEFAULT 0,
			request_id INTEGER NOT NULL DEFAULT 0,
			timestamp_ms INTEGER NOT NULL DEFAULT 0,
			rx_time_ms INTEGER NOT NULL DEFAULT 0,
			hop_start INTEGER NOT NULL DEFAULT 0,
			hop_limit INTEGER NOT NULL DEFAULT 0,
			relay_node INTEGER NOT NULL DEFAULT 0,
			reply_id INTEGER NOT NULL DEFAULT 0,
			emoji INTEGER NOT NULL DEFAULT 0,
			via_mqtt INTEGER NOT NULL DEFAULT 0,
			rx_snr REAL NOT NULL DEFAULT 0,
			rx_rssi INTEGER NOT NULL DEFAULT 0,
			ack_failed INTEGER NOT NULL DEFAULT 0,
			routing_error_received INTEGER NOT NULL DEFAULT 0,
			delivery_state TEXT NOT NULL DEFAULT 'pending',
			want_ack INTEGER NOT NULL DEFAULT 0,
			ack_from_node INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL DEFAULT 0,
			decrypted_by TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS messages_request_id_idx ON messages(request_id);`,
		`CREATE INDEX IF NOT EXISTS messages_channel_order_idx ON messages(channel, COALESCE(NULLIF(rx_time_ms,0), timestamp_ms) DESC);`,
		`CREATE INDEX IF NOT EXISTS messages_direct_idx ON messages(channel, from_num, to_num, port_num);`,

		`CREATE TABLE IF NOT EXISTS traceroutes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_num INTEGER NOT NULL,
			to_num INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			route_json TEXT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS route_segments (
			from_num INTEGER NOT NULL,
			to_num INTEGER NOT NULL,
			last_seen_ms INTEGER NOT NULL,
			hops_observed INTEGER NOT NULL,
			PRIMARY KEY (from_num, to_num)
		);`,

		`CREATE TABLE IF NOT EXISTS neighbor_info (
			node_num INTEGER NOT NULL,
			neighbor_node_num INTEGER NOT NULL,
			snr REAL NOT NULL,
			last_heard_ms INTEGER NOT NULL,
			PRIMARY KEY (node_num, neighbor_node_num)
		);`,

		`CREATE TABLE IF NOT EXISTS telemetry (
			node_id TEXT NOT NULL,
			telemetry_type TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			value REAL NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			packet_id INTEGER NULL,
			channel INTEGER NULL,
			precision_bits INTEGER NULL,
			gps_accuracy INTEGER NULL,
			PRIMARY KEY (node_id, telemetry_type, timestamp_ms)
		);`,
		`CREATE INDEX IF NOT EXISTS telemetry_ts_idx ON telemetry(timestamp_ms);`,

		`CREATE TABLE IF NOT EXISTS session_passkeys (
			remote_node_num INTEGER PRIMARY KEY,
			passkey BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp_ms INTEGER NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS audit_log_ts_idx ON audit_log(timestamp_ms DESC);`,

		`CREATE TABLE IF NOT EXISTS ignored_nodes (
			node_num INTEGER PRIMARY KEY,
			reason TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,

		fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion),
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}
