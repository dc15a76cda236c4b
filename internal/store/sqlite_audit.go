package store

import (
	"context"
	"fmt"
)

func (s *sqliteStore) AppendAuditLog(ctx context.Context, e AuditLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log(timestamp_ms, category, message, details) VALUES (?, ?, ?, ?)
	`, e.TimestampMs, e.Category, e.Message, e.Details)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListAuditLog(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	if limit <= 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp_ms, category, message, details FROM audit_log ORDER BY timestamp_ms DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.TimestampMs, &e.Category, &e.Message, &e.Details); err != nil {
			return nil, fmt.Errorf("scan audit log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
