package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *sqliteStore) GetSessionPasskey(ctx context.Context, remoteNodeNum uint32) (*SessionPasskey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT remote_node_num, passkey, expires_at FROM session_passkeys WHERE remote_node_num = ?
	`, remoteNodeNum)
	var p SessionPasskey
	if err := row.Scan(&p.RemoteNodeNum, &p.Bytes, &p.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get session passkey: %w", err)
	}
	return &p, nil
}

func (s *sqliteStore) SetSessionPasskey(ctx context.Context, p SessionPasskey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_passkeys(remote_node_num, passkey, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(remote_node_num) DO UPDATE SET passkey = excluded.passkey, expires_at = excluded.expires_at
	`, p.RemoteNodeNum, p.Bytes, p.ExpiresAt)
	if err != nil {
		return fmt.Errorf("set session passkey: %w", err)
	}
	return nil
}
