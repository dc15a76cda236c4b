package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *sqliteStore) IgnoreNode(ctx context.Context, nodeNum uint32, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ignore node tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ignored_nodes(node_num, reason, created_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(node_num) DO UPDATE SET reason = excluded.reason
	`, nodeNum, reason, nowMs()); err != nil {
		return fmt.Errorf("insert ignored node: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO nodes(node_num, ignored) VALUES (?, 1)
		ON CONFLICT(node_num) DO UPDATE SET ignored = 1
	`, nodeNum); err != nil {
		return fmt.Errorf("flag node ignored: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteStore) UnignoreNode(ctx context.Context, nodeNum uint32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unignore node tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ignored_nodes WHERE node_num = ?`, nodeNum); err != nil {
		return fmt.Errorf("delete ignored node: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE nodes SET ignored = 0 WHERE node_num = ?`, nodeNum); err != nil {
		return fmt.Errorf("clear node ignored flag: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteStore) ListIgnoredNodes(ctx context.Context) ([]IgnoredNode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT node_num, reason, created_at_ms FROM ignored_nodes`)
	if err != nil {
		return nil, fmt.Errorf("list ignored nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []IgnoredNode
	for rows.Next() {
		var n IgnoredNode
		if err := rows.Scan(&n.NodeNum, &n.Reason, &n.CreatedAtMs); err != nil {
			return nil, fmt.Errorf("scan ignored node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) IsIgnored(ctx context.Context, nodeNum uint32) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM ignored_nodes WHERE node_num = ?`, nodeNum)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check ignored node: %w", err)
	}
	return true, nil
}
