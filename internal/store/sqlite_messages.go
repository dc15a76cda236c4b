package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertMessage inserts m, ignoring the call entirely if the id already
// exists (§4.3.1: "inserts are idempotent").
func (s *sqliteStore) InsertMessage(ctx context.Context, m Message) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages(
			id, from_num, to_num, text, channel, port_num, request_id, timestamp_ms, rx_time_ms,
			hop_start, hop_limit, relay_node, reply_id, emoji, via_mqtt, rx_snr, rx_rssi,
			ack_failed, routing_error_received, delivery_state, want_ack, ack_from_node, created_at_ms, decrypted_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.From, m.To, m.Text, m.Channel, m.PortNum, m.RequestID, m.TimestampMs, m.RxTimeMs,
		m.HopStart, m.HopLimit, m.RelayNode, m.ReplyID, boolToInt(m.Emoji), boolToInt(m.ViaMqtt), m.RxSnr, m.RxRssi,
		boolToInt(m.AckFailed), boolToInt(m.RoutingErrorReceived), string(deliveryStateOrDefault(m.DeliveryState)),
		boolToInt(m.WantAck), m.AckFromNode, m.CreatedAtMs, m.DecryptedBy)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func deliveryStateOrDefault(d DeliveryState) DeliveryState {
	if d == "" {
		return DeliveryPending
	}
	return d
}

const messageSelectColumns = `SELECT
	id, from_num, to_num, text, channel, port_num, request_id, timestamp_ms, rx_time_ms,
	hop_start, hop_limit, relay_node, reply_id, emoji, via_mqtt, rx_snr, rx_rssi,
	ack_failed, routing_error_received, delivery_state, want_ack, ack_from_node, created_at_ms, decrypted_by`

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m          Message
		emoji      int
		viaMqtt    int
		ackFailed  int
		routingErr int
		state      string
		wantAck    int
	)
	if err := row.Scan(
		&m.ID, &m.From, &m.To, &m.Text, &m.Channel, &m.PortNum, &m.RequestID, &m.TimestampMs, &m.RxTimeMs,
		&m.HopStart, &m.HopLimit, &m.RelayNode, &m.ReplyID, &emoji, &viaMqtt, &m.RxSnr, &m.RxRssi,
		&ackFailed, &routingErr, &state, &wantAck, &m.AckFromNode, &m.CreatedAtMs, &m.DecryptedBy,
	); err != nil {
		return nil, err
	}
	m.Emoji = emoji != 0
	m.ViaMqtt = viaMqtt != 0
	m.AckFailed = ackFailed != 0
	m.RoutingErrorReceived = routingErr != 0
	m.DeliveryState = DeliveryState(state)
	m.WantAck = wantAck != 0
	return &m, nil
}

func (s *sqliteStore) GetMessageByID(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, messageSelectColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message by id: %w", err)
	}
	return m, nil
}

func (s *sqliteStore) GetMessageByRequestID(ctx context.Context, requestID uint32) (*Message, error) {
	row := s.db.QueryRowContext(ctx, messageSelectColumns+` FROM messages WHERE request_id = ? ORDER BY created_at_ms DESC LIMIT 1`, requestID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message by request id: %w", err)
	}
	return m, nil
}

// ListMessagesByChannel implements §4.3.4 retrieval 3: paginated, ordered
// by coalesce(rxTime, timestamp) desc, clamped per ClampPage.
func (s *sqliteStore) ListMessagesByChannel(ctx context.Context, channel int32, limit, offset int) ([]Message, bool, error) {
	limit, offset = ClampPage(limit, offset)
	rows, err := s.db.QueryContext(ctx, messageSelectColumns+`
		FROM messages
		WHERE channel = ?
		ORDER BY COALESCE(NULLIF(rx_time_ms, 0), timestamp_ms) DESC
		LIMIT ? OFFSET ?
	`, channel, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("list messages by channel: %w", err)
	}
	return collectMessagesPage(rows, limit)
}

// ListDirectMessages implements §4.3.4 retrieval 4: the direct-message
// query between two nodes irrespective of which one sent which message.
func (s *sqliteStore) ListDirectMessages(ctx context.Context, a, b uint32, limit, offset int) ([]Message, bool, error) {
	limit, offset = ClampPage(limit, offset)
	rows, err := s.db.QueryContext(ctx, messageSelectColumns+`
		FROM messages
		WHERE port_num = ? AND channel = ? AND ((from_num = ? AND to_num = ?) OR (from_num = ? AND to_num = ?))
		ORDER BY COALESCE(NULLIF(rx_time_ms, 0), timestamp_ms) DESC
		LIMIT ? OFFSET ?
	`, uint32(1) /* PortNumTextMessageApp */, DirectMessageChannel, a, b, b, a, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("list direct messages: %w", err)
	}
	return collectMessagesPage(rows, limit)
}

func collectMessagesPage(rows *sql.Rows, limit int) ([]Message, bool, error) {
	defer func() { _ = rows.Close() }()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate messages: %w", err)
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

func (s *sqliteStore) UpdateMessageDeliveryState(ctx context.Context, id string, state DeliveryState, ackFromNode uint32) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET delivery_state = ?, ack_from_node = ? WHERE id = ?
	`, string(state), ackFromNode, id)
	if err != nil {
		return fmt.Errorf("update message delivery state: %w", err)
	}
	return nil
}
