// Package store implements the mesh state store: the durable record of
// nodes, channels, messages, telemetry and the other entities the radio
// session and automation scheduler read and write. Store is the single
// interface both components depend on; sqliteStore is the only backend
// shipped here (see DESIGN.md for the PostgreSQL/MySQL parity decision).
package store

import (
	"context"
	"fmt"
	"time"
)

// DeliveryState is a Message's ACK lifecycle position.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// DirectMessageChannel is the sentinel channel value denoting a message
// exchanged directly between two nodes, independent of any mesh channel.
const DirectMessageChannel int32 = -1

// NodeID derives a node's textual id from its numeric id, e.g. "!4a7d3c21".
func NodeID(nodeNum uint32) string {
	return fmt.Sprintf("!%08x", nodeNum)
}

// NodePosition is a node's last observed position.
type NodePosition struct {
	Latitude      float64
	Longitude     float64
	Altitude      float64
	PrecisionBits *uint32
	GPSAccuracy   uint32
	HDOP          uint32
	Channel       uint32
	TimestampMs   int64
}

// PositionOverride is an explicit manually set position that takes
// precedence over observed positions when enabled.
type PositionOverride struct {
	Enabled   bool
	Latitude  float64
	Longitude float64
	Altitude  float64
	Private   bool
}

// Node is a mesh participant.
type Node struct {
	NodeNum                 uint32
	LongName                string
	ShortName                string
	HwModel                 uint32
	Role                    uint32
	LastHeard               int64 // epoch seconds
	HopsAway                uint32
	SNR                     float32
	PublicKey               []byte
	Favorite                bool
	Ignored                 bool
	FirmwareVersion         string
	RebootCount             uint32
	LastChannel             uint32
	Position                *NodePosition
	PositionOverride        *PositionOverride
	KeyIsLowEntropy         bool
	DuplicateKeyDetected    bool
	KeySecurityIssueDetails string
	HasRemoteAdmin          bool
	HasRemoteAdminCheckedAt int64
	Welcomed                bool
	UpdatedAt               int64 // epoch ms
}

// ID returns the node's derived textual id.
func (n Node) ID() string { return NodeID(n.NodeNum) }

// HasPKC reports whether the node has a known public key (it is its own
// local node, or a key has been observed for it).
func (n Node) HasPKC(localNodeNum uint32) bool {
	return len(n.PublicKey) > 0 || n.NodeNum == localNodeNum
}

// EffectivePosition returns the position a client should see: the manual
// override when enabled, otherwise the last observed position.
func (n Node) EffectivePosition() *NodePosition {
	if n.PositionOverride != nil && n.PositionOverride.Enabled {
		return &NodePosition{
			Latitude:  n.PositionOverride.Latitude,
			Longitude: n.PositionOverride.Longitude,
			Altitude:  n.PositionOverride.Altitude,
		}
	}
	return n.Position
}

// Channel is one of the mesh's 0..7 channel slots.
type Channel struct {
	Index             uint32
	Name              string
	Psk               []byte
	Role              uint32
	UplinkEnabled     bool
	DownlinkEnabled   bool
	PositionPrecision uint32
}

// Message is a mesh text message or any other text-message-app record.
type Message struct {
	ID                   string
	From                 uint32
	To                   uint32
	Text                 string
	Channel              int32
	PortNum              uint32
	RequestID            uint32
	TimestampMs          int64
	RxTimeMs             int64
	HopStart             uint32
	HopLimit             uint32
	RelayNode            uint32
	ReplyID              uint32
	Emoji                bool
	ViaMqtt              bool
	RxSnr                float32
	RxRssi               int32
	AckFailed            bool
	RoutingErrorReceived bool
	DeliveryState        DeliveryState
	WantAck              bool
	AckFromNode          uint32
	CreatedAtMs          int64
	DecryptedBy          string
}

// FromNodeID and ToNodeID are derived, not stored.
func (m Message) FromNodeID() string { return NodeID(m.From) }
func (m Message) ToNodeID() string   { return NodeID(m.To) }

// orderKey is the retrieval ordering key: coalesce(rxTime, timestamp) desc.
func (m Message) orderKey() int64 {
	if m.RxTimeMs != 0 {
		return m.RxTimeMs
	}
	return m.TimestampMs
}

// Traceroute is a recorded route discovery result.
type Traceroute struct {
	ID          int64
	From        uint32
	To          uint32
	TimestampMs int64
	Route       []uint32
}

// HopCount is the traceroute's derived hop count: the route length, or a
// 999 sentinel when the route could not be parsed.
func (t Traceroute) HopCount() int {
	if t.Route == nil {
		return 999
	}
	return len(t.Route)
}

// RouteSegment aggregates observed hops between a pair of nodes.
type RouteSegment struct {
	FromNodeNum  uint32
	ToNodeNum    uint32
	LastSeenMs   int64
	HopsObserved uint32
}

// NeighborInfo is the latest observed SNR between a node and a neighbor.
type NeighborInfo struct {
	NodeNum         uint32
	NeighborNodeNum uint32
	SNR             float32
	LastHeardMs     int64
}

// TelemetrySample is one observation of a telemetry metric.
type TelemetrySample struct {
	NodeID        string
	Type          string
	TimestampMs   int64
	Value         float64
	Unit          string
	PacketID      *uint32
	Channel       *uint32
	PrecisionBits *uint32
	GPSAccuracy   *uint32
}

// SessionPasskey is a cached admin session passkey for a remote node.
type SessionPasskey struct {
	RemoteNodeNum uint32
	Bytes         []byte
	ExpiresAt     int64 // epoch seconds
}

// Expired reports whether the passkey is no longer usable at now.
func (p SessionPasskey) Expired(now time.Time) bool {
	return p.ExpiresAt != 0 && now.Unix() >= p.ExpiresAt
}

// AuditLogEntry is one row in the scheduler/admin audit trail.
type AuditLogEntry struct {
	ID          int64
	TimestampMs int64
	Category    string
	Message     string
	Details     string
}

// IgnoredNode is a node the operator has chosen to ignore.
type IgnoredNode struct {
	NodeNum     uint32
	Reason      string
	CreatedAtMs int64
}

// RetentionThresholds bounds how far back §4.3.5's maintenance task keeps
// each kind of row. Zero means "no purge for this kind".
type RetentionThresholds struct {
	Messages               time.Duration
	Telemetry              time.Duration
	TelemetryFavoritedNode time.Duration
	Traceroutes            time.Duration
	RouteSegments          time.Duration
	NeighborInfo           time.Duration
}

// PurgeStats reports how many rows §4.3.5's maintenance task removed.
type PurgeStats struct {
	Messages      int64
	Telemetry     int64
	Traceroutes   int64
	RouteSegments int64
	NeighborInfo  int64
}

// Pagination clamps per §4.3.4.
const (
	MinPageLimit = 1
	MaxPageLimit = 500
	MaxOffset    = 50000
)

// ClampPage normalizes limit/offset to the bounds §4.3.4 requires.
func ClampPage(limit, offset int) (int, int) {
	if limit < MinPageLimit {
		limit = MinPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset > MaxOffset {
		offset = MaxOffset
	}
	return limit, offset
}

// Store is the mesh state store's full interface. The radio session and
// automation scheduler depend on this, never on the concrete backend.
type Store interface {
	// Nodes
	UpsertNode(ctx context.Context, n Node) error
	GetNode(ctx context.Context, nodeNum uint32) (*Node, error)
	ListNodes(ctx context.Context) ([]Node, error)
	ApplyPosition(ctx context.Context, nodeNum uint32, pos NodePosition, now time.Time) (accepted bool, err error)
	SetPositionOverride(ctx context.Context, nodeNum uint32, override PositionOverride) error
	SetKeySecurityFlags(ctx context.Context, nodeNum uint32, lowEntropy, duplicate bool, details string) error
	ScanKeySecurity(ctx context.Context, lowEntropyKeys [][]byte) error
	MarkWelcomed(ctx context.Context, nodeNum uint32) error
	BulkMarkWelcomed(ctx context.Context) error
	SetHasRemoteAdmin(ctx context.Context, nodeNum uint32, has bool, checkedAt time.Time, metadata string) error

	// Channels
	UpsertChannel(ctx context.Context, ch Channel) error
	ListChannels(ctx context.Context) ([]Channel, error)

	// Messages
	InsertMessage(ctx context.Context, m Message) (inserted bool, err error)
	GetMessageByID(ctx context.Context, id string) (*Message, error)
	GetMessageByRequestID(ctx context.Context, requestID uint32) (*Message, error)
	ListMessagesByChannel(ctx context.Context, channel int32, limit, offset int) (msgs []Message, hasMore bool, err error)
	ListDirectMessages(ctx context.Context, a, b uint32, limit, offset int) (msgs []Message, hasMore bool, err error)
	UpdateMessageDeliveryState(ctx context.Context, id string, state DeliveryState, ackFromNode uint32) error

	// Traceroutes / route segments / neighbor info
	InsertTraceroute(ctx context.Context, tr Traceroute) (int64, error)
	UpsertRouteSegment(ctx context.Context, seg RouteSegment) error
	ListRouteSegments(ctx context.Context) ([]RouteSegment, error)
	UpsertNeighborInfo(ctx context.Context, n NeighborInfo) error
	ListNeighborInfo(ctx context.Context) ([]NeighborInfo, error)

	// Telemetry
	InsertTelemetry(ctx context.Context, t TelemetrySample) error
	ListTelemetry(ctx context.Context, nodeID string, telemetryType string, limit int) ([]TelemetrySample, error)

	// Session passkeys
	GetSessionPasskey(ctx context.Context, remoteNodeNum uint32) (*SessionPasskey, error)
	SetSessionPasskey(ctx context.Context, p SessionPasskey) error

	// Settings (key/value)
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) (map[string]string, error)

	// Audit log
	AppendAuditLog(ctx context.Context, e AuditLogEntry) error
	ListAuditLog(ctx context.Context, limit int) ([]AuditLogEntry, error)

	// Ignored nodes
	IgnoreNode(ctx context.Context, nodeNum uint32, reason string) error
	UnignoreNode(ctx context.Context, nodeNum uint32) error
	ListIgnoredNodes(ctx context.Context) ([]IgnoredNode, error)
	IsIgnored(ctx context.Context, nodeNum uint32) (bool, error)

	// Maintenance
	PurgeOlderThan(ctx context.Context, thresholds RetentionThresholds, now time.Time) (PurgeStats, error)

	Close() error
}
