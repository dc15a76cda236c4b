package meshtastic

// AdminMessage is the payload carried inside a Data message on
// PortNumAdminApp. Only one of its fields is meaningful per instance,
// selected by Variant; constructors below build exactly the payload for a
// given admin operation, and ParseAdminMessage decodes whichever variant the
// radio actually sent back.
type AdminMessage struct {
	Variant uint32

	// ConfigVariant/ModuleConfigVariant select which Config/ModuleConfig
	// oneof case a get/set request or response concerns (see
	// ConfigVariant* / ModuleConfigVariant* constants).
	ConfigVariant       uint32
	ModuleConfigVariant uint32
	ConfigRaw           []byte // set payload, or raw get-response payload

	Channel  *ChannelSettings
	Owner    *User
	Position *Position

	NodeNum       uint32
	RebootSeconds uint32
	EpochSeconds  uint32

	SessionPasskey   []byte
	SessionExpiresAt uint32
}

// Admin message variants (field numbers within AdminMessage).
const (
	AdminVariantGetChannelRequest      = 1
	AdminVariantGetChannelResponse     = 2
	AdminVariantGetOwnerRequest        = 3
	AdminVariantGetOwnerResponse       = 4
	AdminVariantSetOwner               = 5
	AdminVariantSetChannel             = 6
	AdminVariantRebootSeconds          = 9
	AdminVariantGetConfigRequest       = 10
	AdminVariantGetConfigResponse      = 11
	AdminVariantGetModuleConfigRequest = 12
	AdminVariantGetModuleConfigRespons = 13
	AdminVariantSetConfig              = 14
	AdminVariantSetModuleConfig        = 15
	AdminVariantNodedbReset            = 16
	AdminVariantBeginEditSettings      = 17
	AdminVariantCommitEditSettings     = 18
	AdminVariantSetFixedPosition       = 19
	AdminVariantRemoveFixedPosition    = 20
	AdminVariantSetFavoriteNode        = 21
	AdminVariantRemoveFavoriteNode     = 22
	AdminVariantSetIgnoredNode         = 23
	AdminVariantRemoveIgnoredNode      = 24
	AdminVariantRemoveByNodenum        = 25
	AdminVariantGetSessionKeyRequest   = 26
	AdminVariantGetSessionKeyResponse  = 27
	AdminVariantSetTime                = 28
)

// NewGetConfigRequest requests a single Config oneof variant.
func NewGetConfigRequest(variant uint32) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantGetConfigRequest, ConfigVariant: variant}
}

// NewGetModuleConfigRequest requests a single ModuleConfig oneof variant.
func NewGetModuleConfigRequest(variant uint32) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantGetModuleConfigRequest, ModuleConfigVariant: variant}
}

// NewSetConfig pushes a raw, already-encoded Config sub-message back to the
// radio. raw is the caller's encoded payload for the given variant.
func NewSetConfig(variant uint32, raw []byte) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantSetConfig, ConfigVariant: variant, ConfigRaw: raw}
}

// NewSetModuleConfig pushes a raw, already-encoded ModuleConfig sub-message.
func NewSetModuleConfig(variant uint32, raw []byte) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantSetModuleConfig, ModuleConfigVariant: variant, ConfigRaw: raw}
}

// NewSetChannel writes a single channel slot.
func NewSetChannel(ch *ChannelSettings) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantSetChannel, Channel: ch}
}

// NewSetOwner renames the node's User record.
func NewSetOwner(owner *User) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantSetOwner, Owner: owner}
}

// NewSetFixedPosition pins the node at a fixed position, disabling GPS
// position reporting per the radio's own semantics.
func NewSetFixedPosition(pos *Position) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantSetFixedPosition, Position: pos}
}

// NewRemoveFixedPosition clears a previously set fixed position.
func NewRemoveFixedPosition() *AdminMessage {
	return &AdminMessage{Variant: AdminVariantRemoveFixedPosition}
}

// NewReboot schedules a radio reboot after the given number of seconds.
func NewReboot(afterSeconds uint32) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantRebootSeconds, RebootSeconds: afterSeconds}
}

// NewNodedbReset wipes the radio's local node database.
func NewNodedbReset() *AdminMessage {
	return &AdminMessage{Variant: AdminVariantNodedbReset}
}

// NewBeginEditSettings opens a transactional settings edit; the radio
// batches subsequent set* admin messages until NewCommitEditSettings.
func NewBeginEditSettings() *AdminMessage {
	return &AdminMessage{Variant: AdminVariantBeginEditSettings}
}

// NewCommitEditSettings closes a transactional settings edit opened with
// NewBeginEditSettings.
func NewCommitEditSettings() *AdminMessage {
	return &AdminMessage{Variant: AdminVariantCommitEditSettings}
}

// NewSetFavoriteNode marks a node as a favorite so it survives nodedb
// eviction.
func NewSetFavoriteNode(nodeNum uint32) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantSetFavoriteNode, NodeNum: nodeNum}
}

// NewRemoveFavoriteNode clears a node's favorite flag.
func NewRemoveFavoriteNode(nodeNum uint32) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantRemoveFavoriteNode, NodeNum: nodeNum}
}

// NewSetIgnoredNode adds a node to the radio's ignore list.
func NewSetIgnoredNode(nodeNum uint32) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantSetIgnoredNode, NodeNum: nodeNum}
}

// NewRemoveIgnoredNode removes a node from the radio's ignore list.
func NewRemoveIgnoredNode(nodeNum uint32) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantRemoveIgnoredNode, NodeNum: nodeNum}
}

// NewRemoveByNodenum deletes a node from the radio's node database outright.
func NewRemoveByNodenum(nodeNum uint32) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantRemoveByNodenum, NodeNum: nodeNum}
}

// NewGetSessionKeyRequest asks for (or renews) the admin session passkey
// used to authorize subsequent admin messages.
func NewGetSessionKeyRequest() *AdminMessage {
	return &AdminMessage{Variant: AdminVariantGetSessionKeyRequest}
}

// NewSetTime pushes wall-clock time to the radio.
func NewSetTime(epochSeconds uint32) *AdminMessage {
	return &AdminMessage{Variant: AdminVariantSetTime, EpochSeconds: epochSeconds}
}

// EncodeAdminMessage encodes the populated variant of m.
func EncodeAdminMessage(m *AdminMessage) []byte {
	switch m.Variant {
	case AdminVariantGetChannelRequest:
		return EncodeUint32(AdminVariantGetChannelRequest, m.NodeNum)
	case AdminVariantGetOwnerRequest:
		return EncodeBool(AdminVariantGetOwnerRequest, true)
	case AdminVariantSetOwner:
		if m.Owner == nil {
			return nil
		}
		return EncodeBytes(AdminVariantSetOwner, encodeUser(m.Owner))
	case AdminVariantSetChannel:
		if m.Channel == nil {
			return nil
		}
		return EncodeBytes(AdminVariantSetChannel, encodeChannelSettings(m.Channel))
	case AdminVariantRebootSeconds:
		return EncodeUint32(AdminVariantRebootSeconds, m.RebootSeconds)
	case AdminVariantGetConfigRequest:
		return EncodeUint32(AdminVariantGetConfigRequest, m.ConfigVariant)
	case AdminVariantGetModuleConfigRequest:
		return EncodeUint32(AdminVariantGetModuleConfigRequest, m.ModuleConfigVariant)
	case AdminVariantSetConfig:
		return EncodeBytes(AdminVariantSetConfig, EncodeBytes(int(m.ConfigVariant), m.ConfigRaw))
	case AdminVariantSetModuleConfig:
		return EncodeBytes(AdminVariantSetModuleConfig, EncodeBytes(int(m.ModuleConfigVariant), m.ConfigRaw))
	case AdminVariantNodedbReset:
		return EncodeBool(AdminVariantNodedbReset, true)
	case AdminVariantBeginEditSettings:
		return EncodeBool(AdminVariantBeginEditSettings, true)
	case AdminVariantCommitEditSettings:
		return EncodeBool(AdminVariantCommitEditSettings, true)
	case AdminVariantSetFixedPosition:
		if m.Position == nil {
			return nil
		}
		return EncodeBytes(AdminVariantSetFixedPosition, encodePosition(m.Position))
	case AdminVariantRemoveFixedPosition:
		return EncodeBool(AdminVariantRemoveFixedPosition, true)
	case AdminVariantSetFavoriteNode:
		return EncodeUint32(AdminVariantSetFavoriteNode, m.NodeNum)
	case AdminVariantRemoveFavoriteNode:
		return EncodeUint32(AdminVariantRemoveFavoriteNode, m.NodeNum)
	case AdminVariantSetIgnoredNode:
		return EncodeUint32(AdminVariantSetIgnoredNode, m.NodeNum)
	case AdminVariantRemoveIgnoredNode:
		return EncodeUint32(AdminVariantRemoveIgnoredNode, m.NodeNum)
	case AdminVariantRemoveByNodenum:
		return EncodeUint32(AdminVariantRemoveByNodenum, m.NodeNum)
	case AdminVariantGetSessionKeyRequest:
		return EncodeBool(AdminVariantGetSessionKeyRequest, true)
	case AdminVariantSetTime:
		return EncodeUint32(AdminVariantSetTime, m.EpochSeconds)
	default:
		return nil
	}
}

// ParseAdminMessage decodes whichever variant is present in an AdminMessage
// payload received from the radio (typically a get*Response).
func ParseAdminMessage(data []byte) (*AdminMessage, error) {
	if len(data) == 0 {
		return &AdminMessage{}, nil
	}
	tag, tn := decodeVarint(data)
	if tn == 0 {
		return nil, ErrInvalidProtobuf
	}
	fieldNum := uint32(tag >> 3)
	wireType := tag & 0x07
	m := &AdminMessage{Variant: fieldNum}

	switch wireType {
	case 0: // Varint
		val, _ := decodeVarint(data[tn:])
		switch fieldNum {
		case AdminVariantRebootSeconds:
			m.RebootSeconds = uint32(val)
		case AdminVariantSetFavoriteNode, AdminVariantRemoveFavoriteNode,
			AdminVariantSetIgnoredNode, AdminVariantRemoveIgnoredNode,
			AdminVariantRemoveByNodenum:
			m.NodeNum = uint32(val)
		case AdminVariantSetTime:
			m.EpochSeconds = uint32(val)
		}
		return m, nil
	case 2: // Length-delimited
		length, n := decodeVarint(data[tn:])
		start := tn + n
		if start+int(length) > len(data) {
			return nil, ErrInvalidProtobuf
		}
		payload := data[start : start+int(length)]
		switch fieldNum {
		case AdminVariantGetOwnerResponse:
			user, err := parseUser(payload)
			if err != nil {
				return nil, err
			}
			m.Owner = user
		case AdminVariantGetChannelResponse:
			ch, err := parseChannelSettings(payload)
			if err != nil {
				return nil, err
			}
			m.Channel = ch
		case AdminVariantGetConfigResponse:
			frag, err := parseOneofFragment(payload)
			if err != nil {
				return nil, err
			}
			m.ConfigVariant = frag.Variant
			m.ConfigRaw = frag.Raw
		case AdminVariantGetModuleConfigRespons:
			frag, err := parseOneofFragment(payload)
			if err != nil {
				return nil, err
			}
			m.ModuleConfigVariant = frag.Variant
			m.ConfigRaw = frag.Raw
		case AdminVariantGetSessionKeyResponse:
			key, expiresAt, err := parseSessionKeyResponse(payload)
			if err != nil {
				return nil, err
			}
			m.SessionPasskey = key
			m.SessionExpiresAt = expiresAt
		default:
			m.ConfigRaw = append([]byte(nil), payload...)
		}
		return m, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func parseSessionKeyResponse(data []byte) ([]byte, uint32, error) {
	var key []byte
	var expiresAt uint32
	pos := 0
	for pos < len(data) {
		tag := data[pos]
		fieldNum := tag >> 3
		wireType := tag & 0x07
		pos++
		switch wireType {
		case 0:
			val, n := decodeVarint(data[pos:])
			pos += n
			if fieldNum == 2 {
				expiresAt = uint32(val)
			}
		case 2:
			length, n := decodeVarint(data[pos:])
			pos += n
			if pos+int(length) > len(data) {
				return nil, 0, ErrInvalidProtobuf
			}
			if fieldNum == 1 {
				key = append([]byte(nil), data[pos:pos+int(length)]...)
			}
			pos += int(length)
		default:
			return nil, 0, ErrUnsupportedType
		}
	}
	return key, expiresAt, nil
}

func encodeUser(u *User) []byte {
	var out []byte
	if u.ID != "" {
		out = append(out, EncodeString(1, u.ID)...)
	}
	if u.LongName != "" {
		out = append(out, EncodeString(2, u.LongName)...)
	}
	if u.ShortName != "" {
		out = append(out, EncodeString(3, u.ShortName)...)
	}
	if u.HwModel != 0 {
		out = append(out, EncodeUint32(5, u.HwModel)...)
	}
	return out
}

func encodePosition(p *Position) []byte {
	var out []byte
	out = append(out, EncodeSFixed32(1, p.LatitudeI)...)
	out = append(out, EncodeSFixed32(2, p.LongitudeI)...)
	out = append(out, EncodeSFixed32(3, p.Altitude)...)
	if p.Time != 0 {
		out = append(out, EncodeUint32(4, p.Time)...)
	}
	return out
}

func encodeChannelSettings(ch *ChannelSettings) []byte {
	var out []byte
	out = append(out, EncodeUint32(1, ch.Index)...)
	if ch.Settings != nil {
		out = append(out, EncodeBytes(2, encodeChannelConfig(ch.Settings))...)
	}
	if ch.Role != 0 {
		out = append(out, EncodeUint32(3, ch.Role)...)
	}
	return out
}

func encodeChannelConfig(cfg *ChannelConfig) []byte {
	var out []byte
	if len(cfg.Psk) > 0 {
		out = append(out, EncodeBytes(1, cfg.Psk)...)
	}
	if cfg.Name != "" {
		out = append(out, EncodeString(2, cfg.Name)...)
	}
	if cfg.ID != 0 {
		out = append(out, EncodeUint32(4, cfg.ID)...)
	}
	out = append(out, EncodeBool(5, cfg.UplinkEnabled)...)
	out = append(out, EncodeBool(6, cfg.DownlinkEnabled)...)
	if len(cfg.ModuleSettings) > 0 {
		out = append(out, EncodeBytes(7, cfg.ModuleSettings)...)
	}
	return out
}
