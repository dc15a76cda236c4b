package meshtastic

// This file is the virtual-device server's counterpart to ParseFromRadio:
// the physical link only ever needs to decode FromRadio frames coming off
// the real transport, but the virtual-device listener must re-serve the
// exact same frame shapes to its own clients (replay on accept, fan-out on
// broadcast), so the encoders mirror proto.go's field numbers exactly.

// EncodeUser encodes a User sub-message.
func EncodeUser(u *User) []byte {
	if u == nil {
		return nil
	}
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
	if len(u.MacAddr) > 0 {
		out = append(out, EncodeBytes(4, u.MacAddr)...)
	}
	if u.HwModel != 0 {
		out = append(out, EncodeUint32(5, u.HwModel)...)
	}
	out = append(out, EncodeBool(6, u.IsLicensed)...)
	if u.Role != 0 {
		out = append(out, EncodeUint32(7, u.Role)...)
	}
	if len(u.PublicKey) > 0 {
		out = append(out, EncodeBytes(8, u.PublicKey)...)
	}
	return out
}

// EncodePosition encodes a Position sub-message.
func EncodePosition(p *Position) []byte {
	if p == nil {
		return nil
	}
	var out []byte
	if p.LatitudeI != 0 {
		out = append(out, EncodeSFixed32(1, p.LatitudeI)...)
	}
	if p.LongitudeI != 0 {
		out = append(out, EncodeSFixed32(2, p.LongitudeI)...)
	}
	if p.Altitude != 0 {
		out = append(out, EncodeSFixed32(3, p.Altitude)...)
	}
	if p.Time != 0 {
		out = append(out, EncodeUint32(4, p.Time)...)
	}
	if p.PrecisionBits != 0 {
		out = append(out, EncodeVarintField(21, uint64(p.PrecisionBits))...)
	}
	return out
}

// EncodeNodeInfo encodes a NodeInfo sub-message, per proto.go's
// parseNodeInfo field numbers.
func EncodeNodeInfo(n *NodeInfo) []byte {
	if n == nil {
		return nil
	}
	var out []byte
	if n.Num != 0 {
		out = append(out, EncodeUint32(1, n.Num)...)
	}
	if n.User != nil {
		out = append(out, EncodeBytes(2, EncodeUser(n.User))...)
	}
	if n.Position != nil {
		out = append(out, EncodeBytes(3, EncodePosition(n.Position))...)
	}
	if n.Snr != 0 {
		out = append(out, EncodeFloat32(4, n.Snr)...)
	}
	if n.LastHeard != 0 {
		out = append(out, EncodeUint32(5, n.LastHeard)...)
	}
	if n.Channel != 0 {
		out = append(out, EncodeUint32(7, n.Channel)...)
	}
	out = append(out, EncodeBool(8, n.ViaMqtt)...)
	if n.Hops != 0 {
		out = append(out, EncodeVarintField(9, uint64(n.Hops))...)
	}
	out = append(out, EncodeBool(10, n.IsFavorite)...)
	return out
}

// EncodeMyNodeInfo encodes a MyNodeInfo sub-message.
func EncodeMyNodeInfo(m *MyNodeInfo) []byte {
	if m == nil {
		return nil
	}
	var out []byte
	if m.MyNodeNum != 0 {
		out = append(out, EncodeUint32(1, m.MyNodeNum)...)
	}
	if m.RebootCount != 0 {
		out = append(out, EncodeVarintField(8, uint64(m.RebootCount))...)
	}
	if m.MinAppVersion != 0 {
		out = append(out, EncodeVarintField(11, uint64(m.MinAppVersion))...)
	}
	return out
}

// EncodeChannelSettings encodes a ChannelSettings sub-message. Settings
// (a ChannelConfig) is re-encoded field by field via EncodeChannelConfig;
// only its ModuleSettings bytes are copied through as captured.
func EncodeChannelSettings(c *ChannelSettings) []byte {
	if c == nil {
		return nil
	}
	var out []byte
	if c.Index != 0 {
		out = append(out, EncodeVarintField(1, uint64(c.Index))...)
	}
	if c.Settings != nil {
		out = append(out, EncodeBytes(2, EncodeChannelConfig(c.Settings))...)
	}
	if c.Role != 0 {
		out = append(out, EncodeVarintField(3, uint64(c.Role))...)
	}
	return out
}

// EncodeChannelConfig encodes a ChannelConfig sub-message.
func EncodeChannelConfig(c *ChannelConfig) []byte {
	if c == nil {
		return nil
	}
	var out []byte
	if len(c.Psk) > 0 {
		out = append(out, EncodeBytes(1, c.Psk)...)
	}
	if c.Name != "" {
		out = append(out, EncodeString(2, c.Name)...)
	}
	if c.ID != 0 {
		out = append(out, EncodeVarintField(4, uint64(c.ID))...)
	}
	out = append(out, EncodeBool(5, c.UplinkEnabled)...)
	out = append(out, EncodeBool(6, c.DownlinkEnabled)...)
	if len(c.ModuleSettings) > 0 {
		out = append(out, EncodeBytes(7, c.ModuleSettings)...)
	}
	return out
}

// EncodeConfigFragment re-wraps a captured ConfigFragment back into the
// oneof shape parseOneofFragment stripped it from: Raw is the inner
// variant sub-message, Variant is that sub-message's field number within
// the Config/ModuleConfig oneof.
func EncodeConfigFragment(f *ConfigFragment) []byte {
	if f == nil || f.Variant == 0 {
		return nil
	}
	return EncodeBytes(int(f.Variant), f.Raw)
}

// EncodeDeviceMetadata encodes a DeviceMetadata sub-message.
func EncodeDeviceMetadata(m *DeviceMetadata) []byte {
	if m == nil {
		return nil
	}
	var out []byte
	if m.FirmwareVersion != "" {
		out = append(out, EncodeString(1, m.FirmwareVersion)...)
	}
	if m.DeviceStateVersion != 0 {
		out = append(out, EncodeVarintField(2, uint64(m.DeviceStateVersion))...)
	}
	out = append(out, EncodeBool(3, m.CanShutdown)...)
	out = append(out, EncodeBool(4, m.HasWifi)...)
	out = append(out, EncodeBool(5, m.HasBluetooth)...)
	out = append(out, EncodeBool(10, m.HasEthernet)...)
	if m.Role != 0 {
		out = append(out, EncodeVarintField(6, uint64(m.Role))...)
	}
	if m.PositionFlags != 0 {
		out = append(out, EncodeVarintField(7, uint64(m.PositionFlags))...)
	}
	if m.HwModel != 0 {
		out = append(out, EncodeVarintField(8, uint64(m.HwModel))...)
	}
	out = append(out, EncodeBool(9, m.HasRemoteHardware)...)
	return out
}

// EncodeFromRadio encodes a synthetic FromRadio envelope: the
// virtual-device server builds these during replay and fan-out, never
// the physical link (which only ever decodes real ones via
// ParseFromRadio).
func EncodeFromRadio(fr *FromRadio) []byte {
	var out []byte
	if fr.ID != 0 {
		out = append(out, EncodeVarintField(1, uint64(fr.ID))...)
	}
	if fr.Packet != nil {
		out = append(out, EncodeBytes(2, EncodeMeshPacket(fr.Packet))...)
	}
	if fr.MyInfo != nil {
		out = append(out, EncodeBytes(3, EncodeMyNodeInfo(fr.MyInfo))...)
	}
	if fr.NodeInfo != nil {
		out = append(out, EncodeBytes(4, EncodeNodeInfo(fr.NodeInfo))...)
	}
	if fr.Channel != nil {
		out = append(out, EncodeBytes(5, EncodeChannelSettings(fr.Channel))...)
	}
	if fr.Config != nil {
		out = append(out, EncodeBytes(6, EncodeConfigFragment(fr.Config))...)
	}
	if fr.ModuleConfig != nil {
		out = append(out, EncodeBytes(7, EncodeConfigFragment(fr.ModuleConfig))...)
	}
	if fr.ConfigCompleteID != 0 {
		out = append(out, EncodeVarintField(8, uint64(fr.ConfigCompleteID))...)
	}
	if fr.Rebooted {
		out = append(out, EncodeBool(9, true)...)
	}
	if fr.Metadata != nil {
		out = append(out, EncodeBytes(10, EncodeDeviceMetadata(fr.Metadata))...)
	}
	return out
}
