package meshtastic

// This file is the outbound counterpart to the decoders in proto.go: the
// teacher's connection layer only ever read FromRadio frames, leaving
// ToRadio construction to a pair of hardcoded bytes for want-config. These
// encoders cover the full send path a session needs: building packets to
// transmit, requesting config capture, and disconnecting cleanly.

// EncodeData encodes a Data (decoded mesh payload) message.
func EncodeData(d *Data) []byte {
	var out []byte
	out = append(out, EncodeUint32(1, uint32(d.PortNum))...)
	if len(d.Payload) > 0 {
		out = append(out, EncodeBytes(2, d.Payload)...)
	}
	out = append(out, EncodeBool(3, d.WantResponse)...)
	if d.Dest != 0 {
		out = append(out, EncodeUint32(4, d.Dest)...)
	}
	if d.Source != 0 {
		out = append(out, EncodeUint32(5, d.Source)...)
	}
	if d.RequestID != 0 {
		out = append(out, EncodeUint32(6, d.RequestID)...)
	}
	if d.ReplyID != 0 {
		out = append(out, EncodeUint32(7, d.ReplyID)...)
	}
	if d.Emoji != 0 {
		out = append(out, EncodeUint32(8, d.Emoji)...)
	}
	return out
}

// EncodeMeshPacket encodes a MeshPacket for transmission to the radio.
func EncodeMeshPacket(mp *MeshPacket) []byte {
	var out []byte
	if mp.From != 0 {
		out = append(out, EncodeUint32(1, mp.From)...)
	}
	if mp.To != 0 {
		out = append(out, EncodeUint32(2, mp.To)...)
	}
	if mp.Channel != 0 {
		out = append(out, EncodeUint32(3, mp.Channel)...)
	}
	if mp.Decoded != nil {
		out = append(out, EncodeBytes(4, EncodeData(mp.Decoded))...)
	} else if len(mp.Encrypted) > 0 {
		out = append(out, EncodeBytes(5, mp.Encrypted)...)
	}
	if mp.ID != 0 {
		out = append(out, EncodeUint32(6, mp.ID)...)
	}
	if mp.RxTime != 0 {
		out = append(out, EncodeUint32(7, mp.RxTime)...)
	}
	if mp.HopLimit != 0 {
		out = append(out, EncodeUint32(10, mp.HopLimit)...)
	}
	out = append(out, EncodeBool(11, mp.WantAck)...)
	if mp.Priority != 0 {
		out = append(out, EncodeUint32(12, mp.Priority)...)
	}
	if mp.HopStart != 0 {
		out = append(out, EncodeUint32(15, mp.HopStart)...)
	}
	if len(mp.PublicKey) > 0 {
		out = append(out, EncodeBytes(16, mp.PublicKey)...)
	}
	if mp.PkiEncrypted {
		out = append(out, EncodeBool(17, true)...)
	}
	return out
}

// EncodeToRadio encodes a ToRadio envelope: exactly one of Packet,
// WantConfigID, Disconnect, XmodemPacket or MqttClientProxyMessage is
// normally set, mirroring the oneof the radio expects.
func EncodeToRadio(tr *ToRadio) []byte {
	var out []byte
	if tr.Packet != nil {
		out = append(out, EncodeBytes(1, EncodeMeshPacket(tr.Packet))...)
	}
	if tr.WantConfigID != 0 {
		out = append(out, EncodeUint32(3, tr.WantConfigID)...)
	}
	if tr.Disconnect {
		out = append(out, EncodeBool(5, true)...)
	}
	if len(tr.XmodemPacket) > 0 {
		out = append(out, EncodeBytes(6, tr.XmodemPacket)...)
	}
	if tr.MqttClientProxyMessage != nil {
		out = append(out, EncodeBytes(7, EncodeMqttClientProxyMessage(tr.MqttClientProxyMessage))...)
	}
	return out
}

// EncodeMqttClientProxyMessage encodes an MqttClientProxyMessage.
func EncodeMqttClientProxyMessage(m *MqttClientProxyMessage) []byte {
	var out []byte
	if m.Topic != "" {
		out = append(out, EncodeString(1, m.Topic)...)
	}
	if len(m.Data) > 0 {
		out = append(out, EncodeBytes(2, m.Data)...)
	}
	out = append(out, EncodeBool(3, m.Retained)...)
	return out
}

// NewWantConfigPacket builds the ToRadio the session sends to kick off
// config capture (§4.2.1); configID correlates the eventual
// config_complete_id in the FromRadio stream.
func NewWantConfigPacket(configID uint32) *ToRadio {
	return &ToRadio{WantConfigID: configID}
}

// NewDisconnectPacket builds the ToRadio that tells the radio the client is
// detaching cleanly.
func NewDisconnectPacket() *ToRadio {
	return &ToRadio{Disconnect: true}
}

// NewTextMessagePacket wraps a plaintext mesh message bound for dest/channel
// as a ToRadio ready for the frame codec.
func NewTextMessagePacket(from, dest, channel, id uint32, text string, wantAck bool) *ToRadio {
	return &ToRadio{
		Packet: &MeshPacket{
			From:    from,
			To:      dest,
			Channel: channel,
			ID:      id,
			WantAck: wantAck,
			Decoded: &Data{
				PortNum: PortNumTextMessageApp,
				Payload: []byte(text),
			},
		},
	}
}

// NewAdminPacket wraps an encoded AdminMessage as a ToRadio directed at
// dest, matching the session's admin request/response correlation.
func NewAdminPacket(from, dest, id uint32, admin []byte, wantAck bool) *ToRadio {
	return &ToRadio{
		Packet: &MeshPacket{
			From:    from,
			To:      dest,
			Channel: 0,
			ID:      id,
			WantAck: wantAck,
			Priority: 10,
			Decoded: &Data{
				PortNum:      PortNumAdminApp,
				Payload:      admin,
				WantResponse: true,
			},
		},
	}
}
