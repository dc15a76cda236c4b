package simulator

import (
	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// The wire-level helpers below delegate to pkg/meshtastic so the simulator
// and the real codec never drift apart.

func encodeVarint(v uint64) []byte               { return meshtastic.EncodeVarint(v) }
func encodeBytes(fieldNum int, data []byte) []byte { return meshtastic.EncodeBytes(fieldNum, data) }
func encodeString(fieldNum int, s string) []byte  { return meshtastic.EncodeString(fieldNum, s) }
func encodeUint32(fieldNum int, v uint32) []byte  { return meshtastic.EncodeUint32(fieldNum, v) }
func encodeInt32(fieldNum int, v int32) []byte    { return meshtastic.EncodeVarintField(fieldNum, uint64(v)) }
func encodeFixed32(fieldNum int, v uint32) []byte { return meshtastic.EncodeFixed32(fieldNum, v) }
func encodeSFixed32(fieldNum int, v int32) []byte { return meshtastic.EncodeSFixed32(fieldNum, v) }
func encodeFloat32(fieldNum int, v float32) []byte { return meshtastic.EncodeFloat32(fieldNum, v) }

// EncodeMyNodeInfo encodes a MyNodeInfo message
func EncodeMyNodeInfo(nodeNum, rebootCount uint32) []byte {
	var msg []byte
	msg = append(msg, encodeUint32(1, nodeNum)...)     // my_node_num
	msg = append(msg, encodeUint32(8, rebootCount)...) // reboot_count
	msg = append(msg, encodeUint32(11, 30000)...)      // min_app_version
	return msg
}

// EncodeUser encodes a User message
func EncodeUser(id, longName, shortName string, hwModel uint32) []byte {
	var msg []byte
	msg = append(msg, encodeString(1, id)...)
	msg = append(msg, encodeString(2, longName)...)
	msg = append(msg, encodeString(3, shortName)...)
	msg = append(msg, encodeUint32(5, hwModel)...)
	return msg
}

// EncodePosition encodes a Position message
func EncodePosition(latitudeI, longitudeI, altitude int32, timestamp uint32) []byte {
	var msg []byte
	msg = append(msg, encodeSFixed32(1, latitudeI)...)
	msg = append(msg, encodeSFixed32(2, longitudeI)...)
	msg = append(msg, encodeSFixed32(3, altitude)...)
	if timestamp > 0 {
		msg = append(msg, encodeUint32(4, timestamp)...)
	}
	return msg
}

// EncodeNodeInfo encodes a NodeInfo message
func EncodeNodeInfo(num uint32, user, position []byte, snr float32, lastHeard uint32) []byte {
	var msg []byte
	msg = append(msg, encodeUint32(1, num)...)
	if len(user) > 0 {
		msg = append(msg, encodeBytes(2, user)...)
	}
	if len(position) > 0 {
		msg = append(msg, encodeBytes(3, position)...)
	}
	if snr != 0 {
		msg = append(msg, encodeFloat32(4, snr)...)
	}
	if lastHeard > 0 {
		msg = append(msg, encodeUint32(5, lastHeard)...)
	}
	return msg
}

// EncodeData encodes a Data message (decoded payload)
func EncodeData(portNum uint32, payload []byte) []byte {
	var msg []byte
	msg = append(msg, encodeUint32(1, portNum)...)
	msg = append(msg, encodeBytes(2, payload)...)
	return msg
}

// EncodeMeshPacket encodes a MeshPacket message
func EncodeMeshPacket(from, to, channel, id uint32, decoded []byte, rxTime uint32, snr float32, rssi int32, hopLimit uint32) []byte {
	var msg []byte
	msg = append(msg, encodeUint32(1, from)...)
	msg = append(msg, encodeUint32(2, to)...)
	msg = append(msg, encodeUint32(3, channel)...)
	if len(decoded) > 0 {
		msg = append(msg, encodeBytes(4, decoded)...)
	}
	msg = append(msg, encodeUint32(6, id)...)
	if rxTime > 0 {
		msg = append(msg, encodeUint32(7, rxTime)...)
	}
	msg = append(msg, encodeUint32(10, hopLimit)...)
	if snr != 0 {
		// SNR is stored as fixed point * 4
		snrVal := int32(snr * 4)
		msg = append(msg, encodeInt32(13, snrVal)...)
	}
	if rssi != 0 {
		msg = append(msg, encodeSFixed32(14, rssi)...)
	}
	return msg
}

// EncodeFromRadio encodes a FromRadio message
func EncodeFromRadio(id uint32, packet, myInfo, nodeInfo []byte, configCompleteID uint32) []byte {
	var msg []byte
	msg = append(msg, encodeUint32(1, id)...)
	if len(packet) > 0 {
		msg = append(msg, encodeBytes(2, packet)...)
	}
	if len(myInfo) > 0 {
		msg = append(msg, encodeBytes(3, myInfo)...)
	}
	if len(nodeInfo) > 0 {
		msg = append(msg, encodeBytes(4, nodeInfo)...)
	}
	if configCompleteID > 0 {
		msg = append(msg, encodeUint32(8, configCompleteID)...)
	}
	return msg
}
