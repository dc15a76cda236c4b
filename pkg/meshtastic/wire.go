package meshtastic

import (
	"encoding/binary"
	"math"
)

// Protobuf wire types used by the mesh's typed-packet schema.
const (
	WireVarint = 0
	Wire64Bit  = 1
	WireBytes  = 2
	Wire32Bit  = 5
)

// EncodeVarint encodes a uint64 as a protobuf varint.
func EncodeVarint(v uint64) []byte {
	var buf []byte
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	buf = append(buf, byte(v))
	return buf
}

// EncodeTag encodes a protobuf field tag.
func EncodeTag(fieldNum, wireType int) []byte {
	return EncodeVarint(uint64(fieldNum<<3 | wireType))
}

// EncodeBytes encodes a length-delimited field.
func EncodeBytes(fieldNum int, data []byte) []byte {
	out := EncodeTag(fieldNum, WireBytes)
	out = append(out, EncodeVarint(uint64(len(data)))...)
	out = append(out, data...)
	return out
}

// EncodeString encodes a string field.
func EncodeString(fieldNum int, s string) []byte {
	return EncodeBytes(fieldNum, []byte(s))
}

// EncodeVarintField encodes a varint-wire-type field (covers uint32/bool/enum).
func EncodeVarintField(fieldNum int, v uint64) []byte {
	out := EncodeTag(fieldNum, WireVarint)
	out = append(out, EncodeVarint(v)...)
	return out
}

// EncodeUint32 encodes a uint32 varint field.
func EncodeUint32(fieldNum int, v uint32) []byte {
	return EncodeVarintField(fieldNum, uint64(v))
}

// EncodeBool encodes a bool varint field; omits nothing, caller decides whether to emit.
func EncodeBool(fieldNum int, v bool) []byte {
	if v {
		return EncodeVarintField(fieldNum, 1)
	}
	return EncodeVarintField(fieldNum, 0)
}

// EncodeFixed32 encodes a fixed32 field.
func EncodeFixed32(fieldNum int, v uint32) []byte {
	out := EncodeTag(fieldNum, Wire32Bit)
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	out = append(out, buf...)
	return out
}

// EncodeSFixed32 encodes a sfixed32 field.
func EncodeSFixed32(fieldNum int, v int32) []byte {
	return EncodeFixed32(fieldNum, uint32(v))
}

// EncodeFloat32 encodes a float field.
func EncodeFloat32(fieldNum int, v float32) []byte {
	return EncodeFixed32(fieldNum, math.Float32bits(v))
}

// DecodeVarint reads a varint from the front of data, returning the value and
// the number of bytes consumed. Returns (0, 0) on truncated input.
func DecodeVarint(data []byte) (uint64, int) {
	return decodeVarint(data)
}
