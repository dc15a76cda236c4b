// Package channelurl encodes and decodes the textual channel-set URLs
// operators exchange out of band (QR codes, messaging apps) to share a
// mesh's channel configuration. It holds no notion of a web origin: callers
// supply the scheme and base they want the URL rendered under.
package channelurl

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// ErrMalformedURL is returned when a channel URL has no encoded fragment.
var ErrMalformedURL = errors.New("channelurl: malformed channel url")

// LoRaConfig is the subset of the radio's LoRa config carried in a channel
// set, so a recipient can join the mesh on the right region/modem preset
// without a separate admin round trip.
type LoRaConfig struct {
	UsePreset   bool
	ModemPreset uint32
	Bandwidth   uint32
	SpreadFactor uint32
	CodingRate  uint32
	Region      uint32
	HopLimit    uint32
	TxEnabled   bool
	TxPower     uint32
	ChannelNum  uint32
}

// ChannelSet is the record a channel URL encodes: an ordered channel list
// plus an optional LoRa config block.
type ChannelSet struct {
	Channels []meshtastic.ChannelConfig
	LoRa     *LoRaConfig
}

// Encode serializes a ChannelSet to its wire form (channel entries as
// field 1, repeated; lora config as field 2).
func Encode(cs *ChannelSet) []byte {
	var out []byte
	for i := range cs.Channels {
		out = append(out, meshtastic.EncodeBytes(1, encodeChannelConfig(&cs.Channels[i]))...)
	}
	if cs.LoRa != nil {
		out = append(out, meshtastic.EncodeBytes(2, encodeLoRaConfig(cs.LoRa))...)
	}
	return out
}

// Decode parses a wire-form ChannelSet.
func Decode(data []byte) (*ChannelSet, error) {
	cs := &ChannelSet{}
	pos := 0
	for pos < len(data) {
		tag := data[pos]
		fieldNum := tag >> 3
		wireType := tag & 0x07
		pos++
		if wireType != 2 {
			return nil, ErrMalformedURL
		}
		length, n := decodeVarint(data[pos:])
		pos += n
		if pos+int(length) > len(data) {
			return nil, ErrMalformedURL
		}
		fieldData := data[pos : pos+int(length)]
		pos += int(length)

		switch fieldNum {
		case 1:
			cfg, err := decodeChannelConfig(fieldData)
			if err != nil {
				return nil, err
			}
			cs.Channels = append(cs.Channels, *cfg)
		case 2:
			lc, err := decodeLoRaConfig(fieldData)
			if err != nil {
				return nil, err
			}
			cs.LoRa = lc
		}
	}
	return cs, nil
}

// ToURL renders cs as "<scheme>://<base>/#?<base64url(ChannelSet)>". base
// should not include a leading scheme or trailing slash, e.g. "meshtastic.org/e".
func ToURL(scheme, base string, cs *ChannelSet) string {
	encoded := base64.RawURLEncoding.EncodeToString(Encode(cs))
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(base)
	b.WriteString("/#?")
	b.WriteString(encoded)
	return b.String()
}

// FromURL extracts and decodes the ChannelSet embedded in a channel URL
// produced by ToURL (or the radio's own app), regardless of scheme/base.
func FromURL(rawURL string) (*ChannelSet, error) {
	idx := strings.Index(rawURL, "#?")
	if idx < 0 {
		return nil, ErrMalformedURL
	}
	payload := rawURL[idx+2:]
	data, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		// Some generators still pad; retry with standard URL encoding.
		data, err = base64.URLEncoding.DecodeString(payload)
		if err != nil {
			return nil, ErrMalformedURL
		}
	}
	return Decode(data)
}

func decodeVarint(data []byte) (uint64, int) {
	var val uint64
	var shift uint
	for i, b := range data {
		val |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return val, i + 1
		}
		shift += 7
		if shift >= 64 {
			return 0, 0
		}
	}
	return 0, 0
}

func encodeChannelConfig(cfg *meshtastic.ChannelConfig) []byte {
	var out []byte
	if len(cfg.Psk) > 0 {
		out = append(out, meshtastic.EncodeBytes(1, cfg.Psk)...)
	}
	if cfg.Name != "" {
		out = append(out, meshtastic.EncodeString(2, cfg.Name)...)
	}
	if cfg.ID != 0 {
		out = append(out, meshtastic.EncodeUint32(4, cfg.ID)...)
	}
	out = append(out, meshtastic.EncodeBool(5, cfg.UplinkEnabled)...)
	out = append(out, meshtastic.EncodeBool(6, cfg.DownlinkEnabled)...)
	return out
}

func decodeChannelConfig(data []byte) (*meshtastic.ChannelConfig, error) {
	cfg := &meshtastic.ChannelConfig{}
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
			switch fieldNum {
			case 4:
				cfg.ID = uint32(val)
			case 5:
				cfg.UplinkEnabled = val != 0
			case 6:
				cfg.DownlinkEnabled = val != 0
			}
		case 2:
			length, n := decodeVarint(data[pos:])
			pos += n
			if pos+int(length) > len(data) {
				return nil, ErrMalformedURL
			}
			fieldData := data[pos : pos+int(length)]
			pos += int(length)
			switch fieldNum {
			case 1:
				cfg.Psk = append([]byte(nil), fieldData...)
			case 2:
				cfg.Name = string(fieldData)
			}
		default:
			return nil, ErrMalformedURL
		}
	}
	return cfg, nil
}

func encodeLoRaConfig(lc *LoRaConfig) []byte {
	var out []byte
	out = append(out, meshtastic.EncodeBool(1, lc.UsePreset)...)
	if lc.ModemPreset != 0 {
		out = append(out, meshtastic.EncodeUint32(2, lc.ModemPreset)...)
	}
	if lc.Bandwidth != 0 {
		out = append(out, meshtastic.EncodeUint32(3, lc.Bandwidth)...)
	}
	if lc.SpreadFactor != 0 {
		out = append(out, meshtastic.EncodeUint32(4, lc.SpreadFactor)...)
	}
	if lc.CodingRate != 0 {
		out = append(out, meshtastic.EncodeUint32(5, lc.CodingRate)...)
	}
	if lc.Region != 0 {
		out = append(out, meshtastic.EncodeUint32(6, lc.Region)...)
	}
	if lc.HopLimit != 0 {
		out = append(out, meshtastic.EncodeUint32(7, lc.HopLimit)...)
	}
	out = append(out, meshtastic.EncodeBool(8, lc.TxEnabled)...)
	if lc.TxPower != 0 {
		out = append(out, meshtastic.EncodeUint32(9, lc.TxPower)...)
	}
	if lc.ChannelNum != 0 {
		out = append(out, meshtastic.EncodeUint32(10, lc.ChannelNum)...)
	}
	return out
}

func decodeLoRaConfig(data []byte) (*LoRaConfig, error) {
	lc := &LoRaConfig{}
	pos := 0
	for pos < len(data) {
		tag := data[pos]
		fieldNum := tag >> 3
		wireType := tag & 0x07
		pos++
		if wireType != 0 {
			return nil, ErrMalformedURL
		}
		val, n := decodeVarint(data[pos:])
		pos += n
		switch fieldNum {
		case 1:
			lc.UsePreset = val != 0
		case 2:
			lc.ModemPreset = uint32(val)
		case 3:
			lc.Bandwidth = uint32(val)
		case 4:
			lc.SpreadFactor = uint32(val)
		case 5:
			lc.CodingRate = uint32(val)
		case 6:
			lc.Region = uint32(val)
		case 7:
			lc.HopLimit = uint32(val)
		case 8:
			lc.TxEnabled = val != 0
		case 9:
			lc.TxPower = uint32(val)
		case 10:
			lc.ChannelNum = uint32(val)
		}
	}
	return lc, nil
}
