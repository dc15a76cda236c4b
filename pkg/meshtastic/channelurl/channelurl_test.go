package channelurl

import (
	"testing"

	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cs := &ChannelSet{
		Channels: []meshtastic.ChannelConfig{
			{Name: "Primary", Psk: []byte{0x01, 0x02, 0x03, 0x04}, UplinkEnabled: true},
			{Name: "Admin", Psk: []byte{0xAA}, DownlinkEnabled: true},
		},
		LoRa: &LoRaConfig{
			UsePreset:   true,
			ModemPreset: 3,
			Region:      1,
			HopLimit:    3,
			TxEnabled:   true,
		},
	}

	encoded := Encode(cs)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(decoded.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(decoded.Channels))
	}
	if decoded.Channels[0].Name != "Primary" {
		t.Errorf("expected first channel name Primary, got %q", decoded.Channels[0].Name)
	}
	if decoded.LoRa == nil || decoded.LoRa.Region != 1 {
		t.Errorf("expected lora region 1, got %+v", decoded.LoRa)
	}
}

func TestURLRoundTrip(t *testing.T) {
	cs := &ChannelSet{
		Channels: []meshtastic.ChannelConfig{{Name: "Primary", Psk: []byte{0x01}}},
	}

	url := ToURL("https", "meshtastic.org/e", cs)
	if url[:8] != "https://" {
		t.Fatalf("unexpected url prefix: %s", url)
	}

	decoded, err := FromURL(url)
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	if len(decoded.Channels) != 1 || decoded.Channels[0].Name != "Primary" {
		t.Errorf("round trip mismatch: %+v", decoded.Channels)
	}
}

func TestFromURLMalformed(t *testing.T) {
	if _, err := FromURL("https://meshtastic.org/e/nofragment"); err != ErrMalformedURL {
		t.Errorf("expected ErrMalformedURL, got %v", err)
	}
}
