package meshtastic

import "testing"

func TestEncodeMeshPacketRoundTrip(t *testing.T) {
	mp := &MeshPacket{
		From:    0x11223344,
		To:      0xFFFFFFFF,
		Channel: 2,
		ID:      42,
		HopLimit: 3,
		WantAck: true,
		Decoded: &Data{
			PortNum: PortNumTextMessageApp,
			Payload: []byte("hello mesh"),
		},
	}

	encoded := EncodeMeshPacket(mp)
	decoded, err := parseMeshPacket(encoded)
	if err != nil {
		t.Fatalf("parseMeshPacket: %v", err)
	}

	if decoded.From != mp.From {
		t.Errorf("From: expected %d, got %d", mp.From, decoded.From)
	}
	if decoded.To != mp.To {
		t.Errorf("To: expected %d, got %d", mp.To, decoded.To)
	}
	if decoded.ID != mp.ID {
		t.Errorf("ID: expected %d, got %d", mp.ID, decoded.ID)
	}
	if !decoded.WantAck {
		t.Error("WantAck: expected true")
	}
	if decoded.Decoded == nil || string(decoded.Decoded.Payload) != "hello mesh" {
		t.Errorf("Decoded.Payload mismatch: %+v", decoded.Decoded)
	}
}

func TestNewTextMessagePacket(t *testing.T) {
	tr := NewTextMessagePacket(0x1, 0xFFFFFFFF, 0, 99, "ping", true)
	encoded := EncodeToRadio(tr)

	if len(encoded) == 0 {
		t.Fatal("expected non-empty encoding")
	}
	// ToRadio wraps the packet as field 1, length-delimited.
	tag := encoded[0]
	if fieldNum := tag >> 3; fieldNum != 1 {
		t.Errorf("expected field 1 (packet), got field %d", fieldNum)
	}
}

func TestNewWantConfigPacket(t *testing.T) {
	tr := NewWantConfigPacket(7)
	encoded := EncodeToRadio(tr)
	val, _ := DecodeVarint(encoded[1:])
	if uint32(val) != 7 {
		t.Errorf("expected want_config_id 7, got %d", val)
	}
}

func TestEncodeDataRoundTrip(t *testing.T) {
	d := &Data{
		PortNum:      PortNumAdminApp,
		Payload:      []byte{1, 2, 3},
		WantResponse: true,
		RequestID:    55,
	}
	encoded := EncodeData(d)
	decoded, err := parseData(encoded)
	if err != nil {
		t.Fatalf("parseData: %v", err)
	}
	if decoded.PortNum != d.PortNum {
		t.Errorf("PortNum: expected %v, got %v", d.PortNum, decoded.PortNum)
	}
	if decoded.RequestID != d.RequestID {
		t.Errorf("RequestID: expected %d, got %d", d.RequestID, decoded.RequestID)
	}
	if !decoded.WantResponse {
		t.Error("WantResponse: expected true")
	}
}
