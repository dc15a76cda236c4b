package meshtastic

// RoutingErrorNone is the error_reason value meaning "delivered", i.e. an
// explicit ack rather than a routing failure.
const RoutingErrorNone uint32 = 0

// ParseRoutingError decodes the error_reason field (1) of a ROUTING_APP
// payload. A zero return with no error means the routing reply reports
// success; any other value is a routing error code as assigned by the
// device firmware.
func ParseRoutingError(payload []byte) (uint32, error) {
	pos := 0
	var errorReason uint32
	for pos < len(payload) {
		tag, n := DecodeVarint(payload[pos:])
		if n == 0 {
			return 0, ErrInvalidProtobuf
		}
		pos += n
		fieldNum := tag >> 3
		wireType := tag & 0x7

		switch wireType {
		case 0:
			val, n := DecodeVarint(payload[pos:])
			if n == 0 {
				return 0, ErrInvalidProtobuf
			}
			pos += n
			if fieldNum == 1 {
				errorReason = uint32(val)
			}
		case 2:
			length, n := DecodeVarint(payload[pos:])
			if n == 0 {
				return 0, ErrInvalidProtobuf
			}
			pos += n
			pos += int(length)
		case 5:
			pos += 4
		case 1:
			pos += 8
		default:
			return 0, ErrUnsupportedType
		}
	}
	return errorReason, nil
}
