package packet

import "fmt"

// DetectType peeks at the first header byte to determine the message type
// without fully decoding the packet. Used by the transport layer to decide
// which concrete Generic to allocate before calling Decode.
func DetectType(firstByte byte) MessageType {
	return MessageType(firstByte >> 4)
}

// New allocates a zero-value packet for the given type. Only the types this
// core actually speaks (CONNECT, CONNACK, PUBLISH, DISCONNECT) are
// supported; every other MQTT packet type belongs to the external wire
// codec spec.md §1 places out of scope.
func New(mt MessageType) (Generic, error) {
	switch mt {
	case CONNECT:
		return NewConnectPacket(), nil
	case CONNACK:
		return NewConnackPacket(), nil
	case PUBLISH:
		return NewPublishPacket(), nil
	case DISCONNECT:
		return NewDisconnectPacket(), nil
	}

	return nil, fmt.Errorf("packet: unsupported message type %s", mt)
}
