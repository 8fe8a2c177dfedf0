package packet

// Generic is implemented by every control packet this core needs to read or
// write directly (CONNECT, CONNACK, PUBLISH, DISCONNECT). The broader wire
// codec — every other MQTT packet type, v5 properties, and so on — is the
// external collaborator spec.md §1 places out of scope; this core only needs
// enough of the codec to run its own handshake and fan-out.
type Generic interface {
	// Type returns the packet's message type.
	Type() MessageType

	// Len returns the encoded byte length of the packet.
	Len() int

	// Decode reads the packet from src and returns the number of bytes
	// consumed.
	Decode(src []byte) (int, error)

	// Encode writes the packet into dst and returns the number of bytes
	// written.
	Encode(dst []byte) (int, error)

	// String returns a human readable representation of the packet.
	String() string
}
