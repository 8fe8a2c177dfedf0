package packet

import "fmt"

// DisconnectPacket is sent by a client to close the connection gracefully.
// Its presence (as opposed to a network error or timeout) is what lets C7
// tell a Normal disconnect apart from an Error one when deciding whether to
// publish a stored will (see SPEC_FULL.md §4.3 additions).
type DisconnectPacket struct{}

var _ Generic = (*DisconnectPacket)(nil)

// NewDisconnectPacket creates a new DISCONNECT packet.
func NewDisconnectPacket() *DisconnectPacket {
	return &DisconnectPacket{}
}

// Type returns DISCONNECT.
func (dp *DisconnectPacket) Type() MessageType {
	return DISCONNECT
}

// String returns a human readable representation of the packet.
func (dp *DisconnectPacket) String() string {
	return "DISCONNECT"
}

// Len returns the encoded byte length of the packet.
func (dp *DisconnectPacket) Len() int {
	return headerLen(0)
}

// Decode reads the packet from src.
func (dp *DisconnectPacket) Decode(src []byte) (int, error) {
	total := 0

	hl, _, rl, err := headerDecode(src[total:], DISCONNECT)
	total += hl
	if err != nil {
		return total, err
	}

	if rl != 0 {
		return total, fmt.Errorf("DISCONNECT/Decode: expected remaining length 0, got %d", rl)
	}

	return total, nil
}

// Encode writes the packet into dst.
func (dp *DisconnectPacket) Encode(dst []byte) (int, error) {
	return headerEncode(dst, 0, 0, dp.Len(), DISCONNECT)
}
