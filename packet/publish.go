package packet

import (
	"encoding/binary"
	"fmt"
)

// PublishPacket carries a single application Message over the wire.
type PublishPacket struct {
	// Message is the carried application message.
	Message Message

	// Dup marks a redelivery attempt. Not meaningful to this core since
	// QOS 1/2 retransmission is out of scope (see SPEC_FULL.md Non-goals);
	// carried only so the wire format round-trips.
	Dup bool

	// PacketID is only present for QOS > 0.
	PacketID uint16
}

var _ Generic = (*PublishPacket)(nil)

// NewPublishPacket creates a new PUBLISH packet.
func NewPublishPacket() *PublishPacket {
	return &PublishPacket{}
}

// Type returns PUBLISH.
func (pp *PublishPacket) Type() MessageType {
	return PUBLISH
}

// String returns a human readable representation of the packet.
func (pp *PublishPacket) String() string {
	return fmt.Sprintf("PUBLISH: Topic=%q QOS=%d Retain=%t Len=%d",
		pp.Message.Topic, pp.Message.QOS, pp.Message.Retain, len(pp.Message.Payload))
}

func (pp *PublishPacket) len() int {
	total := 2 + len(pp.Message.Topic)

	if pp.Message.QOS > QOSAtMostOnce {
		total += 2
	}

	total += len(pp.Message.Payload)

	return total
}

// Len returns the encoded byte length of the packet.
func (pp *PublishPacket) Len() int {
	ml := pp.len()
	return headerLen(ml) + ml
}

func (pp *PublishPacket) flags() byte {
	var flags byte

	if pp.Dup {
		flags |= 0x08
	}

	flags |= byte(pp.Message.QOS) << 1

	if pp.Message.Retain {
		flags |= 0x01
	}

	return flags
}

// Decode reads the packet from src.
func (pp *PublishPacket) Decode(src []byte) (int, error) {
	total := 0

	hl, flags, rl, err := headerDecode(src[total:], PUBLISH)
	total += hl
	if err != nil {
		return total, err
	}

	end := total + rl
	if len(src) < end {
		return total, fmt.Errorf("PUBLISH/Decode: insufficient buffer size, expecting %d, got %d", end, len(src))
	}

	pp.Dup = flags&0x08 != 0
	pp.Message.Retain = flags&0x01 != 0

	qos := (flags >> 1) & 0x03
	if !validQOS(qos) {
		return total, fmt.Errorf("PUBLISH/Decode: invalid QOS %d", qos)
	}
	pp.Message.QOS = QOS(qos)

	topic, n, err := readString(src[total:])
	if err != nil {
		return total, err
	}
	pp.Message.Topic = topic
	total += n

	if pp.Message.QOS > QOSAtMostOnce {
		if len(src) < total+2 {
			return total, fmt.Errorf("PUBLISH/Decode: insufficient buffer size for packet id")
		}
		pp.PacketID = binary.BigEndian.Uint16(src[total:])
		total += 2
	}

	payload := make([]byte, end-total)
	copy(payload, src[total:end])
	pp.Message.Payload = payload
	total = end

	return total, nil
}

// Encode writes the packet into dst.
func (pp *PublishPacket) Encode(dst []byte) (int, error) {
	total := 0

	n, err := headerEncode(dst[total:], pp.flags(), pp.len(), pp.Len(), PUBLISH)
	total += n
	if err != nil {
		return total, err
	}

	total += writeString(dst[total:], pp.Message.Topic)

	if pp.Message.QOS > QOSAtMostOnce {
		binary.BigEndian.PutUint16(dst[total:], pp.PacketID)
		total += 2
	}

	copy(dst[total:], pp.Message.Payload)
	total += len(pp.Message.Payload)

	return total, nil
}
