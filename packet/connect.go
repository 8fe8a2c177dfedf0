package packet

import (
	"encoding/binary"
	"fmt"
)

// protocolNames maps a protocol version to its name string as required by
// the MQTT variable header.
var protocolNames = map[byte]string{
	3: "MQIsdp",
	4: "MQTT",
	5: "MQTT",
}

// ConnectPacket is the first packet a client sends. spec.md §4.3 reads
// exactly one of these per attachment.
type ConnectPacket struct {
	// ProtocolVersion is 3 (MQIsdp), 4 (MQTT 3.1.1) or 5 (MQTT 5).
	ProtocolVersion byte

	// CleanSession requests that any existing session for ClientID be
	// discarded (spec.md §3, §4.4).
	CleanSession bool

	// KeepAlive is the keep-alive interval in seconds.
	KeepAlive uint16

	// ClientID may be empty for a v5 CONNECT, in which case the validator
	// may assign one (spec.md §4.3 step 4).
	ClientID string

	// Username and Password are optional credentials for the configured
	// ConnectionValidator.
	Username string
	Password string

	// Will is the optional last-will message restored by SPEC_FULL.md's
	// additions to §4.3.
	Will *Message
}

var _ Generic = (*ConnectPacket)(nil)

// NewConnectPacket creates a new CONNECT packet defaulting to MQTT 3.1.1 with
// a clean session.
func NewConnectPacket() *ConnectPacket {
	return &ConnectPacket{
		ProtocolVersion: 4,
		CleanSession:    true,
	}
}

// Type returns CONNECT.
func (cp *ConnectPacket) Type() MessageType {
	return CONNECT
}

// String returns a human readable representation of the packet.
func (cp *ConnectPacket) String() string {
	return fmt.Sprintf("CONNECT: ClientID=%q Version=%d Clean=%t KeepAlive=%d",
		cp.ClientID, cp.ProtocolVersion, cp.CleanSession, cp.KeepAlive)
}

func (cp *ConnectPacket) len() int {
	name := protocolNames[cp.ProtocolVersion]
	if name == "" {
		name = "MQTT"
	}

	total := 2 + len(name) // protocol name
	total++                // protocol version
	total++                // connect flags
	total += 2             // keep alive

	total += 2 + len(cp.ClientID)

	if cp.Will != nil {
		total += 2 + len(cp.Will.Topic)
		total += 2 + len(cp.Will.Payload)
	}

	if cp.Username != "" {
		total += 2 + len(cp.Username)
	}

	if cp.Password != "" {
		total += 2 + len(cp.Password)
	}

	return total
}

// Len returns the encoded byte length of the packet.
func (cp *ConnectPacket) Len() int {
	ml := cp.len()
	return headerLen(ml) + ml
}

func readString(src []byte) (string, int, error) {
	if len(src) < 2 {
		return "", 0, fmt.Errorf("CONNECT/Decode: insufficient buffer size for string length")
	}

	l := int(binary.BigEndian.Uint16(src))
	if len(src) < 2+l {
		return "", 0, fmt.Errorf("CONNECT/Decode: insufficient buffer size for string body")
	}

	return string(src[2 : 2+l]), 2 + l, nil
}

func writeString(dst []byte, s string) int {
	binary.BigEndian.PutUint16(dst, uint16(len(s)))
	copy(dst[2:], s)
	return 2 + len(s)
}

// Decode reads the packet from src.
func (cp *ConnectPacket) Decode(src []byte) (int, error) {
	total := 0

	hl, _, rl, err := headerDecode(src[total:], CONNECT)
	total += hl
	if err != nil {
		return total, err
	}

	end := total + rl
	if len(src) < end {
		return total, fmt.Errorf("CONNECT/Decode: insufficient buffer size, expecting %d, got %d", end, len(src))
	}

	name, n, err := readString(src[total:])
	if err != nil {
		return total, err
	}
	total += n

	if name != "MQTT" && name != "MQIsdp" {
		return total, fmt.Errorf("CONNECT/Decode: unexpected protocol name %q", name)
	}

	if len(src) < total+1 {
		return total, fmt.Errorf("CONNECT/Decode: insufficient buffer size for protocol version")
	}
	cp.ProtocolVersion = src[total]
	total++

	if len(src) < total+1 {
		return total, fmt.Errorf("CONNECT/Decode: insufficient buffer size for connect flags")
	}
	flags := src[total]
	total++

	if flags&0x01 != 0 {
		return total, fmt.Errorf("CONNECT/Decode: reserved flag bit set")
	}

	cp.CleanSession = flags&0x02 != 0
	willFlag := flags&0x04 != 0
	willQOS := (flags >> 3) & 0x03
	willRetain := flags&0x20 != 0
	hasPassword := flags&0x40 != 0
	hasUsername := flags&0x80 != 0

	if len(src) < total+2 {
		return total, fmt.Errorf("CONNECT/Decode: insufficient buffer size for keep alive")
	}
	cp.KeepAlive = binary.BigEndian.Uint16(src[total:])
	total += 2

	clientID, n, err := readString(src[total:])
	if err != nil {
		return total, err
	}
	cp.ClientID = clientID
	total += n

	if clientID == "" && !cp.CleanSession && cp.ProtocolVersion < 5 {
		return total, fmt.Errorf("CONNECT/Decode: client identifier required for persistent session [MQTT-3.1.3-8]")
	}

	if willFlag {
		topic, n, err := readString(src[total:])
		if err != nil {
			return total, err
		}
		total += n

		if len(src) < total+2 {
			return total, fmt.Errorf("CONNECT/Decode: insufficient buffer size for will payload length")
		}
		pl := int(binary.BigEndian.Uint16(src[total:]))
		total += 2

		if len(src) < total+pl {
			return total, fmt.Errorf("CONNECT/Decode: insufficient buffer size for will payload")
		}
		payload := make([]byte, pl)
		copy(payload, src[total:total+pl])
		total += pl

		if !validQOS(willQOS) {
			return total, fmt.Errorf("CONNECT/Decode: invalid will QOS %d", willQOS)
		}

		cp.Will = &Message{
			Topic:   topic,
			Payload: payload,
			QOS:     QOS(willQOS),
			Retain:  willRetain,
		}
	}

	if hasUsername {
		username, n, err := readString(src[total:])
		if err != nil {
			return total, err
		}
		cp.Username = username
		total += n
	}

	if hasPassword {
		password, n, err := readString(src[total:])
		if err != nil {
			return total, err
		}
		cp.Password = password
		total += n
	}

	return total, nil
}

// Encode writes the packet into dst.
func (cp *ConnectPacket) Encode(dst []byte) (int, error) {
	total := 0

	name := protocolNames[cp.ProtocolVersion]
	if name == "" {
		name = "MQTT"
	}

	n, err := headerEncode(dst[total:], 0, cp.len(), cp.Len(), CONNECT)
	total += n
	if err != nil {
		return total, err
	}

	total += writeString(dst[total:], name)

	dst[total] = cp.ProtocolVersion
	total++

	var flags byte
	if cp.CleanSession {
		flags |= 0x02
	}

	if cp.Will != nil {
		flags |= 0x04
		flags |= byte(cp.Will.QOS) << 3

		if cp.Will.Retain {
			flags |= 0x20
		}
	}

	if cp.Password != "" {
		flags |= 0x40
	}

	if cp.Username != "" {
		flags |= 0x80
	}

	dst[total] = flags
	total++

	binary.BigEndian.PutUint16(dst[total:], cp.KeepAlive)
	total += 2

	total += writeString(dst[total:], cp.ClientID)

	if cp.Will != nil {
		total += writeString(dst[total:], cp.Will.Topic)
		binary.BigEndian.PutUint16(dst[total:], uint16(len(cp.Will.Payload)))
		total += 2
		copy(dst[total:], cp.Will.Payload)
		total += len(cp.Will.Payload)
	}

	if cp.Username != "" {
		total += writeString(dst[total:], cp.Username)
	}

	if cp.Password != "" {
		total += writeString(dst[total:], cp.Password)
	}

	return total, nil
}
