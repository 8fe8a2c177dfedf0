// Copyright (c) 2014 The gomqtt Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package packet

import (
	"fmt"
)

// A ConnackCode is returned in a CONNACK to tell the client whether the
// connection attempt was successful. The numeric values follow MQTT 3.1.1;
// this core also exposes v5-flavoured aliases (NotAuthorized,
// ClientIdentifierNotValid, Success) for the reason-code vocabulary spec.md
// §4.3/§6 uses, since this core negotiates v5 handshakes but does not
// implement v5's wire-level reason code/properties format (see
// SPEC_FULL.md Non-goals).
type ConnackCode byte

const (
	// ConnectionAccepted means the connection was accepted.
	ConnectionAccepted ConnackCode = iota
	// ErrInvalidProtocolVersionCode means the server does not support the
	// requested protocol version.
	ErrInvalidProtocolVersionCode
	// ErrIdentifierRejectedCode means the client identifier is correct UTF-8
	// but not allowed by the server.
	ErrIdentifierRejectedCode
	// ErrServerUnavailableCode means the server is unable to accept the
	// connection.
	ErrServerUnavailableCode
	// ErrBadUsernameOrPasswordCode means the data in the username or
	// password is malformed.
	ErrBadUsernameOrPasswordCode
	// ErrNotAuthorizedCode means the client is not authorized to connect.
	ErrNotAuthorizedCode
)

// Success is an alias for ConnectionAccepted matching spec.md's reason code
// vocabulary.
const Success = ConnectionAccepted

// NotAuthorized is an alias for ErrNotAuthorizedCode.
const NotAuthorized = ErrNotAuthorizedCode

// ClientIdentifierNotValid is an alias for ErrIdentifierRejectedCode.
const ClientIdentifierNotValid = ErrIdentifierRejectedCode

var (
	// ErrInvalidProtocolVersion is returned by Error() for the matching code.
	ErrInvalidProtocolVersion = fmt.Errorf("connection refused: unacceptable protocol version")
	// ErrIdentifierRejected is returned by Error() for the matching code.
	ErrIdentifierRejected = fmt.Errorf("connection refused: identifier rejected")
	// ErrServerUnavailable is returned by Error() for the matching code.
	ErrServerUnavailable = fmt.Errorf("connection refused: server unavailable")
	// ErrBadUsernameOrPassword is returned by Error() for the matching code.
	ErrBadUsernameOrPassword = fmt.Errorf("connection refused: bad user name or password")
	// ErrNotAuthorized is returned by Error() for the matching code.
	ErrNotAuthorized = fmt.Errorf("connection refused: not authorized")
)

// Error returns the textual reason for a non-success code, or "Unknown
// error" for a code this core does not recognise.
func (cc ConnackCode) Error() string {
	switch cc {
	case ErrInvalidProtocolVersionCode:
		return ErrInvalidProtocolVersion.Error()
	case ErrIdentifierRejectedCode:
		return ErrIdentifierRejected.Error()
	case ErrServerUnavailableCode:
		return ErrServerUnavailable.Error()
	case ErrBadUsernameOrPasswordCode:
		return ErrBadUsernameOrPassword.Error()
	case ErrNotAuthorizedCode:
		return ErrNotAuthorized.Error()
	}

	return "Unknown error"
}

// Valid returns whether the code is one of the six known codes (accepted
// plus the five refusal codes).
func (cc ConnackCode) Valid() bool {
	return cc <= ErrNotAuthorizedCode
}

// ConnackPacket is sent by the server in response to a CONNECT. It carries
// the reason_code described by spec.md §3 (ConnectionValidatorContext) and,
// on success, whether a prior session was resumed.
type ConnackPacket struct {
	// SessionPresent indicates a prior session was resumed for the client.
	SessionPresent bool

	// ReturnCode is the reason code for the connection attempt.
	ReturnCode ConnackCode
}

var _ Generic = (*ConnackPacket)(nil)

// NewConnackPacket creates a new CONNACK packet.
func NewConnackPacket() *ConnackPacket {
	return &ConnackPacket{}
}

// Type returns CONNACK.
func (cp *ConnackPacket) Type() MessageType {
	return CONNACK
}

// String returns a human readable representation of the packet.
func (cp *ConnackPacket) String() string {
	return fmt.Sprintf("CONNACK: SessionPresent=%t ReturnCode=%d", cp.SessionPresent, cp.ReturnCode)
}

// Len returns the encoded byte length of the packet.
func (cp *ConnackPacket) Len() int {
	ml := cp.len()
	return headerLen(ml) + ml
}

func (cp *ConnackPacket) len() int {
	return 2
}

// Decode reads the packet from src.
func (cp *ConnackPacket) Decode(src []byte) (int, error) {
	total := 0

	hl, _, rl, err := headerDecode(src[total:], CONNACK)
	total += hl
	if err != nil {
		return total, err
	}

	if rl != 2 {
		return total, fmt.Errorf("CONNACK/Decode: expected remaining length 2, got %d", rl)
	}

	if len(src) < total+2 {
		return total, fmt.Errorf("CONNACK/Decode: insufficient buffer size, expecting %d, got %d", total+2, len(src))
	}

	ackFlags := src[total]
	if ackFlags&0xfe != 0 {
		return total, fmt.Errorf("CONNACK/Decode: bits 7-1 in acknowledge flags are not 0")
	}
	cp.SessionPresent = ackFlags&0x01 == 1
	total++

	code := ConnackCode(src[total])
	if !code.Valid() {
		return total, fmt.Errorf("CONNACK/Decode: invalid return code %d", code)
	}
	cp.ReturnCode = code
	total++

	return total, nil
}

// Encode writes the packet into dst.
func (cp *ConnackPacket) Encode(dst []byte) (int, error) {
	total := 0

	if !cp.ReturnCode.Valid() {
		return total, fmt.Errorf("CONNACK/Encode: invalid return code %d", cp.ReturnCode)
	}

	n, err := headerEncode(dst[total:], 0, cp.len(), cp.Len(), CONNACK)
	total += n
	if err != nil {
		return total, err
	}

	flags := byte(0)
	if cp.SessionPresent {
		flags = 1
	}
	dst[total] = flags
	total++

	dst[total] = byte(cp.ReturnCode)
	total++

	return total, nil
}
