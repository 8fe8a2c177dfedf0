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

package transport

import (
	"errors"
	"fmt"
)

// ErrUnsupportedProtocol reports a URL whose protocol is not recognised.
// No adapter in this package returns it.
var ErrUnsupportedProtocol = errors.New("unsupported protocol found in url")

// ErrDetectionOverflow can be returned during a Receive if the next packet
// couldn't be detect from the initial header bytes.
//
// Note: this error is wrapped in an Error with a DetectionError code.
var ErrDetectionOverflow = errors.New("detection length overflow (>5)")

// ErrReadLimitExceeded reports a connection that exceeded its read limit.
// No adapter in this package returns it: TCPAdapter's read rate limit
// blocks reads rather than failing them.
var ErrReadLimitExceeded = errors.New("read limit exceeded")

// ErrReadTimeout is returned by ReceivePacket if no data arrived within the
// timeout passed to it.
//
// Note: this error is wrapped in an Error with a NetworkError code.
var ErrReadTimeout = errors.New("read timeout")

// ErrAcceptAfterClose reports an Accept on a server that has already been
// closed. No type in this package returns it.
var ErrAcceptAfterClose = errors.New("accept after close")

// ErrCommunicationTimeout is returned by TCPAdapter.SendPacket when a write
// exceeds its timeout; receive timeouts report ErrReadTimeout. spec.md
// §7 treats this as distinct from cancellation.
var ErrCommunicationTimeout = errors.New("communication timeout")

// The ErrorCode provides a context to various errors.
type ErrorCode int

const (
	_ ErrorCode = iota

	// DialError marks errors from dialing a connection. No code in this
	// package produces it.
	DialError

	// LaunchError marks errors from launching a server. No code in this
	// package produces it.
	LaunchError

	// EncodeError marks errors that came up within Send and are returned by the
	// packets Encode functions.
	EncodeError

	// DecodeError marks errors that came up within Receive and are returned by
	// the packets Decode functions.
	DecodeError

	// DetectionError marks errors that cam up within Receive.
	DetectionError

	// NetworkError marks errors that are returned by the underlying connection.
	NetworkError

	// TimeoutError marks errors caused by a deadline being exceeded.
	TimeoutError
)

// An Error a wraps underlying errors and provides additional context information.
type Error struct {
	Code ErrorCode
	Err  error
}

func (err *Error) Error() string {
	switch err.Code {
	case DialError:
		return fmt.Sprintf("dial error: %s", err.Err.Error())
	case LaunchError:
		return fmt.Sprintf("launch error: %s", err.Err.Error())
	case EncodeError:
		return fmt.Sprintf("encode error: %s", err.Err.Error())
	case DecodeError:
		return fmt.Sprintf("decode error: %s", err.Err.Error())
	case DetectionError:
		return fmt.Sprintf("detection error: %s", err.Err.Error())
	case NetworkError:
		return fmt.Sprintf("network error: %s", err.Err.Error())
	case TimeoutError:
		return fmt.Sprintf("timeout error: %s", err.Err.Error())
	}

	return fmt.Sprintf("unknown error: %s", err.Err.Error())
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped error.
func (err *Error) Unwrap() error {
	return err.Err
}
