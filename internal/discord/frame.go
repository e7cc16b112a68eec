// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

// Package discord implements the Discord Rich Presence IPC protocol: the
// framed wire format, socket discovery across platforms and sandboxed
// installs, a supervised connection with handshake and liveness probing,
// and a rate-limited presence update queue.
package discord

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Opcode identifies the type of an IPC frame.
type Opcode uint32

const (
	OpHandshake Opcode = 0
	OpFrame     Opcode = 1
	OpClose     Opcode = 2
	OpPing      Opcode = 3
	OpPong      Opcode = 4
)

func (o Opcode) String() string {
	switch o {
	case OpHandshake:
		return "HANDSHAKE"
	case OpFrame:
		return "FRAME"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(o))
	}
}

// maxFrameSize bounds inbound payloads. Discord never sends frames
// anywhere near this large; anything bigger indicates a desynced stream.
const maxFrameSize = 16 * 1024 * 1024

// Frame is a single IPC message.
type Frame struct {
	Op      Opcode
	Payload []byte
}

// EncodeFrame serializes a frame as two little-endian uint32 header words
// (opcode, payload length) followed by the payload bytes.
func EncodeFrame(op Opcode, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(op))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)
	return buf
}

// ReadFrame reads exactly one frame from r. A zero-length frame returns an
// empty payload without a payload read.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}

	op := Opcode(binary.LittleEndian.Uint32(header[0:4]))
	length := binary.LittleEndian.Uint32(header[4:8])

	if length > maxFrameSize {
		return Frame{}, fmt.Errorf("frame payload too large: %d bytes", length)
	}
	if length == 0 {
		return Frame{Op: op}, nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("read frame payload: %w", err)
	}
	return Frame{Op: op, Payload: payload}, nil
}
