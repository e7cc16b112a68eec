// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package discord

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	payload := []byte(`{"v":1}`)
	buf := EncodeFrame(OpHandshake, payload)

	if got := binary.LittleEndian.Uint32(buf[0:4]); got != uint32(OpHandshake) {
		t.Errorf("opcode = %d, want %d", got, OpHandshake)
	}
	if got := binary.LittleEndian.Uint32(buf[4:8]); got != uint32(len(payload)) {
		t.Errorf("length = %d, want %d", got, len(payload))
	}
	if !bytes.Equal(buf[8:], payload) {
		t.Errorf("payload = %q, want %q", buf[8:], payload)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		op      Opcode
		payload []byte
	}{
		{"handshake", OpHandshake, []byte(`{"client_id":"123","v":1}`)},
		{"frame", OpFrame, []byte(`{"cmd":"SET_ACTIVITY"}`)},
		{"empty ping", OpPing, nil},
		{"large payload", OpFrame, bytes.Repeat([]byte("x"), 70*1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := EncodeFrame(tt.op, tt.payload)
			frame, err := ReadFrame(bytes.NewReader(buf))
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if frame.Op != tt.op {
				t.Errorf("op = %v, want %v", frame.Op, tt.op)
			}
			if !bytes.Equal(frame.Payload, tt.payload) && len(tt.payload) > 0 {
				t.Error("payload mismatch")
			}
			if len(tt.payload) == 0 && len(frame.Payload) != 0 {
				t.Errorf("expected empty payload, got %d bytes", len(frame.Payload))
			}
		})
	}
}

func TestReadFrameTruncated(t *testing.T) {
	buf := EncodeFrame(OpFrame, []byte("hello"))

	if _, err := ReadFrame(bytes.NewReader(buf[:4])); err == nil {
		t.Error("expected error for truncated header")
	}
	if _, err := ReadFrame(bytes.NewReader(buf[:10])); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestReadFrameOversized(t *testing.T) {
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(OpFrame))
	binary.LittleEndian.PutUint32(header[4:8], maxFrameSize+1)

	_, err := ReadFrame(bytes.NewReader(header[:]))
	if err == nil {
		t.Fatal("expected error for oversized frame")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOpcodeString(t *testing.T) {
	if got := OpHandshake.String(); got != "HANDSHAKE" {
		t.Errorf("got %q", got)
	}
	if got := Opcode(99).String(); got != "UNKNOWN(99)" {
		t.Errorf("got %q", got)
	}
}
