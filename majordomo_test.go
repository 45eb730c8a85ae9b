// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"strings"
	"testing"
)

func TestServiceName(t *testing.T) {
	validNames := []ServiceName{"echo", "calculator", "file-service", "service.with.dots"}
	for _, name := range validNames {
		if err := name.Validate(); err != nil {
			t.Errorf("Valid service name %q failed validation: %v", name, err)
		}
	}

	invalidNames := []ServiceName{"", ServiceName(strings.Repeat("x", 256))}
	for _, name := range invalidNames {
		if err := name.Validate(); err == nil {
			t.Errorf("Invalid service name %q passed validation", name)
		}
	}
}

func TestCommands(t *testing.T) {
	commands := []struct {
		cmd  Command
		byte byte
		name string
	}{
		{CmdReady, 0x01, "READY"},
		{CmdRequest, 0x02, "REQUEST"},
		{CmdReply, 0x03, "REPLY"},
		{CmdHeartbeat, 0x04, "HEARTBEAT"},
		{CmdDisconnect, 0x05, "DISCONNECT"},
	}
	for _, tc := range commands {
		if byte(tc.cmd) != tc.byte {
			t.Errorf("Command %s: got byte 0x%02x, want 0x%02x", tc.name, byte(tc.cmd), tc.byte)
		}
		if tc.cmd.String() != tc.name {
			t.Errorf("Command 0x%02x: got name %q, want %q", tc.byte, tc.cmd.String(), tc.name)
		}
		if !tc.cmd.valid() {
			t.Errorf("Command %s rejected as invalid", tc.name)
		}
	}
	for _, raw := range []byte{0x00, 0x06, 0xff} {
		if Command(raw).valid() {
			t.Errorf("Command 0x%02x accepted as valid", raw)
		}
	}
}

func TestMessageEnvelope(t *testing.T) {
	msg := NewMessage([]byte("payload"))
	msg.Wrap([]byte("addr"))

	if len(msg) != 3 {
		t.Fatalf("Wrapped message frame count: got %d, want 3", len(msg))
	}
	if string(msg[0]) != "addr" || len(msg[1]) != 0 || string(msg[2]) != "payload" {
		t.Fatalf("Wrapped message layout wrong: %v", msg)
	}

	addr := msg.Unwrap()
	if string(addr) != "addr" {
		t.Errorf("Unwrap returned %q, want %q", addr, "addr")
	}
	if len(msg) != 1 || string(msg[0]) != "payload" {
		t.Errorf("Unwrap left %v, want just the payload", msg)
	}

	// Unwrap without a delimiter removes only the address frame.
	bare := NewMessage([]byte("addr"), []byte("payload"))
	if got := bare.Unwrap(); string(got) != "addr" {
		t.Errorf("Unwrap returned %q, want %q", got, "addr")
	}
	if len(bare) != 1 || string(bare[0]) != "payload" {
		t.Errorf("Unwrap left %v, want just the payload", bare)
	}

	var empty Message
	if got := empty.Pop(); got != nil {
		t.Errorf("Pop on empty message returned %q, want nil", got)
	}
}

func TestMessageClone(t *testing.T) {
	orig := NewMessage([]byte("one"), []byte("two"))
	clone := orig.Clone()

	clone[0][0] = 'X'
	if string(orig[0]) != "one" {
		t.Errorf("Clone shares frame storage with the original")
	}
}

func TestFormatClientMessage(t *testing.T) {
	frames := formatClientMessage("echo", Message{[]byte("Hello, World!")})

	want := [][]byte{
		nil,
		[]byte(ClientHeader),
		[]byte("echo"),
		[]byte("Hello, World!"),
	}
	if len(frames) != len(want) {
		t.Fatalf("Client message frame count: got %d, want %d", len(frames), len(want))
	}
	for i := range want {
		if string(frames[i]) != string(want[i]) {
			t.Errorf("Client message frame %d: got %q, want %q", i, frames[i], want[i])
		}
	}
}

func TestFormatWorkerMessage(t *testing.T) {
	frames := formatWorkerMessage(CmdReady, Message{[]byte("echo")})

	want := [][]byte{
		nil,
		[]byte(WorkerHeader),
		{0x01},
		[]byte("echo"),
	}
	if len(frames) != len(want) {
		t.Fatalf("Worker message frame count: got %d, want %d", len(frames), len(want))
	}
	for i := range want {
		if string(frames[i]) != string(want[i]) {
			t.Errorf("Worker message frame %d: got %q, want %q", i, frames[i], want[i])
		}
	}
}

func TestParseWorkerBody(t *testing.T) {
	cmd, rest, perr := parseWorkerBody(Message{{0x02}, []byte("client"), nil, []byte("body")})
	if perr != nil {
		t.Fatalf("parseWorkerBody failed on valid frames: %v", perr)
	}
	if cmd != CmdRequest {
		t.Errorf("parseWorkerBody command: got %s, want REQUEST", cmd)
	}
	if len(rest) != 3 || string(rest[0]) != "client" {
		t.Errorf("parseWorkerBody remainder wrong: %v", rest)
	}

	malformed := []Message{
		{},                      // no command frame
		{[]byte("xx")},          // command not a single byte
		{{0x09}},                // unknown command
	}
	for _, frames := range malformed {
		if _, _, perr := parseWorkerBody(frames); perr == nil {
			t.Errorf("parseWorkerBody accepted malformed frames %v", frames)
		}
	}
}

func TestSplitEnvelope(t *testing.T) {
	envelope, payload, perr := splitEnvelope(Message{[]byte("hop1"), []byte("hop2"), nil, []byte("body")})
	if perr != nil {
		t.Fatalf("splitEnvelope failed on valid frames: %v", perr)
	}
	if len(envelope) != 2 || string(envelope[0]) != "hop1" || string(envelope[1]) != "hop2" {
		t.Errorf("splitEnvelope envelope wrong: %v", envelope)
	}
	if len(payload) != 1 || string(payload[0]) != "body" {
		t.Errorf("splitEnvelope payload wrong: %v", payload)
	}

	if _, _, perr := splitEnvelope(Message{[]byte("hop1"), []byte("body")}); perr == nil {
		t.Error("splitEnvelope accepted frames without a delimiter")
	}
}

func TestParseClientReply(t *testing.T) {
	service, payload, perr := parseClientReply(Message{nil, []byte(ClientHeader), []byte("echo"), []byte("pong")})
	if perr != nil {
		t.Fatalf("parseClientReply failed on valid frames: %v", perr)
	}
	if service != "echo" {
		t.Errorf("parseClientReply service: got %q, want %q", service, "echo")
	}
	if len(payload) != 1 || string(payload[0]) != "pong" {
		t.Errorf("parseClientReply payload wrong: %v", payload)
	}

	malformed := []Message{
		{nil, []byte(ClientHeader)},                           // too short
		{[]byte("x"), []byte(ClientHeader), []byte("echo")},   // missing delimiter
		{nil, []byte("BOGUS1"), []byte("echo")},               // bad header
	}
	for _, frames := range malformed {
		if _, _, perr := parseClientReply(frames); perr == nil {
			t.Errorf("parseClientReply accepted malformed frames %v", frames)
		}
	}
}

func TestProtocolErrorMessage(t *testing.T) {
	perr := &ProtocolError{Dialect: "worker", Reason: "missing command frame", Frames: 2}
	msg := perr.Error()
	for _, want := range []string{"worker", "missing command frame", "2"} {
		if !strings.Contains(msg, want) {
			t.Errorf("ProtocolError message %q missing %q", msg, want)
		}
	}
}
