// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"bytes"
	"fmt"
)

// Message is an ordered sequence of opaque binary frames representing one
// logical request, reply or control unit. The leading frames form the
// routing envelope and are pushed and popped as the message crosses
// components; protocol frames sit at fixed offsets once the envelope is
// stripped.
type Message [][]byte

// NewMessage builds a message from the given frames.
func NewMessage(frames ...[]byte) Message {
	return Message(frames)
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := make(Message, len(m))
	for i, frame := range m {
		out[i] = append([]byte(nil), frame...)
	}
	return out
}

// Push prepends a frame to the front of the message.
func (m *Message) Push(frame []byte) {
	*m = append(Message{frame}, *m...)
}

// Pop removes and returns the front frame. It returns nil when the
// message is empty.
func (m *Message) Pop() []byte {
	if len(*m) == 0 {
		return nil
	}
	frame := (*m)[0]
	*m = (*m)[1:]
	return frame
}

// Wrap prepends an address envelope: the address frame followed by an
// empty delimiter frame.
func (m *Message) Wrap(addr []byte) {
	m.Push(nil)
	m.Push(addr)
}

// Unwrap removes and returns the address envelope from the front of the
// message. The empty delimiter frame following the address, if present,
// is removed as well.
func (m *Message) Unwrap() []byte {
	addr := m.Pop()
	if len(*m) > 0 && len((*m)[0]) == 0 {
		m.Pop()
	}
	return addr
}

// String renders the frames for logging.
func (m Message) String() string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, frame := range m {
		if i > 0 {
			buf.WriteByte(' ')
		}
		if len(frame) == 0 {
			buf.WriteString("<empty>")
		} else {
			fmt.Fprintf(&buf, "%q", frame)
		}
	}
	buf.WriteByte(']')
	return buf.String()
}

// ProtocolError reports a malformed message: wrong frame count, bad
// delimiter, unknown header or command. It is fatal to the offending
// message (and, broker-side, to the offending peer's session) but never
// to the process.
type ProtocolError struct {
	Dialect string // "client" or "worker"
	Reason  string // what was wrong
	Frames  int    // frame count of the offending message
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mdp: malformed %s message (%d frames): %s", e.Dialect, e.Frames, e.Reason)
}

// parseWorkerBody validates the worker protocol frames that follow the
// WorkerHeader frame and splits them into command and remainder.
func parseWorkerBody(frames Message) (Command, Message, *ProtocolError) {
	if len(frames) < 1 {
		return 0, nil, &ProtocolError{Dialect: "worker", Reason: "missing command frame", Frames: len(frames)}
	}
	if len(frames[0]) != 1 {
		return 0, nil, &ProtocolError{Dialect: "worker", Reason: "command frame is not a single byte", Frames: len(frames)}
	}
	cmd := Command(frames[0][0])
	if !cmd.valid() {
		return 0, nil, &ProtocolError{Dialect: "worker", Reason: fmt.Sprintf("unknown command 0x%02x", frames[0][0]), Frames: len(frames)}
	}
	return cmd, frames[1:], nil
}

// splitEnvelope separates a reply-routing envelope from the payload that
// follows it. The envelope is every frame up to the first empty delimiter;
// the delimiter itself is consumed.
func splitEnvelope(frames Message) (envelope, payload Message, err *ProtocolError) {
	for i, frame := range frames {
		if len(frame) == 0 {
			return frames[:i], frames[i+1:], nil
		}
	}
	return nil, nil, &ProtocolError{Dialect: "worker", Reason: "missing envelope delimiter", Frames: len(frames)}
}

// formatWorkerMessage builds the worker-dialect frames sent over a DEALER
// socket: [empty][header][command][body...].
func formatWorkerMessage(cmd Command, body Message) Message {
	frames := make(Message, 0, 3+len(body))
	frames = append(frames, nil, []byte(WorkerHeader), cmd.frame())
	return append(frames, body...)
}

// formatClientMessage builds client-dialect frames:
// [empty][header][service][payload...]. The same layout serves requests
// and relayed replies.
func formatClientMessage(service ServiceName, payload Message) Message {
	frames := make(Message, 0, 3+len(payload))
	frames = append(frames, nil, []byte(ClientHeader), []byte(service))
	return append(frames, payload...)
}

// parseClientReply validates a reply received by a client session:
// [empty][header][service][payload...]. It returns the service name and
// the payload.
func parseClientReply(frames Message) (ServiceName, Message, *ProtocolError) {
	if len(frames) < 3 {
		return "", nil, &ProtocolError{Dialect: "client", Reason: "reply too short", Frames: len(frames)}
	}
	if len(frames[0]) != 0 {
		return "", nil, &ProtocolError{Dialect: "client", Reason: "missing empty delimiter", Frames: len(frames)}
	}
	if string(frames[1]) != ClientHeader {
		return "", nil, &ProtocolError{Dialect: "client", Reason: fmt.Sprintf("bad header %q", frames[1]), Frames: len(frames)}
	}
	return ServiceName(frames[2]), frames[3:], nil
}
