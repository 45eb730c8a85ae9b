// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package majordomo implements the Majordomo Protocol (MDP) as specified by
// https://rfc.zeromq.org/spec/7/: a service-oriented broker, a worker session
// API and a client session API with heartbeat-based failure detection and
// FIFO request dispatch.
package majordomo

import (
	"fmt"
	"time"
)

// Protocol identifiers per RFC 7/MDP. The client and worker dialects are
// distinguished by these version-tagged header frames.
const (
	// ClientHeader identifies the client protocol dialect.
	ClientHeader = "MDPC01"

	// WorkerHeader identifies the worker protocol dialect.
	WorkerHeader = "MDPW01"
)

// MMIPrefix is the reserved service-name namespace routed to broker-internal
// introspection. Workers may not register services under this prefix.
const MMIPrefix = "mmi."

// MMIService is the only defined meta-service verb: it reports whether the
// named service currently has at least one bound worker.
const MMIService = "mmi.service"

// Meta-service status codes, carried as ASCII payload frames.
const (
	MMIFound          = "200" // service registered with at least one worker
	MMINotFound       = "404" // service unknown or without workers
	MMINotImplemented = "501" // meta-verb not supported
)

// Default timing configuration. All values are caller-overridable through
// the respective Options structs.
const (
	// DefaultHeartbeatLiveness is the number of missed heartbeats after
	// which a peer is declared dead. 3-5 is reasonable.
	DefaultHeartbeatLiveness = 3

	// DefaultHeartbeatInterval is the interval between heartbeats.
	DefaultHeartbeatInterval = 2500 * time.Millisecond

	// DefaultHeartbeatExpiry is the liveness window granted on every
	// proof of life.
	DefaultHeartbeatExpiry = DefaultHeartbeatInterval * DefaultHeartbeatLiveness

	// DefaultReconnectDelay is the backoff before a worker re-dials a
	// broker it considers dead.
	DefaultReconnectDelay = 2500 * time.Millisecond

	// DefaultClientTimeout bounds one client poll for a reply.
	DefaultClientTimeout = 2500 * time.Millisecond

	// DefaultClientRetries is the number of resends a client performs
	// before giving up on a request.
	DefaultClientRetries = 3
)

// Command is a worker protocol command, carried as a single-byte frame.
// The set is closed: every other value is a protocol violation.
type Command byte

// Worker commands per RFC 7/MDP.
const (
	CmdReady      Command = 0x01
	CmdRequest    Command = 0x02
	CmdReply      Command = 0x03
	CmdHeartbeat  Command = 0x04
	CmdDisconnect Command = 0x05
)

// String returns the command mnemonic.
func (c Command) String() string {
	switch c {
	case CmdReady:
		return "READY"
	case CmdRequest:
		return "REQUEST"
	case CmdReply:
		return "REPLY"
	case CmdHeartbeat:
		return "HEARTBEAT"
	case CmdDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("INVALID(0x%02x)", byte(c))
	}
}

// frame returns the wire representation of the command.
func (c Command) frame() []byte {
	return []byte{byte(c)}
}

// valid reports whether c is one of the five defined worker commands.
func (c Command) valid() bool {
	return c >= CmdReady && c <= CmdDisconnect
}

// ServiceName is an MDP service name.
type ServiceName string

// String returns the service name as a string.
func (s ServiceName) String() string { return string(s) }

// Validate checks if the service name is valid.
func (s ServiceName) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("mdp: empty service name")
	}
	if len(s) > 255 {
		return fmt.Errorf("mdp: service name too long: %d bytes (max 255)", len(s))
	}
	return nil
}
