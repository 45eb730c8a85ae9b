// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package freelance implements the Freelance pattern: brokerless,
// redundant request-reply across a set of equivalent servers, with
// client-side liveness tracking and timeout-based failover.
//
// The client agent connects to every registered server, pings them
// periodically, and routes each request to one live server at a time
// (round-robin with failover); the first reply carrying the request's
// sequence number wins.
package freelance

import (
	"errors"
	"time"
)

// Control frames exchanged between agent and server.
const (
	cmdPing = "PING"
	cmdPong = "PONG"
)

// Default timing configuration.
const (
	// DefaultPingInterval is the interval between liveness pings to each
	// server.
	DefaultPingInterval = 2000 * time.Millisecond

	// DefaultServerTTL is how long a server stays alive without any
	// reply. Any reply revives it.
	DefaultServerTTL = 6000 * time.Millisecond

	// DefaultRequestTimeout is the fixed global deadline for one request
	// across all failover attempts. It is not renewed by partial
	// progress.
	DefaultRequestTimeout = 3000 * time.Millisecond

	// DefaultAttemptInterval is the window granted to one server before
	// the request fails over to the next live one.
	DefaultAttemptInterval = 1000 * time.Millisecond

	// DefaultConnectGrace is the settling delay after Connect before the
	// new server is eligible for dispatch.
	DefaultConnectGrace = 100 * time.Millisecond
)

// Session faults and failure results.
var (
	// ErrRequestPending is returned when Request is called while another
	// request is in flight: the agent is strict single-outstanding.
	ErrRequestPending = errors.New("freelance: request already in flight")

	// ErrRequestFailed is returned when the global deadline elapsed
	// without any server producing a matching reply.
	ErrRequestFailed = errors.New("freelance: request failed, no server replied in time")

	// ErrAgentClosed is returned for operations on a stopped agent.
	ErrAgentClosed = errors.New("freelance: agent not running")
)
