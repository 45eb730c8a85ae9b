// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package freelance

import "time"

// flServer is one tracked server from the agent's perspective. Lifecycle:
// created on Connect, marked dead when its expiry elapses without a reply,
// revived by any later reply.
type flServer struct {
	endpoint string
	alive    bool
	pingAt   time.Time // next ping due
	expires  time.Time // liveness deadline, renewed on every reply
}

// serverTable tracks the agent's server set. It is owned by the agent loop
// goroutine and needs no locking.
type serverTable struct {
	pingInterval time.Duration
	ttl          time.Duration

	servers map[string]*flServer
	order   []string // registration order, for round-robin
	next    int      // round-robin cursor
}

func newServerTable(pingInterval, ttl time.Duration) *serverTable {
	return &serverTable{
		pingInterval: pingInterval,
		ttl:          ttl,
		servers:      make(map[string]*flServer),
	}
}

// add registers a server as alive with fresh ping and expiry timers.
// Adding a known endpoint only refreshes its timers.
func (t *serverTable) add(endpoint string, now time.Time) *flServer {
	s, ok := t.servers[endpoint]
	if !ok {
		s = &flServer{endpoint: endpoint}
		t.servers[endpoint] = s
		t.order = append(t.order, endpoint)
	}
	s.alive = true
	s.pingAt = now.Add(t.pingInterval)
	s.expires = now.Add(t.ttl)
	return s
}

// refresh records a proof of life for the server. It reports whether the
// server was dead and has been revived.
func (t *serverTable) refresh(endpoint string, now time.Time) bool {
	s, ok := t.servers[endpoint]
	if !ok {
		return false
	}
	revived := !s.alive
	s.alive = true
	s.expires = now.Add(t.ttl)
	return revived
}

// expire marks servers whose expiry elapsed as dead and returns them.
func (t *serverTable) expire(now time.Time) []*flServer {
	var dead []*flServer
	for _, ep := range t.order {
		s := t.servers[ep]
		if s.alive && now.After(s.expires) {
			s.alive = false
			dead = append(dead, s)
		}
	}
	return dead
}

// dueForPing returns the servers whose ping timer elapsed and reschedules
// them. Dead servers keep being pinged so a recovered one can revive.
func (t *serverTable) dueForPing(now time.Time) []*flServer {
	var due []*flServer
	for _, ep := range t.order {
		s := t.servers[ep]
		if !now.Before(s.pingAt) {
			s.pingAt = now.Add(t.pingInterval)
			due = append(due, s)
		}
	}
	return due
}

// pickAlive returns the next live server in round-robin order, or nil when
// none is live.
func (t *serverTable) pickAlive() *flServer {
	n := len(t.order)
	for i := 0; i < n; i++ {
		s := t.servers[t.order[t.next%n]]
		t.next++
		if s.alive {
			return s
		}
	}
	return nil
}
