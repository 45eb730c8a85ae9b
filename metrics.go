// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import "sync/atomic"

// Metrics holds process-wide protocol counters. Counters are incremented
// with atomic operations so a reporting task may read them from any
// goroutine without locking.
type Metrics struct {
	MessagesSent     atomic.Uint64
	MessagesReceived atomic.Uint64
	MessagesDropped  atomic.Uint64
	RequestsQueued   atomic.Uint64
	RequestsServed   atomic.Uint64
	HeartbeatsSent   atomic.Uint64
	WorkersExpired   atomic.Uint64
	WorkersDeleted   atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	MessagesSent     uint64
	MessagesReceived uint64
	MessagesDropped  uint64
	RequestsQueued   uint64
	RequestsServed   uint64
	HeartbeatsSent   uint64
	WorkersExpired   uint64
	WorkersDeleted   uint64
}

var metrics Metrics

// Counters returns a snapshot of the process-wide protocol counters.
func Counters() MetricsSnapshot {
	return MetricsSnapshot{
		MessagesSent:     metrics.MessagesSent.Load(),
		MessagesReceived: metrics.MessagesReceived.Load(),
		MessagesDropped:  metrics.MessagesDropped.Load(),
		RequestsQueued:   metrics.RequestsQueued.Load(),
		RequestsServed:   metrics.RequestsServed.Load(),
		HeartbeatsSent:   metrics.HeartbeatsSent.Load(),
		WorkersExpired:   metrics.WorkersExpired.Load(),
		WorkersDeleted:   metrics.WorkersDeleted.Load(),
	}
}
