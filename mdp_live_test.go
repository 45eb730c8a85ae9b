// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"context"
	"testing"
	"time"

	"github.com/destiny/zmq4/v25"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/destiny/majordomo/internal/testutil"
)

// TestBrokerStartStop verifies lifecycle errors and that Stop reaps the
// broker's loops.
func TestBrokerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	endpoint, err := testutil.GetTestEndpoint()
	require.NoError(t, err)

	broker := NewBroker(endpoint, &BrokerOptions{
		HeartbeatLiveness: 3,
		HeartbeatInterval: 100 * time.Millisecond,
		Logger:            zmq4.DevNullLogger,
	})
	require.NoError(t, broker.Start())
	assert.Error(t, broker.Start(), "double Start must fail")
	require.NoError(t, broker.Stop())
	assert.Error(t, broker.Stop(), "double Stop must fail")
}

// TestEndToEndEcho wires a broker, one echo worker and one client over real
// TCP sockets and runs a request round trip plus a service discovery query.
func TestEndToEndEcho(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live socket test in short mode")
	}

	endpoint, err := testutil.GetTestEndpoint()
	require.NoError(t, err)

	broker := NewBroker(endpoint, &BrokerOptions{
		HeartbeatLiveness: 3,
		HeartbeatInterval: 200 * time.Millisecond,
		Logger:            zmq4.DevNullLogger,
	})
	require.NoError(t, broker.Start())
	defer broker.Stop()

	worker, err := NewWorker("echo", endpoint, &WorkerOptions{
		HeartbeatLiveness: 3,
		HeartbeatInterval: 200 * time.Millisecond,
		ReconnectDelay:    100 * time.Millisecond,
		Logger:            zmq4.DevNullLogger,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.Run(ctx, func(request Message) (Message, error) {
			return request, nil
		})
	}()

	// Give the worker time to register before the first dispatch window.
	time.Sleep(300 * time.Millisecond)

	client := NewClient(endpoint, &ClientOptions{
		Timeout: time.Second,
		Retries: 3,
		Logger:  zmq4.DevNullLogger,
	})
	defer client.Close()

	reply, err := client.Request("echo", Message{[]byte("ping")})
	require.NoError(t, err)
	require.Len(t, reply, 1)
	assert.Equal(t, "ping", string(reply[0]))

	// Service discovery sees the registered worker.
	reply, err = client.Request(MMIService, Message{[]byte("echo")})
	require.NoError(t, err)
	require.Len(t, reply, 1)
	assert.Equal(t, MMIFound, string(reply[0]))

	reply, err = client.Request(MMIService, Message{[]byte("no-such-service")})
	require.NoError(t, err)
	require.Len(t, reply, 1)
	assert.Equal(t, MMINotFound, string(reply[0]))

	cancel()
	select {
	case err := <-workerDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not shut down")
	}
	require.NoError(t, worker.Close())
}

// TestWorkerReconnectsAfterBrokerRestart kills the broker under a live
// worker and restarts one on the same endpoint: the worker must notice the
// silence, re-register and serve requests again.
func TestWorkerReconnectsAfterBrokerRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live socket test in short mode")
	}

	endpoint, err := testutil.GetTestEndpoint()
	require.NoError(t, err)

	brokerOpts := &BrokerOptions{
		HeartbeatLiveness: 2,
		HeartbeatInterval: 100 * time.Millisecond,
		Logger:            zmq4.DevNullLogger,
	}
	broker := NewBroker(endpoint, brokerOpts)
	require.NoError(t, broker.Start())

	worker, err := NewWorker("echo", endpoint, &WorkerOptions{
		HeartbeatLiveness: 2,
		HeartbeatInterval: 100 * time.Millisecond,
		ReconnectDelay:    50 * time.Millisecond,
		Logger:            zmq4.DevNullLogger,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.Run(ctx, func(request Message) (Message, error) {
			return request, nil
		})
	}()

	// Give the worker time to register before the first dispatch window.
	time.Sleep(300 * time.Millisecond)

	pre := NewClient(endpoint, &ClientOptions{
		Timeout: time.Second,
		Retries: 3,
		Logger:  zmq4.DevNullLogger,
	})
	reply, err := pre.Request(MMIService, Message{[]byte("echo")})
	require.NoError(t, err)
	require.Len(t, reply, 1)
	require.Equal(t, MMIFound, string(reply[0]))
	require.NoError(t, pre.Close())

	require.NoError(t, broker.Stop())
	broker = NewBroker(endpoint, brokerOpts)
	require.NoError(t, broker.Start())
	defer broker.Stop()

	client := NewClient(endpoint, &ClientOptions{
		Timeout: 300 * time.Millisecond,
		Retries: 3,
		Logger:  zmq4.DevNullLogger,
	})
	defer client.Close()

	// The restarted broker knows nothing until the worker re-registers.
	registered := false
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		reply, err := client.Request(MMIService, Message{[]byte("echo")})
		if err == nil && len(reply) == 1 && string(reply[0]) == MMIFound {
			registered = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.True(t, registered, "worker did not re-register after broker restart")

	reply, err = client.Request("echo", Message{[]byte("ping")})
	require.NoError(t, err)
	require.Len(t, reply, 1)
	assert.Equal(t, "ping", string(reply[0]))

	cancel()
	select {
	case err := <-workerDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not shut down")
	}
	require.NoError(t, worker.Close())
}
