// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"testing"
	"time"

	"github.com/destiny/zmq4/v25"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a client whose transport is a captured send seam and
// a hand-fed reply channel, so session semantics are tested without sockets.
func newTestClient(timeout time.Duration, retries int) (*Client, *[]zmq4.Msg) {
	c := NewClient("tcp://127.0.0.1:0", &ClientOptions{
		Timeout: timeout,
		Retries: retries,
		Logger:  zmq4.DevNullLogger,
	})
	sent := new([]zmq4.Msg)
	c.send = func(msg zmq4.Msg) error {
		*sent = append(*sent, msg)
		return nil
	}
	c.msgCh = make(chan zmq4.Msg, 8)
	return c, sent
}

func replyFrames(service, payload string) zmq4.Msg {
	return zmq4.NewMsgFrom(nil, []byte(ClientHeader), []byte(service), []byte(payload))
}

func TestClientSendFormatsRequest(t *testing.T) {
	c, sent := newTestClient(10*time.Millisecond, 0)

	require.NoError(t, c.Send("echo", Message{[]byte("ping")}))

	require.Len(t, *sent, 1)
	frames := Message((*sent)[0].Frames)
	require.Len(t, frames, 4)
	assert.Empty(t, frames[0])
	assert.Equal(t, ClientHeader, string(frames[1]))
	assert.Equal(t, "echo", string(frames[2]))
	assert.Equal(t, "ping", string(frames[3]))
}

func TestClientOneOutstandingRequest(t *testing.T) {
	c, _ := newTestClient(10*time.Millisecond, 0)

	require.NoError(t, c.Send("echo", Message{[]byte("ping")}))
	assert.ErrorIs(t, c.Send("echo", Message{[]byte("again")}), ErrRequestPending)
}

func TestClientRejectsInvalidService(t *testing.T) {
	c, sent := newTestClient(10*time.Millisecond, 0)

	assert.Error(t, c.Send("", Message{[]byte("ping")}))
	assert.Empty(t, *sent)
}

func TestClientRecvWithoutRequest(t *testing.T) {
	c, _ := newTestClient(10*time.Millisecond, 0)

	_, err := c.Recv()
	assert.Error(t, err)
}

func TestClientRecvTimeoutIsAbsence(t *testing.T) {
	c, _ := newTestClient(10*time.Millisecond, 0)
	require.NoError(t, c.Send("echo", Message{[]byte("ping")}))

	reply, err := c.Recv()
	require.NoError(t, err, "timeout is absence, not failure")
	assert.Nil(t, reply)

	// The slot is free again.
	assert.NoError(t, c.Send("echo", Message{[]byte("ping")}))
}

func TestClientRecvCancelledIsAbsence(t *testing.T) {
	c, _ := newTestClient(time.Second, 0)
	require.NoError(t, c.Send("echo", Message{[]byte("ping")}))

	c.cancel()

	reply, err := c.Recv()
	require.NoError(t, err, "cancellation is absence, not failure")
	assert.Nil(t, reply)
	assert.False(t, c.pending, "the in-flight slot is released")
}

func TestClientRecvDelivery(t *testing.T) {
	c, _ := newTestClient(time.Second, 0)
	require.NoError(t, c.Send("echo", Message{[]byte("ping")}))

	c.msgCh <- replyFrames("echo", "pong")

	reply, err := c.Recv()
	require.NoError(t, err)
	require.Len(t, reply, 1)
	assert.Equal(t, "pong", string(reply[0]))
}

func TestClientRecvDiscardsStaleReply(t *testing.T) {
	c, _ := newTestClient(time.Second, 0)
	require.NoError(t, c.Send("echo", Message{[]byte("ping")}))

	// A late reply from an abandoned request against another service.
	c.msgCh <- replyFrames("older-service", "stale")
	c.msgCh <- replyFrames("echo", "pong")

	reply, err := c.Recv()
	require.NoError(t, err)
	require.Len(t, reply, 1)
	assert.Equal(t, "pong", string(reply[0]))
}

func TestClientRecvMalformedReply(t *testing.T) {
	c, _ := newTestClient(time.Second, 0)
	require.NoError(t, c.Send("echo", Message{[]byte("ping")}))

	c.msgCh <- zmq4.NewMsgFrom([]byte("garbage"))

	_, err := c.Recv()
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "client", perr.Dialect)
}

func TestClientRequestRetriesThenFails(t *testing.T) {
	c, sent := newTestClient(5*time.Millisecond, 2)

	_, err := c.Request("echo", Message{[]byte("ping")})
	assert.ErrorIs(t, err, ErrNoReply)
	assert.Len(t, *sent, 3, "initial send plus two retries")
}

func TestClientRequestSucceedsOnRetry(t *testing.T) {
	c, sent := newTestClient(20*time.Millisecond, 3)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Stay silent for the first attempt, answer the second.
		time.Sleep(30 * time.Millisecond)
		c.msgCh <- replyFrames("echo", "pong")
	}()

	reply, err := c.Request("echo", Message{[]byte("ping")})
	<-done
	require.NoError(t, err)
	require.Len(t, reply, 1)
	assert.Equal(t, "pong", string(reply[0]))
	assert.NotEmpty(t, *sent)
}
