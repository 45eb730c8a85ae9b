// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package titanic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/majordomo"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	service, err := NewService("tcp://127.0.0.1:0", newTestStore(t), DefaultServiceOptions())
	require.NoError(t, err)
	return service
}

func statusOf(t *testing.T, reply majordomo.Message) string {
	t.Helper()
	require.NotEmpty(t, reply)
	return string(reply[0])
}

func TestServiceRequiresStore(t *testing.T) {
	_, err := NewService("tcp://127.0.0.1:0", nil, nil)
	assert.Error(t, err)
}

func TestServiceHandleRequest(t *testing.T) {
	svc := newTestService(t)

	reply, err := svc.handleRequest(majordomo.Message{[]byte("echo"), []byte("ping")})
	require.NoError(t, err)
	require.Len(t, reply, 2)
	assert.Equal(t, StatusOK, string(reply[0]))
	uuid := string(reply[1])
	require.NotEmpty(t, uuid)

	// The request landed in the store under the returned UUID.
	service, request, err := svc.store.FetchRequest(uuid)
	require.NoError(t, err)
	assert.Equal(t, majordomo.ServiceName("echo"), service)
	require.Len(t, request, 1)
	assert.Equal(t, "ping", string(request[0]))
}

func TestServiceHandleRequestRejectsBadService(t *testing.T) {
	svc := newTestService(t)

	reply, err := svc.handleRequest(majordomo.Message{})
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, statusOf(t, reply))

	reply, err = svc.handleRequest(majordomo.Message{nil, []byte("ping")})
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, statusOf(t, reply))
}

func TestServiceHandleReply(t *testing.T) {
	svc := newTestService(t)

	stored, err := svc.handleRequest(majordomo.Message{[]byte("echo"), []byte("ping")})
	require.NoError(t, err)
	uuid := stored[1]

	// Stored but unanswered.
	reply, err := svc.handleReply(majordomo.Message{uuid})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, statusOf(t, reply))

	require.NoError(t, svc.store.StoreReply(string(uuid), majordomo.Message{[]byte("pong")}))
	reply, err = svc.handleReply(majordomo.Message{uuid})
	require.NoError(t, err)
	require.Len(t, reply, 2)
	assert.Equal(t, StatusOK, string(reply[0]))
	assert.Equal(t, "pong", string(reply[1]))

	// Unknown UUIDs and malformed queries report 400.
	reply, err = svc.handleReply(majordomo.Message{[]byte("deadbeef")})
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, statusOf(t, reply))

	reply, err = svc.handleReply(majordomo.Message{uuid, []byte("extra")})
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, statusOf(t, reply))
}

func TestServiceHandleClose(t *testing.T) {
	svc := newTestService(t)

	stored, err := svc.handleRequest(majordomo.Message{[]byte("echo"), []byte("ping")})
	require.NoError(t, err)
	uuid := stored[1]

	reply, err := svc.handleClose(majordomo.Message{uuid})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, statusOf(t, reply))

	reply, err = svc.handleReply(majordomo.Message{uuid})
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, statusOf(t, reply))

	// Closing again stays 200.
	reply, err = svc.handleClose(majordomo.Message{uuid})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, statusOf(t, reply))
}
