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

func newTestStore(t *testing.T) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestDiskStoreRequestLifecycle(t *testing.T) {
	store := newTestStore(t)

	request := majordomo.Message{[]byte("ping"), []byte("extra")}
	uuid, err := store.StoreRequest("echo", request)
	require.NoError(t, err)
	require.NotEmpty(t, uuid)

	service, got, err := store.FetchRequest(uuid)
	require.NoError(t, err)
	assert.Equal(t, majordomo.ServiceName("echo"), service)
	require.Len(t, got, 2)
	assert.Equal(t, "ping", string(got[0]))
	assert.Equal(t, "extra", string(got[1]))

	// No reply yet.
	_, err = store.FetchReply(uuid)
	assert.ErrorIs(t, err, ErrPending)

	require.NoError(t, store.StoreReply(uuid, majordomo.Message{[]byte("pong")}))
	reply, err := store.FetchReply(uuid)
	require.NoError(t, err)
	require.Len(t, reply, 1)
	assert.Equal(t, "pong", string(reply[0]))

	require.NoError(t, store.Close(uuid))
	_, err = store.FetchReply(uuid)
	assert.ErrorIs(t, err, ErrUnknown)
	_, _, err = store.FetchRequest(uuid)
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestDiskStoreUnknownUUID(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.FetchRequest("deadbeef")
	assert.ErrorIs(t, err, ErrUnknown)
	_, err = store.FetchReply("deadbeef")
	assert.ErrorIs(t, err, ErrUnknown)
	assert.ErrorIs(t, store.StoreReply("deadbeef", majordomo.Message{[]byte("x")}), ErrUnknown)

	// Closing an unknown UUID is a no-op.
	assert.NoError(t, store.Close("deadbeef"))
}

func TestDiskStorePending(t *testing.T) {
	store := newTestStore(t)

	first, err := store.StoreRequest("echo", majordomo.Message{[]byte("a")})
	require.NoError(t, err)
	second, err := store.StoreRequest("echo", majordomo.Message{[]byte("b")})
	require.NoError(t, err)

	pending, err := store.Pending()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first, second}, pending)

	// An answered request leaves the pending set.
	require.NoError(t, store.StoreReply(first, majordomo.Message{[]byte("done")}))
	pending, err = store.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{second}, pending)
}

func TestDiskStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewDiskStore(dir)
	require.NoError(t, err)
	uuid, err := store.StoreRequest("echo", majordomo.Message{[]byte("ping")})
	require.NoError(t, err)

	// A fresh store over the same directory sees the request.
	reopened, err := NewDiskStore(dir)
	require.NoError(t, err)
	service, request, err := reopened.FetchRequest(uuid)
	require.NoError(t, err)
	assert.Equal(t, majordomo.ServiceName("echo"), service)
	require.Len(t, request, 1)
	assert.Equal(t, "ping", string(request[0]))
}

func TestDiskStoreEmptyFrames(t *testing.T) {
	store := newTestStore(t)

	// Zero-length and nil frames round-trip.
	uuid, err := store.StoreRequest("echo", majordomo.Message{nil, []byte("x"), {}})
	require.NoError(t, err)

	_, request, err := store.FetchRequest(uuid)
	require.NoError(t, err)
	require.Len(t, request, 3)
	assert.Empty(t, request[0])
	assert.Equal(t, "x", string(request[1]))
	assert.Empty(t, request[2])
}
