// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAvailablePort(t *testing.T) {
	port, err := GetAvailablePort()
	require.NoError(t, err)
	assert.Greater(t, port, 1024)
	assert.Less(t, port, 65536)
}

func TestGetTestEndpoint(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		endpoint, err := GetTestEndpoint()
		require.NoError(t, err)
		assert.Contains(t, endpoint, "tcp://127.0.0.1:")
		assert.False(t, seen[endpoint], "endpoints must be unique")
		seen[endpoint] = true
	}
}
