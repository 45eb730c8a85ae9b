// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package titanic implements a durable-request overlay on top of the
// Majordomo broker. Requests are written to stable storage before being
// acknowledged, replayed against the target service until a reply arrives,
// and kept until the client confirms receipt and closes the request.
package titanic

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/destiny/majordomo"
)

var (
	// ErrPending indicates a stored request that has no reply yet.
	ErrPending = errors.New("titanic: reply not yet available")

	// ErrUnknown indicates a UUID with no stored request behind it.
	ErrUnknown = errors.New("titanic: unknown request")
)

// Store persists requests and their replies across broker and service
// restarts. Implementations must be safe for concurrent use.
type Store interface {
	// StoreRequest persists a request destined for service and returns the
	// UUID under which it can be queried and closed.
	StoreRequest(service majordomo.ServiceName, request majordomo.Message) (string, error)

	// FetchRequest returns the service and request stored under uuid, or
	// ErrUnknown.
	FetchRequest(uuid string) (majordomo.ServiceName, majordomo.Message, error)

	// StoreReply persists the reply for uuid. ErrUnknown if no request
	// exists under uuid.
	StoreReply(uuid string, reply majordomo.Message) error

	// FetchReply returns the stored reply for uuid, ErrPending if the
	// request exists but has not been answered, or ErrUnknown.
	FetchReply(uuid string) (majordomo.Message, error)

	// Close removes the request and any reply stored under uuid. Closing
	// an unknown UUID is not an error.
	Close(uuid string) error

	// Pending lists the UUIDs of requests that have no reply yet.
	Pending() ([]string, error)
}

const (
	requestSuffix = ".req"
	replySuffix   = ".rep"
)

// DiskStore keeps each request and reply in its own file under a data
// directory, so a crash mid-write can lose at most the message being
// written.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore opens (creating if needed) a disk store rooted at dir.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("titanic: failed to create data directory %s: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

// StoreRequest implements Store.
func (d *DiskStore) StoreRequest(service majordomo.ServiceName, request majordomo.Message) (string, error) {
	uuid, err := newUUID()
	if err != nil {
		return "", err
	}

	frames := make(majordomo.Message, 0, 1+len(request))
	frames = append(frames, []byte(service))
	frames = append(frames, request...)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeFrames(uuid+requestSuffix, frames); err != nil {
		return "", err
	}
	return uuid, nil
}

// FetchRequest implements Store.
func (d *DiskStore) FetchRequest(uuid string) (majordomo.ServiceName, majordomo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	frames, err := d.readFrames(uuid + requestSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, ErrUnknown
		}
		return "", nil, err
	}
	if len(frames) < 1 {
		return "", nil, fmt.Errorf("titanic: corrupt request file for %s", uuid)
	}
	return majordomo.ServiceName(frames[0]), frames[1:], nil
}

// StoreReply implements Store.
func (d *DiskStore) StoreReply(uuid string, reply majordomo.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := os.Stat(filepath.Join(d.dir, uuid+requestSuffix)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrUnknown
		}
		return fmt.Errorf("titanic: failed to stat request file: %w", err)
	}
	return d.writeFrames(uuid+replySuffix, reply)
}

// FetchReply implements Store.
func (d *DiskStore) FetchReply(uuid string) (majordomo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	frames, err := d.readFrames(uuid + replySuffix)
	if err == nil {
		return frames, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(d.dir, uuid+requestSuffix)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrUnknown
		}
		return nil, fmt.Errorf("titanic: failed to stat request file: %w", err)
	}
	return nil, ErrPending
}

// Close implements Store.
func (d *DiskStore) Close(uuid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, suffix := range []string{requestSuffix, replySuffix} {
		err := os.Remove(filepath.Join(d.dir, uuid+suffix))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("titanic: failed to remove %s%s: %w", uuid, suffix, err)
		}
	}
	return nil
}

// Pending implements Store.
func (d *DiskStore) Pending() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("titanic: failed to list data directory: %w", err)
	}

	var pending []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, requestSuffix) {
			continue
		}
		uuid := strings.TrimSuffix(name, requestSuffix)
		if _, err := os.Stat(filepath.Join(d.dir, uuid+replySuffix)); err == nil {
			continue
		}
		pending = append(pending, uuid)
	}
	return pending, nil
}

// writeFrames serializes frames as [u32 length][bytes]... and renames the
// temp file into place so readers never see a partial file.
func (d *DiskStore) writeFrames(name string, frames majordomo.Message) error {
	tmp, err := os.CreateTemp(d.dir, name+".tmp")
	if err != nil {
		return fmt.Errorf("titanic: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var size [4]byte
	for _, frame := range frames {
		binary.BigEndian.PutUint32(size[:], uint32(len(frame)))
		if _, err := tmp.Write(size[:]); err != nil {
			tmp.Close()
			return fmt.Errorf("titanic: failed to write frame size: %w", err)
		}
		if _, err := tmp.Write(frame); err != nil {
			tmp.Close()
			return fmt.Errorf("titanic: failed to write frame: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("titanic: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("titanic: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.dir, name)); err != nil {
		return fmt.Errorf("titanic: failed to commit %s: %w", name, err)
	}
	return nil
}

func (d *DiskStore) readFrames(name string) (majordomo.Message, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if err != nil {
		return nil, err
	}

	var frames majordomo.Message
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("titanic: truncated frame header in %s", name)
		}
		size := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < size {
			return nil, fmt.Errorf("titanic: truncated frame body in %s", name)
		}
		frame := make([]byte, size)
		copy(frame, data[:size])
		frames = append(frames, frame)
		data = data[size:]
	}
	return frames, nil
}

func newUUID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("titanic: failed to generate uuid: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}
