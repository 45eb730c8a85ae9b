// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo worker with CURVE security
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/destiny/majordomo"
)

func parseServerKey(s string) ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid server public key hex: %w", err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("server public key must be 32 bytes, got %d", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func main() {
	if len(os.Args) != 3 {
		log.Fatalf("Usage: %s <service_name> <server_public_key_hex>", os.Args[0])
	}
	serviceName := majordomo.ServiceName(os.Args[1])

	serverPubKey, err := parseServerKey(os.Args[2])
	if err != nil {
		log.Fatalf("%v", err)
	}

	clientKeys, err := majordomo.GenerateCURVEKeys()
	if err != nil {
		log.Fatalf("Failed to generate worker keys: %v", err)
	}

	worker, err := majordomo.NewWorkerWithCURVE(serviceName, "tcp://127.0.0.1:5555", clientKeys, serverPubKey, nil)
	if err != nil {
		log.Fatalf("Failed to create secure worker: %v", err)
	}
	log.Printf("Secure Majordomo worker started for service: %s", serviceName)

	handler := func(request majordomo.Message) (majordomo.Message, error) {
		log.Printf("Processing request: %s", request)
		return request, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Worker error: %v", err)
	}

	log.Printf("Shutting down worker...")
	if err := worker.Close(); err != nil {
		log.Printf("Error closing worker: %v", err)
	}
	log.Printf("Secure worker stopped")
}
