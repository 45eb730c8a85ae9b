// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo client with CURVE security
package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

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
	if len(os.Args) != 4 {
		log.Fatalf("Usage: %s <service_name> <message> <server_public_key_hex>", os.Args[0])
	}
	serviceName := majordomo.ServiceName(os.Args[1])
	message := os.Args[2]

	serverPubKey, err := parseServerKey(os.Args[3])
	if err != nil {
		log.Fatalf("%v", err)
	}

	clientKeys, err := majordomo.GenerateCURVEKeys()
	if err != nil {
		log.Fatalf("Failed to generate client keys: %v", err)
	}

	client, err := majordomo.NewClientWithCURVE("tcp://127.0.0.1:5555", clientKeys, serverPubKey, nil)
	if err != nil {
		log.Fatalf("Failed to create secure client: %v", err)
	}
	defer client.Close()

	log.Printf("Sending secure request to service %s: %s", serviceName, message)
	start := time.Now()
	reply, err := client.Request(serviceName, majordomo.Message{[]byte(message)})
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	log.Printf("Reply received in %v: %s", time.Since(start), reply)
}
