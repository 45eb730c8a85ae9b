// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo broker with CURVE security
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/destiny/majordomo"
)

func main() {
	serverKeys, err := majordomo.GenerateCURVEKeys()
	if err != nil {
		log.Fatalf("Failed to generate server keys: %v", err)
	}

	// Clients need this key to connect.
	pubZ85, _ := serverKeys.PublicKeyZ85()
	log.Printf("Server public key (Z85): %s", pubZ85)
	log.Printf("Server public key (hex): %x", serverKeys.Public)

	broker, err := majordomo.NewBrokerWithCURVE("tcp://*:5555", serverKeys, nil)
	if err != nil {
		log.Fatalf("Failed to create secure broker: %v", err)
	}
	if err := broker.Start(); err != nil {
		log.Fatalf("Failed to start broker: %v", err)
	}
	log.Printf("Secure Majordomo broker started on tcp://*:5555")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("Shutting down broker...")
	if err := broker.Stop(); err != nil {
		log.Printf("Error stopping broker: %v", err)
	}
	log.Printf("Secure broker stopped")
}
