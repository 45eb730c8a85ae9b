// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo broker
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/destiny/majordomo"
)

func main() {
	endpoint := flag.String("endpoint", "tcp://*:5555", "endpoint to listen on")
	flag.Parse()

	options := majordomo.DefaultBrokerOptions()
	options.HeartbeatLiveness = 3
	options.HeartbeatInterval = 2500 * time.Millisecond

	broker := majordomo.NewBroker(*endpoint, options)
	if err := broker.Start(); err != nil {
		log.Fatalf("Failed to start broker: %v", err)
	}
	log.Printf("Majordomo broker started on %s", *endpoint)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	// Periodic counter and registry reporting
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				counters, _ := json.MarshalIndent(majordomo.Counters(), "", "  ")
				log.Printf("Broker counters:\n%s", counters)
				stats, _ := json.MarshalIndent(broker.Stats(), "", "  ")
				log.Printf("Broker registries:\n%s", stats)
			case <-done:
				return
			}
		}
	}()

	<-sigCh
	close(done)
	log.Printf("Shutting down broker...")
	if err := broker.Stop(); err != nil {
		log.Printf("Error stopping broker: %v", err)
	}
	log.Printf("Broker stopped")
}
