// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Freelance client: connects to every endpoint on the command line
// and fails requests over across them.
package main

import (
	"log"
	"os"
	"time"

	"github.com/destiny/majordomo"
	"github.com/destiny/majordomo/freelance"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <endpoint> [endpoint...]", os.Args[0])
	}

	agent := freelance.NewAgent(nil)
	if err := agent.Start(); err != nil {
		log.Fatalf("Failed to start agent: %v", err)
	}
	defer agent.Stop()

	for _, endpoint := range os.Args[1:] {
		if err := agent.Connect(endpoint); err != nil {
			log.Fatalf("Failed to connect to %s: %v", endpoint, err)
		}
		log.Printf("Connected to %s", endpoint)
	}

	for i := 0; i < 10; i++ {
		start := time.Now()
		reply, err := agent.Request(majordomo.Message{[]byte("status")})
		if err != nil {
			log.Printf("Request %d failed: %v", i+1, err)
			continue
		}
		log.Printf("Request %d answered in %v: %s", i+1, time.Since(start), reply)
		time.Sleep(time.Second)
	}
}
