// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Freelance server
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/destiny/majordomo"
	"github.com/destiny/majordomo/freelance"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s <endpoint>", os.Args[0])
	}
	endpoint := os.Args[1]

	handler := func(request majordomo.Message) (majordomo.Message, error) {
		log.Printf("Processing request: %s", request)
		response := fmt.Sprintf("Reply from %s at %s", endpoint, time.Now().Format(time.RFC3339))
		return majordomo.Message{[]byte(response)}, nil
	}

	server, err := freelance.NewServer(endpoint, handler, nil)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Freelance server started on %s", endpoint)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("Shutting down server...")
	if err := server.Stop(); err != nil {
		log.Printf("Error stopping server: %v", err)
	}
	log.Printf("Server stopped")
}
