// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo worker
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/destiny/majordomo"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s <service_name>", os.Args[0])
	}
	serviceName := majordomo.ServiceName(os.Args[1])

	handler := func(request majordomo.Message) (majordomo.Message, error) {
		log.Printf("Processing request: %s", request)

		// Simulate some work
		time.Sleep(100 * time.Millisecond)

		response := fmt.Sprintf("Echo from %s at %s", serviceName, time.Now().Format(time.RFC3339))
		reply := majordomo.Message{[]byte(response)}
		return append(reply, request...), nil
	}

	worker, err := majordomo.NewWorker(serviceName, "tcp://127.0.0.1:5555", nil)
	if err != nil {
		log.Fatalf("Failed to create worker: %v", err)
	}
	log.Printf("Majordomo worker started for service: %s", serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Worker error: %v", err)
	}

	log.Printf("Shutting down worker...")
	if err := worker.Close(); err != nil {
		log.Printf("Error closing worker: %v", err)
	}
	log.Printf("Worker stopped")
}
