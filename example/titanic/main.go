// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Titanic durable-request service
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/destiny/majordomo/titanic"
)

func main() {
	endpoint := flag.String("endpoint", "tcp://127.0.0.1:5555", "broker endpoint")
	dataDir := flag.String("data", ".titanic", "directory for durable requests")
	flag.Parse()

	store, err := titanic.NewDiskStore(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	service, err := titanic.NewService(*endpoint, store, nil)
	if err != nil {
		log.Fatalf("Failed to create titanic service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Titanic service connecting to %s, storing under %s", *endpoint, *dataDir)
	if err := service.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Titanic service failed: %v", err)
	}
	log.Printf("Titanic service stopped")
}
