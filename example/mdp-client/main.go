// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo client
package main

import (
	"log"
	"os"
	"time"

	"github.com/destiny/majordomo"
)

func main() {
	if len(os.Args) != 3 {
		log.Fatalf("Usage: %s <service_name> <message>", os.Args[0])
	}
	serviceName := majordomo.ServiceName(os.Args[1])
	message := os.Args[2]

	options := &majordomo.ClientOptions{
		Timeout: 10 * time.Second,
		Retries: 3,
	}
	client := majordomo.NewClient("tcp://127.0.0.1:5555", options)
	defer client.Close()

	// Check the service is up before sending the real request.
	status, err := client.Request(majordomo.MMIService, majordomo.Message{[]byte(serviceName)})
	if err != nil {
		log.Fatalf("Service discovery failed: %v", err)
	}
	if string(status[0]) != majordomo.MMIFound {
		log.Printf("Warning: service %s reports %s, sending anyway", serviceName, status[0])
	}

	log.Printf("Sending request to service %s: %s", serviceName, message)
	start := time.Now()
	reply, err := client.Request(serviceName, majordomo.Message{[]byte(message)})
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	log.Printf("Reply received in %v: %s", time.Since(start), reply)
}
