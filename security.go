// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"fmt"

	"github.com/destiny/zmq4/v25"
	"github.com/destiny/zmq4/v25/security/curve"
)

// CURVEConfig holds CURVE security configuration for brokers, workers and
// clients. The broker acts as the CURVE server; workers and clients are
// CURVE clients that must know the broker's public key.
type CURVEConfig struct {
	ServerKeys   *curve.KeyPair // broker key pair (server side)
	ClientKeys   *curve.KeyPair // worker/client key pair (client side)
	ServerPubKey [32]byte       // broker public key (client side)
}

// GenerateCURVEKeys generates a fresh CURVE key pair.
func GenerateCURVEKeys() (*curve.KeyPair, error) {
	keys, err := curve.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("mdp: failed to generate CURVE keys: %w", err)
	}
	return keys, nil
}

// NewCURVEServerConfig creates CURVE security configuration for a broker.
func NewCURVEServerConfig(serverKeys *curve.KeyPair) *CURVEConfig {
	return &CURVEConfig{ServerKeys: serverKeys}
}

// NewCURVEClientConfig creates CURVE security configuration for a worker or
// client session.
func NewCURVEClientConfig(clientKeys *curve.KeyPair, serverPublicKey [32]byte) *CURVEConfig {
	return &CURVEConfig{ClientKeys: clientKeys, ServerPubKey: serverPublicKey}
}

// Security converts the configuration to a zmq4 security mechanism for the
// requested side.
func (c *CURVEConfig) Security(server bool) (zmq4.Security, error) {
	if server {
		if c.ServerKeys == nil {
			return nil, fmt.Errorf("mdp: server keys required for server security")
		}
		return curve.NewServerSecurity(c.ServerKeys), nil
	}
	if c.ClientKeys == nil {
		return nil, fmt.Errorf("mdp: client keys required for client security")
	}
	return curve.NewClientSecurity(c.ClientKeys, c.ServerPubKey), nil
}

// NewBrokerWithCURVE creates a broker whose socket requires CURVE.
func NewBrokerWithCURVE(endpoint string, serverKeys *curve.KeyPair, options *BrokerOptions) (*Broker, error) {
	if serverKeys == nil {
		return nil, fmt.Errorf("mdp: server keys required for CURVE broker")
	}
	if options == nil {
		options = DefaultBrokerOptions()
	}
	options.Security = curve.NewServerSecurity(serverKeys)
	return NewBroker(endpoint, options), nil
}

// NewWorkerWithCURVE creates a worker session that authenticates the broker
// with CURVE.
func NewWorkerWithCURVE(service ServiceName, endpoint string, clientKeys *curve.KeyPair, serverPublicKey [32]byte, options *WorkerOptions) (*Worker, error) {
	if clientKeys == nil {
		return nil, fmt.Errorf("mdp: client keys required for CURVE worker")
	}
	if options == nil {
		options = DefaultWorkerOptions()
	}
	options.Security = curve.NewClientSecurity(clientKeys, serverPublicKey)
	return NewWorker(service, endpoint, options)
}

// NewClientWithCURVE creates a client session that authenticates the broker
// with CURVE.
func NewClientWithCURVE(endpoint string, clientKeys *curve.KeyPair, serverPublicKey [32]byte, options *ClientOptions) (*Client, error) {
	if clientKeys == nil {
		return nil, fmt.Errorf("mdp: client keys required for CURVE client")
	}
	if options == nil {
		options = DefaultClientOptions()
	}
	options.Security = curve.NewClientSecurity(clientKeys, serverPublicKey)
	return NewClient(endpoint, options), nil
}
