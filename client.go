// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/destiny/zmq4/v25"
)

// ErrRequestPending is returned by Send when a request is already in
// flight: the session is strict request-reply with at most one outstanding
// request. This is a contract violation, not a runtime condition.
var ErrRequestPending = errors.New("mdp: request already in flight")

// ErrNoReply is returned by Request when every retry elapsed without a
// reply from the broker.
var ErrNoReply = errors.New("mdp: no reply, all retries exhausted")

// ClientOptions configures MDP client session behavior.
type ClientOptions struct {
	Timeout  time.Duration // bound on one reply poll
	Retries  int           // resends before Request gives up
	Security zmq4.Security // security mechanism (nil for no security)
	Logger   *zmq4.Logger  // leveled logger (nil for warnings to stderr)
}

// DefaultClientOptions returns default client options.
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		Timeout: DefaultClientTimeout,
		Retries: DefaultClientRetries,
		Logger:  zmq4.NewLogger(zmq4.LogLevelWarn),
	}
}

// Client is the MDP client session API: it sends one service request at a
// time and polls for the correlated reply with a bounded timeout. Retry is
// caller-visible: Recv reports absence and the caller (or the Request
// convenience wrapper) decides whether to resend.
//
// A Client owns one DEALER socket and is not safe for concurrent use.
type Client struct {
	endpoint string
	opts     *ClientOptions
	log      *zmq4.Logger

	ctx    context.Context
	cancel context.CancelFunc

	socket zmq4.Socket
	send   func(zmq4.Msg) error
	msgCh  chan zmq4.Msg

	sequence uint64      // request sequence, for log correlation
	pending  bool        // a request is in flight
	service  ServiceName // service of the in-flight request
	payload  Message     // in-flight request payload, kept for resends
}

// NewClient creates a client session for the given broker endpoint.
func NewClient(endpoint string, options *ClientOptions) *Client {
	if options == nil {
		options = DefaultClientOptions()
	}
	logger := options.Logger
	if logger == nil {
		logger = zmq4.NewLogger(zmq4.LogLevelWarn)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		endpoint: endpoint,
		opts:     options,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect dials the broker.
func (c *Client) Connect() error {
	if c.socket != nil {
		return fmt.Errorf("mdp: client already connected")
	}

	var socket zmq4.Socket
	if c.opts.Security != nil {
		socket = zmq4.NewDealer(c.ctx, zmq4.WithSecurity(c.opts.Security))
	} else {
		socket = zmq4.NewDealer(c.ctx)
	}
	if err := socket.Dial(c.endpoint); err != nil {
		socket.Close()
		return fmt.Errorf("mdp: failed to connect to broker %s: %w", c.endpoint, err)
	}

	c.socket = socket
	c.send = socket.Send
	c.msgCh = make(chan zmq4.Msg, 8)
	go c.readSocket(socket, c.msgCh)

	c.log.Info("mdp: client connected to %s", c.endpoint)
	return nil
}

// Close releases the session socket.
func (c *Client) Close() error {
	c.cancel()
	if c.socket == nil {
		return nil
	}
	socket := c.socket
	c.socket = nil
	if err := socket.Close(); err != nil {
		return fmt.Errorf("mdp: failed to close client socket: %w", err)
	}
	return nil
}

func (c *Client) readSocket(socket zmq4.Socket, ch chan<- zmq4.Msg) {
	for {
		msg, err := socket.Recv()
		if err != nil {
			return
		}
		select {
		case ch <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// Send transmits a request for the named service and returns immediately;
// correlation with the reply happens in Recv. At most one request may be
// outstanding: a second Send before Recv fails with ErrRequestPending.
func (c *Client) Send(service ServiceName, payload Message) error {
	if c.pending {
		return ErrRequestPending
	}
	if err := service.Validate(); err != nil {
		return err
	}
	if c.send == nil {
		if err := c.Connect(); err != nil {
			return err
		}
	}

	c.sequence++
	if err := c.transmit(service, payload); err != nil {
		return err
	}

	c.pending = true
	c.service = service
	c.payload = payload
	c.log.Debug("mdp: sent request #%d to service %s", c.sequence, service)
	return nil
}

// Recv polls for the reply to the in-flight request, up to the configured
// timeout. It returns (nil, nil) when no reply arrived in time — absence,
// not failure; the caller decides whether to resend. Replies for abandoned
// earlier requests are discarded.
func (c *Client) Recv() (Message, error) {
	if !c.pending {
		return nil, fmt.Errorf("mdp: no request in flight")
	}

	deadline := time.NewTimer(c.opts.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.pending = false
			return nil, nil

		case <-deadline.C:
			c.pending = false
			c.log.Debug("mdp: request #%d timed out after %v", c.sequence, c.opts.Timeout)
			return nil, nil

		case msg := <-c.msgCh:
			metrics.MessagesReceived.Add(1)
			service, payload, perr := parseClientReply(Message(msg.Frames))
			if perr != nil {
				return nil, perr
			}
			if service != c.service {
				// Stale reply from an abandoned request.
				metrics.MessagesDropped.Add(1)
				c.log.Debug("mdp: discarding stale reply for service %s", service)
				continue
			}
			c.pending = false
			return payload, nil
		}
	}
}

// Request is the retry convenience: Send followed by Recv, resending on
// absence up to the configured retry count, then ErrNoReply.
func (c *Client) Request(service ServiceName, payload Message) (Message, error) {
	if err := c.Send(service, payload); err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		reply, err := c.Recv()
		if err != nil {
			return nil, err
		}
		if reply != nil {
			return reply, nil
		}
		select {
		case <-c.ctx.Done():
			return nil, ErrNoReply
		default:
		}
		if attempt >= c.opts.Retries {
			return nil, ErrNoReply
		}
		c.log.Warn("mdp: no reply from %s, retrying (%d/%d)", service, attempt+1, c.opts.Retries)
		if err := c.resend(); err != nil {
			return nil, err
		}
	}
}

// resend retransmits the last request after a Recv timeout.
func (c *Client) resend() error {
	if c.pending {
		return ErrRequestPending
	}
	c.sequence++
	if err := c.transmit(c.service, c.payload); err != nil {
		return err
	}
	c.pending = true
	return nil
}

func (c *Client) transmit(service ServiceName, payload Message) error {
	frames := formatClientMessage(service, payload)
	if err := c.send(zmq4.NewMsgFrom(frames...)); err != nil {
		return fmt.Errorf("mdp: failed to send request: %w", err)
	}
	metrics.MessagesSent.Add(1)
	return nil
}
