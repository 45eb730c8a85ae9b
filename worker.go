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

// Contract violations of the strict receive-reply-receive discipline. These
// indicate caller bugs and are never retried or recovered internally.
var (
	// ErrReplyWithoutRequest is returned when Recv is given a reply while
	// no request is outstanding.
	ErrReplyWithoutRequest = errors.New("mdp: reply provided without a pending request")

	// ErrReplyOwed is returned when Recv is called without a reply while
	// the previous request has not been answered yet.
	ErrReplyOwed = errors.New("mdp: previous request still awaits a reply")
)

// WorkerOptions configures MDP worker session behavior.
type WorkerOptions struct {
	HeartbeatLiveness int           // missed heartbeats before the broker is declared dead
	HeartbeatInterval time.Duration // interval between worker heartbeats
	ReconnectDelay    time.Duration // backoff before re-dialing a dead broker
	Security          zmq4.Security // security mechanism (nil for no security)
	Logger            *zmq4.Logger  // leveled logger (nil for warnings to stderr)
}

// DefaultWorkerOptions returns default worker options.
func DefaultWorkerOptions() *WorkerOptions {
	return &WorkerOptions{
		HeartbeatLiveness: DefaultHeartbeatLiveness,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ReconnectDelay:    DefaultReconnectDelay,
		Logger:            zmq4.NewLogger(zmq4.LogLevelWarn),
	}
}

// Handler processes one dispatched request and produces the reply payload.
type Handler func(request Message) (Message, error)

// Worker is the MDP worker session API: it registers with a broker for one
// service, receives dispatched requests, sends replies and transparently
// maintains heartbeats and reconnection.
//
// A Worker owns one DEALER socket and is not safe for concurrent use; all
// calls must come from a single goroutine.
type Worker struct {
	service  ServiceName
	endpoint string
	opts     *WorkerOptions
	log      *zmq4.Logger

	ctx    context.Context
	cancel context.CancelFunc

	socket  zmq4.Socket
	msgCh   chan zmq4.Msg
	connect func() error

	liveness    int
	heartbeatAt time.Time
	replyTo     Message // client routing envelope of the request in flight
	owedReply   bool    // a request was returned to the caller, reply pending
	closed      bool
}

// NewWorker creates a worker session for the given service and broker
// endpoint. The session connects lazily on the first Recv (or explicitly
// via Connect).
func NewWorker(service ServiceName, endpoint string, options *WorkerOptions) (*Worker, error) {
	if err := service.Validate(); err != nil {
		return nil, err
	}
	if options == nil {
		options = DefaultWorkerOptions()
	}
	logger := options.Logger
	if logger == nil {
		logger = zmq4.NewLogger(zmq4.LogLevelWarn)
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		service:  service,
		endpoint: endpoint,
		opts:     options,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
		liveness: options.HeartbeatLiveness,
	}
	w.connect = w.Connect
	return w, nil
}

// Connect opens a fresh anonymous connection to the broker, announces the
// service with READY, resets the liveness counter and schedules the next
// heartbeat. Any previous connection is discarded first.
func (w *Worker) Connect() error {
	if w.closed {
		return fmt.Errorf("mdp: worker session closed")
	}
	if w.socket != nil {
		w.socket.Close()
	}

	var socket zmq4.Socket
	if w.opts.Security != nil {
		socket = zmq4.NewDealer(w.ctx, zmq4.WithSecurity(w.opts.Security))
	} else {
		socket = zmq4.NewDealer(w.ctx)
	}
	if err := socket.Dial(w.endpoint); err != nil {
		socket.Close()
		return fmt.Errorf("mdp: failed to connect to broker %s: %w", w.endpoint, err)
	}

	w.socket = socket
	w.msgCh = make(chan zmq4.Msg, 8)
	go w.readSocket(socket, w.msgCh)

	w.sendToBroker(CmdReady, Message{[]byte(w.service)})
	w.liveness = w.opts.HeartbeatLiveness
	w.heartbeatAt = time.Now().Add(w.opts.HeartbeatInterval)

	w.log.Info("mdp: worker connected to %s for service %s", w.endpoint, w.service)
	return nil
}

// readSocket pumps one connection's socket into its channel. It exits when
// the socket is closed; a stale connection's channel is simply abandoned.
func (w *Worker) readSocket(socket zmq4.Socket, ch chan<- zmq4.Msg) {
	for {
		msg, err := socket.Recv()
		if err != nil {
			return
		}
		select {
		case ch <- msg:
		case <-w.ctx.Done():
			return
		}
	}
}

// Recv sends the reply for the previous request, if any, and waits for the
// next dispatched request. The discipline is strictly
// receive-reply-receive: passing a reply with no request outstanding, or
// omitting it while one is, is a contract violation.
//
// Recv blocks until a request arrives or ctx is cancelled; on cancellation
// it returns (nil, ctx.Err()) after a best-effort DISCONNECT notice.
// Heartbeats, liveness tracking and broker reconnection are handled
// internally and never surface to the caller.
func (w *Worker) Recv(ctx context.Context, reply Message) (Message, error) {
	if reply != nil && !w.owedReply {
		return nil, ErrReplyWithoutRequest
	}
	if reply == nil && w.owedReply {
		return nil, ErrReplyOwed
	}
	if w.closed {
		return nil, fmt.Errorf("mdp: worker session closed")
	}

	if w.socket == nil {
		if err := w.connect(); err != nil {
			return nil, err
		}
	}

	if reply != nil {
		body := make(Message, 0, len(w.replyTo)+1+len(reply))
		body = append(body, w.replyTo...)
		body = append(body, nil)
		body = append(body, reply...)
		w.sendToBroker(CmdReply, body)
		w.owedReply = false
		w.replyTo = nil
	}

	ticker := time.NewTicker(w.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.sendToBroker(CmdDisconnect, nil)
			return nil, ctx.Err()

		case msg := <-w.msgCh:
			w.liveness = w.opts.HeartbeatLiveness
			req, err := w.handleBrokerMessage(Message(msg.Frames))
			if err != nil {
				return nil, err
			}
			if req != nil {
				return req, nil
			}

		case <-ticker.C:
			w.liveness--
			if w.liveness <= 0 {
				w.log.Warn("mdp: broker at %s appears dead, reconnecting", w.endpoint)
				if err := w.sleep(ctx, w.opts.ReconnectDelay); err != nil {
					return nil, err
				}
				if err := w.connect(); err != nil {
					w.log.Error("mdp: reconnect failed: %v", err)
				}
				continue
			}
			if time.Now().After(w.heartbeatAt) {
				w.sendToBroker(CmdHeartbeat, nil)
				w.heartbeatAt = time.Now().Add(w.opts.HeartbeatInterval)
			}
		}
	}
}

// handleBrokerMessage validates one broker message and branches on its
// command. It returns a non-nil request payload when a REQUEST arrived.
func (w *Worker) handleBrokerMessage(frames Message) (Message, error) {
	metrics.MessagesReceived.Add(1)

	if len(frames) < 2 || len(frames[0]) != 0 || string(frames[1]) != WorkerHeader {
		metrics.MessagesDropped.Add(1)
		w.log.Warn("mdp: worker dropping malformed broker message (%d frames)", len(frames))
		return nil, nil
	}
	cmd, rest, perr := parseWorkerBody(frames[2:])
	if perr != nil {
		metrics.MessagesDropped.Add(1)
		w.log.Warn("mdp: %v", perr)
		return nil, nil
	}

	switch cmd {
	case CmdRequest:
		envelope, payload, perr := splitEnvelope(rest)
		if perr != nil || len(envelope) == 0 {
			metrics.MessagesDropped.Add(1)
			w.log.Warn("mdp: REQUEST with bad envelope: %v", perr)
			return nil, nil
		}
		// A multi-hop envelope is legal; keep only the address frames.
		w.replyTo = envelope.Clone()
		w.owedReply = true
		return payload, nil

	case CmdHeartbeat:
		// Liveness already reset.
		return nil, nil

	case CmdDisconnect:
		w.log.Info("mdp: broker requested disconnect, reconnecting")
		if err := w.connect(); err != nil {
			w.log.Error("mdp: reconnect failed: %v", err)
		}
		return nil, nil

	default:
		// READY and REPLY never flow broker-to-worker.
		metrics.MessagesDropped.Add(1)
		w.log.Warn("mdp: unexpected %s from broker", cmd)
		return nil, nil
	}
}

// Run drives the session with a request handler until ctx is cancelled.
// Handler errors are reported to the client as the error text, matching the
// behavior of a worker that computes a failure reply.
func (w *Worker) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("mdp: request handler cannot be nil")
	}
	var reply Message
	for {
		req, err := w.Recv(ctx, reply)
		if err != nil {
			return err
		}
		reply, err = handler(req)
		if err != nil {
			w.log.Error("mdp: handler for %s: %v", w.service, err)
			reply = Message{[]byte(fmt.Sprintf("error: %v", err))}
		}
		if reply == nil {
			reply = Message{}
		}
	}
}

// Close sends a best-effort DISCONNECT notice and releases the socket.
func (w *Worker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.socket != nil {
		w.sendToBroker(CmdDisconnect, nil)
	}
	w.cancel()
	if w.socket != nil {
		if err := w.socket.Close(); err != nil {
			return fmt.Errorf("mdp: failed to close worker socket: %w", err)
		}
	}
	return nil
}

// sendToBroker sends one worker-dialect command on the session socket. A
// session with no open connection has nothing to notify.
func (w *Worker) sendToBroker(cmd Command, body Message) {
	if w.socket == nil {
		return
	}
	frames := formatWorkerMessage(cmd, body)
	if err := w.socket.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		w.log.Error("mdp: failed to send %s to broker: %v", cmd, err)
		return
	}
	metrics.MessagesSent.Add(1)
}

// sleep waits for the reconnect backoff, honoring cancellation.
func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
