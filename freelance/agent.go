// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package freelance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/destiny/zmq4/v25"

	"github.com/destiny/majordomo"
)

// AgentOptions configures the Freelance client agent.
type AgentOptions struct {
	PingInterval    time.Duration // interval between liveness pings
	ServerTTL       time.Duration // server liveness window
	RequestTimeout  time.Duration // fixed global deadline per request
	AttemptInterval time.Duration // failover window per server attempt
	ConnectGrace    time.Duration // settling delay after Connect
	Logger          *zmq4.Logger  // leveled logger (nil for warnings to stderr)
}

// DefaultAgentOptions returns default agent options.
func DefaultAgentOptions() *AgentOptions {
	return &AgentOptions{
		PingInterval:    DefaultPingInterval,
		ServerTTL:       DefaultServerTTL,
		RequestTimeout:  DefaultRequestTimeout,
		AttemptInterval: DefaultAttemptInterval,
		ConnectGrace:    DefaultConnectGrace,
		Logger:          zmq4.NewLogger(zmq4.LogLevelWarn),
	}
}

// connectCmd registers a new candidate server with the agent loop.
type connectCmd struct {
	endpoint string
	done     chan error
}

// agentRequest is one in-flight request handed to the agent loop. The
// reply channel carries the winning payload, or nil on failure.
type agentRequest struct {
	payload majordomo.Message
	reply   chan majordomo.Message

	// loop-owned dispatch state
	sequence  uint64
	deadline  time.Time
	attemptAt time.Time
}

// Agent is the Freelance client frontend. A background goroutine owns the
// ROUTER socket and the server table; the frontend talks to it exclusively
// over channels, transferring ownership of each message.
//
// At most one request may be outstanding at a time.
type Agent struct {
	opts *AgentOptions
	log  *zmq4.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	socket    zmq4.Socket
	msgCh     chan zmq4.Msg
	connectCh chan connectCmd
	requestCh chan *agentRequest

	mu      sync.Mutex
	running bool
	busy    bool
}

// NewAgent creates a Freelance agent.
func NewAgent(options *AgentOptions) *Agent {
	if options == nil {
		options = DefaultAgentOptions()
	}
	logger := options.Logger
	if logger == nil {
		logger = zmq4.NewLogger(zmq4.LogLevelWarn)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Agent{
		opts:      options,
		log:       logger,
		ctx:       ctx,
		cancel:    cancel,
		msgCh:     make(chan zmq4.Msg, 8),
		connectCh: make(chan connectCmd),
		requestCh: make(chan *agentRequest),
	}
}

// Start launches the background agent loop.
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("freelance: agent already running")
	}
	a.socket = zmq4.NewRouter(a.ctx)
	a.running = true

	a.wg.Add(2)
	go a.readSocket()
	go a.run()
	return nil
}

// Stop shuts the agent down and waits for its loops to exit.
func (a *Agent) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return ErrAgentClosed
	}
	a.running = false
	a.mu.Unlock()

	a.cancel()
	err := a.socket.Close()
	a.wg.Wait()

	if err != nil {
		return fmt.Errorf("freelance: failed to close agent socket: %w", err)
	}
	return nil
}

// Connect registers a new candidate server endpoint. The server is eligible
// for dispatch after a short grace delay that lets the connection settle.
func (a *Agent) Connect(endpoint string) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return ErrAgentClosed
	}
	a.mu.Unlock()

	cmd := connectCmd{endpoint: endpoint, done: make(chan error, 1)}
	select {
	case a.connectCh <- cmd:
	case <-a.ctx.Done():
		return ErrAgentClosed
	}
	select {
	case err := <-cmd.done:
		if err != nil {
			return err
		}
	case <-a.ctx.Done():
		return ErrAgentClosed
	}
	time.Sleep(a.opts.ConnectGrace)
	return nil
}

// Request dispatches a request to the server set and waits for the first
// matching reply, failing over across live servers until the global
// deadline. A second Request while one is in flight fails with
// ErrRequestPending.
func (a *Agent) Request(payload majordomo.Message) (majordomo.Message, error) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil, ErrAgentClosed
	}
	if a.busy {
		a.mu.Unlock()
		return nil, ErrRequestPending
	}
	a.busy = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}()

	req := &agentRequest{payload: payload, reply: make(chan majordomo.Message, 1)}
	select {
	case a.requestCh <- req:
	case <-a.ctx.Done():
		return nil, ErrAgentClosed
	}

	select {
	case reply := <-req.reply:
		if reply == nil {
			return nil, ErrRequestFailed
		}
		return reply, nil
	case <-a.ctx.Done():
		return nil, ErrAgentClosed
	}
}

// readSocket pumps the ROUTER socket into the agent loop.
func (a *Agent) readSocket() {
	defer a.wg.Done()
	for {
		msg, err := a.socket.Recv()
		if err != nil {
			return
		}
		select {
		case a.msgCh <- msg:
		case <-a.ctx.Done():
			return
		}
	}
}

// run is the agent's background loop: it owns the server table and the
// pending request, pings servers, expires them, and rotates a pending
// request across live servers.
func (a *Agent) run() {
	defer a.wg.Done()

	servers := newServerTable(a.opts.PingInterval, a.opts.ServerTTL)
	var pending *agentRequest
	var sequence uint64

	ticker := time.NewTicker(a.opts.AttemptInterval / 4)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			if pending != nil {
				pending.reply <- nil
			}
			return

		case cmd := <-a.connectCh:
			err := a.socket.Dial(cmd.endpoint)
			if err != nil {
				cmd.done <- fmt.Errorf("freelance: failed to connect to %s: %w", cmd.endpoint, err)
				break
			}
			servers.add(cmd.endpoint, time.Now())
			a.log.Info("freelance: connected to server %s", cmd.endpoint)
			cmd.done <- nil

		case req := <-requestChIfIdle(a.requestCh, pending):
			sequence++
			req.sequence = sequence
			req.deadline = time.Now().Add(a.opts.RequestTimeout)
			pending = req

		case msg := <-a.msgCh:
			pending = a.handleReply(servers, pending, majordomo.Message(msg.Frames))

		case <-ticker.C:
		}

		now := time.Now()
		for _, s := range servers.expire(now) {
			a.log.Warn("freelance: server %s expired", s.endpoint)
		}
		for _, s := range servers.dueForPing(now) {
			a.sendTo(s.endpoint, majordomo.Message{[]byte(cmdPing)})
		}
		pending = a.pump(servers, pending, now)
	}
}

// requestChIfIdle gates the request channel: while a request is pending the
// loop stops accepting new ones, so the frontend's single-outstanding
// discipline holds even across the channel boundary.
func requestChIfIdle(ch chan *agentRequest, pending *agentRequest) chan *agentRequest {
	if pending != nil {
		return nil
	}
	return ch
}

// handleReply processes one server message: any reply is proof of life for
// its sender; a reply carrying the pending sequence wins the request.
func (a *Agent) handleReply(servers *serverTable, pending *agentRequest, frames majordomo.Message) *agentRequest {
	if len(frames) < 2 {
		a.log.Warn("freelance: dropping short server message (%d frames)", len(frames))
		return pending
	}
	endpoint := string(frames[0])
	if servers.refresh(endpoint, time.Now()) {
		a.log.Info("freelance: server %s revived", endpoint)
	}

	body := frames[1:]
	if string(body[0]) == cmdPong {
		return pending
	}
	if pending == nil {
		return nil
	}
	seq, err := strconv.ParseUint(string(body[0]), 10, 64)
	if err != nil || seq != pending.sequence {
		// Late reply from an earlier attempt; first match wins, the
		// rest are dropped.
		return pending
	}
	pending.reply <- body[1:]
	return nil
}

// pump advances the pending request: fail it at the deadline, otherwise
// forward it to the next live server once per attempt window.
func (a *Agent) pump(servers *serverTable, pending *agentRequest, now time.Time) *agentRequest {
	if pending == nil {
		return nil
	}
	if now.After(pending.deadline) {
		a.log.Warn("freelance: request #%d failed, deadline elapsed", pending.sequence)
		pending.reply <- nil
		return nil
	}
	if now.Before(pending.attemptAt) {
		return pending
	}
	s := servers.pickAlive()
	if s == nil {
		// No live server right now; keep the request until one revives
		// or the deadline fails it.
		return pending
	}
	frames := make(majordomo.Message, 0, 1+len(pending.payload))
	frames = append(frames, []byte(strconv.FormatUint(pending.sequence, 10)))
	frames = append(frames, pending.payload...)
	a.sendTo(s.endpoint, frames)
	pending.attemptAt = now.Add(a.opts.AttemptInterval)
	return pending
}

// sendTo routes frames to the server identified by its endpoint.
func (a *Agent) sendTo(endpoint string, frames majordomo.Message) {
	frames.Push([]byte(endpoint))
	if err := a.socket.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		a.log.Error("freelance: failed to send to %s: %v", endpoint, err)
	}
}
