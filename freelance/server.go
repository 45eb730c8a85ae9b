// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package freelance

import (
	"context"
	"fmt"
	"sync"

	"github.com/destiny/zmq4/v25"

	"github.com/destiny/majordomo"
)

// Handler processes one request payload and produces the reply payload.
type Handler func(request majordomo.Message) (majordomo.Message, error)

// ServerOptions configures a Freelance server.
type ServerOptions struct {
	Logger *zmq4.Logger // leveled logger (nil for warnings to stderr)
}

// DefaultServerOptions returns default server options.
func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{Logger: zmq4.NewLogger(zmq4.LogLevelWarn)}
}

// Server answers Freelance agents: PINGs get a PONG, requests are handed to
// the handler and the reply is sent back under the request's sequence
// number. The socket identity is the bind endpoint, which is how agents
// address this server.
type Server struct {
	endpoint string
	handler  Handler
	opts     *ServerOptions
	log      *zmq4.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	socket  zmq4.Socket
}

// NewServer creates a Freelance server bound to endpoint.
func NewServer(endpoint string, handler Handler, options *ServerOptions) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("freelance: request handler cannot be nil")
	}
	if options == nil {
		options = DefaultServerOptions()
	}
	logger := options.Logger
	if logger == nil {
		logger = zmq4.NewLogger(zmq4.LogLevelWarn)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		endpoint: endpoint,
		handler:  handler,
		opts:     options,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start binds the server socket and launches the serve loop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("freelance: server already running")
	}

	socket := zmq4.NewRouter(s.ctx, zmq4.WithID(zmq4.SocketIdentity(s.endpoint)))
	if err := socket.Listen(s.endpoint); err != nil {
		socket.Close()
		return fmt.Errorf("freelance: failed to bind server socket to %s: %w", s.endpoint, err)
	}

	s.socket = socket
	s.running = true

	s.wg.Add(1)
	go s.serve(socket)

	s.log.Info("freelance: server listening on %s", s.endpoint)
	return nil
}

// Stop shuts the server down and waits for the serve loop to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("freelance: server not running")
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	err := s.socket.Close()
	s.wg.Wait()

	if err != nil {
		return fmt.Errorf("freelance: failed to close server socket: %w", err)
	}
	return nil
}

// serve owns the server socket: ROUTER envelopes come in as
// [sender][control...] where control is either PING or [sequence][payload...].
func (s *Server) serve(socket zmq4.Socket) {
	defer s.wg.Done()
	for {
		msg, err := socket.Recv()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.log.Error("freelance: server recv: %v", err)
			continue
		}

		frames := majordomo.Message(msg.Frames)
		if len(frames) < 2 {
			s.log.Warn("freelance: dropping short message (%d frames)", len(frames))
			continue
		}
		sender := frames[0]

		if string(frames[1]) == cmdPing {
			s.reply(socket, sender, majordomo.Message{[]byte(cmdPong)})
			continue
		}
		if len(frames) < 3 {
			s.log.Warn("freelance: dropping request without payload")
			continue
		}

		sequence := frames[1]
		reply, err := s.handler(frames[2:])
		if err != nil {
			s.log.Error("freelance: handler: %v", err)
			reply = majordomo.Message{[]byte(fmt.Sprintf("error: %v", err))}
		}

		out := make(majordomo.Message, 0, 1+len(reply))
		out = append(out, sequence)
		out = append(out, reply...)
		s.reply(socket, sender, out)
	}
}

func (s *Server) reply(socket zmq4.Socket, sender []byte, frames majordomo.Message) {
	frames.Push(sender)
	if err := socket.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		s.log.Error("freelance: failed to send reply: %v", err)
	}
}
