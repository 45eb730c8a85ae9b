// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/destiny/zmq4/v25"
)

// BrokerOptions configures MDP broker behavior.
type BrokerOptions struct {
	HeartbeatLiveness int           // missed heartbeats before a worker is declared dead
	HeartbeatInterval time.Duration // interval between broker heartbeats
	Security          zmq4.Security // security mechanism (nil for no security)
	Logger            *zmq4.Logger  // leveled logger (nil for warnings to stderr)
}

// DefaultBrokerOptions returns default broker options.
func DefaultBrokerOptions() *BrokerOptions {
	return &BrokerOptions{
		HeartbeatLiveness: DefaultHeartbeatLiveness,
		HeartbeatInterval: DefaultHeartbeatInterval,
		Logger:            zmq4.NewLogger(zmq4.LogLevelWarn),
	}
}

// BrokerWorker is a connected worker from the broker's perspective. It is
// owned exclusively by the broker's worker registry; services hold a
// non-owning reference while the worker is idle.
type BrokerWorker struct {
	identity []byte    // opaque routing token, distinct per connection
	service  *Service  // owning service, nil until the first READY
	expiry   time.Time // liveness deadline, renewed on every proof of life
}

// Service tracks a service name with its pending requests and idle workers,
// both FIFO. Services are created lazily on first reference and live for the
// broker's lifetime.
type Service struct {
	name     ServiceName
	requests []Message       // pending requests, each wrapped with its client envelope
	waiting  []*BrokerWorker // idle workers, oldest first
	workers  int             // currently bound workers
	bound    uint64          // workers ever bound
}

// Broker is the MDP router process: it receives envelopes from clients and
// workers on one shared ROUTER socket, dispatches client requests to idle
// workers of the matching service, relays worker replies back to the
// originating client, and manages worker heartbeats and expiry.
//
// The worker and service registries are mutated only from the broker's own
// run loop, so they need no locking.
type Broker struct {
	opts            *BrokerOptions
	log             *zmq4.Logger
	heartbeatExpiry time.Duration

	mu        sync.Mutex
	running   bool
	endpoints []string
	socket    zmq4.Socket

	send    func(zmq4.Msg) error
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	msgCh   chan zmq4.Msg
	statsCh chan chan BrokerStats

	// Registry state, owned by the run loop.
	services    map[ServiceName]*Service
	workers     map[string]*BrokerWorker
	waiting     []*BrokerWorker // broker-wide idle FIFO, ordered by liveness recency
	heartbeatAt time.Time
}

// NewBroker creates a new MDP broker that will listen on endpoint. Further
// endpoints may be added with Bind.
func NewBroker(endpoint string, options *BrokerOptions) *Broker {
	if options == nil {
		options = DefaultBrokerOptions()
	}
	logger := options.Logger
	if logger == nil {
		logger = zmq4.NewLogger(zmq4.LogLevelWarn)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Broker{
		opts:            options,
		log:             logger,
		heartbeatExpiry: options.HeartbeatInterval * time.Duration(options.HeartbeatLiveness),
		ctx:             ctx,
		cancel:          cancel,
		msgCh:           make(chan zmq4.Msg, 128),
		statsCh:         make(chan chan BrokerStats),
		services:        make(map[ServiceName]*Service),
		workers:         make(map[string]*BrokerWorker),
	}
	if endpoint != "" {
		b.endpoints = append(b.endpoints, endpoint)
	}
	return b
}

// Bind adds a listening endpoint. It is idempotent: binding the same
// endpoint twice is a no-op. When the broker is already running the socket
// starts listening immediately, otherwise the endpoint is bound on Start.
func (b *Broker) Bind(endpoint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ep := range b.endpoints {
		if ep == endpoint {
			return nil
		}
	}
	if b.running {
		if err := b.socket.Listen(endpoint); err != nil {
			return fmt.Errorf("mdp: failed to bind broker socket to %s: %w", endpoint, err)
		}
	}
	b.endpoints = append(b.endpoints, endpoint)
	return nil
}

// Start binds the broker socket and launches the run loop.
func (b *Broker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("mdp: broker already running")
	}
	if len(b.endpoints) == 0 {
		return fmt.Errorf("mdp: broker has no endpoint to bind")
	}

	var socket zmq4.Socket
	if b.opts.Security != nil {
		socket = zmq4.NewRouter(b.ctx, zmq4.WithSecurity(b.opts.Security))
	} else {
		socket = zmq4.NewRouter(b.ctx)
	}
	for _, ep := range b.endpoints {
		if err := socket.Listen(ep); err != nil {
			socket.Close()
			return fmt.Errorf("mdp: failed to bind broker socket to %s: %w", ep, err)
		}
	}

	b.socket = socket
	b.send = socket.Send
	b.running = true

	b.wg.Add(2)
	go b.recvLoop(socket)
	go b.run()

	b.log.Info("mdp: broker listening on %s", strings.Join(b.endpoints, ", "))
	return nil
}

// Stop shuts the broker down and waits for its loops to exit.
func (b *Broker) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("mdp: broker not running")
	}
	b.running = false
	b.cancel()
	socket := b.socket
	b.mu.Unlock()

	err := socket.Close()
	b.wg.Wait()

	if err != nil {
		return fmt.Errorf("mdp: failed to close broker socket: %w", err)
	}
	b.log.Info("mdp: broker stopped")
	return nil
}

// recvLoop reads the shared socket and feeds the run loop. Socket reads
// happen only here; state mutation only in run.
func (b *Broker) recvLoop(socket zmq4.Socket) {
	defer b.wg.Done()
	for {
		msg, err := socket.Recv()
		if err != nil {
			select {
			case <-b.ctx.Done():
				return
			default:
			}
			b.log.Error("mdp: broker recv: %v", err)
			continue
		}
		select {
		case b.msgCh <- msg:
		case <-b.ctx.Done():
			return
		}
	}
}

// run is the broker's single owner loop. The heartbeat tick fires at least
// once per heartbeat interval even when the message channel stays busy.
func (b *Broker) run() {
	defer b.wg.Done()

	b.heartbeatAt = time.Now().Add(b.opts.HeartbeatInterval)
	ticker := time.NewTicker(b.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg := <-b.msgCh:
			b.handleMessage(Message(msg.Frames))
			if now := time.Now(); now.After(b.heartbeatAt) {
				b.tick(now)
			}
		case <-ticker.C:
			b.tick(time.Now())
		case req := <-b.statsCh:
			req <- b.snapshotStats()
		}
	}
}

// ServiceStats is a point-in-time view of one service registry entry.
type ServiceStats struct {
	Workers      int    // currently bound workers
	Requests     int    // requests queued for dispatch
	WorkersBound uint64 // workers ever bound, over the broker's lifetime
}

// BrokerStats is a point-in-time view of the broker registries.
type BrokerStats struct {
	Workers  int // registered worker sessions
	Waiting  int // idle workers awaiting dispatch
	Services map[ServiceName]ServiceStats
}

// Stats returns a snapshot of the broker registries. On a running broker
// the snapshot is taken inside the run loop, between messages, so it is
// always consistent; on a stopped broker the registries are read directly.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()

	if !running {
		return b.snapshotStats()
	}
	req := make(chan BrokerStats, 1)
	select {
	case b.statsCh <- req:
		return <-req
	case <-b.ctx.Done():
		// Lost the race with Stop; the registries are winding down.
		return BrokerStats{}
	}
}

func (b *Broker) snapshotStats() BrokerStats {
	stats := BrokerStats{
		Workers:  len(b.workers),
		Waiting:  len(b.waiting),
		Services: make(map[ServiceName]ServiceStats, len(b.services)),
	}
	for name, svc := range b.services {
		stats.Services[name] = ServiceStats{
			Workers:      svc.workers,
			Requests:     len(svc.requests),
			WorkersBound: svc.bound,
		}
	}
	return stats
}

// tick issues due heartbeats to idle workers and purges expired ones.
func (b *Broker) tick(now time.Time) {
	if now.After(b.heartbeatAt) {
		for _, w := range b.waiting {
			b.sendToWorker(w.identity, CmdHeartbeat, nil)
		}
		metrics.HeartbeatsSent.Add(uint64(len(b.waiting)))
		b.heartbeatAt = now.Add(b.opts.HeartbeatInterval)
	}
	b.purge(now)
}

// purge scans the broker-wide idle FIFO from the oldest worker and stops at
// the first one still alive: the list is ordered by liveness recency, so
// everything past that point has a later expiry.
func (b *Broker) purge(now time.Time) {
	for len(b.waiting) > 0 {
		w := b.waiting[0]
		if now.Before(w.expiry) {
			break
		}
		b.log.Info("mdp: purging expired worker %x", w.identity)
		metrics.WorkersExpired.Add(1)
		b.deleteWorker(w, false)
	}
}

// handleMessage classifies one inbound envelope by its protocol header and
// dispatches it. A message that matches neither dialect is a protocol
// violation: logged and dropped, fatal to that message only.
func (b *Broker) handleMessage(frames Message) {
	metrics.MessagesReceived.Add(1)

	if len(frames) < 3 || len(frames[1]) != 0 {
		metrics.MessagesDropped.Add(1)
		b.log.Warn("mdp: broker dropping malformed envelope (%d frames)", len(frames))
		return
	}
	sender := frames[0]
	switch string(frames[2]) {
	case WorkerHeader:
		b.handleWorker(sender, frames[3:])
	case ClientHeader:
		b.handleClient(sender, frames[3:])
	default:
		metrics.MessagesDropped.Add(1)
		b.log.Warn("mdp: broker dropping message with unknown header %q from %x", frames[2], sender)
	}
}

// handleWorker processes one worker-dialect message.
func (b *Broker) handleWorker(sender []byte, body Message) {
	w := b.workers[string(sender)]

	cmd, rest, perr := parseWorkerBody(body)
	if perr != nil {
		b.log.Warn("mdp: %v (worker %x)", perr, sender)
		metrics.MessagesDropped.Add(1)
		if w != nil {
			b.deleteWorker(w, true)
		}
		return
	}

	switch cmd {
	case CmdReady:
		var name ServiceName
		if len(rest) > 0 {
			name = ServiceName(rest[0])
		}
		registered := w != nil && w.service != nil
		reserved := strings.HasPrefix(string(name), MMIPrefix)
		if registered || reserved || name.Validate() != nil {
			// READY from a live session, or self-registration into the
			// reserved namespace: the session is forfeit.
			b.log.Warn("mdp: invalid READY for %q from worker %x", name, sender)
			if w == nil {
				w = b.createWorker(sender)
			}
			b.deleteWorker(w, true)
			return
		}
		if w == nil {
			w = b.createWorker(sender)
		}
		svc := b.requireService(name)
		w.service = svc
		svc.workers++
		svc.bound++
		b.log.Info("mdp: worker %x registered for service %s", sender, name)
		b.workerWaiting(w)

	case CmdReply:
		if w == nil || w.service == nil {
			b.disconnectPeer(sender, w)
			return
		}
		reply := rest
		client := reply.Unwrap()
		if len(client) == 0 {
			b.log.Warn("mdp: REPLY without client envelope from worker %x", sender)
			b.deleteWorker(w, true)
			return
		}
		b.sendToClient(client, w.service.name, reply)
		metrics.RequestsServed.Add(1)
		b.workerWaiting(w)

	case CmdHeartbeat:
		if w == nil || w.service == nil {
			b.disconnectPeer(sender, w)
			return
		}
		b.refreshWorker(w, time.Now())

	case CmdDisconnect:
		// Remove without a disconnect notice back.
		if w != nil {
			b.deleteWorker(w, false)
		}

	case CmdRequest:
		// REQUEST never flows worker-to-broker. No state change.
		metrics.MessagesDropped.Add(1)
		b.log.Warn("mdp: unexpected %s from worker %x", cmd, sender)
	}
}

// handleClient processes one client-dialect message: either a meta-service
// query answered synchronously, or a request enqueued for dispatch.
func (b *Broker) handleClient(sender []byte, body Message) {
	if len(body) < 1 {
		metrics.MessagesDropped.Add(1)
		b.log.Warn("mdp: client message without service frame from %x", sender)
		return
	}
	service := ServiceName(body[0])
	payload := body[1:]

	if strings.HasPrefix(string(service), MMIPrefix) {
		b.handleMMI(sender, service, payload)
		return
	}

	svc := b.requireService(service)
	req := payload
	req.Wrap(sender)
	svc.requests = append(svc.requests, req)
	metrics.RequestsQueued.Add(1)
	b.log.Debug("mdp: queued request from client %x for service %s", sender, service)
	b.dispatch(svc)
}

// handleMMI answers broker-internal introspection queries. Only mmi.service
// is implemented; every other verb gets 501.
func (b *Broker) handleMMI(sender []byte, service ServiceName, payload Message) {
	code := MMINotImplemented
	if service == MMIService && len(payload) > 0 {
		code = MMINotFound
		if svc, ok := b.services[ServiceName(payload[0])]; ok && svc.workers > 0 {
			code = MMIFound
		}
	}
	b.sendToClient(sender, service, Message{[]byte(code)})
}

// dispatch pairs pending requests with idle workers of the service, oldest
// first on both sides. Expired workers are purged first so a dead worker is
// never picked.
func (b *Broker) dispatch(svc *Service) {
	b.purge(time.Now())
	for len(svc.requests) > 0 && len(svc.waiting) > 0 {
		w := svc.waiting[0]
		svc.waiting = svc.waiting[1:]
		b.removeWaiting(w)

		req := svc.requests[0]
		svc.requests = svc.requests[1:]

		b.sendToWorker(w.identity, CmdRequest, req)
		b.log.Debug("mdp: dispatched %s request to worker %x", svc.name, w.identity)
	}
}

// workerWaiting marks a worker idle: it joins the back of both FIFOs with a
// fresh expiry, then the service gets a dispatch attempt.
func (b *Broker) workerWaiting(w *BrokerWorker) {
	w.expiry = time.Now().Add(b.heartbeatExpiry)
	b.removeWaiting(w)
	b.waiting = append(b.waiting, w)

	svc := w.service
	removeWorker(&svc.waiting, w)
	svc.waiting = append(svc.waiting, w)

	b.dispatch(svc)
}

// refreshWorker renews the worker's expiry and moves it to the back of the
// broker-wide idle FIFO so the list stays ordered by liveness recency.
func (b *Broker) refreshWorker(w *BrokerWorker, now time.Time) {
	w.expiry = now.Add(b.heartbeatExpiry)
	if removeWorker(&b.waiting, w) {
		b.waiting = append(b.waiting, w)
	}
}

// createWorker registers a session entry for an identity seen for the first
// time. The worker owns no service until its READY is accepted.
func (b *Broker) createWorker(sender []byte) *BrokerWorker {
	w := &BrokerWorker{
		identity: append([]byte(nil), sender...),
		expiry:   time.Now().Add(b.heartbeatExpiry),
	}
	b.workers[string(w.identity)] = w
	return w
}

// deleteWorker removes a worker from every registry, optionally telling the
// peer to disconnect first.
func (b *Broker) deleteWorker(w *BrokerWorker, disconnect bool) {
	if disconnect {
		b.sendToWorker(w.identity, CmdDisconnect, nil)
	}
	if w.service != nil {
		removeWorker(&w.service.waiting, w)
		w.service.workers--
	}
	b.removeWaiting(w)
	delete(b.workers, string(w.identity))
	metrics.WorkersDeleted.Add(1)
}

// disconnectPeer handles a command from an unregistered worker session:
// whatever state exists is discarded and the peer is told to start over.
func (b *Broker) disconnectPeer(sender []byte, w *BrokerWorker) {
	if w != nil {
		b.deleteWorker(w, true)
		return
	}
	b.sendToWorker(sender, CmdDisconnect, nil)
}

// requireService returns the service registry entry for name, creating it
// lazily on first reference.
func (b *Broker) requireService(name ServiceName) *Service {
	svc, ok := b.services[name]
	if !ok {
		svc = &Service{name: name}
		b.services[name] = svc
	}
	return svc
}

func (b *Broker) removeWaiting(w *BrokerWorker) {
	removeWorker(&b.waiting, w)
}

// removeWorker removes w from the queue if present and reports whether it
// was found.
func removeWorker(queue *[]*BrokerWorker, w *BrokerWorker) bool {
	for i, cand := range *queue {
		if cand == w {
			*queue = append((*queue)[:i], (*queue)[i+1:]...)
			return true
		}
	}
	return false
}

// sendToWorker sends a worker-dialect command, wrapped for ROUTER routing.
func (b *Broker) sendToWorker(identity []byte, cmd Command, body Message) {
	frames := formatWorkerMessage(cmd, body)
	frames.Push(identity)

	if err := b.send(zmq4.NewMsgFrom(frames...)); err != nil {
		b.log.Error("mdp: failed to send %s to worker %x: %v", cmd, identity, err)
		return
	}
	metrics.MessagesSent.Add(1)
}

// sendToClient relays a reply to the client identified by the envelope,
// with the service name frame re-attached.
func (b *Broker) sendToClient(identity []byte, service ServiceName, payload Message) {
	frames := formatClientMessage(service, payload)
	frames.Push(identity)

	if err := b.send(zmq4.NewMsgFrom(frames...)); err != nil {
		b.log.Error("mdp: failed to send reply to client %x: %v", identity, err)
		return
	}
	metrics.MessagesSent.Add(1)
}
