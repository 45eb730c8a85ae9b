// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package titanic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/destiny/zmq4/v25"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/majordomo"
)

// Overlay service names registered with the broker.
const (
	RequestService = "titanic.request"
	ReplyService   = "titanic.reply"
	CloseService   = "titanic.close"
)

// Status codes returned in the first reply frame of every overlay service.
const (
	StatusOK      = "200" // request accepted / reply attached
	StatusPending = "300" // request stored but not yet answered
	StatusUnknown = "400" // no such request
)

// DefaultDispatchInterval is how often the dispatcher rescans the store for
// pending requests when nothing new arrived.
const DefaultDispatchInterval = 1000 * time.Millisecond

// ServiceOptions configures the Titanic overlay.
type ServiceOptions struct {
	DispatchInterval time.Duration       // pending-request rescan period
	Worker           *majordomo.WorkerOptions
	Client           *majordomo.ClientOptions
	Logger           *zmq4.Logger
}

// DefaultServiceOptions returns default overlay options.
func DefaultServiceOptions() *ServiceOptions {
	return &ServiceOptions{
		DispatchInterval: DefaultDispatchInterval,
		Worker:           majordomo.DefaultWorkerOptions(),
		Client:           majordomo.DefaultClientOptions(),
		Logger:           zmq4.NewLogger(zmq4.LogLevelWarn),
	}
}

// Service runs the three overlay workers against a broker and replays
// stored requests until their target service answers.
type Service struct {
	endpoint string
	store    Store
	opts     *ServiceOptions
	log      *zmq4.Logger

	// kick wakes the dispatcher when titanic.request stores a new request,
	// so fresh requests do not wait for the next rescan.
	kick chan struct{}
}

// NewService creates a Titanic overlay that will connect to the broker at
// endpoint and persist through store.
func NewService(endpoint string, store Store, options *ServiceOptions) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("titanic: store cannot be nil")
	}
	if options == nil {
		options = DefaultServiceOptions()
	}
	if options.DispatchInterval <= 0 {
		options.DispatchInterval = DefaultDispatchInterval
	}
	logger := options.Logger
	if logger == nil {
		logger = zmq4.NewLogger(zmq4.LogLevelWarn)
	}

	return &Service{
		endpoint: endpoint,
		store:    store,
		opts:     options,
		log:      logger,
		kick:     make(chan struct{}, 1),
	}, nil
}

// Run operates the overlay until ctx is cancelled or a component fails.
func (s *Service) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error { return s.runWorker(ctx, RequestService, s.handleRequest) })
	group.Go(func() error { return s.runWorker(ctx, ReplyService, s.handleReply) })
	group.Go(func() error { return s.runWorker(ctx, CloseService, s.handleClose) })
	group.Go(func() error { return s.dispatch(ctx) })

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) runWorker(ctx context.Context, service string, handler majordomo.Handler) error {
	worker, err := majordomo.NewWorker(majordomo.ServiceName(service), s.endpoint, s.opts.Worker)
	if err != nil {
		return fmt.Errorf("titanic: failed to create %s worker: %w", service, err)
	}
	defer worker.Close()
	return worker.Run(ctx, handler)
}

// handleRequest stores [service][payload...] and replies ["200"][uuid].
func (s *Service) handleRequest(request majordomo.Message) (majordomo.Message, error) {
	if len(request) < 1 || len(request[0]) == 0 {
		return majordomo.Message{[]byte(StatusUnknown)}, nil
	}
	service := majordomo.ServiceName(request[0])
	if err := service.Validate(); err != nil {
		return majordomo.Message{[]byte(StatusUnknown)}, nil
	}

	uuid, err := s.store.StoreRequest(service, request[1:])
	if err != nil {
		return nil, err
	}
	s.log.Info("titanic: stored request %s for %q", uuid, service)

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return majordomo.Message{[]byte(StatusOK), []byte(uuid)}, nil
}

// handleReply answers [uuid] with ["200"][reply...], ["300"] while the
// request is still pending, or ["400"] for unknown UUIDs.
func (s *Service) handleReply(request majordomo.Message) (majordomo.Message, error) {
	if len(request) != 1 {
		return majordomo.Message{[]byte(StatusUnknown)}, nil
	}

	reply, err := s.store.FetchReply(string(request[0]))
	switch {
	case err == nil:
		out := make(majordomo.Message, 0, 1+len(reply))
		out = append(out, []byte(StatusOK))
		return append(out, reply...), nil
	case errors.Is(err, ErrPending):
		return majordomo.Message{[]byte(StatusPending)}, nil
	case errors.Is(err, ErrUnknown):
		return majordomo.Message{[]byte(StatusUnknown)}, nil
	default:
		return nil, err
	}
}

// handleClose discards [uuid] and replies ["200"].
func (s *Service) handleClose(request majordomo.Message) (majordomo.Message, error) {
	if len(request) != 1 {
		return majordomo.Message{[]byte(StatusUnknown)}, nil
	}
	if err := s.store.Close(string(request[0])); err != nil {
		return nil, err
	}
	return majordomo.Message{[]byte(StatusOK)}, nil
}

// dispatch replays pending requests against their target services. A
// service that is down (mmi.service reports 404, or the request times out)
// leaves the request stored for the next pass.
func (s *Service) dispatch(ctx context.Context) error {
	client := majordomo.NewClient(s.endpoint, s.opts.Client)
	defer client.Close()

	ticker := time.NewTicker(s.opts.DispatchInterval)
	defer ticker.Stop()

	for {
		pending, err := s.store.Pending()
		if err != nil {
			return err
		}
		for _, uuid := range pending {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := s.attempt(client, uuid); err != nil {
				s.log.Warn("titanic: dispatch %s: %v", uuid, err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.kick:
		case <-ticker.C:
		}
	}
}

// attempt replays one stored request. A missing reply is not an error: the
// request simply stays pending.
func (s *Service) attempt(client *majordomo.Client, uuid string) error {
	service, request, err := s.store.FetchRequest(uuid)
	if errors.Is(err, ErrUnknown) {
		return nil // closed while we were scanning
	}
	if err != nil {
		return err
	}

	if !s.serviceable(client, service) {
		return nil
	}

	reply, err := client.Request(service, request)
	if errors.Is(err, majordomo.ErrNoReply) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.StoreReply(uuid, reply); err != nil && !errors.Is(err, ErrUnknown) {
		return err
	}
	s.log.Info("titanic: request %s answered by %q", uuid, service)
	return nil
}

// serviceable asks the broker's mmi.service whether the target service has
// at least one registered worker.
func (s *Service) serviceable(client *majordomo.Client, service majordomo.ServiceName) bool {
	reply, err := client.Request(majordomo.MMIService, majordomo.Message{[]byte(service)})
	if err != nil || len(reply) != 1 {
		return false
	}
	return string(reply[0]) == majordomo.MMIFound
}
