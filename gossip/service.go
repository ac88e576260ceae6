package gossip

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/cyclon/internal/multierror"
	"github.com/maxpoletaev/cyclon/view"
)

// Service ties a View to a GossipServer and a GossipClient, running the
// periodic exchange loop that keeps the view fresh for as long as the
// service is started.
type Service struct {
	conf   *Config
	view   *view.View
	server *GossipServer
	client *GossipClient

	stop          chan struct{}
	wg            sync.WaitGroup
	serverRunning int32
	clientRunning int32
	entered       int32
}

// New creates a Service for the local node, identified by selfAddr (the
// address other nodes should use to reach it). The service is created
// stopped and not entered; call Enter, then StartServer/StartClient (or
// the Start convenience wrapper) to begin serving and gossiping.
func New(selfAddr string, conf *Config) (*Service, error) {
	if conf == nil {
		conf = DefaultConfig()
	}

	if conf.Logger == nil {
		conf.Logger = kitlog.NewNopLogger()
	}

	self := view.NewNodeDescriptor(selfAddr, 0)
	v := view.NewView(
		self,
		conf.ViewCapacity,
		view.WithLogger(conf.Logger),
		view.WithEvictionMix(conf.Healing, conf.Swap),
		view.WithPrimarySelector(conf.SelectorKind),
	)

	return &Service{
		conf:   conf,
		view:   v,
		server: newGossipServer(v, conf),
		client: newGossipClient(v, conf),
	}, nil
}

// View returns the service's underlying View, for direct inspection or
// for creating additional subscribers beyond the one driving the
// background gossip loop.
func (s *Service) View() *view.View {
	return s.view
}

// Subscribe creates a new PeerSelector over the service's view. This is
// how application code reads the current membership sample, separately
// from the view maintenance the background loop performs.
func (s *Service) Subscribe(id string, kind view.SelectorKind, log view.Log) (view.PeerSelector, error) {
	return s.view.CreateSubscriber(id, kind, log)
}

// StartServer binds the gossip server and starts accepting connections.
// It returns ErrAlreadyRunning if called twice without an intervening
// StopServer.
func (s *Service) StartServer() error {
	if !atomic.CompareAndSwapInt32(&s.serverRunning, 0, 1) {
		return ErrAlreadyRunning
	}

	if err := s.server.listenAndServe(s.conf.BindAddr); err != nil {
		atomic.StoreInt32(&s.serverRunning, 0)
		return err
	}

	return nil
}

// StopServer stops accepting new connections and waits for in-flight
// ones to finish. It returns ErrNotRunning if the server was not
// started.
func (s *Service) StopServer() error {
	if !atomic.CompareAndSwapInt32(&s.serverRunning, 1, 0) {
		return ErrNotRunning
	}

	return s.server.close()
}

// StartClient starts the background exchange loop. It refuses to start
// the loop unless the service has already entered the overlay via
// Enter, returning ErrNotEntered otherwise.
func (s *Service) StartClient() error {
	if atomic.LoadInt32(&s.entered) == 0 {
		return ErrNotEntered
	}

	if !atomic.CompareAndSwapInt32(&s.clientRunning, 0, 1) {
		return ErrAlreadyRunning
	}

	s.stop = make(chan struct{})

	s.wg.Add(1)

	go s.runLoop()

	return nil
}

// StopClient halts the background exchange loop. It returns
// ErrNotRunning if the loop was not started.
func (s *Service) StopClient() error {
	if !atomic.CompareAndSwapInt32(&s.clientRunning, 1, 0) {
		return ErrNotRunning
	}

	close(s.stop)
	s.wg.Wait()

	return nil
}

// Start is a convenience wrapper that starts the server and then the
// client loop. StartClient, and therefore Start, fails with
// ErrNotEntered unless Enter was called first.
func (s *Service) Start() error {
	if err := s.StartServer(); err != nil {
		return err
	}

	return s.StartClient()
}

// Stop is a convenience wrapper that halts the client loop and then the
// server. A client loop that was not running is tolerated; a server that
// was not running makes Stop return ErrNotRunning.
func (s *Service) Stop() error {
	if err := s.StopClient(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}

	return s.StopServer()
}

func (s *Service) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.conf.GossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.conf.RequestTimeout)
			s.client.round(ctx)
			cancel()
		}
	}
}

// Signal forces an immediate gossip round outside of the regular
// interval, useful right after Enter to propagate freshly-learned peers
// without waiting for the next tick.
func (s *Service) Signal(ctx context.Context) {
	s.client.round(ctx)
}

// Enter bootstraps the view by contacting the given seed addresses, one
// at a time, with a push-pull exchange and inserting each one (and
// whatever it returns) into the view. If seeds is empty, there is
// nothing to bootstrap from and Enter succeeds immediately. Otherwise
// it walks the whole list regardless of individual failures, and
// succeeds overall as long as at least one seed responded; the
// failures for the rest are combined and discarded on success, or
// returned combined if every seed failed.
func (s *Service) Enter(ctx context.Context, seeds ...string) error {
	if len(seeds) == 0 {
		atomic.StoreInt32(&s.entered, 1)
		return nil
	}

	errs := multierror.New[string]()
	joined := 0

	for _, addr := range seeds {
		sample := s.view.TxNodes()

		received, err := s.client.PushPullView(ctx, addr, sample)
		if err != nil {
			errs.Add(addr, err)
			continue
		}

		if err := s.view.ManualInsert(view.NewNodeDescriptor(addr, 0)); err != nil {
			if !errors.Is(err, view.ErrSelfNotAllowed) {
				level.Warn(s.conf.Logger).Log("msg", "failed to insert seed into view", "addr", addr, "err", err)
			}
		}

		s.view.RxNodes(received)

		joined++
	}

	if joined == 0 {
		return errs.Combined()
	}

	atomic.StoreInt32(&s.entered, 1)

	return nil
}

// Exit leaves the overlay: it clears the entered flag, refusing any
// subsequent StartClient call until Enter succeeds again, and stops the
// client loop if it is currently running.
func (s *Service) Exit() error {
	atomic.StoreInt32(&s.entered, 0)

	if atomic.LoadInt32(&s.clientRunning) == 1 {
		return s.StopClient()
	}

	return nil
}
