package gossip

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"google.golang.org/grpc/codes"

	"github.com/maxpoletaev/cyclon/view"
	"github.com/maxpoletaev/cyclon/view/wire"
)

func toWireNodes(nodes []view.NodeDescriptor) []wireNode {
	out := make([]wireNode, len(nodes))
	for i, nd := range nodes {
		out[i] = nd.ToWire()
	}

	return out
}

func fromWireNodes(nodes []wireNode) []view.NodeDescriptor {
	out := make([]view.NodeDescriptor, len(nodes))
	for i, n := range nodes {
		out[i] = view.FromWire(n)
	}

	return out
}

// GossipServer accepts incoming push/pull/push-pull requests from other
// nodes and applies them to a shared View. One connection is handled at
// a time per accepted socket; multiple peers can be served concurrently.
type GossipServer struct {
	listener   net.Listener
	view       *view.View
	reqTimeout time.Duration
	logger     kitlog.Logger

	wg     sync.WaitGroup
	closed int32
}

func newGossipServer(v *view.View, conf *Config) *GossipServer {
	return &GossipServer{
		view:       v,
		reqTimeout: conf.RequestTimeout,
		logger:     conf.Logger,
	}
}

// listenAndServe binds the configured address and starts accepting
// connections in the background. It returns once the listener is bound,
// not once it stops serving.
func (s *GossipServer) listenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gossip: failed to listen on %s: %w", addr, err)
	}

	s.listener = ln

	s.wg.Add(1)

	go s.acceptLoop()

	return nil
}

func (s *GossipServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return
			}

			level.Error(s.logger).Log("msg", "gossip server accept failed", "err", err)

			continue
		}

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *GossipServer) handleConn(conn net.Conn) {
	defer conn.Close()

	if s.reqTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.reqTimeout))
	}

	op, payload, err := readFrame(conn)
	if err != nil {
		level.Warn(s.logger).Log("msg", "failed to read gossip request", "err", err)
		return
	}

	switch op {
	case opPushView:
		nodes, err := s.decodeNodes(payload)
		if err != nil {
			s.writeError(conn, codes.InvalidArgument, err)
			return
		}

		s.view.RxNodes(nodes)
		s.view.IncrementAge()

		if err := writeFrame(conn, opAck, nil); err != nil {
			level.Warn(s.logger).Log("msg", "failed to ack push_view", "err", err)
		}

	case opPullView:
		sample := s.view.TxNodes()
		s.view.IncrementAge()

		if err := writeViewPayload(conn, toWireNodes(sample)); err != nil {
			level.Warn(s.logger).Log("msg", "failed to respond to pull_view", "err", err)
		}

	case opPushPullView:
		nodes, err := s.decodeNodes(payload)
		if err != nil {
			s.writeError(conn, codes.InvalidArgument, err)
			return
		}

		sample := s.view.TxNodes()

		s.view.RxNodes(nodes)
		s.view.IncrementAge()

		if err := writeViewPayload(conn, toWireNodes(sample)); err != nil {
			level.Warn(s.logger).Log("msg", "failed to respond to push_pull_view", "err", err)
		}

	default:
		s.writeError(conn, codes.Unimplemented, ErrUnknownOpcode)
	}
}

func (s *GossipServer) decodeNodes(payload []byte) ([]view.NodeDescriptor, error) {
	msg, err := wire.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gossip: failed to decode view payload: %w", err)
	}

	return fromWireNodes(msg.Nodes), nil
}

func (s *GossipServer) writeError(conn net.Conn, code codes.Code, err error) {
	if werr := writeFrame(conn, opError, encodeError(code, err)); werr != nil {
		level.Warn(s.logger).Log("msg", "failed to write error frame", "err", werr)
	}
}

// close stops accepting new connections and waits for in-flight ones to
// finish.
func (s *GossipServer) close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	if s.listener == nil {
		return nil
	}

	err := s.listener.Close()

	s.wg.Wait()

	return err
}

// Addr returns the address the server is actually bound to, which is
// useful when BindAddr used a ":0" ephemeral port (e.g. in tests).
func (s *GossipServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}
