package gossip

import (
	"context"
	"fmt"
	"net"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/cyclon/view"
)

// GossipClient issues push/pull/push-pull requests to remote peers and
// drives the periodic gossip loop that keeps a View fresh.
type GossipClient struct {
	view   *view.View
	dialer net.Dialer
	push   bool
	pull   bool
	logger kitlog.Logger
}

func newGossipClient(v *view.View, conf *Config) *GossipClient {
	return &GossipClient{
		view:   v,
		push:   conf.Push,
		pull:   conf.Pull,
		dialer: net.Dialer{Timeout: conf.DialTimeout},
		logger: conf.Logger,
	}
}

func (c *GossipClient) dial(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("gossip: failed to dial %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	return conn, nil
}

// PushView sends nodes to addr and does not expect a view back, only an
// acknowledgement.
func (c *GossipClient) PushView(ctx context.Context, addr string, nodes []view.NodeDescriptor) error {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return err
	}

	defer conn.Close()

	if err := writeFrame(conn, opPushView, wireEncode(nodes)); err != nil {
		return err
	}

	op, payload, err := readFrame(conn)
	if err != nil {
		return fmt.Errorf("gossip: push_view to %s failed: %w", addr, err)
	}

	return errorFromFrame(op, payload)
}

// PullView asks addr for a sample of its view, without sending one of
// our own.
func (c *GossipClient) PullView(ctx context.Context, addr string) ([]view.NodeDescriptor, error) {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	defer conn.Close()

	if err := writeFrame(conn, opPullView, nil); err != nil {
		return nil, err
	}

	return c.readViewResponse(conn, addr)
}

// PushPullView sends nodes to addr and returns the sample addr responds
// with, the normal mode of operation for a gossip round: both sides
// refresh their view from a single round trip.
func (c *GossipClient) PushPullView(ctx context.Context, addr string, nodes []view.NodeDescriptor) ([]view.NodeDescriptor, error) {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	defer conn.Close()

	if err := writeFrame(conn, opPushPullView, wireEncode(nodes)); err != nil {
		return nil, err
	}

	return c.readViewResponse(conn, addr)
}

func (c *GossipClient) readViewResponse(conn net.Conn, addr string) ([]view.NodeDescriptor, error) {
	op, payload, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("gossip: request to %s failed: %w", addr, err)
	}

	if op == opError {
		return nil, errorFromFrame(op, payload)
	}

	if op != opViewPayload {
		return nil, fmt.Errorf("gossip: unexpected response opcode %d from %s", op, addr)
	}

	msg, err := unmarshalViewPayload(payload)
	if err != nil {
		return nil, err
	}

	return fromWireNodes(msg), nil
}

// round performs a single gossip exchange: it increments the age of
// every entry in the view, selects a partner via the view's primary
// selector, exchanges samples with it according to the configured
// push/pull mode, and merges whatever comes back. It is a no-op
// (besides aging) if the view is currently empty.
func (c *GossipClient) round(ctx context.Context) {
	c.view.IncrementAge()

	partner, ok := c.view.SelectPeer()
	if !ok {
		level.Debug(c.logger).Log("msg", "no peer available for this round")
		return
	}

	switch {
	case c.push && c.pull:
		c.pushPullRound(ctx, partner)
	case c.push:
		c.pushRound(ctx, partner)
	case c.pull:
		c.pullRound(ctx, partner)
	}
}

func (c *GossipClient) pushPullRound(ctx context.Context, partner view.NodeDescriptor) {
	sample := c.view.TxNodes()

	received, err := c.PushPullView(ctx, partner.Address(), sample)
	if err != nil {
		c.logRoundError("push_pull_view", partner.Address(), err)
		return
	}

	c.view.RxNodes(received)

	level.Debug(c.logger).Log(
		"msg", "gossip round complete",
		"mode", "push_pull",
		"peer", partner.Address(),
		"sent", len(sample),
		"received", len(received),
	)
}

func (c *GossipClient) pushRound(ctx context.Context, partner view.NodeDescriptor) {
	sample := c.view.TxNodes()

	if err := c.PushView(ctx, partner.Address(), sample); err != nil {
		c.logRoundError("push_view", partner.Address(), err)
		return
	}

	level.Debug(c.logger).Log(
		"msg", "gossip round complete",
		"mode", "push",
		"peer", partner.Address(),
		"sent", len(sample),
	)
}

func (c *GossipClient) pullRound(ctx context.Context, partner view.NodeDescriptor) {
	received, err := c.PullView(ctx, partner.Address())
	if err != nil {
		c.logRoundError("pull_view", partner.Address(), err)
		return
	}

	c.view.RxNodes(received)

	level.Debug(c.logger).Log(
		"msg", "gossip round complete",
		"mode", "pull",
		"peer", partner.Address(),
		"received", len(received),
	)
}

func (c *GossipClient) logRoundError(mode, addr string, err error) {
	if IsRetryable(err) {
		level.Debug(c.logger).Log("msg", "gossip round failed, will retry next round", "mode", mode, "peer", addr, "err", err)
	} else {
		level.Warn(c.logger).Log("msg", "gossip round failed", "mode", mode, "peer", addr, "err", err)
	}
}

func wireEncode(nodes []view.NodeDescriptor) []byte {
	return marshalViewPayload(toWireNodes(nodes))
}
