package gossip

import (
	"time"

	kitlog "github.com/go-kit/log"

	"github.com/maxpoletaev/cyclon/view"
)

// Config configures a Service.
type Config struct {
	// BindAddr is the local TCP address the gossip server listens on for
	// incoming push/pull/push-pull requests from other nodes.
	BindAddr string

	// ViewCapacity is the maximum number of peer addresses a node keeps
	// in its local view at any one time.
	ViewCapacity int

	// Healing is the number of the oldest entries in the view that are
	// evicted first when the view is over capacity, and moved behind the
	// rest when the outgoing sample is drawn, so that they are sent only
	// when the younger entries cannot fill the sample. This flushes out
	// unreachable peers even under heavy churn.
	Healing int

	// Swap is the number of entries evicted from the front of the view
	// (in arrival order, irrespective of age) after the Healing quota is
	// exhausted, before the remainder of any excess is evicted at
	// random.
	Swap int

	// Push enables sending this node's own sample to the chosen partner
	// on every gossip round.
	Push bool

	// Pull enables requesting a sample from the chosen partner on every
	// gossip round. If both Push and Pull are set, the round performs a
	// single push-pull exchange rather than two separate requests.
	Pull bool

	// GossipInterval is how often the client loop initiates a new
	// exchange with a peer.
	GossipInterval time.Duration

	// DialTimeout bounds how long the client waits to establish a
	// connection to a peer before giving up.
	DialTimeout time.Duration

	// RequestTimeout bounds how long the client waits for a peer to
	// respond to an already-established request.
	RequestTimeout time.Duration

	// SelectorKind chooses the strategy the client loop uses to pick a
	// gossip partner every round.
	SelectorKind view.SelectorKind

	// Logger is used for debug and non-critical error messages. If not
	// set, the service is silent.
	Logger kitlog.Logger
}

// DefaultConfig returns a Config with reasonable defaults for a small
// overlay: a view of 20 entries, of which each exchange sends a sample
// of half (the node's own descriptor plus 9 others).
func DefaultConfig() *Config {
	return &Config{
		BindAddr:       "0.0.0.0:7711",
		ViewCapacity:   20,
		Healing:        1,
		Swap:           0,
		Push:           true,
		Pull:           true,
		GossipInterval: 10 * time.Second,
		DialTimeout:    3 * time.Second,
		RequestTimeout: 5 * time.Second,
		SelectorKind:   view.Tail,
		Logger:         kitlog.NewNopLogger(),
	}
}
