package view

import (
	"sync"
	"time"

	"github.com/maxpoletaev/cyclon/internal/baseerror"
)

// SelectorKind identifies a peer selection strategy.
type SelectorKind int

const (
	// Tail always selects the entry at the back of the view: the most
	// recently appended one, unless an outgoing sample or an eviction has
	// since moved the oldest entries there. This is the strategy the base
	// protocol uses to pick a partner to gossip with.
	Tail SelectorKind = iota

	// UniformRandom selects a node chosen uniformly at random from the
	// view on every call, with replacement.
	UniformRandom

	// UniformRandomNoReplacement selects a node chosen uniformly at
	// random without repeating a node until every node currently in the
	// view has been returned once, at which point the cycle restarts
	// with a fresh random order.
	UniformRandomNoReplacement

	// LoggedTail is Tail, decorated to additionally record every
	// selection to a Log.
	LoggedTail

	// LoggedUniformRandom is UniformRandom, decorated to additionally
	// record every selection to a Log.
	LoggedUniformRandom

	// LoggedUniformRandomNoReplacement is UniformRandomNoReplacement,
	// decorated to additionally record every selection to a Log.
	LoggedUniformRandomNoReplacement
)

// String returns a human-readable name, used in flags and log output.
func (k SelectorKind) String() string {
	switch k {
	case Tail:
		return "tail"
	case UniformRandom:
		return "uniform_random"
	case UniformRandomNoReplacement:
		return "uniform_random_no_replacement"
	case LoggedTail:
		return "logged_tail"
	case LoggedUniformRandom:
		return "logged_uniform_random"
	case LoggedUniformRandomNoReplacement:
		return "logged_uniform_random_no_replacement"
	default:
		return "unknown"
	}
}

// logged reports whether selections made under this kind should be
// recorded to a Log.
func (k SelectorKind) logged() bool {
	switch k {
	case LoggedTail, LoggedUniformRandom, LoggedUniformRandomNoReplacement:
		return true
	default:
		return false
	}
}

// base strips the Logged prefix, returning the underlying selection
// strategy to apply.
func (k SelectorKind) base() SelectorKind {
	switch k {
	case LoggedTail:
		return Tail
	case LoggedUniformRandom:
		return UniformRandom
	case LoggedUniformRandomNoReplacement:
		return UniformRandomNoReplacement
	default:
		return k
	}
}

// ErrUnknownSelectorKind is returned by CreateSubscriber for a
// SelectorKind value outside the defined range.
var ErrUnknownSelectorKind = baseerror.New("view: unknown selector kind")

// PeerSelector hands out a single peer address per call, following
// whatever strategy it was created with.
type PeerSelector interface {
	// Select returns the next peer according to the selector's
	// strategy. It returns ErrEmptyView if the backing view currently
	// holds no nodes.
	Select() (NodeDescriptor, error)
}

// Subscriber is the View's PeerSelector implementation. It is created by
// View.CreateSubscriber and keeps the strategy-specific state (e.g. the
// no-replacement queue) private to the subscriber, so that multiple
// subscribers selecting from the same View never interfere with one
// another. The view notifies every Subscriber it creates of additions
// and removals (see notifyAdd/notifyDelete below), which is how a
// no-replacement queue stays consistent with the view's actual contents
// across evictions.
type Subscriber struct {
	id   string
	view *View
	kind SelectorKind
	log  Log

	mu    sync.Mutex
	queue []string // pending addresses for UniformRandomNoReplacement
}

// Select implements PeerSelector.
func (s *Subscriber) Select() (NodeDescriptor, error) {
	node, err := s.selectNode()

	if s.kind.logged() && s.log != nil {
		addr := ""
		if err == nil {
			addr = node.Address()
		}

		s.log.Append(LogEntry{
			SubscriberID: s.id,
			Address:      addr,
			UnixMillis:   time.Now().UnixMilli(),
		})
	}

	if err != nil {
		return NodeDescriptor{}, err
	}

	return node, nil
}

func (s *Subscriber) selectNode() (NodeDescriptor, error) {
	switch s.kind.base() {
	case Tail:
		return s.view.tail()
	case UniformRandom:
		return s.view.randomNode()
	case UniformRandomNoReplacement:
		return s.selectNoReplacement()
	default:
		return NodeDescriptor{}, ErrUnknownSelectorKind
	}
}

// selectNoReplacement draws the next address from the subscriber's
// private queue, refilling and reshuffling it from the current view
// contents whenever it runs dry. An address that was evicted from the
// view after being queued (via notifyDelete) is skipped rather than
// returned.
func (s *Subscriber) selectNoReplacement() (NodeDescriptor, error) {
	for {
		// s.mu is never held while calling into the view: the view calls
		// notifyAdd/notifyDelete with v.mu held, so taking v.mu under s.mu
		// would invert that lock order.
		s.mu.Lock()

		if len(s.queue) == 0 {
			s.mu.Unlock()

			addrs := s.view.shuffledAddresses()
			if len(addrs) == 0 {
				return NodeDescriptor{}, ErrEmptyView
			}

			s.mu.Lock()

			if len(s.queue) == 0 {
				s.queue = addrs
			}
		}

		addr := s.queue[len(s.queue)-1]
		s.queue = s.queue[:len(s.queue)-1]

		s.mu.Unlock()

		if nd, ok := s.view.lookup(addr); ok {
			return nd, nil
		}
	}
}

// notifyAdd is called by the view when addr is added to it. For a
// no-replacement subscriber, the new address is appended to the pending
// queue and the queue is reshuffled immediately, so it becomes
// selectable without waiting for the current cycle to exhaust and
// refill. Callers hold v.mu, so this must not call back into any
// locking View method; it reads v.rnd directly instead.
func (s *Subscriber) notifyAdd(addr string) {
	if s.kind.base() != UniformRandomNoReplacement {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, addr)

	s.view.rnd.Shuffle(len(s.queue), func(i, j int) {
		s.queue[i], s.queue[j] = s.queue[j], s.queue[i]
	})
}

// notifyDelete is called by the view when addr is evicted from it, so a
// pending no-replacement draw never hands it out.
func (s *Subscriber) notifyDelete(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.queue {
		if a == addr {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}
