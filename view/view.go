// Package view implements the bounded, randomized membership table at the
// heart of the gossip protocol: the set of peer addresses a node
// currently believes are alive, each tagged with an age that tracks how
// many gossip rounds have passed since it was last refreshed.
package view

import (
	"math/rand"
	"sync"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/twmb/murmur3"

	"github.com/maxpoletaev/cyclon/internal/generic"
	"github.com/maxpoletaev/cyclon/internal/heap"
)

// View holds a bounded set of NodeDescriptors for a single node, along
// with the bookkeeping needed to shuffle, age, and evict them. A View is
// safe for concurrent use; every operation takes an exclusive lock, since
// nearly all of them mutate either the node slice or the age of some
// subset of it.
type View struct {
	mu sync.Mutex

	self     NodeDescriptor
	capacity int
	nodes    []NodeDescriptor
	index    map[string]int // address -> position in nodes

	// healing and swap split how many of the entries evicted on overflow
	// come from each eviction strategy: healing evicts the oldest entries
	// (biasing the view towards nodes seen recently, "healing" partitions
	// caused by stale entries), swap evicts from the front in arrival
	// order, and whatever is left over after both is evicted at random.
	// This mirrors the three-way eviction mix of the reference
	// implementation's view, rather than collapsing everything into a
	// single strategy.
	healing int
	swap    int

	// primary is the selector SelectPeer routes to -- the strategy the
	// background gossip loop itself uses to pick a partner. primaryKind
	// records what to build it with; it is consulted once, at
	// construction.
	primary     *Subscriber
	primaryKind SelectorKind

	// subscribers holds every Subscriber this view has ever handed out
	// (including primary), so that notifyAddLocked/notifyDeleteLocked can
	// keep a UniformRandomNoReplacement subscriber's private draw queue
	// from drifting out of sync with what the view actually contains.
	subscribers []*Subscriber

	rnd    *rand.Rand
	logger kitlog.Logger
}

// Option configures a View at construction time.
type Option func(*View)

// WithLogger attaches a logger. The zero value logs nothing.
func WithLogger(logger kitlog.Logger) Option {
	return func(v *View) {
		v.logger = logger
	}
}

// WithEvictionMix overrides how many of the entries evicted on overflow
// come from the healing strategy versus the swap strategy; whatever
// remains beyond healing+swap is evicted at random. The default, used
// when this option is not given, is healing=1 and swap=0: one entry is
// evicted by age and any further excess at random.
func WithEvictionMix(healing, swap int) Option {
	return func(v *View) {
		v.healing = healing
		v.swap = swap
	}
}

// WithPrimarySelector sets the strategy SelectPeer uses. Defaults to
// Tail, the strategy the base protocol itself uses to pick a gossip
// partner every round.
func WithPrimarySelector(kind SelectorKind) Option {
	return func(v *View) {
		v.primaryKind = kind
	}
}

func validSelectorKind(kind SelectorKind) bool {
	switch kind {
	case Tail, UniformRandom, UniformRandomNoReplacement,
		LoggedTail, LoggedUniformRandom, LoggedUniformRandomNoReplacement:
		return true
	default:
		return false
	}
}

// NewView creates an empty View for the given local node, bounded to at
// most capacity entries. The internal random source is seeded from the
// node's own address, so two views constructed for the same address
// permute identically, which is convenient for reproducible tests.
func NewView(self NodeDescriptor, capacity int, opts ...Option) *View {
	seed := int64(murmur3.Sum64([]byte(self.Address())))

	v := &View{
		self:        self,
		capacity:    capacity,
		nodes:       make([]NodeDescriptor, 0, capacity),
		index:       make(map[string]int, capacity),
		healing:     1,
		primaryKind: Tail,
		rnd:         rand.New(rand.NewSource(seed)),
		logger:      kitlog.NewNopLogger(),
	}

	for _, opt := range opts {
		opt(v)
	}

	if !validSelectorKind(v.primaryKind) {
		v.primaryKind = Tail
	}

	v.primary = &Subscriber{id: "primary", view: v, kind: v.primaryKind}
	v.subscribers = append(v.subscribers, v.primary)

	return v
}

// Self returns the local node's own descriptor.
func (v *View) Self() NodeDescriptor {
	return v.self
}

// Len returns the number of nodes currently held in the view.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return len(v.nodes)
}

// Snapshot returns a copy of every descriptor currently in the view, in
// internal order. Intended for diagnostics; callers must not rely on the
// order being meaningful across calls.
func (v *View) Snapshot() []NodeDescriptor {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]NodeDescriptor, len(v.nodes))
	copy(out, v.nodes)

	return out
}

// Addresses returns every address currently known to the view, in no
// particular order. Cheaper than Snapshot when the caller only needs
// the addresses, e.g. for a debug dump.
func (v *View) Addresses() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	return generic.MapKeys(v.index)
}

// SelectPeer returns a peer chosen by the view's primary selector -- the
// strategy configured at construction via WithPrimarySelector (Tail by
// default) -- or ok=false if the view currently holds no nodes. This is
// what the background gossip loop calls every round; independent
// selectors for other uses are available via CreateSubscriber.
func (v *View) SelectPeer() (NodeDescriptor, bool) {
	nd, err := v.primary.Select()
	if err != nil {
		return NodeDescriptor{}, false
	}

	return nd, true
}

// IncrementAge adds one round to the age of every node currently in the
// view. The client loop calls it once per round, before it draws the
// sample to send; the server calls it after handling each request.
func (v *View) IncrementAge() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.nodes {
		v.nodes[i].IncrAge()
	}
}

// sampleSizeLocked returns k, the number of peer descriptors (beyond the
// node's own, which is always included separately) an outgoing sample
// carries: half the view's capacity, less one for the self descriptor.
// Tying the sample size to the view's own capacity, rather than letting a
// caller pass an arbitrary size, keeps an outgoing sample bounded the
// same way the view itself is.
func (v *View) sampleSizeLocked() int {
	k := v.capacity/2 - 1
	if k < 0 {
		k = 0
	}

	return k
}

// TxNodes builds the sample to send to a gossip partner: the node's own
// descriptor (always sent with age 0, since it describes an exchange
// that is happening right now), followed by up to sampleSizeLocked()
// other entries. Before sampling, the healing-quota's worth of oldest
// entries are moved to the back of the (still-full) view, so the sample
// is preferentially drawn from the remaining, younger entries -- but
// nothing is actually removed, so if that younger partition alone can't
// fill the sample, the draw backfills from the older partition at the
// back rather than returning a short sample.
func (v *View) TxNodes() []NodeDescriptor {
	v.mu.Lock()
	defer v.mu.Unlock()

	self := v.self
	self.SetAge(0)

	want := v.sampleSizeLocked()

	sample := make([]NodeDescriptor, 0, 1+want)
	sample = append(sample, self)

	n := len(v.nodes)
	if n == 0 {
		return sample
	}

	healing := v.healing
	if healing > n {
		healing = n
	}

	v.moveOldToBackLocked(healing)

	if want > n {
		want = n
	}

	eligible := n - healing

	var idxs []int
	if want <= eligible {
		idxs = v.permuteLocked(eligible)[:want]
	} else {
		idxs = v.permuteLocked(eligible)

		backfill := want - eligible
		for _, j := range v.rnd.Perm(healing)[:backfill] {
			idxs = append(idxs, eligible+j)
		}
	}

	for _, idx := range idxs {
		sample = append(sample, v.nodes[idx])
	}

	return sample
}

// RxNodes merges a sample of descriptors received from a gossip partner
// into the view. Descriptors for the local node itself are always
// dropped. A descriptor for an address already present is dropped too,
// unless the incoming copy is younger than the one on file, in which
// case the age on file is refreshed to match -- the sender may have
// spoken to that peer more recently than we did. Everything else is
// appended, and if that pushes the view over capacity, the resulting
// excess -- computed once, over the whole batch -- is evicted according
// to the configured healing/swap/random mix.
func (v *View) RxNodes(received []NodeDescriptor) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, nd := range received {
		if nd.Address() == v.self.Address() {
			continue
		}

		if i, ok := v.index[nd.Address()]; ok {
			if nd.Age() < v.nodes[i].Age() {
				v.nodes[i].SetAge(nd.Age())
			}

			continue
		}

		v.appendLocked(nd)
	}

	if excess := len(v.nodes) - v.capacity; excess > 0 {
		v.evictLocked(excess)
	}

	level.Debug(v.logger).Log(
		"msg", "merged received nodes",
		"received", len(received),
		"size", len(v.nodes),
	)
}

// ManualInsert inserts a single descriptor directly, bypassing the usual
// merge-on-receive path. It is meant for seeding a view with a bootstrap
// peer before the first gossip round has happened. If the address is
// already present, its age is refreshed to the given descriptor's age
// instead of creating a duplicate entry.
func (v *View) ManualInsert(nd NodeDescriptor) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if nd.Address() == v.self.Address() {
		return ErrSelfNotAllowed
	}

	if i, ok := v.index[nd.Address()]; ok {
		v.nodes[i].SetAge(nd.Age())
		return nil
	}

	v.appendLocked(nd)

	if excess := len(v.nodes) - v.capacity; excess > 0 {
		v.evictLocked(excess)
	}

	return nil
}

// evictLocked removes n entries from the view, splitting the work across
// the three eviction strategies in order: healing first, then swap, then
// whatever is left over at random. Callers must hold v.mu.
func (v *View) evictLocked(n int) {
	if n <= 0 {
		return
	}

	healing := v.healing
	if healing > n {
		healing = n
	}

	if healing > 0 {
		v.moveOldToBackLocked(healing)
		v.removeOldLocked(healing)
	}

	n -= healing

	swap := v.swap
	if swap > n {
		swap = n
	}

	if swap > 0 {
		v.removeHeadLocked(swap)
	}

	n -= swap

	if n > 0 {
		v.removeRandomLocked(n)
	}
}

// CreateSubscriber returns a new PeerSelector drawing from this view
// using the given strategy. When kind is one of the Logged variants,
// every selection the subscriber makes is also appended to log. The
// returned Subscriber is registered with the view, so evictions keep its
// no-replacement draw queue (if any) consistent with the view's actual
// contents.
func (v *View) CreateSubscriber(id string, kind SelectorKind, log Log) (*Subscriber, error) {
	if !validSelectorKind(kind) {
		return nil, ErrUnknownSelectorKind
	}

	sub := &Subscriber{
		id:   id,
		view: v,
		kind: kind,
		log:  log,
	}

	v.mu.Lock()
	v.subscribers = append(v.subscribers, sub)
	v.mu.Unlock()

	return sub, nil
}

// notifyAddLocked tells every registered subscriber that addr was just
// added to the view. Callers must hold v.mu.
func (v *View) notifyAddLocked(addr string) {
	for _, sub := range v.subscribers {
		sub.notifyAdd(addr)
	}
}

// notifyDeleteLocked tells every registered subscriber that addr was
// just evicted from the view, so a no-replacement subscriber never hands
// out a descriptor that is no longer there. Callers must hold v.mu.
func (v *View) notifyDeleteLocked(addr string) {
	for _, sub := range v.subscribers {
		sub.notifyDelete(addr)
	}
}

// appendLocked adds nd to the back of the view, keeping the index map in
// sync. Callers must hold v.mu.
func (v *View) appendLocked(nd NodeDescriptor) {
	v.index[nd.Address()] = len(v.nodes)
	v.nodes = append(v.nodes, nd)
	v.notifyAddLocked(nd.Address())
}

// permuteLocked returns a random permutation of [0, n) drawn from the
// view's own random source. Callers must hold v.mu.
func (v *View) permuteLocked(n int) []int {
	return v.rnd.Perm(n)
}

// moveOldToBackLocked reorders the view so that the n entries with the
// highest age end up at the back, the oldest of them first. It pushes
// every entry onto a max-heap over age and pops the n oldest off it.
// Callers must hold v.mu.
func (v *View) moveOldToBackLocked(n int) {
	total := len(v.nodes)
	if n > total {
		n = total
	}

	if n == 0 {
		return
	}

	type entry struct {
		age uint32
		idx int
	}

	h := heap.New(func(a, b entry) bool { return a.age > b.age })

	for i, nd := range v.nodes {
		h.Push(entry{age: nd.Age(), idx: i})
	}

	oldest := make([]int, n)
	for i := 0; i < n; i++ {
		oldest[i] = h.Pop().idx
	}

	evict := make(map[int]struct{}, n)
	for _, idx := range oldest {
		evict[idx] = struct{}{}
	}

	reordered := make([]NodeDescriptor, 0, total)

	for i, nd := range v.nodes {
		if _, skip := evict[i]; !skip {
			reordered = append(reordered, nd)
		}
	}

	for _, idx := range oldest {
		reordered = append(reordered, v.nodes[idx])
	}

	v.nodes = reordered
	v.reindexLocked()
}

// removeOldLocked drops the n entries at the back of the view, as left
// there by moveOldToBackLocked. Callers must hold v.mu.
func (v *View) removeOldLocked(n int) {
	if n > len(v.nodes) {
		n = len(v.nodes)
	}

	for _, nd := range v.nodes[len(v.nodes)-n:] {
		delete(v.index, nd.Address())
		v.notifyDeleteLocked(nd.Address())
	}

	v.nodes = v.nodes[:len(v.nodes)-n]
}

// removeHeadLocked drops the n entries at the front of the view, and
// rebuilds the index afterwards, since every remaining entry's position
// shifts by n. Callers must hold v.mu.
func (v *View) removeHeadLocked(n int) {
	if n > len(v.nodes) {
		n = len(v.nodes)
	}

	for _, nd := range v.nodes[:n] {
		v.notifyDeleteLocked(nd.Address())
	}

	v.nodes = v.nodes[n:]
	v.reindexLocked()
}

// removeRandomLocked drops n entries chosen uniformly at random.
// Callers must hold v.mu.
func (v *View) removeRandomLocked(n int) {
	total := len(v.nodes)
	if n > total {
		n = total
	}

	drop := make(map[int]struct{}, n)
	for _, idx := range v.permuteLocked(total)[:n] {
		drop[idx] = struct{}{}
	}

	reordered := make([]NodeDescriptor, 0, total-n)

	for i, nd := range v.nodes {
		if _, skip := drop[i]; skip {
			v.notifyDeleteLocked(nd.Address())
			continue
		}

		reordered = append(reordered, nd)
	}

	v.nodes = reordered
	v.reindexLocked()
}

// reindexLocked rebuilds the address -> position map from scratch to
// match the current order of v.nodes. Callers must hold v.mu.
func (v *View) reindexLocked() {
	for k := range v.index {
		delete(v.index, k)
	}

	for i, nd := range v.nodes {
		v.index[nd.Address()] = i
	}
}

// tail returns the entry at the back of the view, i.e. the one a Tail
// selector hands out.
func (v *View) tail() (NodeDescriptor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.nodes) == 0 {
		return NodeDescriptor{}, ErrEmptyView
	}

	return v.nodes[len(v.nodes)-1], nil
}

// randomNode returns a uniformly random node from the view.
func (v *View) randomNode() (NodeDescriptor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.nodes) == 0 {
		return NodeDescriptor{}, ErrEmptyView
	}

	return v.nodes[v.rnd.Intn(len(v.nodes))], nil
}

// shuffledAddresses returns every address currently in the view, in a
// fresh random order. Used by UniformRandomNoReplacement subscribers to
// refill their private draw queue.
func (v *View) shuffledAddresses() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	perm := v.permuteLocked(len(v.nodes))
	addrs := make([]string, len(perm))

	for i, idx := range perm {
		addrs[i] = v.nodes[idx].Address()
	}

	return addrs
}

// lookup returns the descriptor currently stored for addr, if any.
func (v *View) lookup(addr string) (NodeDescriptor, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i, ok := v.index[addr]
	if !ok {
		return NodeDescriptor{}, false
	}

	return v.nodes[i], true
}
