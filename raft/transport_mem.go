package raft

import (
	"context"
	"errors"
	"math/rand"
	"sync"
)

var (
	errPeerUnknown = errors.New("peer not registered")
	errPartitioned = errors.New("network partition")
	errDropped     = errors.New("message dropped")
)

// MemTransport connects nodes within a single process, with fault injection
// for partitions and lossy links. Intended for multi-node tests and local
// simulation.
type MemTransport struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	isolated map[string]bool
	dropRate float64
	rand     *rand.Rand
}

func NewMemTransport(seed int64) *MemTransport {
	return &MemTransport{
		handlers: make(map[string]Handler),
		isolated: make(map[string]bool),
		rand:     rand.New(rand.NewSource(seed)),
	}
}

// Transport returns the sending side for one node. It knows who it belongs
// to, so partition checks apply to both ends of a call. Binding the sender
// is separate from Register, letting the node be constructed in between.
func (t *MemTransport) Transport(id string) Transport {
	return &memPeer{from: id, net: t}
}

// Register wires a node's inbound handler.
func (t *MemTransport) Register(id string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handlers[id] = h
}

// Isolate cuts a node off from everyone else (or reconnects it).
func (t *MemTransport) Isolate(id string, cut bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.isolated[id] = cut
}

// SetDropRate makes the given fraction of calls fail, both directions.
func (t *MemTransport) SetDropRate(rate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dropRate = rate
}

// deliver finds the target handler, applying partition and loss rules.
func (t *MemTransport) deliver(from, to string) (Handler, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.handlers[to]
	if !ok {
		return nil, errPeerUnknown
	}

	if t.isolated[from] || t.isolated[to] {
		return nil, errPartitioned
	}

	if t.dropRate > 0 && t.rand.Float64() < t.dropRate {
		return nil, errDropped
	}

	return h, nil
}

type memPeer struct {
	from string
	net  *MemTransport
}

func (p *memPeer) RequestVote(ctx context.Context, peer string, args RequestVoteArgs) (RequestVoteResponse, error) {
	var res RequestVoteResponse

	h, err := p.net.deliver(p.from, peer)
	if err != nil {
		return res, err
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	err = h.RequestVote(args, &res)
	return res, err
}

func (p *memPeer) AppendEntries(ctx context.Context, peer string, args AppendEntriesArgs) (AppendEntriesResponse, error) {
	var res AppendEntriesResponse

	h, err := p.net.deliver(p.from, peer)
	if err != nil {
		return res, err
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	err = h.AppendEntries(args, &res)
	return res, err
}
