// Package raft implements the consensus core: leader election, log
// replication, and the propose/apply contract. Storage durability, the state
// machine, and the wire transport are collaborator interfaces.
package raft

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/krantius/quorum/shared/logging"
)

var (
	// ErrNotLeader is returned by Propose on a node that is not the leader.
	// Callers should retry against CurrentLeaderHint.
	ErrNotLeader = errors.New("not the leader")

	// ErrTermChanged is returned by WaitCommitted when the entry being waited
	// on was overwritten by a newer leader. The command was not committed at
	// that index.
	ErrTermChanged = errors.New("entry overwritten by a newer term")

	// ErrStopped is returned by calls outstanding when the node shuts down.
	ErrStopped = errors.New("node stopped")
)

// Config contains the settings needed to start a raft node. Peers lists the
// other cluster members by transport address, excluding this node.
type Config struct {
	ID                 string
	Peers              []string
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ElectionTimeoutMin == 0 {
		c.ElectionTimeoutMin = 150 * time.Millisecond
	}

	if c.ElectionTimeoutMax <= c.ElectionTimeoutMin {
		c.ElectionTimeoutMax = 2 * c.ElectionTimeoutMin
	}

	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = c.ElectionTimeoutMin / 3
	}

	return c
}

// Node is a raft node in a cluster.
type Node struct {
	// Config stuff
	id    string
	cfg   Config
	peers []string

	// Concurrency
	mu sync.Mutex

	// Consensus state, guarded by mu
	state     State
	term      uint64
	votedFor  string
	leader    string
	candidacy *Candidacy

	// Log stuff, guarded by mu
	log         *Log
	commitIndex uint64
	lastApplied uint64

	// Leader-only progress cursors, rebuilt on every election win
	nextIndex  map[string]uint64
	matchIndex map[string]uint64

	// Timers. armedAt and armedFor record the countdown's latest arming so a
	// fire that raced a reset can be told apart from a genuine timeout.
	electionTimer   *time.Timer
	timerArmedAt    time.Time
	timerArmedFor   time.Duration
	heartbeatCancel context.CancelFunc
	rand            *rand.Rand

	// Collaborators
	transport Transport
	applier   Applier

	// Commit plumbing
	applySignal chan struct{}
	waiters     []*commitWaiter

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a raft node. The node does nothing until Start is called, so
// handlers can be registered with the transport first.
func New(cfg Config, t Transport, applier Applier) *Node {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		id:          cfg.ID,
		cfg:         cfg,
		peers:       cfg.Peers,
		state:       Follower,
		log:         &Log{},
		transport:   t,
		applier:     applier,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		applySignal: make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}

	n.electionTimer = time.NewTimer(time.Hour)
	n.electionTimer.Stop()

	return n
}

// Start arms the election timer and begins the background loops.
func (n *Node) Start() {
	n.mu.Lock()
	n.resetElectionTimer()
	n.mu.Unlock()

	logging.Infof("%s starting with %d peers", n.id, len(n.peers))

	go n.electionCountdown()
	go n.applyLoop()
}

// Stop shuts the node down. Pending WaitCommitted callers get ErrStopped.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.cancel()

		n.mu.Lock()
		defer n.mu.Unlock()

		if n.heartbeatCancel != nil {
			n.heartbeatCancel()
			n.heartbeatCancel = nil
		}

		n.electionTimer.Stop()

		for _, w := range n.waiters {
			w.ch <- ErrStopped
		}
		n.waiters = nil

		logging.Infof("%s stopped", n.id)
	})
}

// quorum is the strict majority of the cluster, this node included.
func (n *Node) quorum() int {
	return (len(n.peers)+1)/2 + 1
}

// Status is a point-in-time snapshot of the node's consensus state.
type Status struct {
	ID          string `json:"id"`
	State       State  `json:"state"`
	Term        uint64 `json:"term"`
	LastIndex   uint64 `json:"last_index"`
	CommitIndex uint64 `json:"commit_index"`
	LastApplied uint64 `json:"last_applied"`
	Leader      string `json:"leader,omitempty"`
}

func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	return Status{
		ID:          n.id,
		State:       n.state,
		Term:        n.term,
		LastIndex:   n.log.LastIndex(),
		CommitIndex: n.commitIndex,
		LastApplied: n.lastApplied,
		Leader:      n.leader,
	}
}

// CurrentLeaderHint returns the last leader this node has heard from, or ""
// when no leader is known for the current term.
func (n *Node) CurrentLeaderHint() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.leader
}
