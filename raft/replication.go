package raft

import (
	"context"
	"time"

	"github.com/krantius/quorum/shared/logging"
)

const appendRPCTimeout = 500 * time.Millisecond

// heartbeat drives replication while the node leads. The first round fires
// immediately so a fresh leader asserts itself before anyone else times out.
func (n *Node) heartbeat(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			n.appendAll()
			timer.Reset(n.cfg.HeartbeatInterval)
		case <-ctx.Done():
			logging.Debugf("%s heartbeat stopping", n.id)
			return
		}
	}
}

// appendAll starts a replication round to every peer. Each peer is
// independent; a slow or dead one never holds the others up.
func (n *Node) appendAll() {
	for _, peer := range n.peers {
		go n.replicate(peer)
	}
}

// replicate sends one AppendEntries to one peer, from that peer's cursor, and
// folds the response back in. A response is only honored if the node is still
// leader in the same term it was sent under.
func (n *Node) replicate(peer string) {
	n.mu.Lock()

	if n.state != Leader {
		n.mu.Unlock()
		return
	}

	term := n.term
	next := n.nextIndex[peer]

	prevIndex := next - 1
	prevTerm := uint64(0)
	if prevIndex > 0 {
		prevTerm, _ = n.log.Term(prevIndex)
	}

	args := AppendEntriesArgs{
		Term:         term,
		LeaderID:     n.id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      n.log.From(next),
		LeaderCommit: n.commitIndex,
	}

	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(n.ctx, appendRPCTimeout)
	defer cancel()

	res, err := n.transport.AppendEntries(ctx, peer, args)
	if err != nil {
		logging.Debugf("%s append to %s failed: %v", n.id, peer, err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if res.Term > n.term {
		n.stepDown(res.Term)
		return
	}

	if n.state != Leader || n.term != term {
		// Stale response from a previous leadership.
		return
	}

	if !res.Success {
		// The peer's log diverges before prevIndex. Back the cursor up and
		// let the next round retry; the leader's own log is never touched.
		if n.nextIndex[peer] > 1 {
			n.nextIndex[peer]--
		}
		return
	}

	match := prevIndex + uint64(len(args.Entries))
	if match > n.matchIndex[peer] {
		n.matchIndex[peer] = match
		n.nextIndex[peer] = match + 1
		n.advanceCommit()
	} else {
		n.nextIndex[peer] = n.matchIndex[peer] + 1
	}
}

// advanceCommit moves commitIndex forward to the highest index replicated on
// a majority. Only entries from the current term are counted directly; older
// ones ride along once a current-term entry commits past them. Callers must
// hold mu.
func (n *Node) advanceCommit() {
	advanced := false

	for idx := n.commitIndex + 1; idx <= n.log.LastIndex(); idx++ {
		term, _ := n.log.Term(idx)
		if term != n.term {
			continue
		}

		count := 1
		for _, match := range n.matchIndex {
			if match >= idx {
				count++
			}
		}

		if count >= n.quorum() {
			n.commitIndex = idx
			advanced = true
		}
	}

	if advanced {
		logging.Debugf("%s commit index now %d", n.id, n.commitIndex)
		n.notifyWaiters()
		n.signalApply()
	}
}

// AppendEntries handles replication (or heartbeat) from a leader.
func (n *Node) AppendEntries(args AppendEntriesArgs, res *AppendEntriesResponse) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term < n.term {
		// Stale leader.
		res.Term = n.term
		res.Success = false
		return nil
	}

	// Valid leader contact for this term or newer.
	if args.Term > n.term || n.state != Follower {
		n.stepDown(args.Term)
	}

	n.resetElectionTimer()
	n.leader = args.LeaderID
	res.Term = n.term

	if !n.log.AppendAt(args.PrevLogIndex, args.PrevLogTerm, args.Entries) {
		logging.Debugf("%s rejecting entries from %s, no match at index %d term %d", n.id, args.LeaderID, args.PrevLogIndex, args.PrevLogTerm)
		res.Success = false
		return nil
	}

	// Reconciliation may have truncated entries a waiter was watching.
	n.notifyWaiters()

	if args.LeaderCommit > n.commitIndex {
		commit := args.LeaderCommit
		if lastNew := args.PrevLogIndex + uint64(len(args.Entries)); lastNew < commit {
			commit = lastNew
		}

		if commit > n.commitIndex {
			n.commitIndex = commit
			n.notifyWaiters()
			n.signalApply()
		}
	}

	res.Success = true
	return nil
}
