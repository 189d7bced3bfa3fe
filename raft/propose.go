package raft

import (
	"context"

	"github.com/krantius/quorum/shared/logging"
)

// Propose appends a command to the leader's log and kicks off a replication
// round. It returns the assigned index and term without waiting for the
// command to commit; pair with WaitCommitted for a durability confirmation.
//
// Hotpath used by clients when making state changes.
func (n *Node) Propose(cmd []byte) (uint64, uint64, error) {
	n.mu.Lock()

	if n.state != Leader {
		n.mu.Unlock()
		return 0, 0, ErrNotLeader
	}

	e := n.log.Append(n.term, cmd)
	logging.Debugf("%s proposed entry %d in term %d", n.id, e.Index, e.Term)

	// A single-node cluster commits on its own.
	n.advanceCommit()

	n.mu.Unlock()

	n.appendAll()

	return e.Index, e.Term, nil
}

// commitWaiter is one WaitCommitted caller parked until its entry commits or
// is overwritten. ch is buffered so notification never blocks the node.
type commitWaiter struct {
	index uint64
	term  uint64
	ch    chan error
}

// WaitCommitted blocks until the entry at index with the given term is
// committed on this node. It returns ErrTermChanged if that entry was
// overwritten by a newer leader, or the ctx error on timeout/cancellation.
// A timeout does not mean the command is lost; it may still commit later.
func (n *Node) WaitCommitted(ctx context.Context, index, term uint64) error {
	n.mu.Lock()

	if err, done := n.waiterStatus(index, term); done {
		n.mu.Unlock()
		return err
	}

	w := &commitWaiter{
		index: index,
		term:  term,
		ch:    make(chan error, 1),
	}
	n.waiters = append(n.waiters, w)

	n.mu.Unlock()

	select {
	case err := <-w.ch:
		return err
	case <-ctx.Done():
		n.removeWaiter(w)
		return ctx.Err()
	case <-n.ctx.Done():
		return ErrStopped
	}
}

// waiterStatus decides whether a waiter can be resolved now. Callers must
// hold mu.
func (n *Node) waiterStatus(index, term uint64) (error, bool) {
	e, ok := n.log.Entry(index)
	if !ok || e.Term != term {
		// The entry this caller proposed is gone; whatever replaces it
		// belongs to another leader's history.
		return ErrTermChanged, true
	}

	if n.commitIndex >= index {
		return nil, true
	}

	return nil, false
}

// notifyWaiters resolves any waiters whose outcome is now known. Callers must
// hold mu.
func (n *Node) notifyWaiters() {
	if len(n.waiters) == 0 {
		return
	}

	pending := n.waiters[:0]
	for _, w := range n.waiters {
		if err, done := n.waiterStatus(w.index, w.term); done {
			w.ch <- err
		} else {
			pending = append(pending, w)
		}
	}

	n.waiters = pending
}

func (n *Node) removeWaiter(w *commitWaiter) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, cur := range n.waiters {
		if cur == w {
			n.waiters = append(n.waiters[:i], n.waiters[i+1:]...)
			return
		}
	}
}

// signalApply nudges the apply loop. The channel holds one pending nudge;
// the loop drains everything committed each pass. Callers must hold mu.
func (n *Node) signalApply() {
	select {
	case n.applySignal <- struct{}{}:
	default:
	}
}

// applyLoop is the only goroutine that advances lastApplied and the only
// caller of the Applier, keeping application strictly ordered. Committed
// entries are stable, so they can be handed out without holding mu.
func (n *Node) applyLoop() {
	for {
		select {
		case <-n.applySignal:
		case <-n.ctx.Done():
			return
		}

		for {
			n.mu.Lock()

			if n.lastApplied >= n.commitIndex {
				n.mu.Unlock()
				break
			}

			next := n.lastApplied + 1
			e, ok := n.log.Entry(next)

			n.mu.Unlock()

			if !ok {
				logging.Errorf("%s missing committed entry %d", n.id, next)
				break
			}

			n.applier.Apply(e.Index, e.Cmd)

			n.mu.Lock()
			n.lastApplied = next
			n.mu.Unlock()
		}
	}
}
