package raft

// Applier is implemented by the client owning the replicated state machine.
// Apply is invoked from a single goroutine in strictly ascending index order,
// once the entry at that index is known committed. Delivery is at-least-once
// across restarts; idempotence is the applier's concern.
type Applier interface {
	Apply(index uint64, cmd []byte)
}
