package raft

import "context"

// RequestVoteArgs asks a peer for its vote in the candidate's term.
type RequestVoteArgs struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

// AppendEntriesArgs carries replicated entries from the leader, or nothing at
// all when it is a pure heartbeat.
type AppendEntriesArgs struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	LeaderCommit uint64
}

type AppendEntriesResponse struct {
	Term    uint64
	Success bool
}

// Handler is the inbound RPC surface of a node. The signatures are net/rpc
// compatible so a transport can register a handler directly.
type Handler interface {
	AppendEntries(args AppendEntriesArgs, res *AppendEntriesResponse) error
	RequestVote(args RequestVoteArgs, res *RequestVoteResponse) error
}

// Transport delivers RPCs to peers. Calls may fail or time out; the node
// treats both the same way and retries on its own schedule. Delivery is
// at-most-once.
type Transport interface {
	RequestVote(ctx context.Context, peer string, args RequestVoteArgs) (RequestVoteResponse, error)
	AppendEntries(ctx context.Context, peer string, args AppendEntriesArgs) (AppendEntriesResponse, error)
}
