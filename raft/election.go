package raft

import (
	"context"
	"time"

	"github.com/krantius/quorum/shared/logging"
)

const voteRPCTimeout = 500 * time.Millisecond

// State is the role a node currently plays in the cluster.
type State string

const (
	Follower  State = "follower"
	Candidate State = "candidate"
	Leader    State = "leader"
)

// Candidacy tracks an in-flight election. Votes arriving for an older
// candidacy are ignored by comparing terms.
type Candidacy struct {
	term  uint64
	votes int
}

// electionTimeout draws a fresh randomized duration. A new draw per reset
// keeps split votes rare and short-lived.
//
// Callers must hold mu (rand is not safe for concurrent use).
func (n *Node) electionTimeout() time.Duration {
	spread := int64(n.cfg.ElectionTimeoutMax - n.cfg.ElectionTimeoutMin)
	return n.cfg.ElectionTimeoutMin + time.Duration(n.rand.Int63n(spread))
}

// resetElectionTimer re-arms the countdown with a fresh random timeout.
// Callers must hold mu.
func (n *Node) resetElectionTimer() {
	if !n.electionTimer.Stop() {
		select {
		case <-n.electionTimer.C:
		default:
		}
	}

	timeout := n.electionTimeout()
	n.timerArmedAt = time.Now()
	n.timerArmedFor = timeout
	n.electionTimer.Reset(timeout)
}

// staleTimerFire reports whether a received timer value predates the latest
// reset. Stop cannot retract a value the countdown goroutine has already
// received, so the receive itself is not proof the timeout elapsed. The
// re-armed timer fires again later, so a stale value is simply dropped.
// Callers must hold mu.
func (n *Node) staleTimerFire() bool {
	return time.Since(n.timerArmedAt) < n.timerArmedFor
}

// electionCountdown turns timer fires into candidacies until the node stops.
func (n *Node) electionCountdown() {
	for {
		select {
		case <-n.electionTimer.C:
			n.mu.Lock()

			if n.state == Leader {
				n.mu.Unlock()
				continue
			}

			// A reset that raced this fire means the leader is alive; do not
			// disrupt it with an election.
			if n.staleTimerFire() {
				n.mu.Unlock()
				continue
			}

			// A candidate that gets here lost or split its last round and
			// goes again in a new term.
			n.resetElectionTimer()
			n.startElection()

			n.mu.Unlock()
		case <-n.ctx.Done():
			return
		}
	}
}

// startElection moves to candidate in a fresh term and solicits votes from
// every peer in parallel. Callers must hold mu.
func (n *Node) startElection() {
	n.term++
	n.state = Candidate
	n.votedFor = n.id
	n.leader = ""
	n.candidacy = &Candidacy{
		term:  n.term,
		votes: 1,
	}

	logging.Infof("%s starting election for term %d", n.id, n.term)

	// A single-node cluster is its own majority.
	if n.candidacy.votes >= n.quorum() {
		n.stepUp()
		return
	}

	args := RequestVoteArgs{
		Term:         n.term,
		CandidateID:  n.id,
		LastLogIndex: n.log.LastIndex(),
		LastLogTerm:  n.log.LastTerm(),
	}

	for _, peer := range n.peers {
		go n.requestVoteFrom(peer, args)
	}
}

// requestVoteFrom solicits one peer's vote and folds the response back into
// the node's serialized state. An unreachable peer is just a missing vote.
func (n *Node) requestVoteFrom(peer string, args RequestVoteArgs) {
	ctx, cancel := context.WithTimeout(n.ctx, voteRPCTimeout)
	defer cancel()

	res, err := n.transport.RequestVote(ctx, peer, args)
	if err != nil {
		logging.Debugf("%s vote request to %s failed: %v", n.id, peer, err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if res.Term > n.term {
		n.stepDown(res.Term)
		return
	}

	// The round this vote belongs to may already be over.
	if n.state != Candidate || n.candidacy == nil || n.candidacy.term != args.Term {
		return
	}

	if !res.VoteGranted {
		return
	}

	n.candidacy.votes++
	if n.candidacy.votes >= n.quorum() {
		n.stepUp()
	}
}

// stepUp transitions candidate to leader: progress cursors are rebuilt from
// the local log and the heartbeat loop starts, asserting leadership
// immediately. Callers must hold mu.
func (n *Node) stepUp() {
	logging.Infof("%s won election for term %d", n.id, n.term)

	n.state = Leader
	n.leader = n.id
	n.candidacy = nil
	n.electionTimer.Stop()

	n.nextIndex = make(map[string]uint64, len(n.peers))
	n.matchIndex = make(map[string]uint64, len(n.peers))
	for _, p := range n.peers {
		n.nextIndex[p] = n.log.LastIndex() + 1
		n.matchIndex[p] = 0
	}

	var ctx context.Context
	ctx, n.heartbeatCancel = context.WithCancel(n.ctx)

	go n.heartbeat(ctx)
}

// stepDown reverts to follower, adopting term if it is newer. The vote record
// only clears on a term increase. Callers must hold mu.
func (n *Node) stepDown(term uint64) {
	if term > n.term {
		n.term = term
		n.votedFor = ""
		n.leader = ""
	}

	if n.state != Follower {
		logging.Infof("%s stepping down to follower in term %d", n.id, n.term)
	}

	if n.heartbeatCancel != nil {
		n.heartbeatCancel()
		n.heartbeatCancel = nil
	}

	// A leader had its countdown stopped; re-arm it. Followers and candidates
	// keep theirs running, adopting a term alone is not leader contact.
	if n.state == Leader {
		n.resetElectionTimer()
	}

	n.state = Follower
	n.candidacy = nil
	n.nextIndex = nil
	n.matchIndex = nil
}

// RequestVote handles a peer's vote solicitation.
func (n *Node) RequestVote(args RequestVoteArgs, res *RequestVoteResponse) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term < n.term {
		res.Term = n.term
		res.VoteGranted = false
		return nil
	}

	if args.Term > n.term {
		// Adopt the term, but the vote is still decided below.
		n.stepDown(args.Term)
	}

	res.Term = n.term

	if n.votedFor != "" && n.votedFor != args.CandidateID {
		logging.Debugf("%s already voted for %s in term %d, denying %s", n.id, n.votedFor, n.term, args.CandidateID)
		res.VoteGranted = false
		return nil
	}

	// Only grant to candidates whose log is at least as up to date, otherwise
	// a committed entry could be lost.
	lastTerm := n.log.LastTerm()
	lastIndex := n.log.LastIndex()
	upToDate := args.LastLogTerm > lastTerm ||
		(args.LastLogTerm == lastTerm && args.LastLogIndex >= lastIndex)

	if !upToDate {
		logging.Debugf("%s denying vote to %s, log behind (%d/%d vs %d/%d)", n.id, args.CandidateID, args.LastLogTerm, args.LastLogIndex, lastTerm, lastIndex)
		res.VoteGranted = false
		return nil
	}

	logging.Infof("%s voting for %s in term %d", n.id, args.CandidateID, n.term)

	n.votedFor = args.CandidateID
	n.resetElectionTimer()
	res.VoteGranted = true

	return nil
}
