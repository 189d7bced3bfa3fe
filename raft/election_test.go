package raft

import (
	"testing"
	"time"
)

func TestRequestVote(t *testing.T) {
	cases := []struct {
		name        string
		setup       func(n *Node)
		args        RequestVoteArgs
		wantGranted bool
		wantTerm    uint64
		check       func(t *testing.T, n *Node)
	}{
		{
			name:        "grants in a new term",
			args:        RequestVoteArgs{Term: 1, CandidateID: "b"},
			wantGranted: true,
			wantTerm:    1,
			check: func(t *testing.T, n *Node) {
				if n.votedFor != "b" {
					t.Errorf("votedFor=%q, want b", n.votedFor)
				}
			},
		},
		{
			name: "rejects a stale term",
			setup: func(n *Node) {
				n.term = 5
			},
			args:        RequestVoteArgs{Term: 3, CandidateID: "b"},
			wantGranted: false,
			wantTerm:    5,
		},
		{
			name: "rejects when already voted this term",
			setup: func(n *Node) {
				n.term = 2
				n.votedFor = "c"
			},
			args:        RequestVoteArgs{Term: 2, CandidateID: "b"},
			wantGranted: false,
			wantTerm:    2,
		},
		{
			name: "grants again to the same candidate",
			setup: func(n *Node) {
				n.term = 2
				n.votedFor = "b"
			},
			args:        RequestVoteArgs{Term: 2, CandidateID: "b"},
			wantGranted: true,
			wantTerm:    2,
		},
		{
			name: "higher term clears an old vote",
			setup: func(n *Node) {
				n.term = 2
				n.votedFor = "c"
			},
			args:        RequestVoteArgs{Term: 3, CandidateID: "b"},
			wantGranted: true,
			wantTerm:    3,
			check: func(t *testing.T, n *Node) {
				if n.votedFor != "b" {
					t.Errorf("votedFor=%q, want b", n.votedFor)
				}
			},
		},
		{
			name: "rejects candidate with stale last log term",
			setup: func(n *Node) {
				n.log.Append(2, []byte("x"))
				n.term = 2
			},
			args:        RequestVoteArgs{Term: 3, CandidateID: "b", LastLogIndex: 5, LastLogTerm: 1},
			wantGranted: false,
			wantTerm:    3,
			check: func(t *testing.T, n *Node) {
				// Term is adopted even though the vote is denied.
				if n.term != 3 || n.votedFor != "" {
					t.Errorf("term=%d votedFor=%q, want 3 and empty", n.term, n.votedFor)
				}
			},
		},
		{
			name: "rejects candidate with shorter log at equal term",
			setup: func(n *Node) {
				n.log.Append(1, []byte("x"))
				n.log.Append(1, []byte("y"))
				n.term = 1
			},
			args:        RequestVoteArgs{Term: 2, CandidateID: "b", LastLogIndex: 1, LastLogTerm: 1},
			wantGranted: false,
			wantTerm:    2,
		},
		{
			name: "grants to candidate with longer log at equal term",
			setup: func(n *Node) {
				n.log.Append(1, []byte("x"))
				n.term = 1
			},
			args:        RequestVoteArgs{Term: 2, CandidateID: "b", LastLogIndex: 3, LastLogTerm: 1},
			wantGranted: true,
			wantTerm:    2,
		},
		{
			name: "demotes a candidate on a higher term",
			setup: func(n *Node) {
				n.term = 2
				n.state = Candidate
				n.votedFor = n.id
			},
			args:        RequestVoteArgs{Term: 4, CandidateID: "b"},
			wantGranted: true,
			wantTerm:    4,
			check: func(t *testing.T, n *Node) {
				if n.state != Follower {
					t.Errorf("state=%s, want follower", n.state)
				}
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			n := newTestNode("a", "b", "c")
			if c.setup != nil {
				c.setup(n)
			}

			res := &RequestVoteResponse{}
			if err := n.RequestVote(c.args, res); err != nil {
				t.Fatalf("RequestVote returned error: %v", err)
			}

			if res.VoteGranted != c.wantGranted {
				t.Errorf("voteGranted=%v, want %v", res.VoteGranted, c.wantGranted)
			}

			if res.Term != c.wantTerm {
				t.Errorf("term=%d, want %d", res.Term, c.wantTerm)
			}

			if c.check != nil {
				c.check(t, n)
			}
		})
	}
}

func TestStartElectionSingleNode(t *testing.T) {
	n := newTestNode("a")

	n.mu.Lock()
	n.startElection()
	state, term := n.state, n.term
	n.mu.Unlock()

	if state != Leader {
		t.Errorf("state=%s, want leader", state)
	}

	if term != 1 {
		t.Errorf("term=%d, want 1", term)
	}

	n.Stop()
}

func TestStepDownClearsLeaderState(t *testing.T) {
	n := newTestNode("a", "b", "c")

	n.mu.Lock()
	n.term = 1
	n.stepUp()
	n.stepDown(3)
	state, term, voted := n.state, n.term, n.votedFor
	next, match := n.nextIndex, n.matchIndex
	n.mu.Unlock()

	if state != Follower || term != 3 || voted != "" {
		t.Errorf("state=%s term=%d votedFor=%q, want follower/3/empty", state, term, voted)
	}

	if next != nil || match != nil {
		t.Error("progress cursors should be discarded on demotion")
	}

	n.Stop()
}

func TestElectionTimerResetRace(t *testing.T) {
	n := newTestNode("a", "b", "c")

	// Arm with a short timeout and let it fire. The countdown goroutine is
	// not running here, so the value sits in the channel the way a real fire
	// does while its receiver is blocked on mu.
	n.mu.Lock()
	n.cfg.ElectionTimeoutMin = time.Millisecond
	n.cfg.ElectionTimeoutMax = 2 * time.Millisecond
	n.resetElectionTimer()
	n.mu.Unlock()

	<-n.electionTimer.C

	n.mu.Lock()
	if n.staleTimerFire() {
		t.Error("a fire after the full timeout elapsed must count as genuine")
	}

	// Leader contact re-arms the countdown before the fire is acted on. The
	// consumed value now predates the reset and must not start an election.
	n.cfg.ElectionTimeoutMin = time.Hour
	n.cfg.ElectionTimeoutMax = 2 * time.Hour
	n.resetElectionTimer()

	if !n.staleTimerFire() {
		t.Error("a fire raced by a reset must be dropped")
	}
	n.mu.Unlock()
}
