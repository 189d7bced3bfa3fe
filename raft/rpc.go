package raft

import (
	"context"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/krantius/quorum/shared/logging"
)

const dialTimeout = 500 * time.Millisecond

// rpcServer adapts a Handler onto net/rpc's service shape so the node itself
// does not have to be registered wholesale.
type rpcServer struct {
	h Handler
}

func (r *rpcServer) AppendEntries(args AppendEntriesArgs, res *AppendEntriesResponse) error {
	return r.h.AppendEntries(args, res)
}

func (r *rpcServer) RequestVote(args RequestVoteArgs, res *RequestVoteResponse) error {
	return r.h.RequestVote(args, res)
}

// TCPTransport carries RPCs between nodes over plain TCP using net/rpc. Peer
// names are their listen addresses. Each outbound call dials fresh with a
// timeout, so a dead peer costs one bounded dial, never a wedged connection.
type TCPTransport struct {
	mu     sync.Mutex
	server *rpc.Server
	lis    net.Listener
}

func NewTCPTransport() *TCPTransport {
	return &TCPTransport{}
}

// Serve registers the handler and accepts connections on addr until Close.
// It blocks, in the manner of http.Serve.
func (t *TCPTransport) Serve(addr string, h Handler) error {
	t.mu.Lock()

	t.server = rpc.NewServer()
	if err := t.server.RegisterName("Raft", &rpcServer{h: h}); err != nil {
		t.mu.Unlock()
		return err
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.lis = lis

	t.mu.Unlock()

	logging.Infof("raft rpc listening on %s", addr)

	t.server.Accept(lis)

	return nil
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lis == nil {
		return nil
	}

	return t.lis.Close()
}

func (t *TCPTransport) RequestVote(ctx context.Context, peer string, args RequestVoteArgs) (RequestVoteResponse, error) {
	var res RequestVoteResponse
	err := t.call(ctx, peer, "Raft.RequestVote", args, &res)
	return res, err
}

func (t *TCPTransport) AppendEntries(ctx context.Context, peer string, args AppendEntriesArgs) (AppendEntriesResponse, error) {
	var res AppendEntriesResponse
	err := t.call(ctx, peer, "Raft.AppendEntries", args, &res)
	return res, err
}

func (t *TCPTransport) call(ctx context.Context, addr, method string, args, res interface{}) error {
	d := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < d {
			d = remaining
		}
	}

	conn, err := net.DialTimeout("tcp", addr, d)
	if err != nil {
		return err
	}

	client := rpc.NewClient(conn)
	defer client.Close()

	call := client.Go(method, args, res, make(chan *rpc.Call, 1))

	select {
	case done := <-call.Done:
		return done.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}
