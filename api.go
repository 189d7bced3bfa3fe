package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/krantius/quorum/raft"
	"github.com/krantius/quorum/shared/logging"
)

const proposeTimeout = 5 * time.Second

// apiServer exposes cluster status and the replicated KV store over HTTP.
// Writes go through Propose and block until their entry commits.
//
// peerAPI maps node IDs to their API addresses so a non-leader can redirect
// writes at the leader. Without a cluster config file the map is empty and
// misdirected writes get a plain 503.
type apiServer struct {
	node    *raft.Node
	store   *Store
	peerAPI map[string]string
}

func (a *apiServer) router() *mux.Router {
	r := mux.NewRouter()

	sr := r.PathPrefix("/api").Subrouter()
	sr.Path("/status").Methods(http.MethodGet).HandlerFunc(a.status)
	sr.Path("/kv/{key}").Methods(http.MethodGet).HandlerFunc(a.get)
	sr.Path("/kv/{key}").Methods(http.MethodPut).HandlerFunc(a.put)
	sr.Path("/kv/{key}").Methods(http.MethodDelete).HandlerFunc(a.delete)

	return r
}

func (a *apiServer) status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(a.node.Status()); err != nil {
		logging.Errorf("api: encoding status: %v", err)
	}
}

func (a *apiServer) get(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	val, ok := a.store.Get(key)
	if !ok {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}

	w.Write(val)
}

func (a *apiServer) put(w http.ResponseWriter, r *http.Request) {
	val, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.propose(w, r, Command{
		Op:  Set,
		Key: mux.Vars(r)["key"],
		Val: val,
	})
}

func (a *apiServer) delete(w http.ResponseWriter, r *http.Request) {
	a.propose(w, r, Command{
		Op:  Delete,
		Key: mux.Vars(r)["key"],
	})
}

func (a *apiServer) propose(w http.ResponseWriter, r *http.Request, cmd Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	index, term, err := a.node.Propose(data)
	if errors.Is(err, raft.ErrNotLeader) {
		if addr, ok := a.peerAPI[a.node.CurrentLeaderHint()]; ok {
			http.Redirect(w, r, "http://"+addr+r.URL.Path, http.StatusTemporaryRedirect)
			return
		}
		http.Error(w, "not the leader", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), proposeTimeout)
	defer cancel()

	switch err := a.node.WaitCommitted(ctx, index, term); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, raft.ErrTermChanged):
		http.Error(w, "overwritten by a new leader, retry", http.StatusConflict)
	case errors.Is(err, context.DeadlineExceeded):
		// Not necessarily lost; it may still commit once a majority is back.
		http.Error(w, "commit timed out", http.StatusGatewayTimeout)
	default:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	}
}
