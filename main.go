package main

import (
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/krantius/quorum/raft"
	"github.com/krantius/quorum/shared/logging"
)

func main() {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if err := logging.SetLevel(level); err != nil {
			logging.Fatalf("bad LOG_LEVEL: %v", err)
		}
	}

	id := os.Getenv("NODE_ID")
	if id == "" {
		id = uuid.NewString()[:8]
		logging.Warningf("NODE_ID not set, generated %s", id)
	}

	raftAddr := envDefault("NODE_ADDR", ":8001")
	apiAddr := envDefault("API_ADDR", ":8000")

	var peers []string
	if raw := os.Getenv("NODE_PEERS"); raw != "" {
		peers = strings.Split(raw, ",")
	}

	// A config file wins over the env layout when provided. It is also the
	// only source of the id to API address mapping used for write redirects.
	var peerAPI map[string]string
	if path := os.Getenv("NODE_CONFIG"); path != "" {
		cfg, err := LoadConfig(path)
		if err != nil {
			logging.Fatalf("loading %s: %v", path, err)
		}

		self, rest, err := cfg.split(id)
		if err != nil {
			logging.Fatalf("resolving cluster layout: %v", err)
		}

		raftAddr = self.Addr
		if self.APIAddr != "" {
			apiAddr = self.APIAddr
		}
		peers = rest
		peerAPI = cfg.apiAddrs()
	}

	store := NewStore()
	transport := raft.NewTCPTransport()

	node := raft.New(raft.Config{
		ID:    id,
		Peers: peers,
	}, transport, store)

	go func() {
		if err := transport.Serve(raftAddr, node); err != nil {
			logging.Fatalf("raft rpc server: %v", err)
		}
	}()

	node.Start()

	api := &apiServer{node: node, store: store, peerAPI: peerAPI}
	go func() {
		logging.Infof("api listening on %s", apiAddr)
		if err := http.ListenAndServe(apiAddr, api.router()); err != nil {
			logging.Fatalf("api server: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	node.Stop()
	transport.Close()
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
