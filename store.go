package main

import (
	"encoding/json"
	"sync"

	"github.com/krantius/quorum/shared/logging"
)

type Operation string

const (
	Set    Operation = "set"
	Delete Operation = "delete"
)

// Command is the payload replicated through the raft log. The consensus core
// only ever sees its JSON encoding.
type Command struct {
	Op  Operation `json:"op"`
	Key string    `json:"key"`
	Val []byte    `json:"val,omitempty"`
}

// Store is the replicated key-value state machine. Writes only arrive through
// Apply, in committed log order; reads are served locally.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Apply implements raft.Applier.
func (s *Store) Apply(index uint64, cmd []byte) {
	var c Command
	if err := json.Unmarshal(cmd, &c); err != nil {
		logging.Errorf("store: bad command at index %d: %v", index, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Op {
	case Set:
		s.data[c.Key] = c.Val
	case Delete:
		delete(s.data, c.Key)
	default:
		logging.Errorf("store: unknown op %q at index %d", c.Op, index)
	}
}

func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok
}
