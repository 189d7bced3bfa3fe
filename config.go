package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// NodeConfig describes one cluster member in the config file.
type NodeConfig struct {
	ID      string `json:"id"`
	Addr    string `json:"address"`
	APIAddr string `json:"api_address"`
}

// Config is the cluster layout shared by every member.
type Config struct {
	Nodes []NodeConfig `json:"nodes"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	c := &Config{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return c, nil
}

// apiAddrs maps every configured node to its API address, for redirecting
// writes at whoever leads.
func (c *Config) apiAddrs() map[string]string {
	m := make(map[string]string, len(c.Nodes))
	for _, node := range c.Nodes {
		if node.APIAddr != "" {
			m[node.ID] = node.APIAddr
		}
	}

	return m
}

// split resolves this node's own entry and the raft addresses of everyone
// else.
func (c *Config) split(id string) (NodeConfig, []string, error) {
	var self NodeConfig
	found := false
	peers := []string{}

	for _, node := range c.Nodes {
		if node.ID == id {
			self = node
			found = true
		} else {
			peers = append(peers, node.Addr)
		}
	}

	if !found {
		return NodeConfig{}, nil, fmt.Errorf("node %q not in config", id)
	}

	return self, peers, nil
}
