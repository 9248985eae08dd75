package node

import (
	"time"

	"github.com/qdongxu/Lealone/gossip"
)

// Default configuration constants
const (
	DefaultAddress      = "127.0.0.1"
	DefaultPort         = "50051"
	DefaultNodeID       = "node-1"
	DefaultClusterID    = "default-cluster"
	DefaultRoundPeriod  = time.Second
	DefaultRoundTimeout = 2 * time.Second
)

// Config holds the configuration for a node.
type Config struct {
	// Node identification
	NodeID    gossip.NodeID
	ClusterID string

	// Server configuration
	Address string
	Port    string

	// Seeds maps a handful of well-known peer NodeIDs to their dial
	// address, so a freshly joining node has somewhere to gossip with
	// before it has learned the rest of the cluster from anyone else.
	Seeds map[gossip.NodeID]string

	// Gossip configuration
	RoundPeriod     time.Duration
	RoundTimeout    time.Duration
	FailureDetector gossip.FailureDetectorConfig

	// MetricsAddr, if non-empty, serves /metrics for this node's gossip
	// engine over its own HTTP listener. Empty disables it.
	MetricsAddr string
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig(nodeID gossip.NodeID) *Config {
	return &Config{
		NodeID:          nodeID,
		ClusterID:       DefaultClusterID,
		Address:         DefaultAddress,
		Port:            DefaultPort,
		Seeds:           map[gossip.NodeID]string{},
		RoundPeriod:     DefaultRoundPeriod,
		RoundTimeout:    DefaultRoundTimeout,
		FailureDetector: gossip.DefaultFailureDetectorConfig(),
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return ErrNodeIDRequired
	}
	if c.ClusterID == "" {
		return ErrClusterIDRequired
	}
	if c.Address == "" {
		return ErrAddressRequired
	}
	if c.Port == "" {
		return ErrPortRequired
	}
	if c.RoundPeriod <= 0 {
		return ErrInvalidRoundPeriod
	}
	if c.RoundTimeout <= 0 {
		return ErrInvalidRoundTimeout
	}
	return nil
}

// GetAddress returns the full address (address:port)
func (c *Config) GetAddress() string {
	return c.Address + ":" + c.Port
}
