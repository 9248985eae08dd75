package node

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/qdongxu/Lealone/gossip"
	"github.com/qdongxu/Lealone/logger"
	"github.com/qdongxu/Lealone/transport"
)

// Node wires one gossip.Gossiper to a transport.GRPC server/client and
// manages its lifecycle. It is the unit Manager and cmd/ operate on.
type Node struct {
	config  *Config
	engine  *gossip.Gossiper
	grpc    *transport.GRPC
	metrics *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	mu     sync.RWMutex
}

// New creates a new node with the given configuration. The gRPC transport
// is constructed but not started; call Start to bind and begin gossiping.
func New(config *Config) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	genStore := gossip.NullGenerationStore{}
	generation, err := genStore.NextGeneration(ctx, config.NodeID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to pick generation: %w", err)
	}

	n := &Node{config: config, ctx: ctx, cancel: cancel}

	grpcTransport, err := transport.NewGRPC(config.GetAddress(), string(config.NodeID), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create gRPC transport: %w", err)
	}

	engineCfg := gossip.DefaultConfig()
	engineCfg.ClusterID = config.ClusterID
	engineCfg.RoundPeriod = config.RoundPeriod
	engineCfg.RoundTimeout = config.RoundTimeout
	engineCfg.FailureDetector = config.FailureDetector
	for id := range config.Seeds {
		engineCfg.Seeds = append(engineCfg.Seeds, id)
	}

	engine, err := gossip.New(config.NodeID, generation, engineCfg, grpcTransport)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create gossip engine: %w", err)
	}

	for id, addr := range config.Seeds {
		grpcTransport.AddPeer(id, addr)
	}

	n.engine = engine
	n.grpc = grpcTransport
	grpcTransport.BindEngine(engine)

	engine.Subscribe(func(id gossip.NodeID, key gossip.StateKey, state gossip.AppState) {
		n.logf("observed %s.%s = %q (v%d)", id, key, state.StringValue, state.Version)
	})

	return n, nil
}

// Start binds the gRPC server synchronously (so a port conflict surfaces
// immediately), then launches the optional metrics listener in the
// background via an errgroup shared with Stop, and finally starts the
// gossip engine's executor and periodic round loop.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.grpc.Start(); err != nil {
		return fmt.Errorf("failed to bind gRPC server: %w", err)
	}

	group, _ := errgroup.WithContext(n.ctx)
	if n.config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", n.engine.MetricsHandler())
		n.metrics = &http.Server{Addr: n.config.MetricsAddr, Handler: mux}
		group.Go(func() error {
			if err := n.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
	}
	n.group = group

	n.engine.Start(n.ctx)

	if err := n.engine.BumpLocal(gossip.StateRPCAddr, gossip.AppState{StringValue: n.config.GetAddress()}); err != nil {
		n.logf("failed to publish RPC address: %v", err)
	}

	n.logf("node %s started on %s", n.config.NodeID, n.config.GetAddress())
	return nil
}

// Stop gracefully stops the gossip engine, the gRPC server, and the metrics
// listener (if any), then waits for the errgroup launched in Start.
func (n *Node) Stop() error {
	n.mu.Lock()
	nodeID := n.config.NodeID
	n.cancel()
	metrics := n.metrics
	group := n.group
	n.mu.Unlock()

	n.logf("stopping node %s...", nodeID)
	n.engine.Stop()
	if err := n.grpc.Stop(); err != nil {
		n.logf("error stopping gRPC server: %v", err)
	}
	if metrics != nil {
		if err := metrics.Close(); err != nil {
			n.logf("error stopping metrics listener: %v", err)
		}
	}
	if group != nil {
		if err := group.Wait(); err != nil {
			n.logf("errgroup exited with error: %v", err)
		}
	}
	n.logf("node %s stopped", nodeID)
	return nil
}

// Engine returns the gossip engine (for external access: TUI, tests).
func (n *Node) Engine() *gossip.Gossiper {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine
}

// GetConfig returns the node configuration (for external access).
func (n *Node) GetConfig() *Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.config
}

// AddPeer registers a peer's dial address and seeds it into the gossip
// engine's table so SelectPeers has something to choose on the very next
// round instead of waiting for the peer to be mentioned by a third party.
func (n *Node) AddPeer(id gossip.NodeID, addr string) {
	n.grpc.AddPeer(id, addr)
	n.engine.Seed(id)
}

func (n *Node) logf(format string, args ...interface{}) {
	logger.Printf("[%s] %s", string(n.config.NodeID), fmt.Sprintf(format, args...))
}
