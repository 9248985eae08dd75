package gossip

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"k8s.io/utils/clock"
)

/*
GenerationStore resolves the Open Question in §9 ("how does a restarting
node pick a generation strictly greater than its own last one, rather
than just the current wall clock, which can regress or stall across a
clock-skewed restart"). NullGenerationStore is the zero-dependency
default (clock-derived, matching the original's reliance on loosely
synchronized unix-second clocks); EtcdGenerationStore persists the last
generation durably, grounded on zephyrcache's discovery/etcd.go lease
pattern, so a node restarting within the same wall-clock second (or with
a skewed clock) still gets a strictly increasing value.
*/

// GenerationStore hands out a generation number strictly greater than any
// previously returned for nodeID.
type GenerationStore interface {
	NextGeneration(ctx context.Context, nodeID NodeID) (int64, error)
}

// NullGenerationStore derives a generation from the current time, the same
// approach as the original Cassandra gossiper: collisions are avoided in
// practice because real restarts take longer than a second, but a clock
// that moves backward (NTP correction, VM pause) can in principle reuse a
// generation. Acceptable as the default; EtcdGenerationStore removes the
// assumption entirely.
type NullGenerationStore struct {
	Clock clock.Clock
}

func (s NullGenerationStore) NextGeneration(_ context.Context, _ NodeID) (int64, error) {
	clk := s.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return clk.Now().Unix(), nil
}

// EtcdGenerationStore persists the last-issued generation under
// /gossip/<clusterID>/<nodeID>/generation, using a short-lived lease the
// same way zephyrcache's RegisterNode does, so NextGeneration always
// returns max(lastPersisted+1, now-derived).
type EtcdGenerationStore struct {
	Client    *clientv3.Client
	ClusterID string
	Clock     clock.Clock
	LeaseTTL  int64 // seconds; zero means no lease (key persists indefinitely)
}

func (s *EtcdGenerationStore) key(nodeID NodeID) string {
	return fmt.Sprintf("/gossip/%s/%s/generation", s.ClusterID, nodeID)
}

func (s *EtcdGenerationStore) NextGeneration(ctx context.Context, nodeID NodeID) (int64, error) {
	key := s.key(nodeID)

	resp, err := s.Client.Get(ctx, key)
	if err != nil {
		return 0, errors.Wrap(err, "gossip: etcd generation get")
	}

	clk := s.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	candidate := clk.Now().Unix()

	if len(resp.Kvs) > 0 {
		var last int64
		if _, err := fmt.Sscanf(string(resp.Kvs[0].Value), "%d", &last); err == nil && last >= candidate {
			candidate = last + 1
		}
	}

	opts := []clientv3.OpOption{}
	if s.LeaseTTL > 0 {
		lease, err := s.Client.Grant(ctx, s.LeaseTTL)
		if err != nil {
			return 0, errors.Wrap(err, "gossip: etcd lease grant")
		}
		opts = append(opts, clientv3.WithLease(lease.ID))
		go s.Client.KeepAlive(context.Background(), lease.ID)
	}

	if _, err := s.Client.Put(ctx, key, fmt.Sprintf("%d", candidate), opts...); err != nil {
		return 0, errors.Wrap(err, "gossip: etcd generation put")
	}

	return candidate, nil
}
