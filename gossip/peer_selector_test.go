package gossip

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectPeersAlwaysPicksOneLivePeer(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	live := []NodeID{"a", "b", "c"}

	for i := 0; i < 50; i++ {
		chosen := SelectPeers("self", live, nil, nil, rng)
		require.Len(t, chosen, 1)
		require.Contains(t, live, chosen[0])
	}
}

func TestSelectPeersExcludesSelfFromLive(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	live := []NodeID{"self", "a"}

	for i := 0; i < 50; i++ {
		chosen := SelectPeers("self", live, nil, nil, rng)
		require.NotContains(t, chosen, NodeID("self"))
	}
}

func TestSelectPeersSeedAlwaysChosenWithNoLivePeers(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	seeds := []NodeID{"seed-1"}

	for i := 0; i < 50; i++ {
		chosen := SelectPeers("self", nil, nil, seeds, rng)
		require.Contains(t, chosen, NodeID("seed-1"), "with no live peers, a seed round must always be scheduled")
	}
}

func TestSelectPeersNeverDuplicatesAPeerWithinOneCall(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	live := []NodeID{"a"}
	unreachable := []NodeID{"a"}
	seeds := []NodeID{"a"}

	for i := 0; i < 50; i++ {
		chosen := SelectPeers("self", live, unreachable, seeds, rng)
		seen := make(map[NodeID]int)
		for _, id := range chosen {
			seen[id]++
		}
		for id, count := range seen {
			require.LessOrEqual(t, count, 1, "peer %s chosen more than once in a single round", id)
		}
	}
}

func TestSelectPeersUnreachableDistributionTrendsWithCount(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 9))
	live := []NodeID{"a"}
	unreachable := []NodeID{"d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8"}

	hits := 0
	trials := 2000
	for i := 0; i < trials; i++ {
		chosen := SelectPeers("self", live, unreachable, nil, rng)
		for _, id := range chosen {
			for _, u := range unreachable {
				if id == u {
					hits++
				}
			}
		}
	}

	// threshold = len(unreachable)/(live+1) = 8/2 = 4.0, clamped implicitly by
	// rng.Float64() < threshold always being true since threshold > 1.
	require.Greater(t, hits, trials/2, "a large unreachable set relative to live count should probe often")
}

func TestSelectPeersNoPeersReturnsEmpty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	chosen := SelectPeers("self", nil, nil, nil, rng)
	require.Empty(t, chosen)
}
