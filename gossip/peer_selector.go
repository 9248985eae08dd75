package gossip

import "math/rand/v2"

/*
PeerSelector (C8) picks up to three gossip partners per period:

  1. exactly one round with a randomly chosen live peer,
  2. with probability dead/(live+1), one round with a random unreachable
     peer (bounded reprobing: expected probes scale with the unreachable
     fraction),
  3. with probability 1/(live+1) (or always, if there are no live peers),
     one round with a random seed peer not already targeted.
*/

// SelectPeers implements the three selection rules and returns the distinct
// set of peers to start a round with this period, in the order the rules
// above are evaluated. self is excluded from the live set.
func SelectPeers(self NodeID, live, unreachable, seeds []NodeID, rng *rand.Rand) []NodeID {
	liveMinusSelf := excluding(live, self)

	var chosen []NodeID
	targeted := make(map[NodeID]bool)

	if len(liveMinusSelf) > 0 {
		p := liveMinusSelf[rng.IntN(len(liveMinusSelf))]
		chosen = append(chosen, p)
		targeted[p] = true
	}

	liveCount := len(liveMinusSelf)

	if len(unreachable) > 0 {
		threshold := float64(len(unreachable)) / float64(liveCount+1)
		if rng.Float64() < threshold {
			p := unreachable[rng.IntN(len(unreachable))]
			if !targeted[p] {
				chosen = append(chosen, p)
				targeted[p] = true
			}
		}
	}

	if len(seeds) > 0 {
		always := liveCount == 0
		threshold := 1.0 / float64(liveCount+1)
		if always || rng.Float64() < threshold {
			candidates := excludingSet(seeds, targeted)
			if len(candidates) > 0 {
				p := candidates[rng.IntN(len(candidates))]
				chosen = append(chosen, p)
			}
		}
	}

	return chosen
}

func excluding(ids []NodeID, self NodeID) []NodeID {
	out := make([]NodeID, 0, len(ids))
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

func excludingSet(ids []NodeID, exclude map[NodeID]bool) []NodeID {
	out := make([]NodeID, 0, len(ids))
	for _, id := range ids {
		if !exclude[id] {
			out = append(out, id)
		}
	}
	return out
}
