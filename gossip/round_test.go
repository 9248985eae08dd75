package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitiatorRoundHappyPath(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewInitiatorRound("node-2", now, 5*time.Second)
	require.Equal(t, RoundSynSent, r.State)
	require.True(t, r.Initiator)

	require.NoError(t, r.OnAck())
	require.Equal(t, RoundDone, r.State)
}

func TestResponderRoundHappyPath(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewResponderRound("node-2", now, 5*time.Second)
	require.Equal(t, RoundAckReplied, r.State)
	require.False(t, r.Initiator)

	require.NoError(t, r.OnAck2())
	require.Equal(t, RoundDone, r.State)
}

func TestInitiatorRoundRejectsAck2(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewInitiatorRound("node-2", now, 5*time.Second)
	err := r.OnAck2()
	require.Error(t, err)
	require.Equal(t, RoundSynSent, r.State, "a rejected transition leaves the round's state untouched")
}

func TestResponderRoundRejectsAck(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewResponderRound("node-2", now, 5*time.Second)
	err := r.OnAck()
	require.Error(t, err)
	require.Equal(t, RoundAckReplied, r.State)
}

func TestOnAckRejectsDoubleCompletion(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewInitiatorRound("node-2", now, 5*time.Second)
	require.NoError(t, r.OnAck())
	require.Error(t, r.OnAck())
}

func TestExpireLeavesDoneRoundsAlone(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewInitiatorRound("node-2", now, 5*time.Second)
	require.NoError(t, r.OnAck())
	r.Expire()
	require.Equal(t, RoundDone, r.State, "a completed round is never retroactively marked expired")
}

func TestExpireMarksOutstandingRound(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewInitiatorRound("node-2", now, 5*time.Second)
	r.Expire()
	require.Equal(t, RoundExpired, r.State)
}

func TestTimedOut(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewInitiatorRound("node-2", now, 5*time.Second)

	require.False(t, r.TimedOut(now.Add(4*time.Second)))
	require.True(t, r.TimedOut(now.Add(6*time.Second)))

	require.NoError(t, r.OnAck())
	require.False(t, r.TimedOut(now.Add(time.Hour)), "a done round is never timed out")
}
