package gossip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestsRoundTrip(t *testing.T) {
	digests := []Digest{
		{NodeID: "node-1", Generation: 100, MaxVersion: 5},
		{NodeID: "node-2", Generation: 200, MaxVersion: 0},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeDigests(&buf, digests))

	got, err := DecodeDigests(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, digests, got)
}

func TestNodeStateRoundTrip(t *testing.T) {
	ns := &NodeState{
		Heartbeat: Heartbeat{Generation: 42, Version: 7},
		ApplicationState: map[StateKey]AppState{
			StateStatus:  {StringValue: StatusUp, Version: 7},
			StateRPCAddr: {StringValue: "127.0.0.1:9042", Version: 3},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeNodeState(&buf, ns))

	got, err := DecodeNodeState(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, ns.Heartbeat, got.Heartbeat)
	require.Len(t, got.ApplicationState, len(ns.ApplicationState))
	for k, v := range ns.ApplicationState {
		gotV, ok := got.ApplicationState[k]
		require.True(t, ok, "missing key %s", k)
		require.Equal(t, v.StringValue, gotV.StringValue)
		require.Equal(t, v.Version, gotV.Version)
	}
}

func TestSynPacketRoundTrip(t *testing.T) {
	syn := SynPacket{
		ClusterID: "test-cluster",
		Sender:    "node-1",
		Digests: []Digest{
			{NodeID: "node-1", Generation: 10, MaxVersion: 1},
			{NodeID: "node-2", Generation: 20, MaxVersion: 2},
		},
	}

	payload, err := EncodeSyn(syn)
	require.NoError(t, err)

	got, err := DecodeSyn(payload)
	require.NoError(t, err)
	require.Equal(t, syn, got)
}

func TestAckPacketRoundTrip(t *testing.T) {
	ack := AckPacket{
		RequestDigests: []Digest{{NodeID: "node-3", MaxVersion: 0}},
		DeltaStates: map[NodeID]*NodeState{
			"node-1": {
				Heartbeat:        Heartbeat{Generation: 1, Version: 2},
				ApplicationState: map[StateKey]AppState{StateStatus: {StringValue: StatusUp, Version: 2}},
			},
		},
	}

	payload, err := EncodeAck(ack)
	require.NoError(t, err)

	got, err := DecodeAck(payload)
	require.NoError(t, err)
	require.Equal(t, ack.RequestDigests, got.RequestDigests)
	require.Equal(t, ack.DeltaStates["node-1"].Heartbeat, got.DeltaStates["node-1"].Heartbeat)
}

func TestAck2PacketRoundTrip(t *testing.T) {
	ack2 := Ack2Packet{
		Sender: "node-2",
		DeltaStates: map[NodeID]*NodeState{
			"node-2": {
				Heartbeat:        Heartbeat{Generation: 5, Version: 1},
				ApplicationState: map[StateKey]AppState{},
			},
		},
	}

	payload, err := EncodeAck2(ack2)
	require.NoError(t, err)

	got, err := DecodeAck2(payload)
	require.NoError(t, err)
	require.Equal(t, ack2.Sender, got.Sender)
	require.Equal(t, ack2.DeltaStates["node-2"].Heartbeat, got.DeltaStates["node-2"].Heartbeat)
}

func TestDecodeDigestsRejectsCorruptCount(t *testing.T) {
	// A single 0xFF byte has its continuation bit set and nothing follows,
	// so the count varint is truncated and must be rejected as corrupt.
	_, err := DecodeDigests(bytes.NewReader([]byte{0xFF}))
	require.Error(t, err)
}
