package gossip

import (
	"bytes"
	"fmt"
)

/*
Wire formats (§6): the three gossip packets share a common digest-list
encoding and build on the VersionedValue codec in versioned_value.go for
ApplicationState entries.

	DigestList  := varint(count) digest*
	digest      := serializedString(nodeID) varlong(generation) varlong(maxVersion)

	Syn         := serializedString(clusterID) serializedString(sender) DigestList
	Ack         := DigestList varint(nmap) (serializedString(nodeID) NodeState)*
	Ack2        := serializedString(sender) varint(nmap) (serializedString(nodeID) NodeState)*

	NodeState   := varlong(generation) varlong(version) varint(nstates) appStateEntry*
	appStateEntry := serializedString(key) varlong(version) VersionedValueBatch(1)

VersionedValueBatch(1) is EncodeVersionedValues over a one-element batch:
the tag byte followed by that single entry.

Every string on the wire (node IDs, state keys, cluster IDs) uses the same
varint-length-prefixed encoding as VersionedValue's byte strings, via
writeByteString/readByteString.
*/

// EncodeDigests writes a DigestList.
func EncodeDigests(w *bytes.Buffer, digests []Digest) error {
	writeVarLong(w, int64(len(digests)))
	for _, d := range digests {
		if err := writeByteString(w, []byte(d.NodeID)); err != nil {
			return newCodecError("encode-digest", err)
		}
		writeVarLong(w, d.Generation)
		writeVarLong(w, d.MaxVersion)
	}
	return nil
}

// DecodeDigests reads a DigestList.
func DecodeDigests(r *bytes.Reader) ([]Digest, error) {
	n, err := readVarLong(r)
	if err != nil {
		return nil, newCodecError("decode-digest-count", err)
	}
	if n < 0 || n > maxWireCount {
		return nil, newCodecError("decode-digest-count", fmt.Errorf("%w: %d", ErrCorrupt, n))
	}
	out := make([]Digest, 0, n)
	for i := int64(0); i < n; i++ {
		idBytes, err := readByteString(r)
		if err != nil {
			return nil, newCodecError("decode-digest-id", err)
		}
		gen, err := readVarLong(r)
		if err != nil {
			return nil, newCodecError("decode-digest-gen", err)
		}
		maxVer, err := readVarLong(r)
		if err != nil {
			return nil, newCodecError("decode-digest-maxver", err)
		}
		out = append(out, Digest{NodeID: NodeID(idBytes), Generation: gen, MaxVersion: maxVer})
	}
	return out, nil
}

// EncodeNodeState writes a single NodeState (heartbeat + ApplicationState
// map) in the format ACK/ACK2 embed per node.
func EncodeNodeState(w *bytes.Buffer, ns *NodeState) error {
	writeVarLong(w, ns.Heartbeat.Generation)
	writeVarLong(w, ns.Heartbeat.Version)
	writeVarLong(w, int64(len(ns.ApplicationState)))
	for key, app := range ns.ApplicationState {
		if err := writeByteString(w, []byte(key)); err != nil {
			return newCodecError("encode-statekey", err)
		}
		writeVarLong(w, app.Version)
		vv := app.toVersionedValue()
		if err := EncodeVersionedValues(w, []VersionedValue{vv}); err != nil {
			return err
		}
	}
	return nil
}

// DecodeNodeState reads a single NodeState.
func DecodeNodeState(r *bytes.Reader) (*NodeState, error) {
	gen, err := readVarLong(r)
	if err != nil {
		return nil, newCodecError("decode-hb-gen", err)
	}
	ver, err := readVarLong(r)
	if err != nil {
		return nil, newCodecError("decode-hb-ver", err)
	}
	n, err := readVarLong(r)
	if err != nil {
		return nil, newCodecError("decode-statecount", err)
	}
	if n < 0 || n > maxWireCount {
		return nil, newCodecError("decode-statecount", fmt.Errorf("%w: %d", ErrCorrupt, n))
	}

	appState := make(map[StateKey]AppState, n)
	for i := int64(0); i < n; i++ {
		keyBytes, err := readByteString(r)
		if err != nil {
			return nil, newCodecError("decode-statekey", err)
		}
		version, err := readVarLong(r)
		if err != nil {
			return nil, newCodecError("decode-state-version", err)
		}
		values, err := DecodeVersionedValues(r, 1)
		if err != nil {
			return nil, err
		}
		app := appStateFromVersionedValue(values[0])
		app.Version = version
		appState[StateKey(keyBytes)] = app
	}

	return &NodeState{
		Heartbeat:        Heartbeat{Generation: gen, Version: ver},
		ApplicationState: appState,
	}, nil
}

// EncodeNodeStateMap writes the "varint(nmap) (id, NodeState)*" suffix
// shared by Ack and Ack2.
func EncodeNodeStateMap(w *bytes.Buffer, states map[NodeID]*NodeState) error {
	writeVarLong(w, int64(len(states)))
	for id, ns := range states {
		if err := writeByteString(w, []byte(id)); err != nil {
			return newCodecError("encode-statemap-id", err)
		}
		if err := EncodeNodeState(w, ns); err != nil {
			return err
		}
	}
	return nil
}

// DecodeNodeStateMap reads the "varint(nmap) (id, NodeState)*" suffix.
func DecodeNodeStateMap(r *bytes.Reader) (map[NodeID]*NodeState, error) {
	n, err := readVarLong(r)
	if err != nil {
		return nil, newCodecError("decode-statemap-count", err)
	}
	if n < 0 || n > maxWireCount {
		return nil, newCodecError("decode-statemap-count", fmt.Errorf("%w: %d", ErrCorrupt, n))
	}
	out := make(map[NodeID]*NodeState, n)
	for i := int64(0); i < n; i++ {
		idBytes, err := readByteString(r)
		if err != nil {
			return nil, newCodecError("decode-statemap-id", err)
		}
		ns, err := DecodeNodeState(r)
		if err != nil {
			return nil, err
		}
		out[NodeID(idBytes)] = ns
	}
	return out, nil
}

// SynPacket, AckPacket and Ack2Packet are the in-memory shapes of the three
// gossip messages; the transport package marshals them to/from wrapperspb.BytesValue
// payloads using the Encode/Decode helpers above. Sender carries the
// initiator's own NodeID so the responder can merge/reply without relying
// on transport-layer connection identity.
type SynPacket struct {
	ClusterID string
	Sender    NodeID
	Digests   []Digest
}

type AckPacket struct {
	RequestDigests []Digest
	DeltaStates    map[NodeID]*NodeState
}

type Ack2Packet struct {
	Sender      NodeID
	DeltaStates map[NodeID]*NodeState
}

func EncodeSyn(p SynPacket) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeByteString(&buf, []byte(p.ClusterID)); err != nil {
		return nil, newCodecError("encode-syn-cluster", err)
	}
	if err := writeByteString(&buf, []byte(p.Sender)); err != nil {
		return nil, newCodecError("encode-syn-sender", err)
	}
	if err := EncodeDigests(&buf, p.Digests); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeSyn(data []byte) (SynPacket, error) {
	r := bytes.NewReader(data)
	clusterIDBytes, err := readByteString(r)
	if err != nil {
		return SynPacket{}, newCodecError("decode-syn-cluster", err)
	}
	senderBytes, err := readByteString(r)
	if err != nil {
		return SynPacket{}, newCodecError("decode-syn-sender", err)
	}
	digests, err := DecodeDigests(r)
	if err != nil {
		return SynPacket{}, err
	}
	return SynPacket{ClusterID: string(clusterIDBytes), Sender: NodeID(senderBytes), Digests: digests}, nil
}

func EncodeAck(p AckPacket) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeDigests(&buf, p.RequestDigests); err != nil {
		return nil, err
	}
	if err := EncodeNodeStateMap(&buf, p.DeltaStates); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeAck(data []byte) (AckPacket, error) {
	r := bytes.NewReader(data)
	reqs, err := DecodeDigests(r)
	if err != nil {
		return AckPacket{}, err
	}
	states, err := DecodeNodeStateMap(r)
	if err != nil {
		return AckPacket{}, err
	}
	return AckPacket{RequestDigests: reqs, DeltaStates: states}, nil
}

func EncodeAck2(p Ack2Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeByteString(&buf, []byte(p.Sender)); err != nil {
		return nil, newCodecError("encode-ack2-sender", err)
	}
	if err := EncodeNodeStateMap(&buf, p.DeltaStates); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeAck2(data []byte) (Ack2Packet, error) {
	r := bytes.NewReader(data)
	senderBytes, err := readByteString(r)
	if err != nil {
		return Ack2Packet{}, newCodecError("decode-ack2-sender", err)
	}
	states, err := DecodeNodeStateMap(r)
	if err != nil {
		return Ack2Packet{}, err
	}
	return Ack2Packet{Sender: NodeID(senderBytes), DeltaStates: states}, nil
}

// maxWireCount bounds any varint-encoded element count read from the wire,
// so a corrupt or hostile packet can't make a decoder allocate an
// unbounded slice/map before failing.
const maxWireCount = 1 << 20
