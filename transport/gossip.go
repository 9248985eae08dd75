package transport

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/qdongxu/Lealone/gossip"
)

// serverBinding is the gossipServer the hand-registered ServiceDesc
// dispatches to: it decodes the wire payload with wire.go's helpers,
// calls into the Gossiper, and re-encodes the reply. A CodecError here
// means the peer sent an undecodable packet — per the error-handling
// design, the packet is rejected (as a gRPC InvalidArgument status) and
// never reaches Gossiper.HandleSyn/HandleAck2, so it cannot mutate the
// table. The sending peer's NodeID travels inside the packet itself
// (SynPacket.Sender / Ack2Packet.Sender) rather than through transport
// metadata, so the responder doesn't have to trust the TCP connection's
// identity to know who it's talking to.
type serverBinding struct {
	engine *gossip.Gossiper
}

func (s *serverBinding) handleSyn(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	syn, err := gossip.DecodeSyn(in.GetValue())
	if err != nil {
		s.engine.RecordDrop(err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ack, err := s.engine.HandleSyn(ctx, syn.Sender, syn)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	payload, err := gossip.EncodeAck(ack)
	if err != nil {
		s.engine.RecordDrop(err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &wrapperspb.BytesValue{Value: payload}, nil
}

func (s *serverBinding) handleAck2(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	ack2, err := gossip.DecodeAck2(in.GetValue())
	if err != nil {
		s.engine.RecordDrop(err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.engine.HandleAck2(ctx, ack2.Sender, ack2); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &wrapperspb.BytesValue{}, nil
}
