// Package transport binds gossip.Gossiper to the network: a gRPC server
// exposing Syn/Ack2 as unary RPCs, and a client-side gossip.Transport
// implementation for the round initiator.
//
// Both RPCs exchange a single opaque payload rather than a bespoke
// generated message: wrapperspb.BytesValue, a message type protoc already
// compiled as part of google.golang.org/protobuf/types/known/wrapperspb.
// The service itself is registered by hand as a grpc.ServiceDesc (a plain
// struct, no generated code needed) so no .pb.go stub has to be
// hand-authored and trusted without a compiler to check it — wire.go owns
// the actual Syn/Ack/Ack2 encoding inside those bytes.
package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/qdongxu/Lealone/gossip"
)

const (
	serviceName = "gossip.GossipService"
	synMethod   = "Syn"
	ack2Method  = "Ack2"
)

// gossipServiceDesc is the hand-registered equivalent of what protoc-gen-go-grpc
// would emit from a .proto service block:
//
//	service GossipService {
//	  rpc Syn(google.protobuf.BytesValue) returns (google.protobuf.BytesValue);
//	  rpc Ack2(google.protobuf.BytesValue) returns (google.protobuf.BytesValue);
//	}
var gossipServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*gossipServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: synMethod,
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(wrapperspb.BytesValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(gossipServer).handleSyn(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + synMethod}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(gossipServer).handleSyn(ctx, req.(*wrapperspb.BytesValue))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: ack2Method,
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(wrapperspb.BytesValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(gossipServer).handleAck2(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + ack2Method}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(gossipServer).handleAck2(ctx, req.(*wrapperspb.BytesValue))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gossip.proto",
}

// gossipServer is the HandlerType the ServiceDesc dispatches to.
type gossipServer interface {
	handleSyn(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	handleAck2(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// GRPC is both the server binding (it serves the local Gossiper's Syn/Ack2
// handlers over the network) and a gossip.Transport implementation (it
// dials peers by NodeID, looked up in its address book, to initiate
// rounds). One GRPC handles every peer; connections are cached and dialed
// lazily on first use.
type GRPC struct {
	addr   string
	nodeID string
	engine *gossip.Gossiper

	srv *grpc.Server
	lis net.Listener

	mu        sync.Mutex
	addresses map[gossip.NodeID]string
	conns     map[gossip.NodeID]*grpc.ClientConn
}

// NewGRPC constructs a GRPC transport bound to a local address. engine may
// be nil at construction time — gossip.New itself takes a Transport, so
// the two are built in a chicken-and-egg order; call BindEngine once the
// Gossiper exists and before Start.
func NewGRPC(addr string, nodeID string, engine *gossip.Gossiper) (*GRPC, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("invalid address: %s", addr)
	}
	if nodeID == "" {
		return nil, fmt.Errorf("nodeID must be provided")
	}
	return &GRPC{
		addr:      addr,
		nodeID:    nodeID,
		engine:    engine,
		srv:       grpc.NewServer(),
		addresses: make(map[gossip.NodeID]string),
		conns:     make(map[gossip.NodeID]*grpc.ClientConn),
	}, nil
}

// BindEngine attaches the Gossiper this transport serves incoming Syn/Ack2
// calls for. Must be called before Start.
func (g *GRPC) BindEngine(engine *gossip.Gossiper) {
	g.engine = engine
}

// AddPeer registers the dial address for a peer NodeID. This address book
// is the only place dial looks up addresses: a peer learned through gossip
// whose address was never registered here cannot be dialed, and
// SendSyn/SendAck2 to it return an error. StateRPCAddr values received via
// gossip are not consulted.
func (g *GRPC) AddPeer(id gossip.NodeID, addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addresses[id] = addr
}

func (g *GRPC) dial(id gossip.NodeID) (*grpc.ClientConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if conn, ok := g.conns[id]; ok {
		return conn, nil
	}
	addr, ok := g.addresses[id]
	if !ok {
		return nil, fmt.Errorf("transport: no known address for peer %s", id)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, "transport: dial %s", addr)
	}
	g.conns[id] = conn
	return conn, nil
}

// SendSyn implements gossip.Transport: invoke the Syn RPC against peer and
// decode its AckPacket reply.
func (g *GRPC) SendSyn(ctx context.Context, peer gossip.NodeID, syn gossip.SynPacket) (gossip.AckPacket, error) {
	conn, err := g.dial(peer)
	if err != nil {
		return gossip.AckPacket{}, err
	}
	payload, err := gossip.EncodeSyn(syn)
	if err != nil {
		return gossip.AckPacket{}, err
	}

	out := new(wrapperspb.BytesValue)
	if err := conn.Invoke(ctx, "/"+serviceName+"/"+synMethod, &wrapperspb.BytesValue{Value: payload}, out); err != nil {
		return gossip.AckPacket{}, errors.Wrapf(err, "transport: Syn to %s", peer)
	}
	return gossip.DecodeAck(out.Value)
}

// SendAck2 implements gossip.Transport: invoke the Ack2 RPC against peer.
func (g *GRPC) SendAck2(ctx context.Context, peer gossip.NodeID, ack2 gossip.Ack2Packet) error {
	conn, err := g.dial(peer)
	if err != nil {
		return err
	}
	payload, err := gossip.EncodeAck2(ack2)
	if err != nil {
		return err
	}

	out := new(wrapperspb.BytesValue)
	if err := conn.Invoke(ctx, "/"+serviceName+"/"+ack2Method, &wrapperspb.BytesValue{Value: payload}, out); err != nil {
		return errors.Wrapf(err, "transport: Ack2 to %s", peer)
	}
	return nil
}

func (g *GRPC) setupTcp() (net.Listener, error) {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen")
	}
	return lis, nil
}

// Start binds the listener synchronously (so port-in-use errors surface
// immediately) and then serves in a background goroutine.
func (g *GRPC) Start() error {
	if g.engine == nil {
		return fmt.Errorf("transport: BindEngine must be called before Start")
	}

	lis, err := g.setupTcp()
	if err != nil {
		return err
	}
	g.lis = lis

	g.srv.RegisterService(&gossipServiceDesc, (gossipServer)(&serverBinding{engine: g.engine}))
	reflection.Register(g.srv)

	go g.srv.Serve(g.lis)
	return nil
}

// Stop gracefully shuts down the server and closes any outbound
// connections dialed via AddPeer.
func (g *GRPC) Stop() error {
	if g.srv != nil {
		g.srv.GracefulStop()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, conn := range g.conns {
		conn.Close()
	}
	return nil
}
