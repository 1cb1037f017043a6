// Package adminrpc exposes a small gRPC introspection surface — bootstrap
// and network stats — over the orchestrator, for the out-of-scope
// administrative tooling (HTTP/WebSocket dashboard, CLI) to drive without
// reaching into the storage core's internals directly.
package adminrpc

import (
	"context"

	"google.golang.org/grpc"
)

// BootstrapRequest names the seed peers to dial, as full multiaddresses
// ending in /p2p/<peer-id>.
type BootstrapRequest struct {
	Seeds []string `json:"seeds"`
}

// BootstrapResponse is empty: success is the absence of an error.
type BootstrapResponse struct{}

// StatsRequest carries no fields; reserved for future filtering.
type StatsRequest struct{}

// StatsResponse mirrors the orchestrator's aggregate stats() interface
// (spec §6 "stats() -> { peers, routing_table, avg_rtt, catalog_entries }").
type StatsResponse struct {
	ConnectedPeers   int32   `json:"connected_peers"`
	RoutingTableSize int32   `json:"routing_table_size"`
	AvgRTTMillis     float64 `json:"avg_rtt_millis"`
	CatalogEntries   int32   `json:"catalog_entries"`
}

// Server is implemented by the orchestrator and backs the gRPC service.
type Server interface {
	Bootstrap(ctx context.Context, req *BootstrapRequest) (*BootstrapResponse, error)
	Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error)
}

func bootstrapHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(BootstrapRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Bootstrap(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/datamesh.admin.AdminService/Bootstrap"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Bootstrap(ctx, req.(*BootstrapRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(StatsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Stats(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/datamesh.admin.AdminService/Stats"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Stats(ctx, req.(*StatsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// ServiceDesc is the hand-authored equivalent of a protoc-generated
// _grpc.pb.go service descriptor.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "datamesh.admin.AdminService",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Bootstrap", Handler: bootstrapHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/adminrpc/adminrpc.go",
}

// RegisterServer attaches srv to s under ServiceDesc.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

// NewServer constructs a gRPC server preconfigured with the JSON codec as
// its only wire format.
func NewServer() *grpc.Server {
	return grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
}
