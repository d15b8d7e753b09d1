package render

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
)

// RenderMethod is the full gRPC method name of the render service.
const RenderMethod = "/nodesweep.v1.Renderer/Render"

// Request field names of the render call.
const (
	fieldSnapshot   = "snapshot"
	fieldOutputPath = "output_path"
)

// RemoteRenderer forwards renders to a gRPC render service. The request is
// a google.protobuf.Struct holding the snapshot and the output path; the
// response is google.protobuf.Empty once the image is written.
type RemoteRenderer struct {
	conn grpc.ClientConnInterface
}

// NewRemoteRenderer returns a renderer calling the service on conn.
func NewRemoteRenderer(conn grpc.ClientConnInterface) *RemoteRenderer {
	return &RemoteRenderer{conn: conn}
}

// Render implements Renderer.
func (r *RemoteRenderer) Render(ctx context.Context, snap graph.Snapshot, outputPath string) error {
	req, err := structpb.NewStruct(map[string]any{
		fieldSnapshot:   snap.AsMap(),
		fieldOutputPath: outputPath,
	})
	if err != nil {
		return fmt.Errorf("encode render request: %w", err)
	}
	if err := r.conn.Invoke(ctx, RenderMethod, req, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("remote render %s: %w", outputPath, err)
	}
	return nil
}

// RenderServiceServer is the server side of the render service.
type RenderServiceServer interface {
	Render(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

type renderService struct {
	r Renderer
}

// Render decodes the request and calls the wrapped Renderer.
func (s *renderService) Render(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.GetFields()
	out := fields[fieldOutputPath].GetStringValue()
	if out == "" {
		return nil, status.Error(codes.InvalidArgument, "output_path is required")
	}
	rawSnap := fields[fieldSnapshot].GetStructValue()
	if rawSnap == nil {
		return nil, status.Error(codes.InvalidArgument, "snapshot is required")
	}
	snap, err := graph.SnapshotFromMap(rawSnap.AsMap())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.r.Render(ctx, snap, out); err != nil {
		monitoring.Logf("[gRPC] render %s failed: %v", out, err)
		if errors.Is(err, context.Canceled) {
			return nil, status.Error(codes.Canceled, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &emptypb.Empty{}, nil
}

func renderHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RenderServiceServer).Render(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RenderMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RenderServiceServer).Render(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RenderServiceDesc describes the nodesweep.v1.Renderer service.
var RenderServiceDesc = grpc.ServiceDesc{
	ServiceName: "nodesweep.v1.Renderer",
	HandlerType: (*RenderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Render", Handler: renderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nodesweep/v1/renderer.proto",
}

// RegisterRenderService exposes r on s as the nodesweep.v1.Renderer service.
func RegisterRenderService(s grpc.ServiceRegistrar, r Renderer) {
	s.RegisterService(&RenderServiceDesc, &renderService{r: r})
}
