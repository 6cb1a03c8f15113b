package api

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/guidance"
	"github.com/banshee-data/erov.guidance/internal/telemetry"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "erov.guidance.v1.Operator"

const (
	setControlMethod      = "/" + ServiceName + "/SetControl"
	getStatusMethod       = "/" + ServiceName + "/GetStatus"
	streamTelemetryMethod = "/" + ServiceName + "/StreamTelemetry"
)

// OperatorServer is the server API of the Operator service. Messages are
// protobuf well-known types so no generated code is needed.
type OperatorServer interface {
	// SetControl applies a partial operator request (see UpdateFromStruct).
	SetControl(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	// GetStatus returns the loop status.
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// StreamTelemetry streams one Struct per autonomous tick until the
	// client goes away.
	StreamTelemetry(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// OperatorServiceDesc describes the Operator service for grpc.Server.
var OperatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OperatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetControl", Handler: setControlHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamTelemetry",
			Handler:       streamTelemetryHandler,
			ServerStreams: true,
		},
	},
	Metadata: "erov/guidance/v1/operator.proto",
}

// RegisterOperatorServer registers srv on s.
func RegisterOperatorServer(s grpc.ServiceRegistrar, srv OperatorServer) {
	s.RegisterService(&OperatorServiceDesc, srv)
}

func setControlHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OperatorServer).SetControl(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: setControlMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OperatorServer).SetControl(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OperatorServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OperatorServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func streamTelemetryHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(OperatorServer).StreamTelemetry(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// streamBuffer is the per-client telemetry backlog.
const streamBuffer = 64

// Service implements OperatorServer over the control store, the telemetry
// hub and the loop status.
type Service struct {
	control *control.Store
	hub     *telemetry.Hub
	status  func() guidance.Status
}

var _ OperatorServer = (*Service)(nil)

// NewService returns a Service. status may be nil, in which case GetStatus
// reports Unavailable.
func NewService(store *control.Store, hub *telemetry.Hub, status func() guidance.Status) *Service {
	return &Service{control: store, hub: hub, status: status}
}

// SetControl implements OperatorServer.
func (s *Service) SetControl(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	u, err := UpdateFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if u.Empty() {
		return nil, status.Error(codes.InvalidArgument, "empty control update")
	}
	st := s.control.Apply(u)
	opsf("control v%d via gRPC: mode=%s armed=%t", st.Version, st.Mode, st.Armed)
	return &emptypb.Empty{}, nil
}

// GetStatus implements OperatorServer.
func (s *Service) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.status == nil {
		return nil, status.Error(codes.Unavailable, "guidance loop not running")
	}
	out, err := toStruct(s.status())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// StreamTelemetry implements OperatorServer.
func (s *Service) StreamTelemetry(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.hub == nil {
		return status.Error(codes.Unavailable, "telemetry not available")
	}
	records, cancel := s.hub.Subscribe(streamBuffer)
	defer cancel()
	diagf("telemetry stream opened")

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			diagf("telemetry stream closed: %v", ctx.Err())
			return nil
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if err := stream.Send(RecordToStruct(rec)); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}
