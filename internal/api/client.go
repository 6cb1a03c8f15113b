package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/guidance"
	"github.com/banshee-data/erov.guidance/internal/telemetry"
)

// Client talks to an Operator service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to target without transport security. The operator API is
// meant for localhost or a trusted tailnet.
func Dial(target string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return NewClient(conn), conn, nil
}

// SetControl sends a partial operator request.
func (c *Client) SetControl(ctx context.Context, u control.Update) error {
	return c.cc.Invoke(ctx, setControlMethod, UpdateToStruct(u), new(emptypb.Empty))
}

// Status fetches the loop status.
func (c *Client) Status(ctx context.Context) (guidance.Status, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatusMethod, &emptypb.Empty{}, out); err != nil {
		return guidance.Status{}, err
	}
	data, err := out.MarshalJSON()
	if err != nil {
		return guidance.Status{}, err
	}
	var st guidance.Status
	if err := json.Unmarshal(data, &st); err != nil {
		return guidance.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// TelemetryStream receives records from StreamTelemetry.
type TelemetryStream struct {
	stream grpc.ServerStreamingClient[structpb.Struct]
}

// Recv blocks for the next record. It returns io.EOF when the server ends
// the stream.
func (s *TelemetryStream) Recv() (telemetry.Record, error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return telemetry.Record{}, err
	}
	return RecordFromStruct(msg)
}

// StreamTelemetry opens a telemetry stream; cancel ctx to close it.
func (c *Client) StreamTelemetry(ctx context.Context) (*TelemetryStream, error) {
	stream, err := c.cc.NewStream(ctx, &OperatorServiceDesc.Streams[0], streamTelemetryMethod)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return &TelemetryStream{stream: x}, nil
}
