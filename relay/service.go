package relay

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName     = "klinechart.v1.CandleRelay"
	subscribeMethod = "/" + ServiceName + "/Subscribe"
)

// CandleRelayServer is the server side of the relay service.
type CandleRelayServer interface {
	Subscribe(req *structpb.Struct, stream grpc.ServerStream) error
}

// ServiceDesc describes the relay service: one server-streaming method
// whose request and responses are google.protobuf.Struct messages.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CandleRelayServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "klinechart/v1/relay.proto",
}

func RegisterCandleRelayServer(s grpc.ServiceRegistrar, srv CandleRelayServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(CandleRelayServer).Subscribe(req, stream)
}

// openStream starts a Subscribe call and sends the request.
func openStream(ctx context.Context, cc grpc.ClientConnInterface, req *structpb.Struct) (grpc.ClientStream, error) {
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}
