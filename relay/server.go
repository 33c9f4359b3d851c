package relay

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/metrics"
	"github.com/yitech/klinechart/model/market"
)

// Server streams hub candles to gRPC subscribers.
type Server struct {
	hub      *Hub
	universe market.Universe
}

// NewServer serves pairs and intervals from universe only.
func NewServer(hub *Hub, universe market.Universe) *Server {
	return &Server{hub: hub, universe: universe}
}

func (s *Server) Subscribe(req *structpb.Struct, stream grpc.ServerStream) error {
	sel, err := DecodeRequest(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if !s.universe.HasPair(sel.Pair) || !s.universe.HasInterval(sel.Interval) {
		return status.Errorf(codes.InvalidArgument, "relay: %s is not served", sel)
	}

	sub, err := s.hub.Join(sel.Pair, sel.Interval)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	defer sub.Leave()

	gauge := metrics.RelaySubscribers.WithLabelValues(sel.Pair, sel.Interval)
	gauge.Inc()
	defer gauge.Dec()

	logger.Info().Str("session", sub.ID).Str("pair", sel.Pair).Str("interval", sel.Interval).Msg("relay: new subscription")

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("session", sub.ID).Msg("relay: client disconnected")
			return ctx.Err()
		case c, ok := <-sub.C:
			if !ok {
				return status.Error(codes.Unavailable, "relay: upstream stream ended")
			}
			if err := stream.SendMsg(EncodeCandle(sel, c)); err != nil {
				return err
			}
		}
	}
}

var _ CandleRelayServer = (*Server)(nil)
