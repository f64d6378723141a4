package proto

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"CamDetLoop/logger"
	"CamDetLoop/loop"
	"CamDetLoop/sink"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server answers ResultService calls from the hub the loop emits into.
type Server struct {
	hub      *sink.Hub
	stats    func() loop.Stats
	shutdown context.CancelFunc
	requests prometheus.Counter
	log      *zap.Logger
}

// NewServer wires the service. shutdown is invoked by the Shutdown RPC and
// requests, when set, counts every call.
func NewServer(hub *sink.Hub, stats func() loop.Stats, shutdown context.CancelFunc, requests prometheus.Counter, log *zap.Logger) *Server {
	return &Server{hub: hub, stats: stats, shutdown: shutdown, requests: requests, log: logger.OrDefault(log, "grpc")}
}

// toStruct converts any JSON-encodable value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func (s *Server) Latest(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	r, ok := s.hub.Latest()
	if !ok {
		return nil, status.Error(codes.NotFound, "no results yet")
	}
	out, err := toStruct(sink.NewPayload(r))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func (s *Server) Status(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	st := s.stats()
	out, err := toStruct(map[string]any{
		"running":      st.Running,
		"startedAt":    st.StartedAt,
		"cycles":       st.Cycles,
		"undecided":    st.Undecided,
		"blocked":      st.Blocked,
		"passed":       st.Passed,
		"detections":   st.Detections,
		"detectErrors": st.DetectErrors,
		"retries":      st.Retries,
		"lastScore":    st.LastScore,
		"fps":          st.FPS,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}

func (s *Server) Watch(req *emptypb.Empty, stream ResultService_WatchServer) error {
	reports, cancel := s.hub.Subscribe(16)
	defer cancel()
	s.log.Info("watch subscriber connected")
	for {
		select {
		case <-stream.Context().Done():
			s.log.Info("watch subscriber left")
			return nil
		case r, ok := <-reports:
			if !ok {
				return nil
			}
			out, err := toStruct(sink.NewPayload(r))
			if err != nil {
				return status.Errorf(codes.Internal, "encode result: %v", err)
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		}
	}
}

func (s *Server) Shutdown(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error) {
	s.log.Warn("shutdown requested over gRPC")
	if s.shutdown != nil {
		s.shutdown()
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) countUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if s.requests != nil {
		s.requests.Inc()
	}
	return handler(ctx, req)
}

func (s *Server) countStream(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if s.requests != nil {
		s.requests.Inc()
	}
	return handler(srv, ss)
}

// Serve runs the service on lis until ctx is cancelled. Open Watch streams
// get five seconds to finish before the server is stopped hard.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.countUnary),
		grpc.ChainStreamInterceptor(s.countStream),
	)
	RegisterResultServiceServer(gs, s)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("grpc server listening", zap.String("Addr", lis.Addr().String()))
		errCh <- gs.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		gs.Stop()
	}
	return nil
}

func StartGRPCServer(ctx context.Context, port int, s *Server) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return s.Serve(ctx, lis)
}
