package protobuf

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/toolsascode/bfm/info/internal/api/http/dto"
	"github.com/toolsascode/bfm/info/internal/auth"
	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/metrics"
	"github.com/toolsascode/bfm/info/internal/queue"
	"github.com/toolsascode/bfm/info/internal/version"
)

// InfoService is the migration info service served over gRPC
type InfoService interface {
	metrics.InfoService
	All() []*info.MigrationInfo
	Current() *info.MigrationInfo
	Pending() []*info.MigrationInfo
	Applied() []*info.MigrationInfo
	Resolved() []*info.MigrationInfo
	Failed() []*info.MigrationInfo
	Future() []*info.MigrationInfo
	OutOfOrder() []*info.MigrationInfo
	Target() version.Version
}

// Server implements InfoServiceServer
type Server struct {
	service   InfoService
	refresher *metrics.InstrumentedService
	producer  queue.Producer
	metrics   *metrics.Collector
}

// NewServer creates a new gRPC server. producer may be nil, in which case
// Refresh runs synchronously.
func NewServer(svc InfoService, producer queue.Producer, collector *metrics.Collector) *Server {
	return &Server{
		service:   svc,
		refresher: collector.Instrument(svc),
		producer:  producer,
		metrics:   collector,
	}
}

func (s *Server) views() map[string]func() []*info.MigrationInfo {
	return map[string]func() []*info.MigrationInfo{
		"":             s.service.All,
		"all":          s.service.All,
		"pending":      s.service.Pending,
		"applied":      s.service.Applied,
		"resolved":     s.service.Resolved,
		"failed":       s.service.Failed,
		"future":       s.service.Future,
		"out-of-order": s.service.OutOfOrder,
	}
}

// Info lists migrations. The request may set "view" (all, pending, applied,
// resolved, failed, future, out-of-order) and "state" (a state code).
func (s *Server) Info(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	view, ok := s.views()[strings.ToLower(field(req, "view"))]
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown view: %s", field(req, "view"))
	}

	items := view()
	if code := field(req, "state"); code != "" {
		state, ok := info.ParseState(code)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "unknown state: %s", code)
		}
		items = dto.FilterByState(items, state)
	}

	resp := dto.NewInfoResponse(s.service.Target().String(), s.service.Current(), items)
	resp.Summary = info.SummaryCodes(s.service.Summary())
	return toStruct(resp)
}

// Current returns the current migration
func (s *Server) Current(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cur := s.service.Current()
	if cur == nil {
		return nil, status.Error(codes.NotFound, "no migration has been applied")
	}
	return toStruct(dto.FromMigrationInfo(cur))
}

// Validate reports the first integrity problem. A problem is a result, not an
// RPC error.
func (s *Server) Validate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.service.Validate()
	s.metrics.ObserveValidation(err)
	return toStruct(dto.FromValidation(err))
}

// Refresh rebuilds the migration info, or queues a job when a producer is set.
// The request may set "kind" (refresh or validate), "backend", "connection"
// and "schema".
func (s *Server) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.producer != nil {
		kind := strings.ToLower(field(req, "kind"))
		if kind == "" {
			kind = queue.KindRefresh
		}
		if err := queue.CheckKind(kind); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}

		job := queue.NewJob(kind, &queue.MigrationTarget{
			Backend:    field(req, "backend"),
			Connection: field(req, "connection"),
			Schema:     field(req, "schema"),
		})
		job.RequestedBy = "grpc"
		if err := s.producer.PublishJob(ctx, job); err != nil {
			return nil, status.Errorf(codes.Unavailable, "failed to queue job: %v", err)
		}
		return toStruct(dto.RefreshResponse{Queued: true, JobID: job.ID})
	}

	if err := s.refresher.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Errorf(codes.Internal, "failed to refresh: %v", err)
	}

	resp := dto.RefreshResponse{Summary: info.SummaryCodes(s.service.Summary())}
	if cur := s.service.Current(); cur != nil {
		resp.Current = cur.Version().String()
	}
	return toStruct(resp)
}

// AuthInterceptor rejects calls without a valid bearer token in the
// "authorization" metadata
func AuthInterceptor(tokens *auth.TokenValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
		if err := tokens.ValidateHeader(header); err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ctx, req)
	}
}

func field(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	if v, ok := req.GetFields()[name]; ok {
		return strings.TrimSpace(v.GetStringValue())
	}
	return ""
}

// toStruct converts a response DTO into a Struct through its JSON form
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return s, nil
}
