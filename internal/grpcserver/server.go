// Package grpcserver implements the ScrapeService gRPC server.
//
// It delegates all business logic to the job orchestrator and handles
// only the gRPC transport concerns: metadata extraction, error mapping,
// and conversion between jobs and protobuf Struct messages.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/elektrikmusik/linkedin-scraper/internal/collection"
	"github.com/elektrikmusik/linkedin-scraper/internal/jobs"
)

// Service is the orchestrator surface exposed over gRPC.
type Service interface {
	Submit(ctx context.Context, req jobs.Request) (string, error)
	Status(id string) (jobs.Job, error)
	Collections() []collection.Entry
	Cancel(id string) error
}

// Server implements ScrapeServiceServer.
type Server struct {
	svc Service
}

// NewServer constructs a gRPC Server backed by svc.
func NewServer(svc Service) *Server {
	return &Server{svc: svc}
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// SubmitScrape registers a scrape job and returns its id without waiting.
func (s *Server) SubmitScrape(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, err := intField(req, "limit")
	if err != nil {
		return nil, err
	}
	pages, err := intField(req, "pages")
	if err != nil {
		return nil, err
	}

	owner := strings.TrimSpace(stringField(req, "owner_id"))
	if owner == "" {
		owner = userIDFromCtx(ctx)
	}

	id, err := s.svc.Submit(ctx, jobs.Request{
		Collection: stringField(req, "collection"),
		Limit:      limit,
		MaxPages:   pages,
		Details:    req.GetFields()["details"].GetBoolValue(),
		OwnerID:    owner,
	})
	if err != nil {
		return nil, toGRPCError(err)
	}

	return structpb.NewStruct(map[string]any{
		"job_id":  id,
		"status":  string(jobs.StatusPending),
		"message": "Scrape queued",
	})
}

// GetJobStatus returns the latest snapshot of a job.
func (s *Server) GetJobStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	j, err := s.ownedJob(ctx, req)
	if err != nil {
		return nil, err
	}
	return jobToStruct(j)
}

// ListCollections returns the collections that can be submitted.
func (s *Server) ListCollections(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	entries := s.svc.Collections()
	list := make([]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, map[string]any{"name": e.Name, "label": e.Label})
	}
	return structpb.NewStruct(map[string]any{"collections": list})
}

// CancelJob requests cooperative cancellation of a job.
func (s *Server) CancelJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	j, err := s.ownedJob(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Cancel(j.ID); err != nil {
		return nil, toGRPCError(err)
	}
	return structpb.NewStruct(map[string]any{
		"job_id":  j.ID,
		"message": "Cancellation requested",
	})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// ownedJob loads the job named in req. Jobs of other callers are reported
// as missing.
func (s *Server) ownedJob(ctx context.Context, req *structpb.Struct) (jobs.Job, error) {
	id := stringField(req, "job_id")
	if id == "" {
		return jobs.Job{}, status.Error(codes.InvalidArgument, "job_id is required")
	}
	j, err := s.svc.Status(id)
	if err != nil {
		return jobs.Job{}, toGRPCError(err)
	}
	if caller := userIDFromCtx(ctx); caller != "" && caller != j.OwnerID {
		return jobs.Job{}, status.Error(codes.NotFound, jobs.ErrNotFound.Error())
	}
	return j, nil
}

// userIDFromCtx extracts the x-user-id value forwarded by the Gateway
// via gRPC metadata, or "" when absent.
func userIDFromCtx(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("x-user-id"); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func stringField(st *structpb.Struct, key string) string {
	return st.GetFields()[key].GetStringValue()
}

// intField reads an optional whole-number field; absent means 0.
func intField(st *structpb.Struct, key string) (int, error) {
	v, ok := st.GetFields()[key]
	if !ok {
		return 0, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
		return 0, status.Error(codes.InvalidArgument, fmt.Sprintf("%s must be a whole number", key))
	}
	return int(n.NumberValue), nil
}

func jobToStruct(j jobs.Job) (*structpb.Struct, error) {
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode job")
	}
	st := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, st); err != nil {
		return nil, status.Error(codes.Internal, "encode job")
	}
	return st, nil
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, jobs.ErrTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, jobs.ErrShuttingDown):
		return status.Error(codes.Unavailable, err.Error())
	}

	var e *jobs.Error
	msg := err.Error()
	if errors.As(err, &e) && e.Msg != "" {
		msg = e.Msg
	}
	switch jobs.KindOf(err) {
	case jobs.KindUnknownCollection, jobs.KindInvalidLimit:
		return status.Error(codes.InvalidArgument, msg)
	case jobs.KindUnauthenticated:
		return status.Error(codes.Unauthenticated, msg)
	}
	return status.Error(codes.Internal, "internal error")
}
