package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "scraper.v1.ScrapeService"

// ScrapeServiceServer is the server API for scraper.v1.ScrapeService. Every
// message is a google.protobuf.Struct; field names match the REST API.
type ScrapeServiceServer interface {
	SubmitScrape(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJobStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCollections(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ScrapeServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ScrapeServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ScrapeServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes scraper.v1.ScrapeService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScrapeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitScrape", Handler: unaryHandler("SubmitScrape", ScrapeServiceServer.SubmitScrape)},
		{MethodName: "GetJobStatus", Handler: unaryHandler("GetJobStatus", ScrapeServiceServer.GetJobStatus)},
		{MethodName: "ListCollections", Handler: unaryHandler("ListCollections", ScrapeServiceServer.ListCollections)},
		{MethodName: "CancelJob", Handler: unaryHandler("CancelJob", ScrapeServiceServer.CancelJob)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scraper/v1/scrape.proto",
}

// Register mounts srv on s.
func Register(s grpc.ServiceRegistrar, srv ScrapeServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls scraper.v1.ScrapeService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SubmitScrape(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "SubmitScrape", in, opts...)
}

func (c *Client) GetJobStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetJobStatus", in, opts...)
}

func (c *Client) ListCollections(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListCollections", in, opts...)
}

func (c *Client) CancelJob(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CancelJob", in, opts...)
}
