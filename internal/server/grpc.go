package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// The gRPC service carries google.protobuf.Struct messages in both
// directions, so no generated code is needed on either side.
//
//	Compile       {resource, operation, query} -> {id, resource, entity, pipeline}
//	Describe      {resource}                   -> {parameters: [...]}
//	ListResources {}                           -> {resources: [...]}
//	Health        {}                           -> {status}
//
// pipeline is the JSON text of the stage list; Struct numbers are doubles and
// would lose the integer/float distinction.
const (
	ServiceName         = "pipefilter.v1.CompilerService"
	MethodCompile       = "/" + ServiceName + "/Compile"
	MethodDescribe      = "/" + ServiceName + "/Describe"
	MethodListResources = "/" + ServiceName + "/ListResources"
	MethodHealth        = "/" + ServiceName + "/Health"
)

// CompilerServiceServer is the server API of the gRPC service.
type CompilerServiceServer interface {
	Compile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListResources(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ CompilerServiceServer = (*Server)(nil)

func unaryHandler(method string, call func(CompilerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CompilerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(CompilerServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var compilerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CompilerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Compile", CompilerServiceServer.Compile),
		unaryHandler("Describe", CompilerServiceServer.Describe),
		unaryHandler("ListResources", CompilerServiceServer.ListResources),
		unaryHandler("Health", CompilerServiceServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pipefilter/v1/compiler.proto",
}

// RegisterCompilerServiceServer registers srv on s.
func RegisterCompilerServiceServer(s grpc.ServiceRegistrar, srv CompilerServiceServer) {
	s.RegisterService(&compilerServiceDesc, srv)
}

// NewGRPCServer creates a gRPC server with the standard interceptors and
// registers the compiler service and reflection.
func NewGRPCServer(s *Server, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(s.logger),
			LoggingInterceptor(s.logger),
			AuthInterceptor(authToken),
		),
	)
	RegisterCompilerServiceServer(srv, s)
	reflection.Register(srv)
	return srv
}

// Compile implements CompilerServiceServer.
func (s *Server) Compile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resource := stringField(req, "resource")
	if resource == "" {
		return nil, status.Error(codes.InvalidArgument, "resource is required")
	}
	resp, err := s.compile(ctx, resource, stringField(req, "operation"), stringField(req, "query"))
	if err != nil {
		return nil, grpcError(err)
	}
	return structpb.NewStruct(map[string]any{
		"id":       resp.ID,
		"resource": resp.Resource,
		"entity":   resp.Entity,
		"pipeline": string(resp.Pipeline),
	})
}

// Describe implements CompilerServiceServer.
func (s *Server) Describe(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resource := stringField(req, "resource")
	if resource == "" {
		return nil, status.Error(codes.InvalidArgument, "resource is required")
	}
	params, err := s.describe(resource)
	if err != nil {
		return nil, grpcError(err)
	}
	list, err := toStructValue(params)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode parameters: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"parameters": list}}, nil
}

// ListResources implements CompilerServiceServer.
func (s *Server) ListResources(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.current()
	if err != nil {
		return nil, grpcError(err)
	}
	names := make([]any, 0)
	for _, n := range c.Resources() {
		names = append(names, n)
	}
	return structpb.NewStruct(map[string]any{"resources": names})
}

// Health implements CompilerServiceServer.
func (s *Server) Health(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	state := "ok"
	if _, err := s.current(); err != nil {
		state = "starting"
	}
	return structpb.NewStruct(map[string]any{"status": state})
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

// toStructValue converts v through its JSON form.
func toStructValue(v any) (*structpb.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}

func grpcError(err error) error {
	switch classify(err) {
	case classInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case classNotFound:
		return status.Error(codes.NotFound, err.Error())
	case classUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	case classCanceled:
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, fmt.Sprintf("compile: %v", err))
}
