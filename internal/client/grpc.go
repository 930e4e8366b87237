package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/pipefilter/internal/filter"
	"github.com/alfredjeanlab/pipefilter/internal/server"
)

// GRPCClient implements Client over the gRPC transport.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

// NewGRPCClient connects to addr. Extra dial options are appended to the
// defaults (insecure transport credentials).
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) Compile(ctx context.Context, resource, op, rawQuery string) (*CompileResult, error) {
	out, err := c.invoke(ctx, server.MethodCompile, map[string]any{
		"resource":  resource,
		"operation": op,
		"query":     rawQuery,
	})
	if err != nil {
		return nil, err
	}
	fields := out.GetFields()
	return &CompileResult{
		ID:       fields["id"].GetStringValue(),
		Resource: fields["resource"].GetStringValue(),
		Entity:   fields["entity"].GetStringValue(),
		Pipeline: json.RawMessage(fields["pipeline"].GetStringValue()),
	}, nil
}

func (c *GRPCClient) Describe(ctx context.Context, resource string) ([]filter.ParameterDescriptor, error) {
	out, err := c.invoke(ctx, server.MethodDescribe, map[string]any{"resource": resource})
	if err != nil {
		return nil, err
	}
	raw, err := protojson.Marshal(out.GetFields()["parameters"])
	if err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	var params []filter.ParameterDescriptor
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return params, nil
}

func (c *GRPCClient) Resources(ctx context.Context) ([]string, error) {
	out, err := c.invoke(ctx, server.MethodListResources, map[string]any{})
	if err != nil {
		return nil, err
	}
	var names []string
	for _, v := range out.GetFields()["resources"].GetListValue().GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	out, err := c.invoke(ctx, server.MethodHealth, map[string]any{})
	if err != nil {
		return "", err
	}
	return out.GetFields()["status"].GetStringValue(), nil
}
