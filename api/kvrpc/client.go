package kvrpc

import (
	"context"
	"fmt"

	"github.com/heysubinoy/pyazkv/pkg/kv"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a typed client for the KV service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client that issues calls over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// List returns every stored pair.
func (c *Client) List(ctx context.Context, opts ...grpc.CallOption) (map[string]kv.Value, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, fromStatus(err)
	}
	all := make(map[string]kv.Value, len(out.GetFields()))
	for k, v := range out.GetFields() {
		raw, err := decodeJSONText(v.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("decode value of %q: %w", k, err)
		}
		all[k] = raw
	}
	return all, nil
}

// Get returns the value under key, or kv.ErrNotFound.
func (c *Client) Get(ctx context.Context, key string, opts ...grpc.CallOption) (kv.Value, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, GetMethod, wrapperspb.String(key), out, opts...); err != nil {
		return nil, fromStatus(err)
	}
	return decodeJSONText(out.GetValue())
}

// Put upserts key and reports whether it was created.
func (c *Client) Put(ctx context.Context, key string, value kv.Value, opts ...grpc.CallOption) (bool, error) {
	if err := kv.ValidateValue(value); err != nil {
		return false, err
	}
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldKey:       structpb.NewStringValue(key),
		FieldValueJSON: structpb.NewStringValue(string(value)),
	}}
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, PutMethod, in, out, opts...); err != nil {
		return false, fromStatus(err)
	}
	return out.GetValue(), nil
}

// Delete removes key, or returns kv.ErrNotFound.
func (c *Client) Delete(ctx context.Context, key string, opts ...grpc.CallOption) error {
	if err := c.cc.Invoke(ctx, DeleteMethod, wrapperspb.String(key), new(emptypb.Empty), opts...); err != nil {
		return fromStatus(err)
	}
	return nil
}

// InvalidArgument builds an InvalidArgument status naming the offending
// request field, so clients can tell a bad key from a bad value.
func InvalidArgument(field, description string) error {
	st := status.New(codes.InvalidArgument, description)
	detailed, err := st.WithDetails(&errdetails.BadRequest{
		FieldViolations: []*errdetails.BadRequest_FieldViolation{
			{Field: field, Description: description},
		},
	})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

func fromStatus(err error) error {
	st := status.Convert(err)
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", kv.ErrNotFound, st.Message())
	case codes.InvalidArgument:
		if violatedField(st) == FieldKey {
			return fmt.Errorf("%w: %s", kv.ErrInvalidKey, st.Message())
		}
		return fmt.Errorf("%w: %s", kv.ErrInvalidValue, st.Message())
	default:
		return err
	}
}

func violatedField(st *status.Status) string {
	for _, d := range st.Details() {
		br, ok := d.(*errdetails.BadRequest)
		if !ok {
			continue
		}
		for _, v := range br.GetFieldViolations() {
			return v.GetField()
		}
	}
	return ""
}

// decodeJSONText checks that s is one JSON document and returns it as a Value.
func decodeJSONText(s string) (kv.Value, error) {
	v := kv.Value(s)
	if err := kv.ValidateValue(v); err != nil {
		return nil, err
	}
	return v, nil
}
