// Package kvrpc defines the pyazkv.KVService gRPC contract.
//
// Every message is a protobuf well-known type, so the service needs no
// generated code. Stored values travel as their JSON text, byte for byte:
//
//	List(Empty)                  -> Struct       key -> JSON text of each value
//	Get(StringValue key)         -> StringValue  JSON text; NotFound when absent
//	Put(Struct{key,value_json})  -> BoolValue    true when the key was created
//	Delete(StringValue key)      -> Empty        NotFound when absent
package kvrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "pyazkv.KVService"

const (
	ListMethod   = "/" + ServiceName + "/List"
	GetMethod    = "/" + ServiceName + "/Get"
	PutMethod    = "/" + ServiceName + "/Put"
	DeleteMethod = "/" + ServiceName + "/Delete"
)

// Field names of the Put request struct.
const (
	FieldKey       = "key"
	FieldValueJSON = "value_json"
)

// KVServiceServer is the server API for the KV service.
type KVServiceServer interface {
	List(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Put(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// UnimplementedKVServiceServer can be embedded to have forward compatible implementations.
type UnimplementedKVServiceServer struct{}

func (UnimplementedKVServiceServer) List(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method List not implemented")
}

func (UnimplementedKVServiceServer) Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}

func (UnimplementedKVServiceServer) Put(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Put not implemented")
}

func (UnimplementedKVServiceServer) Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Delete not implemented")
}

// RegisterKVServiceServer registers srv on s.
func RegisterKVServiceServer(s grpc.ServiceRegistrar, srv KVServiceServer) {
	s.RegisterService(&KVServiceDesc, srv)
}

// KVServiceDesc is the grpc.ServiceDesc for the KV service.
var KVServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KVServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "List", Handler: unaryHandler(ListMethod, KVServiceServer.List)},
		{MethodName: "Get", Handler: unaryHandler(GetMethod, KVServiceServer.Get)},
		{MethodName: "Put", Handler: unaryHandler(PutMethod, KVServiceServer.Put)},
		{MethodName: "Delete", Handler: unaryHandler(DeleteMethod, KVServiceServer.Delete)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pyazkv/kv",
}

func unaryHandler[Req, Resp any](fullMethod string, call func(KVServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(KVServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(KVServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
