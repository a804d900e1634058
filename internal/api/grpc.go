package api

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/pyazkv/api/kvrpc"
	"github.com/heysubinoy/pyazkv/internal/store"
	"github.com/heysubinoy/pyazkv/pkg/kv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GRPCServer implements the kvrpc.KVServiceServer interface.
// It wraps a kv.Store and exposes it over gRPC.
type GRPCServer struct {
	kvrpc.UnimplementedKVServiceServer
	Store  kv.Store
	Logger hclog.Logger
}

// NewGRPCServer creates a new gRPC server with the given store.
func NewGRPCServer(store kv.Store, logger hclog.Logger) *GRPCServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &GRPCServer{
		Store:  store,
		Logger: logger,
	}
}

// List returns every stored pair as a Struct mapping each key to the JSON
// text of its value.
func (s *GRPCServer) List(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	all := s.Store.All()
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(all))}
	for k, v := range all {
		out.Fields[k] = structpb.NewStringValue(string(v))
	}
	return out, nil
}

// Get retrieves the JSON text of the value stored under key.
func (s *GRPCServer) Get(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	key := req.GetValue()
	if key == "" {
		return nil, kvrpc.InvalidArgument(kvrpc.FieldKey, "key is required")
	}

	value, found := s.Store.Get(key)
	if !found {
		return nil, status.Error(codes.NotFound, msgKeyNotFound)
	}
	return wrapperspb.String(string(value)), nil
}

// Put stores a key-value pair and reports whether the key was created.
// value_json must hold exactly one JSON document; it is stored verbatim.
func (s *GRPCServer) Put(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	fields := req.GetFields()

	key := fields[kvrpc.FieldKey].GetStringValue()
	if err := kv.ValidateKey(key); err != nil {
		return nil, kvrpc.InvalidArgument(kvrpc.FieldKey, "key is required and must not contain '/'")
	}
	pv, ok := fields[kvrpc.FieldValueJSON]
	if !ok || pv == nil {
		return nil, kvrpc.InvalidArgument(kvrpc.FieldValueJSON, `"value_json" field is required`)
	}
	value := kv.Value(pv.GetStringValue())
	if err := kv.ValidateValue(value); err != nil {
		return nil, kvrpc.InvalidArgument(kvrpc.FieldValueJSON, `"value_json" must be a single JSON document`)
	}

	created, err := s.Store.Set(key, value)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return wrapperspb.Bool(created), nil
}

// Delete removes a key from the store.
func (s *GRPCServer) Delete(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	key := req.GetValue()
	if key == "" {
		return nil, kvrpc.InvalidArgument(kvrpc.FieldKey, "key is required")
	}

	if err := s.Store.Delete(key); err != nil {
		return nil, s.toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) toStatus(err error) error {
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return status.Error(codes.NotFound, msgKeyNotFound)
	case errors.Is(err, kv.ErrInvalidKey):
		return kvrpc.InvalidArgument(kvrpc.FieldKey, err.Error())
	case errors.Is(err, kv.ErrInvalidValue):
		return kvrpc.InvalidArgument(kvrpc.FieldValueJSON, err.Error())
	case errors.Is(err, store.ErrNotLeader):
		return status.Error(codes.Unavailable, "not leader")
	default:
		s.Logger.Error("store operation failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

// UnaryLoggingInterceptor logs one line per unary call.
func UnaryLoggingInterceptor(logger hclog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start))
		return resp, err
	}
}
