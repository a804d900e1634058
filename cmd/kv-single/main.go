package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/heysubinoy/pyazkv/api/kvrpc"
	"github.com/heysubinoy/pyazkv/internal/api"
	"github.com/heysubinoy/pyazkv/internal/logging"
	"github.com/heysubinoy/pyazkv/internal/store"
	"github.com/heysubinoy/pyazkv/pkg/config"
	"github.com/heysubinoy/pyazkv/pkg/kv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "kv-single",
		Short:        "Single-process in-memory key/value store over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("CONFIG_PATH")
			}
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (default $CONFIG_PATH)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New("pyazkv", cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}

	backend, raftNode, closeStore, err := openStore(ctx, cfg, logger.Named("store"))
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	instrumented := store.NewInstrumentedStore(backend, reg)

	srv := api.NewServer(instrumented, raftNode, logger.Named("http"))
	srv.MaxBodyBytes = cfg.MaxBodyBytes

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	api.RegisterMetricsRoutes(mux, instrumented, reg)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.WithLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
		}
		grpcLogger := logger.Named("grpc")
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(api.UnaryLoggingInterceptor(grpcLogger)))
		kvrpc.RegisterKVServiceServer(grpcServer, api.NewGRPCServer(instrumented, grpcLogger))

		go func() {
			grpcLogger.Info("gRPC server listening", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("serve gRPC: %w", err)
			}
		}()
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "backend", cfg.Store.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown HTTP: %w", err)
	}
	return nil
}

// openStore builds the configured backend. raftNode is nil for the memory backend.
func openStore(ctx context.Context, cfg *config.Config, logger hclog.Logger) (kv.Store, *raft.Raft, func(), error) {
	mem := store.NewMemStore(cfg.Store.Shards)

	if cfg.Store.Backend != config.BackendRaft {
		return mem, nil, func() {}, nil
	}

	rs, err := store.NewRaftStore(mem, store.RaftOptions{
		NodeID:           cfg.Raft.NodeID,
		ApplyTimeout:     cfg.Raft.ApplyTimeout,
		HeartbeatTimeout: cfg.Raft.HeartbeatTimeout,
		ElectionTimeout:  cfg.Raft.ElectionTimeout,
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := rs.WaitForLeader(waitCtx); err != nil {
		rs.Close()
		return nil, nil, nil, err
	}
	logger.Info("raft leader elected", "node_id", cfg.Raft.NodeID)

	closeFn := func() {
		if err := rs.Close(); err != nil {
			logger.Error("raft shutdown failed", "error", err)
		}
	}
	return rs, rs.GetRaft(), closeFn, nil
}
