package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/heysubinoy/pyazkv/api/kvrpc"
	"github.com/heysubinoy/pyazkv/pkg/kv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultAddr = "127.0.0.1:9090"

type cliOptions struct {
	addr    string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "kv-cli",
		Short:        "Command-line client for the pyazkv gRPC API",
		SilenceUsage: true,
	}

	addr := os.Getenv("KV_GRPC_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "gRPC server address (env KV_GRPC_ADDR)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "per-call timeout")

	root.AddCommand(
		newGetCmd(opts),
		newPutCmd(opts),
		newDeleteCmd(opts),
		newListCmd(opts),
	)
	return root
}

// withClient dials the server, runs fn with a timeout-bound context, and
// closes the connection.
func withClient(cmd *cobra.Command, opts *cliOptions, fn func(ctx context.Context, c *kvrpc.Client) error) error {
	// Use passthrough resolver for direct address connection
	conn, err := grpc.NewClient("passthrough:///"+opts.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	return fn(ctx, kvrpc.NewClient(conn))
}

func newGetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *kvrpc.Client) error {
				v, err := c.Get(ctx, args[0])
				if errors.Is(err, kv.ErrNotFound) {
					return fmt.Errorf("key '%s' not found", args[0])
				}
				if err != nil {
					return fmt.Errorf("get failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(v))
				return nil
			})
		},
	}
}

func newPutCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Create or update key; value is parsed as JSON, else stored as a string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := parseValue(args[1])
			return withClient(cmd, opts, func(ctx context.Context, c *kvrpc.Client) error {
				created, err := c.Put(ctx, args[0], value)
				if err != nil {
					return fmt.Errorf("put failed: %w", err)
				}
				verb := "Updated"
				if created {
					verb = "Created"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s '%s' = %s\n", verb, args[0], value)
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *kvrpc.Client) error {
				err := c.Delete(ctx, args[0])
				if errors.Is(err, kv.ErrNotFound) {
					return fmt.Errorf("key '%s' not found", args[0])
				}
				if err != nil {
					return fmt.Errorf("delete failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted '%s'\n", args[0])
				return nil
			})
		},
	}
}

func newListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every key and value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *kvrpc.Client) error {
				all, err := c.List(ctx)
				if err != nil {
					return fmt.Errorf("list failed: %w", err)
				}
				renderTable(cmd.OutOrStdout(), all)
				return nil
			})
		},
	}
}

// parseValue keeps valid JSON as-is and wraps anything else as a JSON string.
func parseValue(s string) kv.Value {
	if kv.ValidateValue(kv.Value(s)) == nil {
		return kv.Value(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}

func renderTable(w io.Writer, all map[string]kv.Value) {
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "Value"})
	table.SetAutoWrapText(false)
	for _, k := range keys {
		table.Append([]string{k, string(all[k])})
	}
	table.SetFooter([]string{"", fmt.Sprintf("%d keys", len(keys))})
	table.Render()
}
