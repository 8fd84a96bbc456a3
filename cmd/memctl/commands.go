package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mshafei721/ADOS-sub001/memory"
	"github.com/mshafei721/ADOS-sub001/server"
)

var (
	statusJSON bool
	httpAddr   string
	grpcAddr   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize every tier and report which came up",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(cmd.Context(), false, func(c *memory.Coordinator) error {
			return printStatus(cmd, c.MemoryStatus(cmd.Context()))
		})
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <crew> <tier> <content...>",
	Short: "Write content to a crew's memory tier",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := memory.ParseTier(args[1])
		if err != nil {
			return err
		}
		content := strings.Join(args[2:], " ")
		return withCoordinator(cmd.Context(), true, func(c *memory.Coordinator) error {
			return c.Write(cmd.Context(), args[0], tier, content)
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read <crew> <tier> [query...]",
	Short: "Print a crew's memory from a tier",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := memory.ParseTier(args[1])
		if err != nil {
			return err
		}
		query := strings.Join(args[2:], " ")
		return withCoordinator(cmd.Context(), false, func(c *memory.Coordinator) error {
			out, err := c.Read(cmd.Context(), args[0], tier, query)
			if errors.Is(err, memory.ErrNotFound) {
				fmt.Fprintln(cmd.ErrOrStderr(), "no memory found")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tier readiness and per-crew statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(cmd.Context(), false, func(c *memory.Coordinator) error {
			return printStatus(cmd, c.MemoryStatus(cmd.Context()))
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rewrite crew files, mirror them and persist the vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(cmd.Context(), true, func(*memory.Coordinator) error {
			return nil
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve memory over websocket with gRPC health checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withCoordinator(ctx, true, func(c *memory.Coordinator) error {
			return server.New(c).Serve(ctx, httpAddr, grpcAddr)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the memctl version",
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "memctl", version)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
	initCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
	serveCmd.Flags().StringVar(&httpAddr, "http", ":8080", "websocket and status listen address")
	serveCmd.Flags().StringVar(&grpcAddr, "grpc", ":9090", "gRPC health listen address (empty disables)")

	rootCmd.AddCommand(initCmd, writeCmd, readCmd, statusCmd, syncCmd, serveCmd, versionCmd)
	rootCmd.SetContext(context.Background())
}

func printStatus(cmd *cobra.Command, st memory.Status) error {
	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
	return nil
}
