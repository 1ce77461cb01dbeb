// Package cli defines the roster-assist command tree.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwizi/roster-assist/internal/app"
	"github.com/dwizi/roster-assist/internal/config"
	"github.com/dwizi/roster-assist/internal/mcp"
	"github.com/dwizi/roster-assist/internal/policy"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "roster-assist",
		Short:         "Roster Assist answers supervisor questions about the team calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newPolicySidecarCommand(logger))
	root.AddCommand(newAskCommand())
	root.AddCommand(newHistoryCommand())
	root.AddCommand(newPoliciesCommand())
	root.AddCommand(newSeedCommand(logger))
	root.AddCommand(newReindexCommand(logger))
	root.AddCommand(newMCPCommand())
	root.AddCommand(newVersionCommand())

	return root
}

// NewLogger returns a JSON logger at the named level (debug, info, warn,
// error). Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var parsed slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		parsed = slog.LevelDebug
	case "warn", "warning":
		parsed = slog.LevelWarn
	case "error":
		parsed = slog.LevelError
	default:
		parsed = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parsed}))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, policy watcher and reindex scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			runtime, err := app.New(ctx, config.FromEnv(), version, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()
			return runtime.Run(ctx)
		},
	}
}

func newPolicySidecarCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "policy-sidecar",
		Short: "Serve policy search over HTTP for other roster-assist processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg := config.FromEnv()
			// The sidecar always searches its own index.
			cfg.PolicySidecarURL = ""
			core, err := app.NewCore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer core.Close()
			return policy.RunSidecar(ctx, core.Policies, cfg.PolicySidecarAddr, logger)
		},
	}
}

func newReindexCommand(logger *slog.Logger) *cobra.Command {
	var syncDir bool
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the policy vector index from stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			core, err := app.NewCore(ctx, config.FromEnv(), logger)
			if err != nil {
				return err
			}
			defer core.Close()
			if syncDir {
				ingested, err := core.Policies.SyncDirectory(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("ingested %d policy file(s)\n", ingested)
			}
			chunks, err := core.Policies.Reindex(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("indexed %d chunk(s)\n", chunks)
			return nil
		},
	}
	cmd.Flags().BoolVar(&syncDir, "sync-dir", false, "ingest the policy directory before reindexing")
	return cmd
}

func newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assistant as MCP tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg := config.FromEnv()
			// stdout carries the protocol; logs go to stderr.
			logger := NewLogger(os.Stderr, cfg.LogLevel)
			core, err := app.NewCore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer core.Close()
			server := mcp.NewServer(core.Pipeline, core.Search, mcp.Config{
				Version:     version,
				DefaultTopK: cfg.PolicySearchTopK,
			}, logger)
			return server.RunStdio(ctx)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
