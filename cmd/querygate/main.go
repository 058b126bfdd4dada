package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/guillermoBallester/querygate/internal/config"
	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const serviceName = "querygate"

var version = "dev"

func main() {
	// A missing .env is fine; explicit environment variables always win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "MCP server that screens SQL through a read-only gatekeeper before it reaches the database",
		Long: `querygate exposes a database to MCP clients. Every statement, whether written by
the client or generated from a natural-language question, is evaluated by the
gatekeeper and only read-only queries over known tables are executed.

Running querygate without a subcommand is the same as "querygate serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := registerFlags(root.PersistentFlags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools over stdio or http",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags.overrides())
		},
	}
	root.RunE = serveCmd.RunE

	root.AddCommand(serveCmd, newCheckCmd(flags), newAskCmd(flags), newVersionCmd())
	return root
}

// setup loads config and builds the logger. Logs go to stderr because stdout
// carries the MCP stdio transport and the output of check and ask.
func setup(overrides config.Overrides) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return cfg, logger, nil
}

func runServe(ctx context.Context, overrides config.Overrides) error {
	cfg, logger, err := setup(overrides)
	if err != nil {
		return err
	}

	logger.Info("starting "+serviceName,
		slog.String("version", version),
		slog.String("database_url", redactDSN(cfg.DatabaseURL)),
		slog.String("db.system", string(cfg.Backend)),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("transport", cfg.Transport),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.Bool("explain_only", cfg.ExplainOnly),
		slog.String("llm_provider", cfg.LLMProvider),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Close(shutdownCtx)
		logger.Info("shutdown complete")
	}()

	if cfg.DryRun {
		if err := a.query.Ping(ctx); err != nil {
			return fmt.Errorf("dry run: %w", err)
		}
		logger.Info("dry run complete, configuration and connectivity OK")
		return nil
	}

	return serve(ctx, a)
}

func newCheckCmd(flags *flagValues) *cobra.Command {
	var sql, database string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one SQL statement with the gatekeeper and print the decision",
		Long: `check prints the gatekeeper decision as JSON without executing the statement.
It exits non-zero when the statement is rejected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags.overrides())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			d, err := a.query.Check(cmd.Context(), database, sql)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), d); err != nil {
				return err
			}
			return d.Err()
		},
	}
	cmd.Flags().StringVar(&sql, "sql", "", "SQL statement to evaluate")
	cmd.Flags().StringVar(&database, "database", "", "schema (Postgres) or database (MySQL) to evaluate against")
	_ = cmd.MarkFlagRequired("sql")
	return cmd
}

func newAskCmd(flags *flagValues) *cobra.Command {
	var question, database string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer a natural-language question with gated, generated SQL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags.overrides())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if a.ask == nil {
				return fmt.Errorf("ask: set LLM_PROVIDER or --llm-provider to enable sql generation")
			}
			out, err := a.ask.Ask(cmd.Context(), database, question)
			if out != nil {
				if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
					return werr
				}
			}
			if reason, ok := domain.RejectionReason(err); ok {
				return fmt.Errorf("generated query rejected by gatekeeper: %s", reason)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&question, "question", "", "question to answer")
	cmd.Flags().StringVar(&database, "database", "", "schema (Postgres) or database (MySQL) to query")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n", serviceName, version)
			fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
