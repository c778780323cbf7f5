// Command hazgraph ingests documents into the safety knowledge graph and
// answers questions against it, using the backends configured in the
// environment.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/hazgraph/internal/app"
	"github.com/OFFIS-RIT/hazgraph/internal/util"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
	fileio "github.com/OFFIS-RIT/hazgraph/pkg/loader/io"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader/web"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hazgraph",
		Short:         "Safety knowledge graph ingestion and query",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.LoadEnv()
			app.InitLogger("hazgraph")
		},
	}
	cmd.AddCommand(ingestCmd(), queryCmd(), statsCmd(), reviewCmd())
	return cmd
}

// withApp builds the app from the environment and runs fn until it returns
// or the process is interrupted.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.ConfigFromEnv())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ingestCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "ingest <file|url>...",
		Short: "Ingest local files or web documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				files := fileio.NewFileSource()
				pages := web.NewSource(nil)

				var all []common.IngestionOutcome
				for _, name := range args {
					var (
						data []byte
						err  error
					)
					if web.IsURL(name) {
						data, err = pages.Fetch(ctx, name)
					} else {
						data, err = files.Fetch(ctx, name)
						name = filepath.Base(name)
					}
					if err != nil {
						return fmt.Errorf("fetch %s: %w", name, err)
					}

					outcomes, err := a.Pipeline.Ingest(ctx, loader.RawInput{
						Name:        name,
						Data:        data,
						FormatHint:  format,
						RetrievedAt: time.Now().UTC(),
					})
					if err != nil {
						return fmt.Errorf("ingest %s: %w", name, err)
					}
					all = append(all, outcomes...)
				}
				return printJSON(all)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Format hint (text, markdown, html, pdf, csv, xlsx, json)")
	return cmd
}

func queryCmd() *cobra.Command {
	var (
		sources    bool
		maxResults int
		trace      bool
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the graph and the indexed chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				req := common.QueryRequest{
					Question:       args[0],
					MaxResults:     maxResults,
					IncludeSources: sources,
				}
				if !trace {
					answer, err := a.Engine.Query(ctx, req)
					if err != nil {
						return err
					}
					return printJSON(answer)
				}
				answer, snap, err := a.Engine.QueryWithTrace(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"answer": answer, "trace": snap})
			})
		},
	}
	cmd.Flags().BoolVar(&sources, "sources", true, "Include sources in the answer")
	cmd.Flags().IntVar(&maxResults, "max", 0, "Maximum results per retrieval path (0 uses the default)")
	cmd.Flags().BoolVar(&trace, "trace", false, "Print the query trace")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print node, edge and chunk counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				stats, err := a.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(stats)
			})
		},
	}
}

func reviewCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List entities waiting for manual identity resolution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				items, err := a.History.ListReview(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum items to list")
	return cmd
}
