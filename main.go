package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	_ "github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse/mssql"
	_ "github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse/postgres"
	_ "github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse/sqlite"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
	"github.com/ekaya-inc/ekaya-etl/pkg/services"
	"github.com/ekaya-inc/ekaya-etl/pkg/source"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type rootOptions struct {
	configPath string
	format     string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "ekaya-etl",
		Short:        "Profile a dataset, generate an ETL script, run it and verify the load",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case formatText, formatJSON, formatYAML:
				return nil
			default:
				return fmt.Errorf("unknown --format %q (want text, json or yaml)", opts.format)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to the config file")
	root.PersistentFlags().StringVar(&opts.format, "format", formatText, "output format: text, json or yaml")

	root.AddCommand(
		newRunCommand(opts),
		newProfileCommand(opts),
		newStatusCommand(opts),
		newListCommand(opts),
		newRevalidateCommand(opts),
	)
	return root
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var requirements string
	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Run the full pipeline for a local path or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			id := models.NewWorkflowIDGenerator(time.Now()).Next(time.Now())
			stop := cancelOnSignal(orch, id, a.logger)
			defer stop()

			rec, err := orch.Run(ctx, services.RunRequest{
				File:         source.Describe(args[0]),
				Requirements: requirements,
				WorkflowID:   id,
			})
			if err != nil {
				return fmt.Errorf("run workflow: %w", err)
			}
			if err := writeRecord(cmd.OutOrStdout(), opts.format, rec); err != nil {
				return err
			}
			if rec.Status == models.WorkflowStatusFailed {
				return fmt.Errorf("workflow %s failed: %s", rec.WorkflowID, rec.FailureCause)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&requirements, "requirements", "r", "", "free-text transformation requirements")
	return cmd
}

func newProfileCommand(opts *rootOptions) *cobra.Command {
	var insights bool
	cmd := &cobra.Command{
		Use:   "profile <source>",
		Short: "Profile a dataset without generating a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			ds, err := a.loader().Load(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load source: %w", err)
			}
			profile, err := a.profiler().Profile(ctx, ds)
			if err != nil {
				return fmt.Errorf("profile source: %w", err)
			}

			if insights {
				annotator, err := a.annotator()
				if err != nil {
					return err
				}
				annotated, err := annotator.Annotate(ctx, source.Describe(args[0]), profile)
				if err != nil {
					a.logger.Warn("Insight generation failed", zap.Error(err))
				} else {
					profile = annotated
				}
			}

			format := opts.format
			if format == formatText {
				format = formatYAML
			}
			return encode(cmd.OutOrStdout(), format, profile)
		},
	}
	cmd.Flags().BoolVar(&insights, "insights", false, "annotate the profile with model-generated insight text")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:   "status <workflow-id>",
		Short: "Show a stored workflow record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if history {
				snapshots, err := a.store.History(ctx, args[0])
				if err != nil {
					return fmt.Errorf("load history: %w", err)
				}
				if opts.format != formatText {
					return encode(cmd.OutOrStdout(), opts.format, snapshots)
				}
				return writeList(cmd.OutOrStdout(), snapshots)
			}

			rec, err := a.store.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load workflow: %w", err)
			}
			return writeRecord(cmd.OutOrStdout(), opts.format, rec)
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "show every recorded transition")
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent workflows, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			records, err := a.store.List(ctx, limit)
			if err != nil {
				return fmt.Errorf("list workflows: %w", err)
			}
			if opts.format != formatText {
				return encode(cmd.OutOrStdout(), opts.format, records)
			}
			return writeList(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of workflows")
	return cmd
}

func newRevalidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revalidate <workflow-id>",
		Short: "Re-check the warehouse for a finished workflow without changing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			rec, err := orch.Revalidate(ctx, args[0])
			if err != nil {
				return fmt.Errorf("revalidate: %w", err)
			}
			return writeRecord(cmd.OutOrStdout(), opts.format, rec)
		},
	}
}

// cancelOnSignal cancels the workflow on SIGINT or SIGTERM. The running
// stage finishes first.
func cancelOnSignal(orch services.PipelineOrchestrator, workflowID string, logger *zap.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received signal, cancelling workflow",
				zap.String("signal", sig.String()),
				zap.String("workflow_id", workflowID))
			orch.Cancel(workflowID)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func writeRecord(w io.Writer, format string, rec *models.WorkflowRecord) error {
	if format == formatText {
		_, err := io.WriteString(w, services.RenderSummary(rec))
		return err
	}
	return encode(w, format, rec)
}

func writeList(w io.Writer, records []*models.WorkflowRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKFLOW ID\tSTATUS\tUPDATED\tFILE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.WorkflowID, r.Status, r.UpdatedAt.UTC().Format(time.RFC3339), r.File.Filename)
	}
	return tw.Flush()
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}
