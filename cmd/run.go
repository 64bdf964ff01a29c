package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/batch"
	"github.com/sells-group/enrich-cli/internal/export"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/query"
	"github.com/sells-group/enrich-cli/internal/source"
)

// defaultFields is used when neither --fields nor --spec is given.
const defaultFields = "email,location,website,description,phone,social_media"

var (
	runSource      string
	runColumn      string
	runRange       string
	runTemplate    string
	runFields      string
	runSpecFile    string
	runOutput      string
	runConcurrency int
	runQuiet       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich every entity in a source column",
	Long: `Reads entities from --source, renders --template for each one, searches the
web and extracts --fields with the configured LLM. Results go to --output
(CSV, XLSX, sheets://, notion://) or to stdout as CSV.

Interrupting the run stops new entities; in-flight entities get the cancel
grace period and finished results are still written.`,
	Example: `  enrich-cli run --source companies.csv --column company \
    --template "{entity} headquarters contact" --fields email,phone --output results.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		spec, err := resolveSpec(runSpecFile, runTemplate, runFields)
		if err != nil {
			return err
		}

		opts := []batch.Option{}
		if runConcurrency > 0 {
			opts = append(opts, batch.WithConcurrency(runConcurrency))
		}
		if !runQuiet {
			opts = append(opts, batch.WithProgress(progressPrinter(os.Stderr)))
		}

		env, err := initPipeline(ctx, opts...)
		if err != nil {
			return err
		}
		defer env.Close()

		src, err := source.Open(ctx, source.Descriptor{Location: runSource, Column: runColumn, Range: runRange}, env.Tables)
		if err != nil {
			return err
		}
		if err := query.Validate(spec.Template, src.Header()); err != nil {
			return err
		}

		zap.L().Info("starting run",
			zap.String("source", src.Location()),
			zap.String("column", src.Column()),
			zap.Int("entities", src.Len()),
			zap.Strings("fields", spec.FieldNames()),
		)

		run := env.Orchestrator.Process(ctx, runSource, *spec, src.All())

		// Results are written even after an interrupt.
		writeCtx := context.WithoutCancel(ctx)
		written, exportErr := writeResults(writeCtx, &run, runOutput, env)
		if env.Store != nil {
			if err := env.Store.SaveRun(writeCtx, &run); err != nil {
				zap.L().Error("save run failed", zap.String("run_id", run.ID), zap.Error(err))
			}
		}

		printRunSummary(os.Stderr, &run, written)
		return exportErr
	},
}

// resolveSpec builds the query spec from a spec file or from flags. Flags
// override fields set in the file.
func resolveSpec(specFile, template, fields string) (*model.QuerySpec, error) {
	spec := &model.QuerySpec{}
	if specFile != "" {
		loaded, err := model.LoadQuerySpec(specFile)
		if err != nil {
			return nil, err
		}
		spec = loaded
	}
	if template != "" {
		spec.Template = template
	}
	if fields != "" {
		spec.Fields = model.ParseFieldList(fields)
	}
	if len(spec.Fields) == 0 {
		spec.Fields = model.ParseFieldList(defaultFields)
	}
	if err := spec.Validate(); err != nil {
		return nil, eris.Wrap(err, "query spec")
	}
	return spec, nil
}

// writeResults exports run to output, or as CSV to stdout when output is
// empty. It returns the written location, empty for stdout.
func writeResults(ctx context.Context, run *model.BatchRun, output string, env *pipelineEnv) (string, error) {
	if output == "" {
		return "", export.WriteCSV(ctx, run, os.Stdout)
	}
	return export.Export(ctx, run, output, env.Tables)
}

// progressPrinter reports each completed entity on w.
func progressPrinter(w io.Writer) batch.ProgressFunc {
	return func(p model.Progress) {
		if p.Last == nil {
			_, _ = fmt.Fprintf(w, "[%d/%d]\n", p.Completed, p.Total)
			return
		}
		line := fmt.Sprintf("[%d/%d] %s: %s", p.Completed, p.Total, p.Last.Entity, p.Last.Status)
		if p.Last.ErrorCategory != model.CategoryNone {
			line += fmt.Sprintf(" (%s)", p.Last.ErrorCategory)
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

// printRunSummary writes the end-of-run report to w. written is where the
// results went, empty when they were printed to stdout.
func printRunSummary(w io.Writer, run *model.BatchRun, written string) {
	_, _ = fmt.Fprintln(w, export.FormatSummary(run.Summary()))
	if run.Cancelled {
		_, _ = fmt.Fprintf(w, "run cancelled: %d of %d entities not processed\n", run.Total-run.Completed, run.Total)
	}
	if written != "" {
		_, _ = fmt.Fprintf(w, "results written to %s\n", written)
	}
}

func init() {
	runCmd.Flags().StringVar(&runSource, "source", "", "entity table: file path, URL, sheets://<id>, notion://<db> or - for stdin")
	runCmd.Flags().StringVar(&runColumn, "column", "", "entity column name or 0-based index")
	runCmd.Flags().StringVar(&runRange, "range", "", "read range for spreadsheet sources")
	runCmd.Flags().StringVar(&runTemplate, "template", "", "search query template, e.g. \"{entity} contact email\"")
	runCmd.Flags().StringVar(&runFields, "fields", "", "comma-separated fields, each name or name:description (default "+defaultFields+")")
	runCmd.Flags().StringVar(&runSpecFile, "spec", "", "YAML file with template and fields")
	runCmd.Flags().StringVar(&runOutput, "output", "", "result destination (default CSV on stdout)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "entities processed in parallel (default from config)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress per-entity progress")
	_ = runCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(runCmd)
}
