package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"retailqa/internal/export"
	"retailqa/internal/nlq"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question about the registered data.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			pipe, err := s.pipeline(ctx)
			if err != nil {
				return err
			}
			asker := nlq.NewAssistant(s.catalog(), pipe.Controller, s.log)
			res, err := asker.AskQuestion(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.AnswerText)
			s.log.Info("answered", "attempts_used", res.AttemptsUsed, "succeeded", res.Succeeded)
			return nil
		},
	}
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print an executive summary of the sales data.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			pipe, err := s.pipeline(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, strings.Join(pipe.Summarizer.Sections(ctx), "\n\n"))
				return nil
			}
			text, err := pipe.Summarizer.Summarize(ctx)
			if err != nil {
				s.log.Warn("summary degraded to raw data", "error", err)
			}
			fmt.Fprintln(out, text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the underlying tables without calling the model")
	return cmd
}

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema description given to the model.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			schema, err := s.store.Describe(ctx)
			if err != nil {
				return err
			}
			if len(schema) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tables registered. Use --data name=path.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), schema.Text())
			return nil
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		query   string
		outPath string
		bucket  string
		key     string
		maxRows int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run a read-only query and write the result as Parquet.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if strings.TrimSpace(query) == "" || strings.TrimSpace(outPath) == "" {
				return fmt.Errorf("--sql and --out are required")
			}
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			res := nlq.NewSQLExecutor(s.store, maxRows).Execute(ctx, query)
			if !res.OK {
				return fmt.Errorf("%s: %s", res.Kind, res.Message)
			}
			if err := export.WriteParquet(outPath, res.Columns, res.Rows); err != nil {
				return err
			}
			s.log.Info("wrote parquet", "path", outPath, "rows", len(res.Rows))

			if bucket == "" {
				return nil
			}
			if key == "" {
				key = filepath.Base(outPath)
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return fmt.Errorf("load aws config: %w", err)
			}
			if err := export.UploadS3(ctx, s3.NewFromConfig(awsCfg), bucket, key, outPath); err != nil {
				return err
			}
			s.log.Info("uploaded parquet", "bucket", bucket, "key", key)
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "sql", "", "read-only SQL to run")
	cmd.Flags().StringVar(&outPath, "out", "", "output Parquet file")
	cmd.Flags().StringVar(&bucket, "s3-bucket", "", "also upload to this bucket")
	cmd.Flags().StringVar(&key, "s3-key", "", "object key (defaults to the file name)")
	cmd.Flags().IntVar(&maxRows, "max-rows", 10000, "row cap for the export")
	return cmd
}

