package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/lucidra-engine/internal/assessment"
	"github.com/joelkehle/lucidra-engine/internal/findings"
	"github.com/joelkehle/lucidra-engine/internal/render"
	"github.com/joelkehle/lucidra-engine/internal/session"
)

func assessCmd(configPath *string) *cobra.Command {
	var (
		input     string
		output    string
		format    string
		sourceArg string
	)
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess a snapshot file once",
		Long: `Assess reads a snapshot JSON file, runs the full pipeline, and writes
the result. A snapshot may carry full sections or a "content" map of
section id to lines.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return fmt.Errorf("missing required --input")
			}
			cfg, logger, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			sources := cfg.FindingSources()
			if cmd.Flags().Changed("findings") {
				sources = findings.ParseSources(sourceArg)
			}
			engine, err := buildEngine(cfg, sources, logger)
			if err != nil {
				return err
			}
			snap, err := session.LoadSnapshotFile(input)
			if err != nil {
				return err
			}
			r, err := engine.Run(cmd.Context(), snap, func(stage, message string) {
				logger.Info(message, zap.String("stage", stage))
			})
			if err != nil {
				return fmt.Errorf("assessment failed at %s: %w", assessment.StageNameFromError(err), err)
			}
			out, err := formatReport(r, format, time.Now())
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, out)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Snapshot JSON file")
	cmd.Flags().StringVar(&output, "output", "", "Output file (defaults to stdout)")
	cmd.Flags().StringVar(&format, "format", "md", "Output format: md, json, csv or envelope")
	cmd.Flags().StringVar(&sourceArg, "findings", "", "Findings sources: none, static, anthropic, openai (comma-separated)")
	return cmd
}

func formatReport(r assessment.Report, format string, now time.Time) ([]byte, error) {
	switch strings.ToLower(format) {
	case "md", "markdown":
		return []byte(assessment.BuildMarkdown(r)), nil
	case "json":
		return assessment.ExportJSON(r, now)
	case "csv":
		return assessment.ExportCSV(r)
	case "envelope":
		return json.MarshalIndent(assessment.BuildResponse(r), "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func renderCmd(configPath *string) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Re-render a saved report envelope as markdown, HTML or PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" {
				return fmt.Errorf("--input and --output are required")
			}
			cfg, logger, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			blob, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			var env assessment.ResponseEnvelope
			if err := json.Unmarshal(blob, &env); err != nil {
				return fmt.Errorf("decode envelope: %w", err)
			}
			env, err = assessment.RebuildResponseFromEnvelope(env)
			if err != nil {
				return fmt.Errorf("rebuild report: %w", err)
			}

			r := render.New(render.WithChromePath(cfg.ChromePath))
			var out []byte
			switch strings.ToLower(filepath.Ext(output)) {
			case ".md":
				out = []byte(env.ReportMarkdown)
			case ".html", ".htm":
				doc, err := r.HTML(env)
				if err != nil {
					return err
				}
				out = []byte(doc)
			case ".pdf":
				if out, err = r.PDF(cmd.Context(), env); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported output extension %q", filepath.Ext(output))
			}
			logger.Info("report rendered", zap.String("output", output), zap.Int("bytes", len(out)))
			return session.WriteFileAtomic(output, out)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Saved response envelope JSON")
	cmd.Flags().StringVar(&output, "output", "", "Output file (.md, .html or .pdf)")
	return cmd
}

func writeOutput(stdout io.Writer, path string, out []byte) error {
	if path == "" {
		_, err := stdout.Write(out)
		return err
	}
	return session.WriteFileAtomic(path, out)
}
