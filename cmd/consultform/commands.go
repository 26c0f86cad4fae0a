package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-consultform/internal/config"
	"github.com/goliatone/go-consultform/internal/server"
	"github.com/goliatone/go-consultform/pkg/orchestrator"
	"github.com/goliatone/go-consultform/pkg/render"
	"github.com/goliatone/go-consultform/pkg/renderers/tui"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/validation"
)

func newLayoutCmd(a *app) *cobra.Command {
	var (
		valuesPath string
		tabOrder   bool
	)
	cmd := &cobra.Command{
		Use:   "layout <section>",
		Short: "Print the grouped layout or tab order of a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cleanup, err := a.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			values, err := readValues(valuesPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			s, err := orch.Open(cmd.Context(), args[0], values)
			if err != nil {
				return err
			}
			defer orch.Close(s.ID)

			if tabOrder {
				var b strings.Builder
				for _, ref := range s.TabOrder() {
					b.WriteString(ref.String())
					b.WriteByte('\n')
				}
				return writeOutput(cmd, "", []byte(b.String()))
			}
			payload, err := json.MarshalIndent(s.Layout(), "", "  ")
			if err != nil {
				return err
			}
			return writeOutput(cmd, "", payload)
		},
	}
	cmd.Flags().StringVar(&valuesPath, "values", "", "JSON file with initial values (- for stdin)")
	cmd.Flags().BoolVar(&tabOrder, "tab-order", false, "print the keyboard order as item.key lines")
	return cmd
}

func newRenderCmd(a *app) *cobra.Command {
	var (
		valuesPath string
		renderer   string
		output     string
		action     string
		method     string
	)
	cmd := &cobra.Command{
		Use:   "render <section>",
		Short: "Render a section as HTML or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cleanup, err := a.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			values, err := readValues(valuesPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			out, err := orch.Generate(cmd.Context(), orchestrator.Request{
				Section:  args[0],
				Values:   values,
				Renderer: renderer,
				RenderOptions: render.RenderOptions{
					Action: action,
					Method: method,
				},
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, output, out)
		},
	}
	cmd.Flags().StringVar(&valuesPath, "values", "", "JSON file with initial values (- for stdin)")
	cmd.Flags().StringVar(&renderer, "renderer", "html", "renderer to use (html, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().StringVar(&action, "action", "", "form action URL")
	cmd.Flags().StringVar(&method, "method", "", "form method")
	return cmd
}

func newFillCmd(a *app) *cobra.Command {
	var (
		valuesPath string
		format     string
		output     string
		noUnits    bool
		noReveal   bool
	)
	cmd := &cobra.Command{
		Use:   "fill <section>",
		Short: "Fill a section interactively and print the saved payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, ok := tui.ParseOutputFormat(format)
			if !ok {
				return fmt.Errorf("unknown format %q", format)
			}
			if valuesPath == "-" {
				return fmt.Errorf("--values - conflicts with interactive prompts")
			}

			orch, cleanup, err := a.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			values, err := readValues(valuesPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			s, err := orch.Open(cmd.Context(), args[0], values)
			if err != nil {
				return err
			}
			defer orch.Close(s.ID)

			filler := tui.New(
				tui.WithPromptDriver(tui.NewSurveyDriver(cmd.ErrOrStderr())),
				tui.WithOutputFormat(outputFormat),
				tui.WithUnitPrompts(!noUnits),
				tui.WithRevealPrompt(!noReveal),
				tui.WithLogger(a.logger),
			)
			out, err := filler.Run(cmd.Context(), s)
			if err != nil {
				return err
			}
			return writeOutput(cmd, output, out)
		},
	}
	cmd.Flags().StringVar(&valuesPath, "values", "", "JSON file with initial values")
	cmd.Flags().StringVar(&format, "format", string(tui.OutputFormatJSON), "output format (json, form, pretty)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&noUnits, "no-units", false, "skip unit selection prompts")
	cmd.Flags().BoolVar(&noReveal, "no-reveal", false, "skip the hidden item prompt")
	return cmd
}

// newCheckCmd validates a template document. It does not need a configured
// template source.
func newCheckCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <template.json>",
		Short: "Validate a template fetch response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			result := validation.CheckTemplate(cmd.Context(), schema.SourceFromFile(args[0]), raw)
			payload, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			if err := writeOutput(cmd, "", payload); err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("template has %d issue(s)", len(result.Issues))
			}
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var (
		basePath string
		grace    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sections as HTML forms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, cleanup, err := a.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			srv := server.New(orch, server.WithLogger(a.logger), server.WithBasePath(basePath))
			return server.ListenAndServe(cmd.Context(), a.cfg.Listen, srv.Handler(), grace, a.logger)
		},
	}
	cmd.Flags().String("listen", ":8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "prefix for section routes")
	cmd.Flags().DurationVar(&grace, "shutdown-grace", 10*time.Second, "graceful shutdown timeout")
	cmd.Flags().Duration("session-ttl", 30*time.Minute, "idle time before an open form session is dropped (0 keeps sessions)")
	cmd.Flags().Int("max-sessions", 1000, "open form sessions kept before the least recently used is dropped (0 for no cap)")
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		panic(err)
	}
	return cmd
}
