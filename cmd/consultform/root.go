package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goliatone/go-consultform/internal/config"
	"github.com/goliatone/go-consultform/internal/logging"
	"github.com/goliatone/go-consultform/internal/schema/loader"
	"github.com/goliatone/go-consultform/pkg/catalog"
	"github.com/goliatone/go-consultform/pkg/orchestrator"
	"github.com/goliatone/go-consultform/pkg/prefs"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/units"
)

// app carries what every subcommand shares once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New(), logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "consultform",
		Short:         "Render, fill and serve consultation template sections",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, a.configFile)
			if err != nil {
				return err
			}
			logger, err := logging.NewWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogPretty)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("template-source", "", "template fetch URL or file path")
	flags.String("tiers-file", "", "YAML file with required/optional item lists")
	flags.String("overrides-file", "", "YAML file with specialty range overrides")
	flags.String("preset-file", "", "JSON file with label and placeholder presets")
	flags.String("specialty", "", "specialty whose range overrides apply")
	flags.String("prefs-dsn", "", "SQLite DSN for persisted preferences (in-memory when empty)")
	flags.String("log-level", "info", "log level")
	flags.Bool("log-pretty", false, "human readable logs")
	flags.Duration("http-timeout", 0, "template fetch timeout")
	if err := config.BindFlags(a.v, flags); err != nil {
		panic(err)
	}

	root.AddCommand(
		newLayoutCmd(a),
		newRenderCmd(a),
		newFillCmd(a),
		newCheckCmd(a),
		newServeCmd(a),
	)
	return root
}

// orchestrator builds the engine from the loaded configuration. The returned
// cleanup closes the preference store.
func (a *app) orchestrator(ctx context.Context) (*orchestrator.Orchestrator, func(), error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	src, err := schema.ParseSource(a.cfg.TemplateSource)
	if err != nil {
		return nil, nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithSource(src),
		orchestrator.WithLoader(loader.New(schema.NewLoaderOptions(schema.WithHTTPFallback(a.cfg.HTTPTimeout)))),
		orchestrator.WithSpecialty(a.cfg.Specialty),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithSessionTTL(a.cfg.SessionTTL),
		orchestrator.WithMaxSessions(a.cfg.MaxSessions),
	}

	if a.cfg.TiersFile != "" {
		raw, err := os.ReadFile(a.cfg.TiersFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read tiers file: %w", err)
		}
		tiers, err := catalog.LoadTierConfig(bytes.NewReader(raw))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, orchestrator.WithTiers(catalog.DefaultTierConfig().Merge(tiers)))
	}

	if a.cfg.OverridesFile != "" {
		raw, err := os.ReadFile(a.cfg.OverridesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read overrides file: %w", err)
		}
		overrides, err := units.LoadOverrides(bytes.NewReader(raw))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, orchestrator.WithOverrides(overrides))
	}

	if a.cfg.PresetFile != "" {
		raw, err := os.ReadFile(a.cfg.PresetFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read preset file: %w", err)
		}
		preset, err := orchestrator.NewPresetTransformer(raw)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, orchestrator.WithTransformers(preset))
	}

	cleanup := func() {}
	if a.cfg.PrefsDSN != "" {
		store, err := prefs.OpenSQLite(ctx, a.cfg.PrefsDSN)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, orchestrator.WithPrefs(store))
		cleanup = func() {
			if err := store.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("close preference store")
			}
		}
	}

	return orchestrator.New(opts...), cleanup, nil
}

// readValues loads initial field values from a JSON file; "-" reads stdin.
func readValues(path string, stdin io.Reader) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return values, nil
}

func writeOutput(cmd *cobra.Command, path string, payload []byte) error {
	if path == "" {
		out := cmd.OutOrStdout()
		if _, err := out.Write(payload); err != nil {
			return err
		}
		if len(payload) > 0 && payload[len(payload)-1] != '\n' {
			_, err := io.WriteString(out, "\n")
			return err
		}
		return nil
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "written to %s\n", path)
	return nil
}
