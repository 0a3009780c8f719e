package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/rafbgarcia/traverse"
	"github.com/rafbgarcia/traverse/internal/config"
	"github.com/rafbgarcia/traverse/scripting"
)

// buildApp configures an App from cfg. Log output goes to logOut.
func buildApp(cfg config.Config, logOut io.Writer, verbose bool) (*traverse.App, error) {
	level, err := traverse.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	app := traverse.NewApp(cfg.Name)
	app.SetLogger(traverse.NewLoggerTo(logOut, level).With("app", cfg.Name))
	app.SetSettings(cfg.Settings)

	for _, r := range cfg.Routes {
		if err := app.NamedRoute(r.Name, r.Pattern); err != nil {
			return nil, err
		}
	}
	if cfg.Templates.Dir != "" {
		if err := app.Templates(os.DirFS(cfg.Templates.Dir), cfg.Templates.Patterns...); err != nil {
			return nil, err
		}
	}
	if cfg.Database.Driver != "" {
		if err := app.Database(cfg.Database.Driver, cfg.Database.DSN); err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
	}
	return app, nil
}

// runScript loads the configured app, publishes it and runs fn inside a
// prepared scripting environment.
func runScript(cmd *cobra.Command, opts *options, fn func(env *scripting.Env) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	app, err := buildApp(cfg, cmd.ErrOrStderr(), opts.verbose)
	if err != nil {
		return err
	}
	defer app.Close()

	regs := traverse.NewRegistries()
	app.Publish(regs)

	return scripting.With(cmd.Context(), scripting.Options{Registries: regs}, fn)
}

// parseParams turns key=value arguments into a map.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		params[k] = v
	}
	return params, nil
}
