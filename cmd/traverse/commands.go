package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rafbgarcia/traverse/internal/config"
	"github.com/rafbgarcia/traverse/internal/watcher"
	"github.com/rafbgarcia/traverse/scripting"
)

func newRoutesCmd(opts *options) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the application's named routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := printRoutes(cmd.OutOrStdout(), opts.configPath); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchRoutes(cmd, opts.configPath)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reprint routes when the config file changes")
	return cmd
}

func printRoutes(out io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPATTERN")
	for _, r := range cfg.Routes {
		fmt.Fprintf(tw, "%s\t%s\n", r.Name, r.Pattern)
	}
	return tw.Flush()
}

func watchRoutes(cmd *cobra.Command, path string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	changes := make(chan struct{}, 1)
	w := watcher.New(path, func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	if err := w.Start(); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	defer w.Stop()

	for {
		select {
		case <-changes:
			fmt.Fprintf(cmd.OutOrStdout(), "\n[change] %s\n", path)
			if err := printRoutes(cmd.OutOrStdout(), path); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func newURLCmd(opts *options) *cobra.Command {
	var relative bool
	cmd := &cobra.Command{
		Use:   "url NAME [key=value...]",
		Short: "Generate the URL of a named route",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			return runScript(cmd, opts, func(env *scripting.Env) error {
				var url string
				if relative {
					url, err = env.Request.RoutePath(args[0], params)
				} else {
					url, err = env.Request.RouteURL(args[0], params)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&relative, "path", false, "Print the path only")
	return cmd
}

func newRenderCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "render TEMPLATE [key=value...]",
		Short: "Render a template with the given values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			return runScript(cmd, opts, func(env *scripting.Env) error {
				data := map[string]any{
					"Settings": env.Registry.Settings(),
					"Root":     env.Root,
				}
				for k, v := range params {
					data[k] = v
				}
				return env.Request.Render(cmd.OutOrStdout(), args[0], data)
			})
		},
	}
}

func newSettingsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Print the application settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, opts, func(env *scripting.Env) error {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(map[string]any(env.Registry.Settings())); err != nil {
					return err
				}
				return enc.Close()
			})
		},
	}
}
