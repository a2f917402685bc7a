// Command client drives the session core from a terminal, sharing the
// daemon's configuration and local state.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrylevesque/firenet/internal/app"
	"github.com/harrylevesque/firenet/internal/config"
	"github.com/harrylevesque/firenet/internal/workers"
)

// version is set at build time via ldflags
var version = "dev"

type cli struct {
	cfgFile string
	verbose bool
	noColor bool
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "firenet",
		Short: "Firenet session client",
		Long: `firenet manages the account session of this device.

Example usage:
  firenet login alice --password-stdin   # Sign in
  firenet status                         # Refresh and show the account status
  firenet logout                         # Sign out and wipe local state`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if c.verbose {
				level = slog.LevelDebug
			}
			c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			if c.noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is ./firenet.yaml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		c.loginCmd(),
		c.statusCmd(),
		c.logoutCmd(),
		c.deviceIDCmd(),
		c.reportUpdateCmd(),
		c.promptSeenCmd(),
		c.keepAliveCmd(),
		c.pushTokenCmd(),
		c.pushCmd(),
	)
	return root
}

// open loads the configuration and builds the core. Callbacks run inline
// since the CLI has no UI thread.
func (c *cli) open() (*app.App, error) {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.Options{Deliver: workers.Inline{}, Logger: c.logger})
}

// withApp runs fn against a freshly opened core and closes it afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := c.open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			c.logger.Warn("close failed", "err", cerr)
		}
	}()
	return fn(cmd.Context(), a)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
