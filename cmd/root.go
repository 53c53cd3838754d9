// Package cmd defines and implements the CLI commands for the websearch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch-crawler/internal/app"
	"github.com/JakeFAU/websearch-crawler/internal/config"
	"github.com/JakeFAU/websearch-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// cli carries state shared between the root hooks and the subcommands.
type cli struct {
	cfgFile string
	appOpts []app.Option
	app     *app.App
}

// newRootCmd creates and configures the root command. appOpts are passed
// to app.New, which lets tests inject a fake browser launcher.
func newRootCmd(appOpts ...app.Option) (*cobra.Command, *cli) {
	c := &cli{appOpts: appOpts}

	cmd := &cobra.Command{
		Use:   "websearch",
		Short: "Real-time web search through a headless browser.",
		Long: `websearch queries public search engines through a stealth headless
browser, falls back across engines when one blocks or fails, enriches the top
results with page metadata and prints them as a numbered citation block.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, logging.WithLevel(cfg.Logging.Level))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := app.New(cfg, logger, c.appOpts...)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			c.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			c.close()
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())

	return cmd, c
}

// close shuts the application down. Cobra skips PersistentPostRun when a
// command fails, so run calls it as well.
func (c *cli) close() {
	if c.app == nil {
		return
	}
	if err := c.app.Close(context.Background()); err != nil {
		c.app.Logger.Warn("Failed to close application", zap.Error(err))
	}
	_ = c.app.Logger.Sync()
}

// resolveApp extracts the application from the command context.
func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// run executes the CLI with args, writing command output to out.
func run(ctx context.Context, args []string, out io.Writer, appOpts ...app.Option) error {
	root, c := newRootCmd(appOpts...)
	root.SetArgs(args)
	root.SetOut(out)
	defer c.close()
	if err := root.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

// Execute is the main entry point.
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
