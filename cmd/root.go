// Package cmd defines and implements the CLI commands for the munidist executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/municipal-distances/internal/app"
	"github.com/JakeFAU/municipal-distances/internal/config"
	"github.com/JakeFAU/municipal-distances/internal/logging"
)

// closeTimeout bounds the final progress flush and sink shutdown.
const closeTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Build(ctx context.Context, out string, skipRoutes bool) (app.Result, error)
	Rebuild(ctx context.Context, out string) (app.Result, error)
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logging.Sync(logger)
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "munidist",
		Short: "Builds the municipality distance and development-score dataset.",
		Long: `munidist lists every municipality of a Brazilian state, joins its 2010
municipal human development score, and computes the geodesic and road distance
to a reference city. Every external answer is cached on disk, so interrupted
runs resume where they stopped and repeated runs cost no network calls.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Build the application before the subcommand's RunE and store it in the
		// context for subcommands to use.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newRebuildCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp runs fn against the injected App and always closes it, so progress
// events and metrics are flushed even when fn fails.
func withApp(cmd *cobra.Command, fn func(App) error) (err error) {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := appInstance.Close(ctx); cerr != nil {
			appInstance.Logger().Warn("Failed to close application services", zap.Error(cerr))
		}
		logging.Sync(appInstance.Logger())
	}()
	if err := fn(appInstance); err != nil {
		appInstance.Logger().Error("run failed", zap.Error(err))
		return err
	}
	return nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the run between
// cache writes.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "munidist: %v\n", err)
		os.Exit(1)
	}
}
