package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/GoCodeAlone/modhooks/boot"
	"github.com/GoCodeAlone/modhooks/config"
	"github.com/GoCodeAlone/modhooks/plugins"
	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("modhooks v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

type globalOptions struct {
	configPath string
	envFile    string
}

// NewRootCommand creates the root command for the modhooks binary.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "modhooks",
		Short: "modhooks - Pluggable feature modules wired through hooks",
		Long: `modhooks discovers feature modules from manifest files, keeps their
install and enable state in a durable store and wires enabled modules into a
shared hook registry and HTTP router.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Configuration file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Optional .env file overlaid before the environment")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewModulesCommand(opts))
	cmd.AddCommand(NewHooksCommand(opts))
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

// NewVersionCommand prints version information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

func (o *globalOptions) loadConfig() (config.Config, error) {
	l := config.NewLoader()
	if o.configPath != "" {
		if err := l.AddFile(o.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if o.envFile != "" {
		l.AddDotEnv(o.envFile)
	}
	return l.Load()
}

// openRuntime loads configuration and boots a runtime. One-shot commands
// pass watch=false so no rescan triggers are started.
func (o *globalOptions) openRuntime(ctx context.Context, cmd *cobra.Command, watch bool) (*boot.Runtime, *slog.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !watch {
		cfg.Rescan.Watch = false
		cfg.Rescan.Schedule = ""
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	rt, err := boot.New(cfg, plugins.DefaultCatalog(), boot.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	if _, err := rt.Boot(ctx); err != nil {
		_ = rt.Close()
		return nil, nil, err
	}
	return rt, logger, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
