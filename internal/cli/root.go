// Package cli is the agentbuilder command line: an interactive chat with the
// configured persona plus knowledge and action inspection commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

type rootOptions struct {
	envFile     string
	personaPath string
}

// appFactory builds the App for a command. Tests swap in fake providers.
type appFactory func(ctx context.Context, cfg AppConfig, personaPath string) (*App, error)

func defaultAppFactory(ctx context.Context, cfg AppConfig, personaPath string) (*App, error) {
	return Bootstrap(ctx, cfg, personaPath, nil)
}

// opener loads configuration, initialises logging and wires the App.
type opener func(cmd *cobra.Command) (*App, error)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultAppFactory)
}

func newRootCmd(factory appFactory) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "agentbuilder",
		Short: "Knowledge-augmented dialogue agent",
		Long: `agentbuilder runs a persona-driven dialogue agent that retrieves knowledge,
asks a language model for a structured reply, validates it and dispatches
the actions it requests.

Configuration comes from the environment (and .env for local runs).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&opts.personaPath, "persona", "", "persona YAML file (defaults to the built-in sales persona)")

	open := func(cmd *cobra.Command) (*App, error) {
		cfg, err := LoadConfig(opts.envFile)
		if err != nil {
			return nil, err
		}
		logx.Init(logx.LoggerOpts{
			Environment: cfg.Environment,
			Level:       cfg.LogLevel,
			Output:      cmd.ErrOrStderr(),
		})
		return factory(cmd.Context(), cfg, opts.personaPath)
	}

	root.AddCommand(
		newChatCmd(open),
		newDemoCmd(open),
		newKnowledgeCmd(open),
		newActionsCmd(open),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentbuilder %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
		},
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
