package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/holoclient/internal/config"
	"github.com/roach88/holoclient/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	AdminURL   string
	AppURL     string
	AppID      string

	// Config and Logger are resolved before any subcommand runs.
	Config config.Config
	Logger zerolog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the holoclient CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "holoclient",
		Short: "Holochain conductor client",
		Long: `Talk to a Holochain conductor over its admin and app websocket interfaces.

Manages installed apps, authorizes signing credentials, drives the
clone-cell lifecycle and makes signed zome calls.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file")
	cmd.PersistentFlags().StringVar(&opts.AdminURL, "admin-url", "", "admin interface url (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.AppURL, "app-url", "", "app interface url (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.AppID, "app-id", "", "installed app id (overrides config)")

	cmd.AddCommand(NewAppsCommand(opts))
	cmd.AddCommand(NewAgentKeyCommand(opts))
	cmd.AddCommand(NewInterfacesCommand(opts))
	cmd.AddCommand(NewAuthorizeCommand(opts))
	cmd.AddCommand(NewStorageInfoCommand(opts))
	cmd.AddCommand(NewNetworkStatsCommand(opts))
	cmd.AddCommand(NewCloneCommand(opts))
	cmd.AddCommand(NewCallCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve loads the config file, applies flag overrides and builds the
// command logger.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if o.AdminURL != "" {
		cfg.AdminURL = o.AdminURL
	}
	if o.AppURL != "" {
		cfg.AppURL = o.AppURL
	}
	if o.AppID != "" {
		cfg.AppID = o.AppID
	}
	o.Config = cfg

	lc := logging.DefaultConfig(logging.ProfileRuntime)
	lc.Apply(cfg.Log.Level, cfg.Log.Format)
	if o.Verbose {
		lc.Level = zerolog.DebugLevel
	}
	lc.ApplyEnv(os.Getenv)
	o.Logger = logging.New(lc, cmd.ErrOrStderr()).With().Str("component", "cli").Logger()
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
