package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/holoclient/internal/holo"
)

// NewAppsCommand creates the apps command group.
func NewAppsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage installed apps",
	}
	cmd.AddCommand(newAppsListCommand(rootOpts))
	cmd.AddCommand(newAppsInfoCommand(rootOpts))
	cmd.AddCommand(newAppStatusCommand(rootOpts, "enable", "Enable an installed app"))
	cmd.AddCommand(newAppStatusCommand(rootOpts, "disable", "Disable an installed app"))
	cmd.AddCommand(newAppStatusCommand(rootOpts, "uninstall", "Uninstall an app"))
	return cmd
}

func newAppsListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed apps",
		Long: `List installed apps and their cells.

Examples:
  holoclient apps list
  holoclient apps list --status running --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			admin, err := rootOpts.connectAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer admin.Close()

			apps, err := admin.ListApps(cmd.Context(), holo.AppStatusFilter(status))
			if err != nil {
				_ = out.ClientError(err)
				return clientExit("list apps", err)
			}
			list := make(AppList, len(apps))
			for i, info := range apps {
				list[i] = newAppView(info)
			}
			return out.Success(list)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (enabled|disabled|running|stopped|paused)")
	return cmd
}

func newAppsInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "info",
		Short:         "Show the configured app's cells",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openAgent(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			return rootOpts.formatter(cmd).Success(newAppView(*s.agent.AppInfo()))
		},
	}
}

func newAppStatusCommand(rootOpts *RootOptions, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:           verb + " <app-id>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := rootOpts.formatter(cmd)
			admin, err := rootOpts.connectAdmin(ctx)
			if err != nil {
				return err
			}
			defer admin.Close()

			appID := args[0]
			switch verb {
			case "enable":
				_, err = admin.EnableApp(ctx, appID)
			case "disable":
				err = admin.DisableApp(ctx, appID)
			default:
				err = admin.UninstallApp(ctx, appID)
			}
			if err != nil {
				_ = out.ClientError(err)
				return clientExit(verb+" app", err)
			}
			return out.Success(fmt.Sprintf("%s: %sd", appID, verb))
		},
	}
}
