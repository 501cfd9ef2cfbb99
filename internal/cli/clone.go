package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/holoclient/internal/clone"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/signing"
)

// agentCommand builds a leaf command that runs fn against an agent bound
// to the configured app and prints its result.
func agentCommand(rootOpts *RootOptions, use, short string, args cobra.PositionalArgs, fn func(cmd *cobra.Command, s *appSession, args []string) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			s, err := rootOpts.openAgent(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := fn(cmd, s, args)
			if err != nil {
				_ = out.ClientError(err)
				return clientExit(cmd.Name(), err)
			}
			return out.Success(result)
		},
	}
}

// NewCloneCommand creates the clone command group.
func NewCloneCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Manage clone cells of the configured app",
		Long: `Create, enable, disable and delete clone cells.

A clone is created enabled. Only a disabled clone can be deleted, and a
deleted clone cannot come back.

Examples:
  holoclient --app-id chat-app clone create chat --seed room-1
  holoclient --app-id chat-app clone disable chat.0
  holoclient --app-id chat-app clone delete chat.0`,
	}

	cmd.AddCommand(newCloneCreateCommand(rootOpts))
	cmd.AddCommand(cloneTransitionCommand(rootOpts, "enable", "Enable a disabled clone cell",
		func(cmd *cobra.Command, s *appSession, id holo.CloneCellID) (clone.Record, error) {
			return s.agent.EnableCloneCell(cmd.Context(), id)
		}))
	cmd.AddCommand(cloneTransitionCommand(rootOpts, "disable", "Disable an enabled clone cell",
		func(cmd *cobra.Command, s *appSession, id holo.CloneCellID) (clone.Record, error) {
			return s.agent.DisableCloneCell(cmd.Context(), id)
		}))
	cmd.AddCommand(cloneTransitionCommand(rootOpts, "delete", "Delete a disabled clone cell",
		func(cmd *cobra.Command, s *appSession, id holo.CloneCellID) (clone.Record, error) {
			return s.agent.DeleteCloneCell(cmd.Context(), id)
		}))
	cmd.AddCommand(agentCommand(rootOpts, "delete-disabled <role>", "Delete every disabled clone of a role", cobra.ExactArgs(1),
		func(cmd *cobra.Command, s *appSession, args []string) (interface{}, error) {
			recs, err := s.agent.Clones().DeleteDisabled(cmd.Context(), s.agent.AppID(), args[0])
			if err != nil {
				return nil, err
			}
			return newCloneList(recs), nil
		}))
	cmd.AddCommand(agentCommand(rootOpts, "list", "List tracked clone cells", cobra.NoArgs,
		func(cmd *cobra.Command, s *appSession, _ []string) (interface{}, error) {
			recs, err := s.agent.Clones().List(cmd.Context(), s.agent.AppID())
			if err != nil {
				return nil, err
			}
			return newCloneList(recs), nil
		}))
	return cmd
}

func newCloneCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		name      string
		seed      string
		credsPath string
	)

	cmd := agentCommand(rootOpts, "create <role>", "Create a clone cell of a role", cobra.ExactArgs(1),
		func(cmd *cobra.Command, s *appSession, args []string) (interface{}, error) {
			ctx := cmd.Context()
			p := holo.CreateCloneCellPayload{
				RoleName:  args[0],
				Modifiers: holo.DnaModifiersOpt{}.WithNetworkSeed(seed),
			}
			if name != "" {
				p.Name = &name
			}
			rec, err := s.agent.CreateCloneCell(ctx, p)
			if err != nil {
				return nil, err
			}
			if credsPath != "" {
				creds, err := s.admin.AuthorizeSigningCredentials(ctx, rec.CellID, holo.AllFunctions())
				if err != nil {
					return nil, err
				}
				if err := signing.SaveCredentials(credsPath, creds); err != nil {
					return nil, WrapExitError(ExitCommandError, "save credentials", err)
				}
			}
			return newCloneView(rec), nil
		})

	cmd.Flags().StringVar(&name, "name", "", "clone name")
	cmd.Flags().StringVar(&seed, "seed", "", "network seed (required)")
	cmd.Flags().StringVar(&credsPath, "credentials-out", "", "authorize the new clone and write its credentials here")
	_ = cmd.MarkFlagRequired("seed")
	return cmd
}

func cloneTransitionCommand(rootOpts *RootOptions, verb, short string, fn func(cmd *cobra.Command, s *appSession, id holo.CloneCellID) (clone.Record, error)) *cobra.Command {
	return agentCommand(rootOpts, fmt.Sprintf("%s <clone-id>", verb), short, cobra.ExactArgs(1),
		func(cmd *cobra.Command, s *appSession, args []string) (interface{}, error) {
			rec, err := fn(cmd, s, holo.ByCloneID(holo.CloneID(args[0])))
			if err != nil {
				return nil, err
			}
			return newCloneView(rec), nil
		})
}
