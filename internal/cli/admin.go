package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/holoclient/internal/conductor"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/signing"
)

// adminCommand builds a leaf command that runs fn on a fresh admin
// connection and prints its result.
func adminCommand(rootOpts *RootOptions, use, short string, args cobra.PositionalArgs, fn func(cmd *cobra.Command, admin *conductor.AdminWebsocket, args []string) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			admin, err := rootOpts.connectAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer admin.Close()

			result, err := fn(cmd, admin, args)
			if err != nil {
				_ = out.ClientError(err)
				return clientExit(cmd.Name(), err)
			}
			return out.Success(result)
		},
	}
}

// NewAgentKeyCommand creates the agent-key command.
func NewAgentKeyCommand(rootOpts *RootOptions) *cobra.Command {
	return adminCommand(rootOpts, "agent-key", "Generate a new agent public key", cobra.NoArgs,
		func(cmd *cobra.Command, admin *conductor.AdminWebsocket, _ []string) (interface{}, error) {
			key, err := admin.GenerateAgentPubKey(cmd.Context())
			if err != nil {
				return nil, err
			}
			return key.String(), nil
		})
}

// InterfaceList prints attached app interface ports.
type InterfaceList []uint16

func (l InterfaceList) String() string {
	if len(l) == 0 {
		return "No app interfaces attached."
	}
	parts := make([]string, len(l))
	for i, p := range l {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, "\n")
}

// NewInterfacesCommand creates the interfaces command group.
func NewInterfacesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interfaces",
		Short: "Manage app interfaces",
	}
	cmd.AddCommand(adminCommand(rootOpts, "list", "List attached app interface ports", cobra.NoArgs,
		func(cmd *cobra.Command, admin *conductor.AdminWebsocket, _ []string) (interface{}, error) {
			ports, err := admin.ListAppInterfaces(cmd.Context())
			return InterfaceList(ports), err
		}))

	var port uint16
	attach := adminCommand(rootOpts, "attach", "Attach an app interface", cobra.NoArgs,
		func(cmd *cobra.Command, admin *conductor.AdminWebsocket, _ []string) (interface{}, error) {
			return admin.AttachAppInterface(cmd.Context(), port)
		})
	attach.Flags().Uint16Var(&port, "port", 0, "port to listen on (0 lets the conductor choose)")
	cmd.AddCommand(attach)
	return cmd
}

// StorageView is the printable form of storage_info.
type StorageView struct {
	Dnas []DnaStorageView `json:"dnas"`
}

// DnaStorageView summarizes the storage of one DNA.
type DnaStorageView struct {
	DnaHash  string   `json:"dna_hash"`
	UsedBy   []string `json:"used_by"`
	Authored uint64   `json:"authored_bytes"`
	Dht      uint64   `json:"dht_bytes"`
	Cache    uint64   `json:"cache_bytes"`
}

func (v StorageView) String() string {
	if len(v.Dnas) == 0 {
		return "No DNA storage."
	}
	lines := make([]string, len(v.Dnas))
	for i, d := range v.Dnas {
		lines[i] = fmt.Sprintf("%s authored=%d dht=%d cache=%d used_by=%s",
			d.DnaHash, d.Authored, d.Dht, d.Cache, strings.Join(d.UsedBy, ","))
	}
	return strings.Join(lines, "\n")
}

// NewStorageInfoCommand creates the storage-info command.
func NewStorageInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return adminCommand(rootOpts, "storage-info", "Show per-DNA storage usage", cobra.NoArgs,
		func(cmd *cobra.Command, admin *conductor.AdminWebsocket, _ []string) (interface{}, error) {
			info, err := admin.StorageInfo(cmd.Context())
			if err != nil {
				return nil, err
			}
			v := StorageView{Dnas: []DnaStorageView{}}
			for _, blob := range info.Blobs {
				if blob.Dna == nil {
					continue
				}
				d := blob.Dna
				v.Dnas = append(v.Dnas, DnaStorageView{
					DnaHash:  d.DnaHash.String(),
					UsedBy:   d.UsedBy,
					Authored: d.AuthoredDataSize,
					Dht:      d.DhtDataSize,
					Cache:    d.CacheDataSize,
				})
			}
			return v, nil
		})
}

// NewNetworkStatsCommand creates the network-stats command.
func NewNetworkStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return adminCommand(rootOpts, "network-stats", "Dump the conductor's network statistics", cobra.NoArgs,
		func(cmd *cobra.Command, admin *conductor.AdminWebsocket, _ []string) (interface{}, error) {
			return admin.DumpNetworkStats(cmd.Context())
		})
}

// NewAuthorizeCommand creates the authorize command.
func NewAuthorizeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		output    string
		functions []string
	)

	cmd := adminCommand(rootOpts, "authorize <cell-id>", "Create signing credentials for a cell", cobra.ExactArgs(1),
		func(cmd *cobra.Command, admin *conductor.AdminWebsocket, args []string) (interface{}, error) {
			cellID, err := holo.ParseCellID(args[0])
			if err != nil {
				return nil, NewExitError(ExitCommandError, err.Error())
			}
			granted, err := parseFunctions(functions)
			if err != nil {
				return nil, NewExitError(ExitCommandError, err.Error())
			}
			creds, err := admin.AuthorizeSigningCredentials(cmd.Context(), cellID, granted)
			if err != nil {
				return nil, err
			}
			if err := signing.SaveCredentials(output, creds); err != nil {
				return nil, WrapExitError(ExitCommandError, "save credentials", err)
			}
			return fmt.Sprintf("credentials for %s written to %s", cellID, output), nil
		})

	cmd.Flags().StringVarP(&output, "output", "o", "credentials.yaml", "credential file to write")
	cmd.Flags().StringSliceVar(&functions, "fn", nil, "granted function as zome:fn (repeatable, default all)")
	return cmd
}

// parseFunctions turns zome:fn pairs into granted functions. No pairs
// grants all functions.
func parseFunctions(pairs []string) (holo.GrantedFunctions, error) {
	if len(pairs) == 0 {
		return holo.AllFunctions(), nil
	}
	refs := make([]holo.FunctionRef, 0, len(pairs))
	for _, p := range pairs {
		zome, fn, ok := strings.Cut(p, ":")
		if !ok || zome == "" || fn == "" {
			return holo.GrantedFunctions{}, fmt.Errorf("invalid function %q: expected zome:fn", p)
		}
		refs = append(refs, holo.FunctionRef{Zome: zome, Fn: fn})
	}
	return holo.ListedFunctions(refs...), nil
}
