package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/holoclient/internal/conductor"
	"github.com/roach88/holoclient/internal/holo"
)

// CallResult is the decoded return value of a zome function.
type CallResult struct {
	Target string      `json:"target"`
	Zome   string      `json:"zome"`
	Fn     string      `json:"fn"`
	Output interface{} `json:"output"`
}

func (r CallResult) String() string {
	data, err := json.MarshalIndent(r.Output, "", "  ")
	if err != nil {
		return "<unprintable output>"
	}
	return string(data)
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	var payload string

	cmd := agentCommand(rootOpts, "call <target> <zome> <fn>", "Make a signed zome call", cobra.ExactArgs(3),
		func(cmd *cobra.Command, s *appSession, args []string) (interface{}, error) {
			var in interface{}
			if err := json.Unmarshal([]byte(payload), &in); err != nil {
				return nil, WrapExitError(ExitCommandError, "invalid --payload JSON", err)
			}

			target := conductor.RoleTarget(args[0])
			if cellID, err := holo.ParseCellID(args[0]); err == nil {
				target = conductor.CellTarget(cellID)
			}

			var out interface{}
			if err := s.agent.CallZomeInto(cmd.Context(), target, args[1], args[2], in, &out); err != nil {
				return nil, err
			}
			return CallResult{Target: args[0], Zome: args[1], Fn: args[2], Output: normalizeOutput(out)}, nil
		})

	cmd.Long = `Make a signed zome call against the configured app.

The target is a role name, a clone id (role.index) or a cell id. The
payload is JSON and is sent as MessagePack. Signing credentials for the
target cell must be configured.

Examples:
  holoclient call chat chat list_messages
  holoclient call chat.0 chat post --payload '{"text":"hi"}'`
	cmd.Flags().StringVar(&payload, "payload", "null", "JSON payload")
	return cmd
}

// normalizeOutput converts MessagePack maps with interface keys into
// JSON-encodable maps.
func normalizeOutput(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[fmt.Sprint(k)] = normalizeOutput(item)
		}
		return m
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalizeOutput(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeOutput(item)
		}
		return val
	default:
		return v
	}
}
