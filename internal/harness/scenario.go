package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes a flow of clone lifecycle and zome call steps run
// against one installed app.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// AppID is the installed app the flow runs against.
	AppID string `yaml:"app_id"`

	// Roles are the app's provisioned roles. Each gets signing
	// credentials before the flow starts.
	Roles []string `yaml:"roles"`

	Flow []FlowStep `yaml:"flow"`

	// Assertions check the trace and the final clone states.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Flow step operations.
const (
	OpCreateClone    = "create_clone"
	OpEnableClone    = "enable_clone"
	OpDisableClone   = "disable_clone"
	OpDeleteClone    = "delete_clone"
	OpDeleteDisabled = "delete_disabled"
	OpCallZome       = "call_zome"
	OpRefresh        = "refresh"
)

// FlowStep is one operation of a scenario.
type FlowStep struct {
	Op string `yaml:"op"`

	// Role is used by create_clone and delete_disabled.
	Role string `yaml:"role,omitempty"`

	// CloneID is used by enable_clone, disable_clone and delete_clone.
	CloneID string `yaml:"clone_id,omitempty"`

	// Name and NetworkSeed configure create_clone. The seed defaults to
	// one derived from the scenario name and step index.
	Name        string `yaml:"name,omitempty"`
	NetworkSeed string `yaml:"network_seed,omitempty"`

	// Target, Zome, Fn and Payload configure call_zome. Target is a role
	// name or a clone id.
	Target  string      `yaml:"target,omitempty"`
	Zome    string      `yaml:"zome,omitempty"`
	Fn      string      `yaml:"fn,omitempty"`
	Payload interface{} `yaml:"payload,omitempty"`

	// Expect is checked against the step's outcome. A nil Expect requires
	// the step to succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause describes the expected outcome of a step.
type ExpectClause struct {
	// State is the expected clone state after the step.
	State string `yaml:"state,omitempty"`

	// Error is the expected error kind (connection, signing,
	// precondition, remote, timeout, canceled).
	Error string `yaml:"error,omitempty"`

	// Code is the expected error code.
	Code string `yaml:"code,omitempty"`

	// Result is the expected zome call result.
	Result interface{} `yaml:"result,omitempty"`

	// Count is the expected number of records a delete_disabled or
	// refresh step returns.
	Count *int `yaml:"count,omitempty"`
}

// Assertion validates the trace or the final clone states.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count,
	// final_state.
	Type string `yaml:"type"`

	// Method is the wire method name (trace_contains, trace_count).
	Method string `yaml:"method,omitempty"`

	// Outcome optionally narrows trace_contains to one outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Methods is the expected order (trace_order).
	Methods []string `yaml:"methods,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// CloneID and State describe the expected final state (final_state).
	CloneID string `yaml:"clone_id,omitempty"`
	State   string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and validates a scenario YAML file. Unknown fields
// are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.AppID == "" {
		return fmt.Errorf("app_id is required")
	}
	if len(s.Roles) == 0 {
		return fmt.Errorf("roles list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step FlowStep) error {
	switch step.Op {
	case OpCreateClone, OpDeleteDisabled:
		if step.Role == "" {
			return fmt.Errorf("role is required for %s", step.Op)
		}
	case OpEnableClone, OpDisableClone, OpDeleteClone:
		if step.CloneID == "" {
			return fmt.Errorf("clone_id is required for %s", step.Op)
		}
	case OpCallZome:
		if step.Target == "" || step.Zome == "" || step.Fn == "" {
			return fmt.Errorf("target, zome and fn are required for %s", step.Op)
		}
	case OpRefresh:
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Expect != nil && step.Expect.Code != "" && step.Expect.Error == "" {
		return fmt.Errorf("expect.code needs expect.error")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Method == "" {
			return fmt.Errorf("method is required for trace_contains")
		}
	case AssertTraceOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("methods list is required for trace_order")
		}
	case AssertTraceCount:
		if a.Method == "" {
			return fmt.Errorf("method is required for trace_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for trace_count")
		}
	case AssertFinalState:
		if a.CloneID == "" || a.State == "" {
			return fmt.Errorf("clone_id and state are required for final_state")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
