package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/clone"
	"github.com/roach88/holoclient/internal/conductor"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/signing"
)

// Harness executes one scenario against a fake conductor through the real
// client stack.
type Harness struct {
	conductor *FakeConductor
	admin     *conductor.AdminWebsocket
	app       *conductor.AppWebsocket
	agent     *conductor.AppAgent
	signer    *signing.ClientAgentSigner
	scenario  *Scenario
	log       zerolog.Logger
}

// stepOutcome is what a step produced.
type stepOutcome struct {
	state  clone.State
	result interface{}
	count  int
	err    error
}

// Run executes a scenario against a fresh FakeConductor.
//
// The app is installed directly on the conductor, every role gets signing
// credentials through the admin interface, then each flow step runs
// through an AppAgent. Clones created by the flow are authorized as they
// appear. The returned trace is the conductor's view of the run.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	fc := NewFakeConductor(opts...)
	defer fc.Close()

	h := &Harness{
		conductor: fc,
		scenario:  scenario,
		log:       fc.log,
		signer:    signing.NewClientAgentSigner(signing.SignOptions{}),
	}
	if err := h.setup(ctx); err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Flow {
		out := h.execute(ctx, i, step)
		checkExpect(result, i, step, out)
	}

	result.Trace = fc.Trace()
	recs, err := h.agent.Clones().List(ctx, scenario.AppID)
	if err != nil {
		return nil, errors.Wrap(err, "list final clone states")
	}
	for _, rec := range recs {
		result.State[string(rec.CloneID())] = string(rec.State)
	}

	for i, a := range scenario.Assertions {
		if err := Evaluate(result, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func (h *Harness) setup(ctx context.Context) error {
	info := h.conductor.InstallApp(h.scenario.AppID, h.scenario.Roles...)

	var err error
	h.admin, err = conductor.ConnectAdmin(ctx, h.conductor.AdminURL(), conductor.WithLogger(h.log))
	if err != nil {
		return errors.Wrap(err, "connect admin")
	}
	h.app, err = conductor.ConnectApp(ctx, h.conductor.AppURL(),
		conductor.WithLogger(h.log),
		conductor.WithSigner(h.signer),
	)
	if err != nil {
		h.close()
		return errors.Wrap(err, "connect app")
	}

	for _, role := range h.scenario.Roles {
		cell, ok := info.ProvisionedCell(role)
		if !ok {
			h.close()
			return errors.Errorf("role %q was not provisioned", role)
		}
		if err := h.authorize(ctx, cell.CellID); err != nil {
			h.close()
			return errors.Wrapf(err, "authorize role %q", role)
		}
	}

	h.agent, err = conductor.NewAppAgent(ctx, h.app, h.scenario.AppID, h.admin, clone.WithLogger(h.log))
	if err != nil {
		h.close()
		return errors.Wrap(err, "start app agent")
	}
	return nil
}

func (h *Harness) close() {
	if h.app != nil {
		_ = h.app.Close()
	}
	if h.admin != nil {
		_ = h.admin.Close()
	}
}

func (h *Harness) authorize(ctx context.Context, cellID holo.CellID) error {
	creds, err := h.admin.AuthorizeSigningCredentials(ctx, cellID, holo.AllFunctions())
	if err != nil {
		return err
	}
	h.signer.Add(creds)
	return nil
}

func (h *Harness) execute(ctx context.Context, index int, step FlowStep) stepOutcome {
	var (
		rec clone.Record
		err error
	)
	switch step.Op {
	case OpCreateClone:
		seed := step.NetworkSeed
		if seed == "" {
			seed = fmt.Sprintf("%s-%d", h.scenario.Name, index)
		}
		p := holo.CreateCloneCellPayload{
			RoleName:  step.Role,
			Modifiers: holo.DnaModifiersOpt{}.WithNetworkSeed(seed),
		}
		if step.Name != "" {
			name := step.Name
			p.Name = &name
		}
		rec, err = h.agent.CreateCloneCell(ctx, p)
		if err == nil {
			err = h.authorize(ctx, rec.CellID)
		}
	case OpEnableClone:
		rec, err = h.agent.EnableCloneCell(ctx, holo.ByCloneID(holo.CloneID(step.CloneID)))
	case OpDisableClone:
		rec, err = h.agent.DisableCloneCell(ctx, holo.ByCloneID(holo.CloneID(step.CloneID)))
	case OpDeleteClone:
		rec, err = h.agent.DeleteCloneCell(ctx, holo.ByCloneID(holo.CloneID(step.CloneID)))
	case OpDeleteDisabled:
		recs, err := h.agent.Clones().DeleteDisabled(ctx, h.scenario.AppID, step.Role)
		if err == nil {
			_, err = h.agent.RefreshAppInfo(ctx)
		}
		return stepOutcome{count: len(recs), err: err}
	case OpRefresh:
		recs, err := h.agent.Clones().Refresh(ctx, h.scenario.AppID)
		return stepOutcome{count: len(recs), err: err}
	case OpCallZome:
		var out interface{}
		err = h.agent.CallZomeInto(ctx, conductor.RoleTarget(step.Target), step.Zome, step.Fn, step.Payload, &out)
		return stepOutcome{result: out, err: err}
	default:
		err = errors.Errorf("unknown op %q", step.Op)
	}
	return stepOutcome{state: rec.State, err: err}
}

func checkExpect(r *Result, index int, step FlowStep, out stepOutcome) {
	prefix := fmt.Sprintf("flow[%d] %s", index, step.Op)
	expect := step.Expect
	if expect == nil {
		if out.err != nil {
			r.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, out.err))
		}
		return
	}

	if expect.Error != "" {
		if out.err == nil {
			r.AddError(fmt.Sprintf("%s: expected %s error, got success", prefix, expect.Error))
			return
		}
		if kind := clienterr.KindOf(out.err); !strings.EqualFold(string(kind), expect.Error) {
			r.AddError(fmt.Sprintf("%s: expected %s error, got %q: %v", prefix, expect.Error, kind, out.err))
		}
		if expect.Code != "" && clienterr.CodeOf(out.err) != expect.Code {
			r.AddError(fmt.Sprintf("%s: expected code %s, got %q", prefix, expect.Code, clienterr.CodeOf(out.err)))
		}
		return
	}

	if out.err != nil {
		r.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, out.err))
		return
	}
	if expect.State != "" && string(out.state) != expect.State {
		r.AddError(fmt.Sprintf("%s: expected state %s, got %s", prefix, expect.State, out.state))
	}
	if expect.Count != nil && out.count != *expect.Count {
		r.AddError(fmt.Sprintf("%s: expected %d records, got %d", prefix, *expect.Count, out.count))
	}
	if expect.Result != nil && !sameValue(expect.Result, out.result) {
		r.AddError(fmt.Sprintf("%s: expected result %v, got %v", prefix, expect.Result, out.result))
	}
}

// sameValue compares a YAML-decoded expectation with a MessagePack-decoded
// result. Both are normalized through JSON so integer widths and map types
// do not matter.
func sameValue(want, got interface{}) bool {
	a, errA := json.Marshal(want)
	b, errB := json.Marshal(got)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(want, got)
	}
	return string(a) == string(b)
}
