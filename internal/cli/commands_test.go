package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/holoclient/internal/config"
	"github.com/roach88/holoclient/internal/harness"
)

type cliFixture struct {
	conductor *harness.FakeConductor
	dir       string
	cellID    string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	t.Setenv(config.EnvAdminURL, "")
	t.Setenv(config.EnvAppURL, "")

	fc := harness.NewFakeConductor()
	t.Cleanup(fc.Close)
	info := fc.InstallApp("chat-app", "chat")
	cell, ok := info.ProvisionedCell("chat")
	require.True(t, ok)

	return &cliFixture{conductor: fc, dir: t.TempDir(), cellID: cell.CellID.String()}
}

// writeConfig writes a config pointing at the fake conductor's admin
// interface. The app url is left out so it is discovered.
func (f *cliFixture) writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(f.dir, "holoclient.yaml")
	cfg := fmt.Sprintf("admin_url: %s\napp_id: chat-app\ncredentials: %s\nregistry: %s\n",
		f.conductor.AdminURL(),
		filepath.Join(f.dir, "creds.yaml"),
		filepath.Join(f.dir, "clones.db"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeData(t *testing.T, out string, v interface{}) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestAppsList(t *testing.T) {
	f := newCLIFixture(t)

	out, err := execute(t, "--admin-url", f.conductor.AdminURL(), "--format", "json", "apps", "list")
	require.NoError(t, err)

	var apps []AppView
	decodeData(t, out, &apps)
	require.Len(t, apps, 1)
	assert.Equal(t, "chat-app", apps[0].AppID)
	assert.Equal(t, "running", apps[0].Status)
	require.Len(t, apps[0].Cells, 1)
	assert.Equal(t, "provisioned", apps[0].Cells[0].Kind)
	assert.Equal(t, f.cellID, apps[0].Cells[0].CellID)

	out, err = execute(t, "--admin-url", f.conductor.AdminURL(), "apps", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "chat-app (running)")
}

func TestAppsDisableUnknown(t *testing.T) {
	f := newCLIFixture(t)

	out, err := execute(t, "--admin-url", f.conductor.AdminURL(), "--format", "json", "apps", "disable", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
}

func TestUnreachableConductor(t *testing.T) {
	f := newCLIFixture(t)
	url := f.conductor.AdminURL()
	f.conductor.Close()

	_, err := execute(t, "--admin-url", url, "agent-key")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInterfacesAttachAndList(t *testing.T) {
	f := newCLIFixture(t)
	admin := f.conductor.AdminURL()

	list := func() []uint16 {
		out, err := execute(t, "--admin-url", admin, "--format", "json", "interfaces", "list")
		require.NoError(t, err)
		var ports []uint16
		decodeData(t, out, &ports)
		return ports
	}
	require.Len(t, list(), 1)

	// Port 0 resolves to the existing app interface.
	_, err := execute(t, "--admin-url", admin, "interfaces", "attach")
	require.NoError(t, err)
	assert.Len(t, list(), 1)

	out, err := execute(t, "--admin-url", admin, "interfaces", "attach", "--port", "45678")
	require.NoError(t, err)
	assert.Contains(t, out, "45678")
	assert.Contains(t, list(), uint16(45678))
}

func TestStorageInfo(t *testing.T) {
	f := newCLIFixture(t)

	out, err := execute(t, "--admin-url", f.conductor.AdminURL(), "--format", "json", "storage-info")
	require.NoError(t, err)

	var v StorageView
	decodeData(t, out, &v)
	require.Len(t, v.Dnas, 1)
	assert.Equal(t, []string{"chat-app"}, v.Dnas[0].UsedBy)
}

func TestAuthorizeCallAndCloneLifecycle(t *testing.T) {
	f := newCLIFixture(t)
	cfg := f.writeConfig(t)
	creds := filepath.Join(f.dir, "creds.yaml")

	_, err := execute(t, "-c", cfg, "authorize", f.cellID, "-o", creds)
	require.NoError(t, err)
	require.FileExists(t, creds)

	out, err := execute(t, "-c", cfg, "--format", "json", "call", "chat", "chat", "foo")
	require.NoError(t, err)
	var res CallResult
	decodeData(t, out, &res)
	assert.Equal(t, "foo", res.Output)

	out, err = execute(t, "-c", cfg, "--format", "json", "clone", "create", "chat", "--seed", "room-1", "--name", "room")
	require.NoError(t, err)
	var created CloneView
	decodeData(t, out, &created)
	assert.Equal(t, "chat.0", created.CloneID)
	assert.Equal(t, "enabled", created.State)
	assert.Equal(t, "room-1", created.NetworkSeed)

	out, err = execute(t, "-c", cfg, "clone", "disable", "chat.0")
	require.NoError(t, err)
	assert.Contains(t, out, "disabled")

	out, err = execute(t, "-c", cfg, "clone", "delete", "chat.0")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	out, err = execute(t, "-c", cfg, "--format", "json", "clone", "delete", "chat.0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "cell_not_found", resp.Error.Code)

	// The registry is durable across invocations.
	out, err = execute(t, "-c", cfg, "--format", "json", "clone", "list")
	require.NoError(t, err)
	var clones []CloneView
	decodeData(t, out, &clones)
	require.Len(t, clones, 1)
	assert.Equal(t, "deleted", clones[0].State)
}

func TestCallWithoutCredentials(t *testing.T) {
	f := newCLIFixture(t)

	out, err := execute(t, "--admin-url", f.conductor.AdminURL(), "--app-id", "chat-app", "--format", "json", "call", "chat", "chat", "foo")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "no_credentials", resp.Error.Code)
}

func TestCallInvalidPayload(t *testing.T) {
	f := newCLIFixture(t)

	_, err := execute(t, "--admin-url", f.conductor.AdminURL(), "--app-id", "chat-app", "call", "chat", "chat", "foo", "--payload", "{")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAgentCommandNeedsAppID(t *testing.T) {
	f := newCLIFixture(t)

	_, err := execute(t, "--admin-url", f.conductor.AdminURL(), "clone", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "app id is not configured")
}
