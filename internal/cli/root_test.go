package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "holoclient", cmd.Use)
	assert.Contains(t, cmd.Long, "clone-cell lifecycle")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"apps", "list"},
		{"apps", "info"},
		{"apps", "enable"},
		{"apps", "disable"},
		{"apps", "uninstall"},
		{"agent-key"},
		{"interfaces", "list"},
		{"interfaces", "attach"},
		{"authorize"},
		{"storage-info"},
		{"network-stats"},
		{"clone", "create"},
		{"clone", "enable"},
		{"clone", "disable"},
		{"clone", "delete"},
		{"clone", "delete-disabled"},
		{"clone", "list"},
		{"call"},
		{"test"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"admin-url", "app-url", "app-id"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestCloneCreateFlags(t *testing.T) {
	cmd := NewRootCommand()
	createCmd, _, err := cmd.Find([]string{"clone", "create"})
	require.NoError(t, err)

	seedFlag := createCmd.Flags().Lookup("seed")
	require.NotNil(t, seedFlag)
	assert.Equal(t, []string{"true"}, seedFlag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
	assert.NotNil(t, createCmd.Flags().Lookup("credentials-out"))
}

func TestCallCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	callCmd, _, err := cmd.Find([]string{"call"})
	require.NoError(t, err)

	payloadFlag := callCmd.Flags().Lookup("payload")
	require.NotNil(t, payloadFlag)
	assert.Equal(t, "null", payloadFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "agent-key"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holoclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admin_url: http://localhost:1\n"), 0o600))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "agent-key"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "load config")
}

func TestParseFunctions(t *testing.T) {
	all, err := parseFunctions(nil)
	require.NoError(t, err)
	assert.True(t, all.All)

	listed, err := parseFunctions([]string{"chat:post", "chat:list"})
	require.NoError(t, err)
	assert.True(t, listed.Allows("chat", "post"))
	assert.False(t, listed.Allows("chat", "delete"))

	_, err = parseFunctions([]string{"chat"})
	require.Error(t, err)
}
