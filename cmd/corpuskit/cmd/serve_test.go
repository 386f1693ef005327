package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCmd_DefaultFlags(t *testing.T) {
	root := NewRootCmd()

	serveCmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)

	transport := serveCmd.Flags().Lookup("transport")
	require.NotNil(t, transport)
	assert.Equal(t, "stdio", transport.DefValue)

	addr := serveCmd.Flags().Lookup("addr")
	require.NotNil(t, addr)
	assert.Equal(t, ":8787", addr.DefValue)

	workspace := serveCmd.Flags().Lookup("workspace")
	require.NotNil(t, workspace)
	assert.Equal(t, ".", workspace.DefValue)
}

func TestRunServe_UnknownTransportFailsFast(t *testing.T) {
	dir := t.TempDir()
	writeTestProjectConfig(t, dir, "")

	root := NewRootCmd()
	root.SetArgs([]string{"serve", "--workspace", dir, "--transport", "carrier-pigeon"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}
