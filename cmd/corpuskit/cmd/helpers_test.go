package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestProjectConfig writes yaml as a workspace's corpuskit.yaml so
// config.Load(dir) picks it up, mirroring the teacher's pattern of writing
// a project config file straight into a t.TempDir() for CLI command tests.
func writeTestProjectConfig(t *testing.T, dir, yaml string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corpuskit.yaml"), []byte(yaml), 0o644))
}
