package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fleet = `
vehicles:
  - name: Vehicle-01
    length: 1000
  - name: Forklift
    properties:
      drivermgr.io/telemetry: passive
`

func TestVehiclesCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vehicles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fleet), 0o600))

	var out bytes.Buffer
	cmd := NewDriverManagerCommand(context.Background())
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"vehicles", "--directory.file=" + path})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "VEHICLE")
	assert.Contains(t, text, "Vehicle-01")
	assert.Contains(t, text, "Forklift")
	assert.Contains(t, text, "Loopback adapter")
	assert.Contains(t, text, "Passive telemetry adapter")
}

func TestVehiclesCommandRejectsInvalidOptions(t *testing.T) {
	cmd := NewDriverManagerCommand(context.Background())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"vehicles", "--directory.source=ftp"})
	assert.Error(t, cmd.Execute())
}
