package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/navgraph/handle"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configPath, logLevel = "", ""
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(t.Context())
	return out.String(), err
}

func localConfig(t *testing.T) string {
	t.Helper()
	return writeConfig(t, fmt.Sprintf(`
[storage]
backend = "local"
path = %q
compression = "lz4"

[mesh]
save_interval = "0s"
grow_budget = "1s"
grow_range = 3
`, t.TempDir()))
}

func TestPatrol(t *testing.T) {
	assert.Equal(t, handle.Vec3{simOrigin, simOrigin, simGround}, patrol(0))
	assert.Equal(t, handle.Vec3{simOrigin + simSide, simOrigin, simGround}, patrol(20))
	assert.Equal(t, handle.Vec3{simOrigin + simSide, simOrigin + simSide, simGround}, patrol(40))
	assert.Equal(t, handle.Vec3{simOrigin, simOrigin + simSide, simGround}, patrol(60))
	assert.Equal(t, patrol(0), patrol(80))
}

func TestSimulateInspectPath(t *testing.T) {
	cfg := localConfig(t)

	out, err := run(t, "simulate", "--config", cfg, "--ticks", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "ticks: 8")
	assert.Contains(t, out, "nodes:")

	out, err = run(t, "inspect", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "REGION")
	assert.NotContains(t, out, "regions: 0,")

	out, err = run(t, "path", "--config", cfg, "20", "20", "10", "21", "20", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "steps: 2")

	out, err = run(t, "migrate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "upgraded: 0")
}

func TestPathRejectsBadCoordinates(t *testing.T) {
	_, err := run(t, "path", "--config", localConfig(t), "1", "2", "x", "4", "5", "6")
	assert.ErrorContains(t, err, "coordinate 3")

	_, err = run(t, "path", "1", "2")
	assert.Error(t, err)
}

func TestLogLevelOverride(t *testing.T) {
	_, err := run(t, "inspect", "--config", localConfig(t), "--log-level", "verbose")
	assert.ErrorContains(t, err, "logging.level")
}
