package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/trackforge/internal/errs"
)

const ringScene = `name: ring
nodes:
  - name: road
    geometry: road.obj
markers:
  - name: AC_START_0
    location: [2, 0, 0]
`

const ringOBJ = `o 1ROAD
v 1 0 0
v 0 -1 0
v -1 0 0
v 0 1 0
v 2 0 0
v 0 -2 0
v -2 0 0
v 0 2 0
f 1 5 6 2
f 2 6 7 3
f 3 7 8 4
f 4 8 5 1
`

func testFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/ring.yaml", []byte(ringScene), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/road.obj", []byte(ringOBJ), 0o644))
	return fs
}

func execute(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmdFs(fs)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildCommand(t *testing.T) {
	fs := testFs(t)
	out, err := execute(t, fs, "build", "/work/ring.yaml", "--out", "/dist")
	require.NoError(t, err)
	assert.Equal(t, "/dist/ring.kn5\n/dist/ai/fast_lane.ai\n/dist/data/surfaces.ini\n", out)

	out, err = execute(t, fs, "inspect", "/dist/ring.kn5", "--tree")
	require.NoError(t, err)
	assert.Contains(t, out, "KN5 version: 6")
	assert.Contains(t, out, "1ROAD [Mesh]")
	assert.Contains(t, out, "AC_START_0_box [Mesh]")

	out, err = execute(t, fs, "inspect", "/dist/ai/fast_lane.ai")
	require.NoError(t, err)
	assert.Contains(t, out, "Points:          4")
	assert.Contains(t, out, "Track width:     1.00 - 1.00 m")
}

func TestSingleTargetCommands(t *testing.T) {
	fs := testFs(t)
	out, err := execute(t, fs, "export", "/work/ring.yaml", "-o", "/m", "--track-name", "imola")
	require.NoError(t, err)
	assert.Equal(t, "/m/imola.kn5\n", out)

	out, err = execute(t, fs, "ailine", "/work/ring.yaml", "-o", "/a")
	require.NoError(t, err)
	assert.Equal(t, "/a/ai/fast_lane.ai\n", out)
}

func TestEnvironmentOverrides(t *testing.T) {
	fs := testFs(t)
	t.Setenv("TRACKFORGE_OUT", "/env")
	t.Setenv("TRACKFORGE_NO_SURFACES_INI", "true")

	out, err := execute(t, fs, "build", "/work/ring.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/env/ring.kn5\n/env/ai/fast_lane.ai\n", out)

	// Flags win over the environment.
	out, err = execute(t, fs, "export", "/work/ring.yaml", "--out", "/flag")
	require.NoError(t, err)
	assert.Equal(t, "/flag/ring.kn5\n", out)
}

func TestCommandErrors(t *testing.T) {
	fs := testFs(t)

	_, err := execute(t, fs, "build", "/work/missing.yaml")
	assert.True(t, errs.IsIO(err), "got %v", err)
	assert.Equal(t, 4, exitCode(err))

	_, err = execute(t, fs, "inspect", "/work/road.obj")
	assert.True(t, errs.IsConfig(err), "got %v", err)

	_, err = execute(t, fs, "build", "/work/ring.yaml", "--spacing=-1")
	assert.True(t, errs.IsConfig(err), "got %v", err)

	_, err = execute(t, fs, "build")
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	fs := testFs(t)

	out, err := execute(t, fs, "config", "--spacing", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "spacing: 2")
	assert.Contains(t, out, "allow_scaled_transforms: false")

	out, err = execute(t, fs, "config", "--track-name", "spa", "--write", "/etc/trackforge.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/trackforge.yaml\n", out)

	out, err = execute(t, fs, "export", "/work/ring.yaml", "--config", "/etc/trackforge.yaml", "-o", "/c")
	require.NoError(t, err)
	assert.Equal(t, "/c/spa.kn5\n", out)
}

func TestConfigFileErrors(t *testing.T) {
	fs := testFs(t)
	require.NoError(t, afero.WriteFile(fs, "/work/typo.yaml", []byte("ai_line:\n  spaceing: 2\n"), 0o644))

	_, err := execute(t, fs, "build", "/work/ring.yaml", "--config", "/work/typo.yaml")
	assert.True(t, errs.IsConfig(err), "got %v", err)
	assert.ErrorContains(t, err, "spaceing")

	_, err = execute(t, fs, "build", "/work/ring.yaml", "--config", "/work/none.yaml")
	assert.True(t, errs.IsConfig(err), "got %v", err)
	assert.Equal(t, 2, exitCode(err))
}

func TestScaledNodes(t *testing.T) {
	fs := testFs(t)
	scaled := strings.Replace(ringScene, "geometry: road.obj", "geometry: road.obj\n    scale: [2, 2, 2]", 1)
	require.NoError(t, afero.WriteFile(fs, "/work/scaled.yaml", []byte(scaled), 0o644))

	_, err := execute(t, fs, "export", "/work/scaled.yaml", "-o", "/s")
	assert.True(t, errs.IsTransform(err), "got %v", err)
	assert.Equal(t, 3, exitCode(err))
	exists, _ := afero.DirExists(fs, "/s")
	assert.False(t, exists)

	out, err := execute(t, fs, "export", "/work/scaled.yaml", "-o", "/s", "--allow-scaled")
	require.NoError(t, err)
	assert.Equal(t, "/s/ring.kn5\n", out)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", context.Canceled), 130},
		{&errs.ConfigError{Reason: "x"}, 2},
		{errs.NewValidation("m", "x"), 3},
		{&errs.TransformError{Node: "n"}, 3},
		{&errs.IOError{Op: "read"}, 4},
		{fmt.Errorf("other"), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "exitCode(%v)", tt.err)
	}
}
