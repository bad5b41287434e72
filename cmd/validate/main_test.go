// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakgate/oakgate/internal/graph"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errBuf bytes.Buffer
	code = run(args, &out, &errBuf)
	return code, out.String(), errBuf.String()
}

func TestRunRequiresAnArtifact(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "--file or --pipeline is required")
}

func TestRunVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "--version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, Version)
}

func TestValidConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", "logLevel: debug\n")
	code, stdout, _ := runCLI(t, "-f", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "is valid")
}

func TestConfigUnknownKeyRejected(t *testing.T) {
	path := writeFile(t, "config.yaml", "logLevel: debug\nbogusKey: 1\n")
	code, _, stderr := runCLI(t, "-f", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Configuration error")
}

func TestConfigSemanticErrorRejected(t *testing.T) {
	path := writeFile(t, "config.yaml", "pipeline:\n  fps: -5\n")
	code, _, stderr := runCLI(t, "-f", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "fps")
}

func TestConfigMissingFile(t *testing.T) {
	code, _, stderr := runCLI(t, "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Configuration error")
}

func TestValidPipeline(t *testing.T) {
	p := graph.New()
	cam := p.CreateColorCamera()
	out := p.CreateXLinkOut()
	out.SetStreamName("rgb")
	require.NoError(t, cam.Preview().Link(out.Input()))

	data, err := p.Serialize()
	require.NoError(t, err)
	path := writeFile(t, "graph.json", string(data))

	code, stdout, _ := runCLI(t, "--pipeline", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "is valid")
	assert.Contains(t, stdout, "rgb")
}

func TestInvalidPipelineListsProblems(t *testing.T) {
	p := graph.New()
	// Mono camera without a board socket, output not exported anywhere.
	p.CreateMonoCamera()

	data, err := p.Serialize()
	require.NoError(t, err)
	path := writeFile(t, "graph.json", string(data))

	code, _, stderr := runCLI(t, "--pipeline", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Validation error")
	assert.Contains(t, stderr, "socket")
}

func TestPipelineGarbageRejected(t *testing.T) {
	path := writeFile(t, "graph.json", "{not json")
	code, _, stderr := runCLI(t, "--pipeline", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Pipeline error")
}
