package cli

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_E2E(t *testing.T) {
	// Build the binary once for all tests
	binPath := filepath.Join(t.TempDir(), "vsb-agent")
	cmd := exec.Command("go", "build", "-o", binPath, "../../cmd/vsb-agent")
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build binary: %s", output)

	run := func(t *testing.T, args ...string) (string, int) {
		t.Helper()
		cmd := exec.Command(binPath, args...)
		cmd.Env = append(os.Environ(),
			"VSB_AGENT_CONFIG_DIR="+t.TempDir(),
			"VSB_AGENT_TIMING_INSTANT=true",
			"NO_COLOR=1",
		)
		out, err := cmd.CombinedOutput()
		code := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			require.NoError(t, err)
		}
		return string(out), code
	}

	t.Run("default scenario exits zero with per-provider summary", func(t *testing.T) {
		out, code := run(t, "send email to test@example.com saying 'Hello'")
		assert.Equal(t, 0, code, out)
		assert.Contains(t, out, "gmail: Success")
		assert.Contains(t, out, "outlook: Failed: Authentication failed: Bot detection triggered")
	})

	t.Run("missing instruction exits one with usage", func(t *testing.T) {
		out, code := run(t)
		assert.Equal(t, 1, code)
		assert.Contains(t, out, "Error: missing instruction")
		assert.Contains(t, out, "Usage:")
	})

	t.Run("instruction without recipient exits one", func(t *testing.T) {
		out, code := run(t, "send an email saying hi")
		assert.Equal(t, 1, code)
		assert.Contains(t, out, "recipient")
	})

	t.Run("shows version with --version flag", func(t *testing.T) {
		out, code := run(t, "--version")
		assert.Equal(t, 0, code)
		assert.Contains(t, out, "vsb-agent version")
	})

	t.Run("shows help with --help flag", func(t *testing.T) {
		out, code := run(t, "--help")
		assert.Equal(t, 0, code)
		assert.Contains(t, out, "plain-language instruction")
		assert.Contains(t, out, "providers")
		assert.Contains(t, out, "history")
	})
}
