package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSandboxRequiresDirectory(t *testing.T) {
	_, err := NewSandbox("", false, nil)
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = NewSandbox(file, false, nil)
	require.Error(t, err)
}

func TestSandboxResolveInside(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "message.tmpl")
	require.NoError(t, os.WriteFile(target, []byte("hi"), 0o600))

	sb, err := NewSandbox(root, false, nil)
	require.NoError(t, err)

	resolved, err := sb.Resolve("message.tmpl")
	require.NoError(t, err)
	require.Equal(t, filepath.Base(target), filepath.Base(resolved))
}

func TestSandboxResolveRejectsEscape(t *testing.T) {
	sb, err := NewSandbox(t.TempDir(), false, nil)
	require.NoError(t, err)

	_, err = sb.Resolve("../outside.tmpl")
	require.ErrorContains(t, err, "escapes sandbox")

	_, err = sb.Resolve("/etc/passwd")
	require.ErrorContains(t, err, "escapes sandbox")
}

func TestSandboxEnvironmentAllowList(t *testing.T) {
	t.Setenv("RESTOCK_TEST_ALLOWED", "visible")
	t.Setenv("RESTOCK_TEST_BLOCKED", "hidden")

	sb, err := NewSandbox(t.TempDir(), true, []string{"RESTOCK_TEST_ALLOWED", "RESTOCK_TEST_MISSING"})
	require.NoError(t, err)

	env := sb.Environment()
	require.Equal(t, map[string]string{"RESTOCK_TEST_ALLOWED": "visible"}, env)
}

func TestSandboxEnvironmentDisabled(t *testing.T) {
	t.Setenv("RESTOCK_TEST_ALLOWED", "visible")

	sb, err := NewSandbox(t.TempDir(), false, []string{"RESTOCK_TEST_ALLOWED"})
	require.NoError(t, err)
	require.Empty(t, sb.Environment())

	var nilSandbox *Sandbox
	require.Empty(t, nilSandbox.Environment())
}
