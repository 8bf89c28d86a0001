package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes a fresh root command with args against root/scope, capturing stdout.
func run(t *testing.T, root string, args ...string) string {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--root", root, "--scope", "local"}, args...))
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestUpsertGetQueryDeleteRoundTrip(t *testing.T) {
	root := t.TempDir()

	upsertOut := run(t, root, "upsert", "--title", "retry backoff", "--text", "exponential backoff with jitter", "--tag", "go")
	assert.Contains(t, upsertOut, "upserted")

	listOut := run(t, root, "list")
	assert.Contains(t, listOut, "retry backoff")

	queryOut := run(t, root, "query", "retry backoff")
	assert.Contains(t, queryOut, "retry backoff")

	id := firstIDFromList(t, listOut)

	getOut := run(t, root, "get", id)
	assert.Contains(t, getOut, `"title": "retry backoff"`)

	pinOut := run(t, root, "pin", id)
	assert.Contains(t, pinOut, "pinned")

	deleteOut := run(t, root, "delete", id)
	assert.Contains(t, deleteOut, "deleted")
}

// firstIDFromList pulls the id out of list's "ID\tTYPE\t..." tab-separated
// second line (the first line is the header row).
func firstIDFromList(t *testing.T, listOutput string) string {
	t.Helper()
	lines := strings.Split(strings.TrimRight(listOutput, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	fields := strings.Fields(lines[1])
	require.NotEmpty(t, fields)
	return fields[0]
}
