package audit

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Log("entry.add", "General/example.com", true))
	require.NoError(t, l.Log("group.delete", "General", false))
	require.NoError(t, l.Close())

	n, err := Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Reopening continues the same chain.
	l, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Log("entry.get", "General/example.com", true))
	require.NoError(t, l.Close())

	events, err := Read(path)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "group.delete", events[1].Action)
	assert.False(t, events[1].Success)
}

func TestVerifyDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	for _, a := range []string{"a", "b", "c"} {
		require.NoError(t, l.Log(a, "s", true))
	}
	require.NoError(t, l.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))

	edited := bytes.Replace(raw, []byte(`"action":"b"`), []byte(`"action":"x"`), 1)
	require.NoError(t, os.WriteFile(path, edited, 0o600))
	_, err = Verify(path)
	assert.ErrorIs(t, err, ErrChainBroken)

	dropped := append(append([]byte{}, lines[0]...), '\n')
	dropped = append(dropped, lines[2]...)
	require.NoError(t, os.WriteFile(path, dropped, 0o600))
	_, err = Verify(path)
	assert.ErrorIs(t, err, ErrChainBroken)
}

func TestNop(t *testing.T) {
	var l Logger = Nop{}
	assert.NoError(t, l.Log("x", "y", true))
	assert.NoError(t, l.Close())
}
