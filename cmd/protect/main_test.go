package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMaskThenUnmask(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)

	out, err := run(t, "", "mask", "--backend", "pattern", "Email", "jane@example.com", "or", "call", "555-123-4567")
	require.NoError(t, err)

	var res struct {
		MaskedText string          `json:"masked_text"`
		Mapping    json.RawMessage `json:"mapping"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "Email [EMAIL_1] or call [PHONE_1]", res.MaskedText)

	// The full mask output is accepted as a mapping file
	full := filepath.Join(dir, "mask.json")
	require.NoError(t, os.WriteFile(full, []byte(out), 0o600))
	out, err = run(t, "", "unmask", "--mapping", full, "Sent to [EMAIL_1]")
	require.NoError(t, err)
	assert.Equal(t, "Sent to jane@example.com\n", out)

	// So is the bare mapping, with text on stdin
	bare := filepath.Join(dir, "mapping.json")
	require.NoError(t, os.WriteFile(bare, res.Mapping, 0o600))
	out, err = run(t, "Call [PHONE_1]\n", "unmask", "--mapping", bare)
	require.NoError(t, err)
	assert.Equal(t, "Call 555-123-4567\n", out)
}

func TestMaskFromStdin(t *testing.T) {
	testChdir(t, t.TempDir())

	out, err := run(t, "ssn 123-45-6789\n", "mask")
	require.NoError(t, err)
	assert.Contains(t, out, `"masked_text": "ssn [SSN_1]"`)
}

func TestProcessWithoutCompletion(t *testing.T) {
	testChdir(t, t.TempDir())

	out, err := run(t, "", "process", "--no-completion", "my name is John Smith")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "my name is [NAME_1]", resp["masked_input"])
	assert.Equal(t, "", resp["ai_response_masked"])
}

func TestCommandErrors(t *testing.T) {
	testChdir(t, t.TempDir())

	t.Run("unknown backend", func(t *testing.T) {
		_, err := run(t, "", "mask", "--backend", "regex", "text")
		assert.Error(t, err)
	})

	t.Run("unmask needs a mapping", func(t *testing.T) {
		_, err := run(t, "", "unmask", "text")
		assert.Error(t, err)
	})

	t.Run("missing mapping file", func(t *testing.T) {
		_, err := run(t, "", "unmask", "--mapping", "nope.json", "text")
		assert.Error(t, err)
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := run(t, "", "--config", "nope.yaml", "status")
		assert.Error(t, err)
	})
}
