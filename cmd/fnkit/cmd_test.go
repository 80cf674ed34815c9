package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchemas(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schemas")

	root := newRootCommand()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{"generate-schemas", out})

	require.NoError(t, root.Execute())

	for _, name := range []string{"createOrder", "order.created"} {
		_, err := os.Stat(filepath.Join(out, name+".schema.json"))
		assert.NoError(t, err, name)
	}
	assert.Contains(t, stdout.String(), "createOrder.schema.json")
}

func TestGenerateSchemas_MissingArgument(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"generate-schemas"})

	assert.ErrorContains(t, root.Execute(), "accepts 1 arg(s)")
}

func TestRootPrintsHelp(t *testing.T) {
	root := newRootCommand()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs(nil)

	require.NoError(t, root.Execute())
	assert.Contains(t, stdout.String(), "generate-schemas")
}
