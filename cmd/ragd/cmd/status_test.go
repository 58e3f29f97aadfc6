package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusErrorsWithoutIndex(t *testing.T) {
	tmp := t.TempDir()
	flagDataDir = filepath.Join(tmp, ".ragd")
	flagConfig = filepath.Join(tmp, "ragd.yaml")
	defer func() { flagDataDir = ""; flagConfig = "" }()

	root := NewRootCmd()
	root.SetArgs([]string{"status"})
	err := root.Execute()
	assert.Error(t, err)
}

func TestStatusReportsCountsAfterIndexing(t *testing.T) {
	tmp := t.TempDir()
	docPath := filepath.Join(tmp, "note.txt")
	require.NoError(t, os.WriteFile(docPath, []byte("status command exercises document and chunk counts"), 0o644))

	flagDataDir = filepath.Join(tmp, ".ragd")
	flagConfig = filepath.Join(tmp, "ragd.yaml")
	defer func() { flagDataDir = ""; flagConfig = "" }()

	indexOut := new(bytes.Buffer)
	idx := NewRootCmd()
	idx.SetOut(indexOut)
	idx.SetArgs([]string{"index", docPath})
	require.NoError(t, idx.Execute())

	statusOut := new(bytes.Buffer)
	status := NewRootCmd()
	status.SetOut(statusOut)
	status.SetArgs([]string{"status", "--json"})
	require.NoError(t, status.Execute())

	var info StatusInfo
	require.NoError(t, json.Unmarshal(statusOut.Bytes(), &info))
	assert.Equal(t, 1, info.DocumentCount)
	assert.GreaterOrEqual(t, info.ChunkCount, 1)
}
