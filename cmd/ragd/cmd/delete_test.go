package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragd-project/ragd/internal/store"
)

func TestDeleteRemovesDocumentAfterIndexing(t *testing.T) {
	tmp := t.TempDir()
	docPath := filepath.Join(tmp, "note.txt")
	require.NoError(t, os.WriteFile(docPath, []byte("content bound for secure deletion"), 0o644))

	flagDataDir = filepath.Join(tmp, ".ragd")
	flagConfig = filepath.Join(tmp, "ragd.yaml")
	defer func() { flagDataDir = ""; flagConfig = "" }()

	indexOut := new(bytes.Buffer)
	idx := NewRootCmd()
	idx.SetOut(indexOut)
	idx.SetArgs([]string{"index", docPath})
	require.NoError(t, idx.Execute())

	dir, err := dataDir()
	require.NoError(t, err)
	metadata, err := openMetadataStore(dir)
	require.NoError(t, err)
	docs, err := metadata.Query(context.Background(), store.DocQuery{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.NoError(t, metadata.Close())

	documentID := docs[0].DocumentID

	deleteOut := new(bytes.Buffer)
	del := NewRootCmd()
	del.SetOut(deleteOut)
	del.SetArgs([]string{"delete", documentID})
	require.NoError(t, del.Execute())
	assert.Contains(t, deleteOut.String(), "removed")

	statusOut := new(bytes.Buffer)
	status := NewRootCmd()
	status.SetOut(statusOut)
	status.SetArgs([]string{"status"})
	require.NoError(t, status.Execute())
	assert.Contains(t, statusOut.String(), "documents:  0")
}

func TestParseLevelDefaultsToStandard(t *testing.T) {
	assert.EqualValues(t, "STANDARD", parseLevel("bogus"))
	assert.EqualValues(t, "SECURE", parseLevel("secure"))
	assert.EqualValues(t, "CRYPTOGRAPHIC", parseLevel("cryptographic"))
}
