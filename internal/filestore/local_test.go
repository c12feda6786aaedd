package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveAndOpen(t *testing.T) {
	ctx := context.Background()
	store, err := createLocalStore(map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)

	content := `[{"description":"Bill"}]`
	require.NoError(t, store.Save(ctx, "statement.json", strings.NewReader(content), int64(len(content))))

	rc, err := store.Open(ctx, "statement.json")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, string(data))
}

func TestLocalStore_RejectsPathTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := createLocalStore(map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)

	require.Error(t, store.Save(ctx, "../escape.json", strings.NewReader("x"), 1))
	_, err = store.Open(ctx, "a/b.json")
	require.Error(t, err)
	_, err = store.Open(ctx, "")
	require.Error(t, err)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := createLocalStore(map[string]interface{}{})
	require.Error(t, err)
}
