package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpFilesOrdersAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_disputes.up.sql", "0001_init.up.sql", "0001_init.down.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003_dir.up.sql"), 0o755))

	files, err := upFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init.up.sql", "0002_disputes.up.sql"}, files)
}

func TestMigrationsDirParses(t *testing.T) {
	files, err := upFiles(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
}
