package probe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCountFiles_SizeThreshold(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "1234567890")
	writeFile(t, dir, "b.csv", "12")
	writeFile(t, dir, "c.txt", "1234567890")

	p := NewProbe(nil)
	count := p.CountFiles(dir, "*.csv", 5, 0)
	assert.Equal(t, 1, count)
}

func TestExistsAny(t *testing.T) {
	dir := t.TempDir()
	p := NewProbe(nil)
	assert.False(t, p.ExistsAny(dir, "*.pdf"))

	writeFile(t, dir, "report.pdf", "x")
	assert.True(t, p.ExistsAny(dir, "*.pdf"))
}

func TestNewestMatching(t *testing.T) {
	dir := t.TempDir()
	p := NewProbe(nil)
	assert.Nil(t, p.NewestMatching(dir, "*.csv"))

	writeFile(t, dir, "one.csv", "a")
	writeFile(t, dir, "two.csv", "bb")

	newest := p.NewestMatching(dir, "*.csv")
	require.NotNil(t, newest)
	assert.Contains(t, []string{"one.csv", "two.csv"}, filepath.Base(newest.Path))
}

func TestCountFiles_MissingFolderIsUnknownNotPanic(t *testing.T) {
	p := NewProbe(nil)
	count := p.CountFiles(filepath.Join(t.TempDir(), "does-not-exist"), "*.csv", 0, 0)
	assert.Equal(t, 0, count)
}

func TestCountFiles_IgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))
	writeFile(t, dir, "real.csv", "12345")

	p := NewProbe(nil)
	assert.Equal(t, 1, p.CountFiles(dir, "*.csv", 0, 0))
}
