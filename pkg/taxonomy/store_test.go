package taxonomy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestOpenFileMergesCalculations(t *testing.T) {
	dir := t.TempDir()
	taxPath := filepath.Join(dir, "taxonomy.json")
	calcPath := filepath.Join(dir, "cal.xml")
	writeFile(t, taxPath, `[{"id":"esrs_Total"},{"id":"esrs_Part1"},{"id":"esrs_Part2"}]`)
	writeFile(t, calcPath, calculationLinkbase)

	idx, err := OpenFile(taxPath, calcPath)
	require.NoError(t, err)
	assert.Equal(t, taxPath, idx.Root().SourceFile)

	total, ok := idx.FindByID("esrs_Total")
	require.True(t, ok)
	assert.Equal(t, []string{"esrs_Part1", "esrs_Part2"}, ids(idx.CalculationChildren(total)))

	_, err = OpenFile(filepath.Join(dir, "missing.json"), "")
	assert.Error(t, err)
}

func TestStoreWatchReloads(t *testing.T) {
	dir := t.TempDir()
	taxPath := filepath.Join(dir, "taxonomy.json")
	writeFile(t, taxPath, `[{"id":"a"}]`)

	idx, err := OpenFile(taxPath, "")
	require.NoError(t, err)
	store := NewStore(idx, WithLogger(zap.NewNop()))
	assert.Equal(t, 1, store.Index().Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Watch(ctx, taxPath, ""))

	writeFile(t, taxPath, `[{"id":"a"},{"id":"b"}]`)
	assert.Eventually(t, func() bool {
		return store.Index().Len() == 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStoreKeepsIndexOnBadReload(t *testing.T) {
	dir := t.TempDir()
	taxPath := filepath.Join(dir, "taxonomy.json")
	writeFile(t, taxPath, `[{"id":"a"}]`)

	idx, err := OpenFile(taxPath, "")
	require.NoError(t, err)
	store := NewStore(idx)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Watch(ctx, taxPath, ""))

	writeFile(t, taxPath, `{broken`)
	time.Sleep(2 * defaultDebounce)
	assert.Same(t, idx, store.Index())
}
