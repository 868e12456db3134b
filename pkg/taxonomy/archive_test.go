package taxonomy

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ozkatz/cloudzip/pkg/zipfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const archivedTaxonomy = `{"id":"esrs","label":"ESRS Set 1","children":[
	{"id":"esrs_E1","label":"ESRS E1 Climate change","children":[
		{"id":"esrs_GrossScope1GHGEmissions","label":"Gross Scope 1 GHG emissions"}
	]}
]}`

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// serveZip serves archive with range support and counts requests.
func serveZip(t *testing.T, archive []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.ServeContent(w, r, "package.zip", time.Time{}, bytes.NewReader(archive))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFetchArchiveMember(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"esrs/taxonomy.json": archivedTaxonomy,
		"esrs/README.txt":    "not a taxonomy",
	})
	srv, _ := serveZip(t, archive)

	data, err := FetchArchiveMember(context.Background(), srv.URL, "esrs/taxonomy.json")
	require.NoError(t, err)
	assert.Equal(t, archivedTaxonomy, string(data))

	_, err = FetchArchiveMember(context.Background(), srv.URL, "esrs/missing.json")
	assert.ErrorIs(t, err, zipfile.ErrFileNotFound)
}

func TestArchiveSourceCaches(t *testing.T) {
	archive := buildZip(t, map[string]string{"esrs/taxonomy.json": archivedTaxonomy})
	srv, calls := serveZip(t, archive)
	dir := t.TempDir()
	src := ArchiveSource{URL: srv.URL, Member: "esrs/taxonomy.json", CacheDir: dir}

	data, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "esrs/taxonomy.json", data.SourceFile)
	idx := NewIndex(data)
	_, ok := idx.FindByID("esrs_GrossScope1GHGEmissions")
	assert.True(t, ok)
	fetched := calls.Load()
	assert.Positive(t, fetched)

	cached, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, archivedTaxonomy, string(cached))
	assert.Equal(t, fetched, calls.Load(), "second fetch is served from the cache")

	other := buildZip(t, map[string]string{"esrs/taxonomy.json": `[{"id":"esrs_Other"}]`})
	otherSrv, otherCalls := serveZip(t, other)
	otherSrc := ArchiveSource{URL: otherSrv.URL, Member: src.Member, CacheDir: dir}
	got, err := otherSrc.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"esrs_Other"}]`, string(got))
	assert.Positive(t, otherCalls.Load())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = ArchiveSource{URL: srv.URL}.Fetch(context.Background())
	assert.Error(t, err)
}
