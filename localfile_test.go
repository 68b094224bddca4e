package jarverifier

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avast/jarverifier/signingblock"
)

func TestReadEntry(t *testing.T) {
	big := bytes.Repeat([]byte("compressible "), 4096)
	data := writeZip(t,
		zipFile{name: "stored.txt", data: []byte("stored")},
		zipFile{name: "deflated.txt", data: big, deflate: true},
		zipFile{name: "empty.txt", data: nil, deflate: true},
	)

	catalog, _, sections, err := readCatalog(t, data)
	require.NoError(t, err)
	ds := signingblock.NewBytesDataSource(data)

	got, err := readEntry(ds, catalog.get("stored.txt"), sections.CentralDirectoryOffset)
	require.NoError(t, err)
	assert.Equal(t, []byte("stored"), got)

	deflated := catalog.get("deflated.txt")
	assert.Less(t, deflated.CompressedSize, deflated.UncompressedSize)
	got, err = readEntry(ds, deflated, sections.CentralDirectoryOffset)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	got, err = readEntry(ds, catalog.get("empty.txt"), sections.CentralDirectoryOffset)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadEntryMalformed(t *testing.T) {
	data := writeZip(t, zipFile{name: "a.txt", data: []byte("hello")})
	catalog, _, sections, err := readCatalog(t, data)
	require.NoError(t, err)
	ds := signingblock.NewBytesDataSource(data)
	e := catalog.get("a.txt")

	t.Run("size mismatch", func(t *testing.T) {
		bad := *e
		bad.UncompressedSize++
		_, err := readEntry(ds, &bad, sections.CentralDirectoryOffset)
		assert.Error(t, err)
	})

	t.Run("offset past central directory", func(t *testing.T) {
		bad := *e
		bad.LocalHeaderOffset = sections.CentralDirectoryOffset
		_, err := readEntry(ds, &bad, sections.CentralDirectoryOffset)
		assert.Error(t, err)
	})

	t.Run("name mismatch", func(t *testing.T) {
		bad := *e
		bad.Name = "b.txt"
		_, err := readEntry(ds, &bad, sections.CentralDirectoryOffset)
		assert.Error(t, err)
	})

	t.Run("unsupported method", func(t *testing.T) {
		bad := *e
		bad.Method = 12
		_, err := readEntry(ds, &bad, sections.CentralDirectoryOffset)
		assert.Error(t, err)
	})

	t.Run("bad local header signature", func(t *testing.T) {
		broken := append([]byte{}, data...)
		broken[e.LocalHeaderOffset] = 'X'
		_, err := readEntry(signingblock.NewBytesDataSource(broken), e, sections.CentralDirectoryOffset)
		assert.Error(t, err)
	})
}
