package torrentfile

import (
	"bytes"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTorrent(t *testing.T, info metainfo.Info) []byte {
	t.Helper()
	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, (&metainfo.MetaInfo{InfoBytes: infoBytes}).Write(&buf))
	return buf.Bytes()
}

func TestParseSingleFile(t *testing.T) {
	payload := buildTorrent(t, metainfo.Info{
		Name:        "Game [0100000000010000][v0].nsp",
		PieceLength: 16384,
		Pieces:      make([]byte, 20),
		Length:      4096,
	})

	got, err := Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, "Game [0100000000010000][v0].nsp", got.Name)
	assert.Equal(t, int64(4096), got.Size)
	assert.Equal(t, 1, got.Files)
	assert.Len(t, got.InfoHash, 40)
}

func TestParseMultiFile(t *testing.T) {
	payload := buildTorrent(t, metainfo.Info{
		Name:        "Game Bundle",
		PieceLength: 16384,
		Pieces:      make([]byte, 40),
		Files: []metainfo.FileInfo{
			{Path: []string{"base.nsp"}, Length: 2048},
			{Path: []string{"update.nsp"}, Length: 1024},
		},
	})

	got, err := Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, "Game Bundle", got.Name)
	assert.Equal(t, int64(3072), got.Size)
	assert.Equal(t, 2, got.Files)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse(nil)
	assert.Error(t, err)

	_, err = Parse([]byte("not a torrent at all"))
	assert.Error(t, err)
}

func TestValidFilename(t *testing.T) {
	assert.True(t, ValidFilename("Zelda.torrent"))
	assert.True(t, ValidFilename("ZELDA.TORRENT"))
	assert.False(t, ValidFilename("Zelda.nsp"))
	assert.False(t, ValidFilename("torrent"))
	assert.False(t, ValidFilename(""))
}
