// Package torrentfile decodes uploaded .torrent payloads just far enough to
// admit them: display name, total size and file count. Actual piece-level
// metadata stays with the transfer engine.
package torrentfile

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

type Info struct {
	Name     string
	InfoHash string
	Size     int64
	Files    int
}

// Parse decodes a raw .torrent payload.
func Parse(payload []byte) (*Info, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("torrent payload is empty")
	}

	mi, err := metainfo.Load(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode torrent file: %w", err)
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("decode torrent info: %w", err)
	}

	files := len(info.UpvertedFiles())
	if files == 0 {
		files = 1
	}

	return &Info{
		Name:     info.BestName(),
		InfoHash: mi.HashInfoBytes().HexString(),
		Size:     info.TotalLength(),
		Files:    files,
	}, nil
}

// ValidFilename reports whether the uploaded filename has the expected
// .torrent extension.
func ValidFilename(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".torrent")
}
