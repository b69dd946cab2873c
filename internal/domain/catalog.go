package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CatalogEntry is a previously completed, indexed item. Filename is unique
// across the catalog; (TitleID, Version) is a second duplicate key when both
// are present.
type CatalogEntry struct {
	ID        int64
	Name      string
	Filename  string
	TitleID   string
	Version   int
	Size      int64
	URL       string
	Path      string
	IndexedAt time.Time
}

// Signature is the dedup key derived from a submission. Filename is always
// available; TitleID and Version only once metadata has been resolved.
type Signature struct {
	Filename string
	TitleID  string
	Version  int
}

// Resolved reports whether the title identity part of the signature is known.
func (s Signature) Resolved() bool {
	return s.TitleID != ""
}

// Matches reports whether two signatures identify the same content: equal
// filenames, or equal (TitleID, Version) pairs when both sides resolved one.
func (s Signature) Matches(other Signature) bool {
	if s.Filename != "" && strings.EqualFold(s.Filename, other.Filename) {
		return true
	}
	return s.Resolved() && other.Resolved() &&
		strings.EqualFold(s.TitleID, other.TitleID) && s.Version == other.Version
}

// titleTagRe matches the ROM naming convention "Name [0100XXXXXXXXXXXX][v0].nsp".
var titleTagRe = regexp.MustCompile(`\[([0-9A-Fa-f]{16})\](?:\s*\[v(\d+)\])?`)

// DeriveSignature builds a signature from a filename, picking up the title id
// and version tags when the name carries them.
func DeriveSignature(filename string) Signature {
	sig := Signature{Filename: strings.TrimSpace(filename)}
	m := titleTagRe.FindStringSubmatch(sig.Filename)
	if m == nil {
		return sig
	}
	sig.TitleID = strings.ToUpper(m[1])
	if m[2] != "" {
		if v, err := strconv.Atoi(m[2]); err == nil {
			sig.Version = v
		}
	}
	return sig
}
