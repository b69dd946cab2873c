package domain

import "time"

type Phase string

const (
	PhaseQueued      Phase = "queued"
	PhaseChecking    Phase = "checking"
	PhaseConnecting  Phase = "connecting"
	PhaseDownloading Phase = "downloading"
	PhasePaused      Phase = "paused"
	PhaseUploading   Phase = "uploading"
	PhaseDone        Phase = "done"
	PhaseError       Phase = "error"
	PhaseCancelled   Phase = "cancelled"
)

// Terminal reports whether the phase ends an item's lifecycle.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseDone, PhaseError, PhaseCancelled:
		return true
	}
	return false
}

// Transferring reports whether the item is actively working a transfer slot's
// worth of I/O. Paused items hold their slot but are not transferring.
func (p Phase) Transferring() bool {
	switch p {
	case PhaseChecking, PhaseConnecting, PhaseDownloading, PhaseUploading:
		return true
	}
	return false
}

type Source string

const (
	SourceTorrentFile   Source = "torrent-file"
	SourceMagnet        Source = "magnet"
	SourceSearchCommand Source = "search-command"
)

// ErrorKind sub-classifies the error phase so callers can branch on it.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindDuplicate ErrorKind = "duplicate"
	ErrorKindOther     ErrorKind = "other"
)

// Metrics carries live transfer measurements. Only meaningful while the item
// is in a downloading or uploading phase.
type Metrics struct {
	Percent         int
	Speed           int64 // bytes per second
	DownloadedBytes int64
	TotalBytes      int64
	ETASeconds      int64
	Peers           int
}

// DownloadItem is one submitted transfer tracked by the queue controller.
// The controller owns it exclusively; snapshots hand out copies.
type DownloadItem struct {
	ID          string
	Name        string
	Source      Source
	Phase       Phase
	Signature   Signature
	Metrics     Metrics
	ErrorKind   ErrorKind
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// QueueSlot is the derived ordering record for a not-yet-admitted item.
// Position is 1-based and recomputed from FIFO order on every read.
type QueueSlot struct {
	ID       string
	Name     string
	Position int
	AddedAt  time.Time
}

// HistoryEntry records one completed download.
type HistoryEntry struct {
	ID          int64
	Name        string
	Files       int
	Size        int64
	Folder      string
	Duration    int64 // seconds
	Source      Source
	CompletedAt time.Time
}
