// Package transfer defines the narrow contract between the queue controller
// and whatever moves the actual bytes. The real peer-to-peer engine lives in
// a separate service; this package ships a simulated implementation with the
// same observable behavior.
package transfer

import (
	"context"

	"tinfoil-queue/internal/domain"
)

// Request describes one admitted download for the engine.
type Request struct {
	ID         string
	Name       string
	Filename   string
	Source     domain.Source
	Payload    []byte // raw .torrent bytes (torrent-file source)
	Magnet     string // magnet URI (magnet source)
	Command    string // bot command (search-command source)
	TotalBytes int64
}

// Metadata is what the engine learns about the content during the checking
// phase, before any peers are contacted.
type Metadata struct {
	Name       string
	Filename   string
	TotalBytes int64
	Files      int
}

// Signal steers an in-flight transfer from the progress callback.
type Signal int

const (
	// Proceed keeps the transfer moving.
	Proceed Signal = iota
	// Hold keeps the transfer alive without advancing (item is paused).
	Hold
	// Stop abandons the transfer; the item has reached a terminal phase.
	Stop
)

// ProgressFunc receives live metrics and returns how to continue. Engines
// must call it at a steady interval while transferring.
type ProgressFunc func(domain.Metrics) Signal

// Engine runs the stages of a single transfer. Every method honors context
// cancellation; Connect is additionally expected to respect the deadline the
// controller sets on it.
type Engine interface {
	Resolve(ctx context.Context, req Request) (Metadata, error)
	Connect(ctx context.Context, req Request) error
	Download(ctx context.Context, req Request, progress ProgressFunc) error
	Upload(ctx context.Context, req Request, progress ProgressFunc) (string, error)
}
