package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"tinfoil-queue/internal/domain"
	"tinfoil-queue/internal/storage"
	"tinfoil-queue/internal/torrentfile"
)

// SimConfig tunes the simulated engine.
type SimConfig struct {
	DataDir      string
	ConnectDelay time.Duration
	Tick         time.Duration
	StepPercent  int
	// Optional. When set, completed downloads are archived to object storage
	// during the uploading phase instead of simulating it.
	Storage       storage.Service
	UploadOptions storage.UploadOptions
	Logger        *logrus.Logger
}

// SimEngine stands in for the real peer-to-peer engine: it resolves metadata
// from the uploaded payload, pretends to discover peers, and advances
// progress on a ticker. Phase timing and progress shape mirror what the real
// engine reports, which is all the queue controller cares about.
type SimEngine struct {
	cfg SimConfig
}

const simDefaultSize = 256 << 20 // assumed size for search downloads

func NewSimEngine(cfg SimConfig) *SimEngine {
	if cfg.ConnectDelay == 0 {
		cfg.ConnectDelay = 500 * time.Millisecond
	}
	if cfg.Tick == 0 {
		cfg.Tick = 200 * time.Millisecond
	}
	if cfg.StepPercent <= 0 {
		cfg.StepPercent = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &SimEngine{cfg: cfg}
}

func (e *SimEngine) Resolve(ctx context.Context, req Request) (Metadata, error) {
	if len(req.Payload) > 0 {
		info, err := torrentfile.Parse(req.Payload)
		if err != nil {
			return Metadata{}, err
		}
		return Metadata{
			Name:       info.Name,
			Filename:   req.Filename,
			TotalBytes: info.Size,
			Files:      info.Files,
		}, nil
	}

	// Search downloads carry no payload; identity comes from the resolved
	// game name until the backend hands over real metadata.
	total := req.TotalBytes
	if total <= 0 {
		total = simDefaultSize
	}
	filename := req.Filename
	if filename == "" {
		filename = req.Name
	}
	return Metadata{Name: req.Name, Filename: filename, TotalBytes: total, Files: 1}, nil
}

func (e *SimEngine) Connect(ctx context.Context, req Request) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.cfg.ConnectDelay):
		return nil
	}
}

func (e *SimEngine) Download(ctx context.Context, req Request, progress ProgressFunc) error {
	total := req.TotalBytes
	if total <= 0 {
		total = simDefaultSize
	}

	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	percent := 0
	for percent < 100 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		next := percent + e.cfg.StepPercent
		if next > 100 {
			next = 100
		}
		m := e.metricsAt(next, total)
		switch progress(m) {
		case Stop:
			return nil
		case Hold:
			continue
		}
		percent = next
	}

	return e.writeManifest(req, total)
}

func (e *SimEngine) Upload(ctx context.Context, req Request, progress ProgressFunc) (string, error) {
	dir := e.stagingDir(req)

	if e.cfg.Storage != nil && e.cfg.UploadOptions.Bucket != "" {
		opts := e.cfg.UploadOptions
		opts.KeyPrefix = filepath.ToSlash(filepath.Join(opts.KeyPrefix, req.ID))
		opts.ProgressCallback = func(done, total int64) {
			percent := 100
			if total > 0 {
				percent = int(done * 100 / total)
			}
			progress(domain.Metrics{Percent: percent, DownloadedBytes: done, TotalBytes: total})
		}
		location, err := e.cfg.Storage.UploadDirectory(ctx, dir, opts)
		if err != nil {
			return "", err
		}
		if err := os.RemoveAll(dir); err != nil {
			e.cfg.Logger.Warnf("cleanup staging dir %s: %v", dir, err)
		}
		return location, nil
	}

	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	for percent := 0; percent < 100; {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		percent += e.cfg.StepPercent * 2
		if percent > 100 {
			percent = 100
		}
		if progress(e.metricsAt(percent, req.TotalBytes)) == Stop {
			return "", nil
		}
	}
	return dir, nil
}

func (e *SimEngine) metricsAt(percent int, total int64) domain.Metrics {
	done := total * int64(percent) / 100
	speed := int64(0)
	if e.cfg.Tick > 0 {
		speed = total * int64(e.cfg.StepPercent) / 100 * int64(time.Second) / int64(e.cfg.Tick)
	}
	eta := int64(0)
	if speed > 0 {
		eta = (total - done) / speed
	}
	return domain.Metrics{
		Percent:         percent,
		Speed:           speed,
		DownloadedBytes: done,
		TotalBytes:      total,
		ETASeconds:      eta,
		Peers:           4 + percent%7,
	}
}

func (e *SimEngine) stagingDir(req Request) string {
	return filepath.Join(e.cfg.DataDir, fmt.Sprintf("download-%s", req.ID))
}

// writeManifest leaves a small marker in the staging directory so the upload
// stage has something real to archive.
func (e *SimEngine) writeManifest(req Request, total int64) error {
	dir := e.stagingDir(req)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	manifest := fmt.Sprintf("name=%s\nsource=%s\nbytes=%d\n", req.Name, req.Source, total)
	if err := os.WriteFile(filepath.Join(dir, "manifest.txt"), []byte(manifest), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

var _ Engine = (*SimEngine)(nil)
