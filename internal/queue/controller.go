// Package queue implements the download admission controller: a bounded set
// of concurrently transferring items, a FIFO of waiting submissions, and the
// per-item lifecycle state machine. One mutex owns all queue state; engine
// I/O and catalog I/O never run under it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tinfoil-queue/internal/domain"
	"tinfoil-queue/internal/repository"
	"tinfoil-queue/internal/service"
	"tinfoil-queue/internal/transfer"
)

const (
	minConcurrent = 1
	maxConcurrent = 10
)

var (
	// ErrNameRequired rejects submissions without a display name.
	ErrNameRequired = errors.New("a name is required")
	// ErrClosed rejects submissions after shutdown has begun.
	ErrClosed = errors.New("download queue is shut down")
)

// Config tunes the controller.
type Config struct {
	MaxConcurrent      int           // clamped to 1..10, default 1
	ConnectTimeout     time.Duration // default 30s
	DuplicateGrace     time.Duration // default 10s
	CompletedRetention time.Duration // default 10m
	Logger             *logrus.Logger
}

// Submission is a new download request.
type Submission struct {
	Name       string
	Filename   string
	Source     domain.Source
	Payload    []byte
	Magnet     string
	Command    string
	TotalBytes int64
	Files      int
}

// SubmitResult reports the admission decision.
type SubmitResult struct {
	Item     domain.DownloadItem
	Queued   bool
	Position int // 1-based, only when Queued
}

// Snapshot is the read-only projection served to polling clients.
type Snapshot struct {
	Active    []domain.DownloadItem
	Queue     []domain.QueueSlot
	Completed []domain.DownloadItem
}

type entry struct {
	item     *domain.DownloadItem
	req      transfer.Request
	files    int
	location string
	cancel   context.CancelFunc // set once admitted
	released bool
	purge    *time.Timer
}

// Controller owns the queue and active-set state. All mutations are
// serialized through mu; see the package comment for the locking discipline.
type Controller struct {
	cfg     Config
	engine  transfer.Engine
	det     *service.Detector
	catalog service.CatalogService
	history repository.HistoryRepository
	logger  *logrus.Logger

	mu        sync.Mutex
	limit     int
	items     map[string]*entry
	fifo      []string // ids of queued items, admission order
	completed []string // ids of retained terminal items, completion order
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewController(cfg Config, engine transfer.Engine, det *service.Detector, catalog service.CatalogService, history repository.HistoryRepository) *Controller {
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.DuplicateGrace == 0 {
		cfg.DuplicateGrace = 10 * time.Second
	}
	if cfg.CompletedRetention == 0 {
		cfg.CompletedRetention = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:     cfg,
		engine:  engine,
		det:     det,
		catalog: catalog,
		history: history,
		logger:  cfg.Logger,
		limit:   clampLimit(cfg.MaxConcurrent),
		items:   make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close stops all transfers and waits for their runners to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	for _, e := range c.items {
		if e.purge != nil {
			e.purge.Stop()
		}
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Submit runs duplicate detection and either admits the item (phase
// "checking") or appends it to the FIFO. The catalog lookup happens before
// the lock is taken, which leaves a small window where two submissions of
// content being indexed concurrently could both pass; the in-flight scan
// under the lock closes the window for everything this controller tracks.
func (c *Controller) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if sub.Name == "" {
		return nil, ErrNameRequired
	}
	if sub.Source == "" {
		sub.Source = domain.SourceTorrentFile
	}

	sigSource := sub.Filename
	if sigSource == "" {
		sigSource = sub.Name
	}
	sig := domain.DeriveSignature(sigSource)

	if dup := c.det.CheckCatalog(ctx, sig); dup != nil {
		return nil, dup
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if dup := c.det.MatchInflight(sig, sub.Name, c.inflightSignaturesLocked("")); dup != nil {
		return nil, dup
	}

	item := &domain.DownloadItem{
		ID:        uuid.NewString(),
		Name:      sub.Name,
		Source:    sub.Source,
		Phase:     domain.PhaseQueued,
		Signature: sig,
		Metrics:   domain.Metrics{TotalBytes: sub.TotalBytes},
		CreatedAt: time.Now().UTC(),
	}
	e := &entry{
		item:  item,
		files: sub.Files,
		req: transfer.Request{
			ID:         item.ID,
			Name:       sub.Name,
			Filename:   sub.Filename,
			Source:     sub.Source,
			Payload:    sub.Payload,
			Magnet:     sub.Magnet,
			Command:    sub.Command,
			TotalBytes: sub.TotalBytes,
		},
	}
	c.items[item.ID] = e

	res := &SubmitResult{}
	if c.activeCountLocked() < c.limit {
		c.admitLocked(e)
		c.logger.WithField("download_id", item.ID).Infof("admitted %q", item.Name)
	} else {
		c.fifo = append(c.fifo, item.ID)
		res.Queued = true
		res.Position = len(c.fifo)
		c.logger.WithField("download_id", item.ID).Infof("queued %q at position %d", item.Name, res.Position)
	}
	res.Item = *item
	return res, nil
}

// Cancel stops an item. Terminal items report success without side effects.
// Cancelling an active item frees its slot and promotes the queue head.
func (c *Controller) Cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[id]
	if !ok {
		return false
	}
	if e.item.Phase.Terminal() {
		return true
	}

	if e.item.Phase == domain.PhaseQueued {
		c.removeFromFifoLocked(id)
		c.finishLocked(e, domain.PhaseCancelled, domain.ErrorKindNone, "")
		return true
	}

	c.finishLocked(e, domain.PhaseCancelled, domain.ErrorKindNone, "")
	if e.cancel != nil {
		e.cancel()
	}
	return true
}

// Pause moves a downloading item to paused. Returns false when the item is
// in any other phase (not applicable, state untouched).
func (c *Controller) Pause(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[id]
	if !ok || e.item.Phase != domain.PhaseDownloading {
		return false
	}
	e.item.Phase = domain.PhasePaused
	return true
}

// Resume moves a paused item back to downloading.
func (c *Controller) Resume(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[id]
	if !ok || e.item.Phase != domain.PhasePaused {
		return false
	}
	e.item.Phase = domain.PhaseDownloading
	return true
}

// SetMaxConcurrent adjusts the slot limit, clamped to 1..10. Raising it
// admits queued items immediately; lowering it never preempts active ones.
func (c *Controller) SetMaxConcurrent(limit int) int {
	limit = clampLimit(limit)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.limit = limit
	c.promoteLocked()
	return c.limit
}

func (c *Controller) MaxConcurrent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}

// Item returns a copy of a tracked item.
func (c *Controller) Item(id string) (domain.DownloadItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[id]
	if !ok {
		return domain.DownloadItem{}, false
	}
	return *e.item, true
}

// Snapshot recomputes the active/queue/completed projection. Terminal items
// past the retention window are swept here.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()

	var snap Snapshot
	completedSet := make(map[string]struct{}, len(c.completed))
	for _, id := range c.completed {
		completedSet[id] = struct{}{}
	}
	queuedSet := make(map[string]struct{}, len(c.fifo))
	for _, id := range c.fifo {
		queuedSet[id] = struct{}{}
	}

	for id, e := range c.items {
		if _, ok := queuedSet[id]; ok {
			continue
		}
		if _, ok := completedSet[id]; ok {
			continue
		}
		// admitted items plus duplicate-flagged ones awaiting purge
		snap.Active = append(snap.Active, *e.item)
	}
	sortItems(snap.Active)

	for i, id := range c.fifo {
		e := c.items[id]
		snap.Queue = append(snap.Queue, domain.QueueSlot{
			ID:       id,
			Name:     e.item.Name,
			Position: i + 1,
			AddedAt:  e.item.CreatedAt,
		})
	}

	for i := len(c.completed) - 1; i >= 0; i-- {
		snap.Completed = append(snap.Completed, *c.items[c.completed[i]].item)
	}

	return snap
}

// internal, lock held

func (c *Controller) activeCountLocked() int {
	n := 0
	for _, e := range c.items {
		if e.cancel != nil && !e.item.Phase.Terminal() {
			n++
		}
	}
	return n
}

func (c *Controller) inflightSignaturesLocked(excludeID string) []domain.Signature {
	sigs := make([]domain.Signature, 0, len(c.items))
	for id, e := range c.items {
		if id == excludeID || e.item.Phase.Terminal() {
			continue
		}
		sigs = append(sigs, e.item.Signature)
	}
	return sigs
}

func (c *Controller) admitLocked(e *entry) {
	now := time.Now().UTC()
	e.item.Phase = domain.PhaseChecking
	e.item.StartedAt = &now

	runCtx, cancel := context.WithCancel(c.ctx)
	e.cancel = cancel

	c.wg.Add(1)
	go c.run(runCtx, e.item.ID)
}

// promoteLocked admits queued heads while capacity remains.
func (c *Controller) promoteLocked() {
	for c.activeCountLocked() < c.limit && len(c.fifo) > 0 {
		id := c.fifo[0]
		c.fifo = c.fifo[1:]
		e := c.items[id]
		c.admitLocked(e)
		c.logger.WithField("download_id", id).Infof("promoted %q from queue", e.item.Name)
	}
}

// releaseLocked frees the item's slot exactly once and promotes the queue
// head in the same critical section, so two racing releases can never admit
// the same waiter and a freed slot never idles while items wait.
func (c *Controller) releaseLocked(e *entry) {
	if e.released || e.cancel == nil {
		return
	}
	e.released = true
	c.promoteLocked()
}

// finishLocked records a terminal phase, retains the item in the completed
// view, and releases its slot.
func (c *Controller) finishLocked(e *entry, phase domain.Phase, kind domain.ErrorKind, msg string) {
	if e.item.Phase.Terminal() {
		return
	}
	now := time.Now().UTC()
	e.item.Phase = phase
	e.item.ErrorKind = kind
	e.item.Error = msg
	e.item.CompletedAt = &now
	c.completed = append(c.completed, e.item.ID)
	c.releaseLocked(e)
}

// markDuplicateLocked flags a late-detected duplicate: the item turns
// error(duplicate), frees its slot immediately, but stays visible in the
// active projection for the grace period before being purged outright.
func (c *Controller) markDuplicateLocked(e *entry, dup *service.DuplicateError) {
	if e.item.Phase.Terminal() {
		return
	}
	now := time.Now().UTC()
	e.item.Phase = domain.PhaseError
	e.item.ErrorKind = domain.ErrorKindDuplicate
	e.item.Error = dup.Error()
	e.item.CompletedAt = &now
	c.releaseLocked(e)

	id := e.item.ID
	e.purge = time.AfterFunc(c.cfg.DuplicateGrace, func() {
		c.removeItem(id)
	})
}

func (c *Controller) removeFromFifoLocked(id string) {
	for i, queued := range c.fifo {
		if queued == id {
			c.fifo = append(c.fifo[:i], c.fifo[i+1:]...)
			return
		}
	}
}

func (c *Controller) removeItem(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.removeFromFifoLocked(id)
	for i, done := range c.completed {
		if done == id {
			c.completed = append(c.completed[:i], c.completed[i+1:]...)
			break
		}
	}
}

func (c *Controller) sweepLocked() {
	cutoff := time.Now().Add(-c.cfg.CompletedRetention)
	kept := c.completed[:0]
	for _, id := range c.completed {
		e := c.items[id]
		if e.item.CompletedAt != nil && e.item.CompletedAt.Before(cutoff) {
			delete(c.items, id)
			continue
		}
		kept = append(kept, id)
	}
	c.completed = kept
}

// runner side

func (c *Controller) run(ctx context.Context, id string) {
	defer c.wg.Done()
	logger := c.logger.WithField("download_id", id)

	c.mu.Lock()
	e, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	req := e.req
	c.mu.Unlock()
	defer e.cancel()

	meta, err := c.engine.Resolve(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			c.fail(id, fmt.Errorf("resolve metadata: %w", err))
		}
		return
	}
	if dup := c.applyMetadata(ctx, id, meta); dup != nil {
		logger.Warnf("duplicate detected during checking: %v", dup)
		return
	}
	// pick up the size and name the metadata wrote back
	c.mu.Lock()
	req = e.req
	c.mu.Unlock()

	if !c.setPhase(id, domain.PhaseConnecting) {
		return
	}
	connectCtx, cancelConnect := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	err = c.engine.Connect(connectCtx, req)
	cancelConnect()
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// cancelled or shutting down; terminal phase already recorded
		case errors.Is(err, context.DeadlineExceeded):
			c.fail(id, fmt.Errorf("no peers after %s", c.cfg.ConnectTimeout))
		default:
			c.fail(id, fmt.Errorf("connect: %w", err))
		}
		return
	}

	if !c.setPhase(id, domain.PhaseDownloading) {
		return
	}
	if err := c.engine.Download(ctx, req, c.progressFunc(id)); err != nil {
		if ctx.Err() == nil {
			c.fail(id, fmt.Errorf("transfer: %w", err))
		}
		return
	}
	if done, _ := c.Item(id); done.Phase.Terminal() {
		return
	}

	if !c.setPhase(id, domain.PhaseUploading) {
		return
	}
	location, err := c.engine.Upload(ctx, req, c.progressFunc(id))
	if err != nil {
		if ctx.Err() == nil {
			c.fail(id, fmt.Errorf("archive: %w", err))
		}
		return
	}

	c.complete(ctx, id, location)
}

// applyMetadata finishes the checking phase: merges resolved identity into
// the signature and re-runs duplicate detection now that the title is known.
func (c *Controller) applyMetadata(ctx context.Context, id string, meta transfer.Metadata) *service.DuplicateError {
	c.mu.Lock()
	e, ok := c.items[id]
	if !ok || e.item.Phase.Terminal() {
		c.mu.Unlock()
		return nil
	}
	sig := e.item.Signature
	if meta.Filename != "" {
		resolved := domain.DeriveSignature(meta.Filename)
		if sig.Filename == "" {
			sig.Filename = resolved.Filename
		}
		if !sig.Resolved() {
			sig.TitleID = resolved.TitleID
			sig.Version = resolved.Version
		}
	}
	if meta.Name != "" {
		e.item.Name = meta.Name
		e.req.Name = meta.Name
	}
	if meta.TotalBytes > 0 {
		e.item.Metrics.TotalBytes = meta.TotalBytes
		e.req.TotalBytes = meta.TotalBytes
	}
	if meta.Files > 0 {
		e.files = meta.Files
	}
	e.item.Signature = sig
	name := e.item.Name
	c.mu.Unlock()

	// catalog first, then the in-flight scan, mirroring Submit
	dup := c.det.CheckCatalog(ctx, sig)

	c.mu.Lock()
	if dup == nil {
		dup = c.det.MatchInflight(sig, name, c.inflightSignaturesLocked(id))
	}
	if dup != nil {
		c.markDuplicateLocked(e, dup)
	}
	c.mu.Unlock()
	return dup
}

// setPhase advances a non-terminal item; returns false when the item has
// already reached a terminal phase (e.g. cancelled mid-stage).
func (c *Controller) setPhase(id string, phase domain.Phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[id]
	if !ok || e.item.Phase.Terminal() {
		return false
	}
	e.item.Phase = phase
	return true
}

func (c *Controller) progressFunc(id string) transfer.ProgressFunc {
	return func(m domain.Metrics) transfer.Signal {
		c.mu.Lock()
		defer c.mu.Unlock()

		e, ok := c.items[id]
		if !ok || e.item.Phase.Terminal() {
			return transfer.Stop
		}
		if e.item.Phase == domain.PhasePaused {
			return transfer.Hold
		}
		e.item.Metrics = m
		return transfer.Proceed
	}
}

func (c *Controller) fail(id string, failErr error) {
	c.mu.Lock()
	e, ok := c.items[id]
	if ok {
		c.finishLocked(e, domain.PhaseError, domain.ErrorKindOther, failErr.Error())
	}
	c.mu.Unlock()
	c.logger.WithField("download_id", id).Errorf("download failed: %v", failErr)
}

// complete marks the item done, then indexes it into the catalog and the
// download history outside the lock.
func (c *Controller) complete(ctx context.Context, id string, location string) {
	c.mu.Lock()
	e, ok := c.items[id]
	if !ok || e.item.Phase.Terminal() {
		c.mu.Unlock()
		return
	}
	e.location = location
	e.item.Metrics.Percent = 100
	e.item.Metrics.Speed = 0
	e.item.Metrics.ETASeconds = 0
	c.finishLocked(e, domain.PhaseDone, domain.ErrorKindNone, "")
	item := *e.item
	files := e.files
	c.mu.Unlock()

	logger := c.logger.WithField("download_id", id)

	entry := &domain.CatalogEntry{
		Name:     item.Name,
		Filename: item.Signature.Filename,
		TitleID:  item.Signature.TitleID,
		Version:  item.Signature.Version,
		Size:     item.Metrics.TotalBytes,
		URL:      location,
		Path:     location,
	}
	if entry.Filename == "" {
		entry.Filename = item.Name
	}
	if err := c.catalog.Upsert(ctx, entry); err != nil {
		logger.Warnf("index completed download: %v", err)
	}

	duration := int64(0)
	if item.StartedAt != nil && item.CompletedAt != nil {
		duration = int64(item.CompletedAt.Sub(*item.StartedAt).Seconds())
	}
	if files <= 0 {
		files = 1
	}
	if _, err := c.history.Save(ctx, &domain.HistoryEntry{
		Name:     item.Name,
		Files:    files,
		Size:     item.Metrics.TotalBytes,
		Folder:   location,
		Duration: duration,
		Source:   item.Source,
	}); err != nil {
		logger.Warnf("record download history: %v", err)
	}

	logger.Infof("download completed: %q -> %s", item.Name, location)
}

func clampLimit(limit int) int {
	if limit < minConcurrent {
		return minConcurrent
	}
	if limit > maxConcurrent {
		return maxConcurrent
	}
	return limit
}

func sortItems(items []domain.DownloadItem) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
