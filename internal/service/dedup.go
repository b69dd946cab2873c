package service

import (
	"context"
	"fmt"

	"tinfoil-queue/internal/domain"
)

// Match identifies what a duplicate submission collided with.
type Match string

const (
	MatchCatalog     Match = "catalog"
	MatchActiveQueue Match = "active-queue"
)

// DuplicateError rejects a submission whose signature matches already-known
// content. The match origin is kept so callers can phrase the error
// differently and skip retries.
type DuplicateError struct {
	Against Match
	Name    string
}

func (e *DuplicateError) Error() string {
	if e.Against == MatchCatalog {
		return fmt.Sprintf("%s is already indexed in the catalog", e.Name)
	}
	return fmt.Sprintf("%s is already downloading or waiting in the queue", e.Name)
}

// Detector decides whether a candidate submission duplicates an existing
// catalog entry or an in-flight item. The catalog half performs store I/O and
// must be called without the queue lock held; the in-flight half is a pure
// signature scan the controller runs under its own lock.
type Detector struct {
	catalog CatalogService
}

func NewDetector(catalog CatalogService) *Detector {
	return &Detector{catalog: catalog}
}

// CheckCatalog returns a DuplicateError when the signature matches an indexed
// entry. Storage outages surface as "not found" (CatalogService fails open).
func (d *Detector) CheckCatalog(ctx context.Context, sig domain.Signature) *DuplicateError {
	entry := d.catalog.Lookup(ctx, sig)
	if entry == nil {
		return nil
	}
	name := entry.Name
	if name == "" {
		name = entry.Filename
	}
	return &DuplicateError{Against: MatchCatalog, Name: name}
}

// MatchInflight scans signatures of non-terminal items for a collision.
func (d *Detector) MatchInflight(sig domain.Signature, name string, inflight []domain.Signature) *DuplicateError {
	for _, other := range inflight {
		if sig.Matches(other) {
			return &DuplicateError{Against: MatchActiveQueue, Name: name}
		}
	}
	return nil
}
