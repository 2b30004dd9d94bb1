package engine

import "errors"

// Sentinel error kinds, one per failure surface. The Orchestrator returns
// all but two: a session-acquisition failure during a list fetch surfaces
// wrapped in ErrScrapingListFailed, and per-item detail failures are logged
// and skipped, so ErrSessionAcquisitionFailed and ErrScrapingDetailFailed
// are not returned by any Orchestrator method.
var (
	ErrSessionAcquisitionFailed = errors.New("engine: session acquisition failed")
	ErrScrapingListFailed       = errors.New("engine: listing fetch failed")
	ErrScrapingDetailFailed     = errors.New("engine: detail fetch failed")
	ErrRepositoryLoadFailed     = errors.New("engine: repository read failed")
	ErrRepositoryTransformFailed = errors.New("engine: repository write failed")
	ErrRecomputeFailed          = errors.New("engine: score recompute failed")
	ErrSelectiveUpdateFailed    = errors.New("engine: selective update failed")
)
