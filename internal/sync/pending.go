package sync

import (
	"context"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/repository"
)

// PendingTracker answers "is there unsent work" for UI badges and the
// pre-pull gate. Counts are computed from the store on demand; there is no
// cached state to fall out of sync with.
type PendingTracker struct {
	store *repository.Store
}

// NewPendingTracker creates a PendingTracker.
func NewPendingTracker(store *repository.Store) *PendingTracker {
	return &PendingTracker{store: store}
}

// Counts returns the per-category dirty-record counts.
func (t *PendingTracker) Counts(ctx context.Context) (models.PendingCounts, error) {
	return t.store.PendingCounts(ctx)
}

// HasPending reports whether any user-visible record awaits upload.
// Diagnostic logs do not count: they are best-effort and never block a pull.
func (t *PendingTracker) HasPending(ctx context.Context) (bool, error) {
	counts, err := t.store.PendingCounts(ctx)
	if err != nil {
		return false, err
	}
	return counts.HasPending(), nil
}
