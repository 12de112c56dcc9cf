package dashboard

import "go.uber.org/zap"

// suggestedFilters is shown next to the filter form.
var suggestedFilters = []string{
	"Carga dodedero",
	"Orden de carga",
	"Remito",
	"Confirmación de carga",
	"Despacho",
}

type triggerer interface {
	Trigger()
}

// ReadSurface serves the snapshot to readers and accepts filter changes.
type ReadSurface struct {
	store     *SnapshotStore
	scheduler triggerer
	logger    *zap.SugaredLogger
}

// NewReadSurface creates a ReadSurface over store.  Filter changes are
// followed by scheduler.Trigger().
func NewReadSurface(store *SnapshotStore, scheduler triggerer, logger *zap.SugaredLogger) *ReadSurface {
	return &ReadSurface{store: store, scheduler: scheduler, logger: logger}
}

// GetSnapshot returns the current snapshot without waiting for a refresh.
func (r *ReadSurface) GetSnapshot() *Snapshot {
	return r.store.Get()
}

// SetFilter requests newFilter for subsequent refreshes and triggers one.
// A filter that is empty after sanitizing is ignored; the return value tells
// whether the filter was accepted.
func (r *ReadSurface) SetFilter(newFilter string) bool {
	if !r.store.setRequestedFilter(newFilter) {
		r.logger.Debugw("ignoring empty filter")
		return false
	}
	r.logger.Infow("filter changed", "filter", take(r.store.RequestedFilter(), 80))
	r.scheduler.Trigger()
	return true
}

// ListSuggestedFilters returns example filters.
func (r *ReadSurface) ListSuggestedFilters() []string {
	out := make([]string, len(suggestedFilters))
	copy(out, suggestedFilters)
	return out
}
