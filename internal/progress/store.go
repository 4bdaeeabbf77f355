package progress

import (
	"context"
	"log/slog"

	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/taskstore"
)

// StoreSink folds events into the scan's persisted state.
type StoreSink struct {
	store  taskstore.Store
	scanID int64
}

func NewStoreSink(store taskstore.Store, scanID int64) *StoreSink {
	return &StoreSink{store: store, scanID: scanID}
}

func (s *StoreSink) Emit(ctx context.Context, ev model.ProgressEvent) {
	err := s.store.Update(ctx, s.scanID, func(state *model.ScanState) error {
		state.Apply(ev)
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to persist scan progress",
			"error", err,
			"scan_id", s.scanID,
			"progress", ev.Progress)
	}
}
