package workflow

import (
	"context"
	"slices"

	"boletodesk/internal/logging"
	"boletodesk/internal/records"
	"boletodesk/internal/stage"
)

// Restore rebuilds the workflow from one authoritative read of the
// operation. The session's stored stage is kept when still reachable and
// clamped otherwise; a bound session never lands on configure. The grouping
// preview and send records are loaded best effort.
func (w *Workflow) Restore(ctx context.Context) error {
	const operation = "restore"
	opID, current, err := w.begin(operation, accessRead, true)
	if err != nil {
		return err
	}
	snap, err := w.backend.GetOperation(ctx, opID)
	if err != nil {
		return w.failure(current, operation, err)
	}

	w.mu.Lock()
	target := w.state.Stage
	if w.resume.Valid() && w.resume > target {
		target = w.resume
	}
	w.resume = stage.Configure
	w.mu.Unlock()

	if err := w.commit(operation, func(s *State) {
		applySnapshot(s, snap, target)
		w.saved = savedFields{fidcID: snap.Fidc.ID, label: snap.Label}
	}); err != nil {
		return err
	}
	state := w.State()
	w.opLogger(opID).Info("operation restored",
		logging.String(logging.FieldEventType, "operation_restored"),
		logging.String(logging.FieldStage, state.Stage.String()),
		logging.String("status", string(snap.Status)),
		logging.Int("documents", len(snap.Documents)),
		logging.Int("notes", len(snap.Notes)))

	if state.Result != nil {
		w.loadPreview(ctx, opID)
	}
	w.refreshSends(ctx, opID)
	return nil
}

// applySnapshot copies the authoritative operation into s and clamps the
// stage to what the new facts allow.
func applySnapshot(s *State, snap *records.Snapshot, target stage.Stage) {
	s.OperationID = snap.ID
	s.Label = snap.Label
	s.Fidc = snap.Fidc
	s.Status = snap.Status
	s.Documents = slices.Clone(snap.Documents)
	s.Notes = slices.Clone(snap.Notes)
	s.Result = snap.Result()
	if s.Terminal == TerminalNone {
		switch snap.Status {
		case records.OperationConcluded:
			s.Terminal = TerminalFinalized
		case records.OperationCancelled:
			s.Terminal = TerminalCancelled
		}
	}
	s.Stage = stage.Clamp(target, s.Facts())
}
