package workflow

import (
	"context"

	"boletodesk/internal/logging"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
)

// Finalize concludes the operation and refreshes the cached result from an
// authoritative re-read.
func (w *Workflow) Finalize(ctx context.Context) error {
	const operation = "finalize"
	opID, current, err := w.begin(operation, accessMutate, true)
	if err != nil {
		return err
	}
	if !w.State().Facts().HasResult {
		return services.Wrap(services.ErrStageLocked, current.String(), operation, "process the operation first", nil)
	}
	if err := w.backend.Finalize(ctx, opID); err != nil {
		return w.failure(current, operation, err)
	}
	if err := w.commit(operation, func(s *State) {
		s.Terminal = TerminalFinalized
		s.Status = records.OperationConcluded
	}); err != nil {
		return err
	}
	logger := w.opLogger(opID)
	logger.Info("operation finalized", logging.String(logging.FieldEventType, "operation_finalized"))

	snap, err := w.backend.GetOperation(ctx, opID)
	if err != nil {
		logger.Debug("post-finalize refresh failed", logging.Error(err))
		return nil
	}
	_ = w.commit(operation, func(s *State) {
		applySnapshot(s, snap, s.Stage)
	})
	return nil
}

// Cancel cancels the operation. confirm must be true. On success the owning
// session should be closed.
func (w *Workflow) Cancel(ctx context.Context, confirm bool) error {
	return w.terminate(ctx, "cancel", confirm, w.backend.Cancel, TerminalCancelled, records.OperationCancelled)
}

// Delete deletes the operation. confirm must be true. On success the owning
// session should be closed.
func (w *Workflow) Delete(ctx context.Context, confirm bool) error {
	return w.terminate(ctx, "delete", confirm, w.backend.Delete, TerminalDeleted, "")
}

func (w *Workflow) terminate(ctx context.Context, operation string, confirm bool, call func(context.Context, string) error, terminal Terminal, status records.OperationStatus) error {
	opID, current, err := w.begin(operation, accessMutate, true)
	if err != nil {
		return err
	}
	if !confirm {
		return services.Wrap(services.ErrConfirmationRequired, current.String(), operation, "confirm to "+operation+" the operation", nil)
	}
	if err := call(ctx, opID); err != nil {
		return w.failure(current, operation, err)
	}
	if err := w.commit(operation, func(s *State) {
		s.Terminal = terminal
		if status != "" {
			s.Status = status
		}
	}); err != nil {
		return err
	}
	w.opLogger(opID).Info("operation terminated",
		logging.String(logging.FieldEventType, "operation_terminated"),
		logging.String("terminal", string(terminal)))
	if w.hooks.Closed != nil {
		w.hooks.Closed()
	}
	return nil
}
