package workflow

import (
	"context"
	"slices"

	"boletodesk/internal/logging"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
	"boletodesk/internal/stage"
)

// Process runs the backend approval pipeline over the uploaded documents and
// moves to the result stage. The grouping preview is refreshed in the
// background; its failure is logged and otherwise ignored.
func (w *Workflow) Process(ctx context.Context) (*records.ProcessingResult, error) {
	return w.runPipeline(ctx, false)
}

// Reprocess re-runs the pipeline. It is only valid once a result exists.
func (w *Workflow) Reprocess(ctx context.Context) (*records.ProcessingResult, error) {
	return w.runPipeline(ctx, true)
}

func (w *Workflow) runPipeline(ctx context.Context, again bool) (*records.ProcessingResult, error) {
	operation := "process"
	if again {
		operation = "reprocess"
	}
	opID, current, err := w.begin(operation, accessMutate, true)
	if err != nil {
		return nil, err
	}
	facts := w.State().Facts()
	if !facts.HasDocuments {
		return nil, services.Wrap(services.ErrStageLocked, current.String(), operation, "upload collection documents first", nil)
	}
	if again && !facts.HasResult {
		return nil, services.Wrap(services.ErrStageLocked, current.String(), operation, "process the operation first", nil)
	}

	run := w.backend.Process
	if again {
		run = w.backend.Reprocess
	}
	result, err := run(ctx, opID)
	if err != nil {
		return nil, w.failure(current, operation, err)
	}
	if err := w.commit(operation, func(s *State) {
		s.Result = result
		s.Documents = slices.Clone(result.Documents)
		s.Stage = stage.Result
	}); err != nil {
		return nil, err
	}
	w.opLogger(opID).Info("operation processed",
		logging.String(logging.FieldEventType, "operation_processed"),
		logging.Bool("reprocess", again),
		logging.Int("total", result.Total),
		logging.Int("approved", result.Approved),
		logging.Int("rejected", result.Rejected))
	w.refreshPreview(ctx, opID)
	return result, nil
}

// Settle waits for background preview refreshes to finish.
func (w *Workflow) Settle() {
	_ = w.background.Wait()
}

// refreshPreview fetches the grouping preview in the background. The fetch
// outlives ctx's cancellation but not the session.
func (w *Workflow) refreshPreview(ctx context.Context, opID string) {
	bgCtx := context.WithoutCancel(ctx)
	w.background.Go(func() error {
		w.loadPreview(bgCtx, opID)
		return nil
	})
}

// loadPreview is best effort: failures are logged at debug.
func (w *Workflow) loadPreview(ctx context.Context, opID string) {
	preview, err := w.backend.SendPreview(ctx, opID)
	if err != nil {
		w.opLogger(opID).Debug("grouping preview unavailable",
			logging.String(logging.FieldEventType, "preview_failed"),
			logging.Error(err))
		return
	}
	w.mu.Lock()
	if w.detached || w.state.OperationID != opID {
		w.mu.Unlock()
		return
	}
	w.state.Preview = preview
	snap := w.state.clone()
	w.mu.Unlock()
	w.notify(snap)
}
