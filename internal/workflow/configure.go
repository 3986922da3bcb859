package workflow

import (
	"context"
	"strings"

	"boletodesk/internal/backend"
	"boletodesk/internal/logging"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
	"boletodesk/internal/stage"
)

// Create creates the operation for fidcID. An empty label lets the backend
// assign one. On success the workflow moves to the upload stage.
func (w *Workflow) Create(ctx context.Context, fidcID, label string) (*records.Operation, error) {
	const operation = "create operation"
	opID, current, err := w.begin(operation, accessMutate, false)
	if err != nil {
		return nil, err
	}
	if opID != "" {
		return nil, services.Wrap(services.ErrValidation, current.String(), operation, "operation already created", nil)
	}
	fidcID = strings.TrimSpace(fidcID)
	if fidcID == "" {
		return nil, services.Wrap(services.ErrValidation, current.String(), operation, "fund is required", nil)
	}

	op, err := w.backend.CreateOperation(ctx, fidcID, strings.TrimSpace(label))
	if err != nil {
		return nil, w.failure(current, operation, err)
	}
	if err := w.commit(operation, func(s *State) {
		s.OperationID = op.ID
		s.Label = op.Label
		s.Fidc = records.Fidc{ID: op.FidcID, Name: op.FidcName}
		s.Status = op.Status
		s.Stage = stage.Upload
		w.saved = savedFields{fidcID: op.FidcID, label: op.Label}
	}); err != nil {
		return nil, err
	}
	w.opLogger(op.ID).Info("operation created",
		logging.String(logging.FieldEventType, "operation_created"),
		logging.String("label", op.Label),
		logging.String("fidc", op.FidcName))
	return op, nil
}

// Save sends the fields that differ from the last successful save. Empty
// arguments leave their field unchanged. It reports whether a request was
// made.
func (w *Workflow) Save(ctx context.Context, fidcID, label string) (bool, error) {
	const operation = "save operation"
	opID, current, err := w.begin(operation, accessMutate, true)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	saved := w.saved
	w.mu.Unlock()

	var patch backend.OperationPatch
	if fidcID = strings.TrimSpace(fidcID); fidcID != "" && fidcID != saved.fidcID {
		patch.FidcID = &fidcID
	}
	if label = strings.TrimSpace(label); label != "" && label != saved.label {
		patch.Label = &label
	}
	if patch.Empty() {
		return false, nil
	}

	op, err := w.backend.UpdateOperation(ctx, opID, patch)
	if err != nil {
		return true, w.failure(current, operation, err)
	}
	if err := w.commit(operation, func(s *State) {
		s.Label = op.Label
		if s.Fidc.ID != op.FidcID {
			s.Fidc = records.Fidc{ID: op.FidcID, Name: op.FidcName}
		}
		s.Status = op.Status
		w.saved = savedFields{fidcID: op.FidcID, label: op.Label}
	}); err != nil {
		return true, err
	}
	w.opLogger(opID).Info("operation saved",
		logging.String(logging.FieldEventType, "operation_saved"),
		logging.String("label", op.Label),
		logging.Bool("fidc_changed", patch.FidcID != nil))
	return true, nil
}
