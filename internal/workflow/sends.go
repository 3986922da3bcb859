package workflow

import (
	"context"
	"slices"

	"boletodesk/internal/backend"
	"boletodesk/internal/grouping"
	"boletodesk/internal/logging"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
)

// Send creates the outbound messages of the approved documents. The send
// records are refreshed afterwards on a best-effort basis.
func (w *Workflow) Send(ctx context.Context, mode records.SendMode) (*records.SendResult, error) {
	const operation = "send"
	opID, current, err := w.begin(operation, accessSend, true)
	if err != nil {
		return nil, err
	}
	if !w.State().Facts().HasResult {
		return nil, services.Wrap(services.ErrStageLocked, current.String(), operation, "process the operation first", nil)
	}
	result, err := w.backend.Send(ctx, opID, mode)
	if err != nil {
		return nil, w.failure(current, operation, err)
	}
	w.opLogger(opID).Info("messages created",
		logging.String(logging.FieldEventType, "send_created"),
		logging.String("mode", string(result.Mode)),
		logging.Int("created", result.Created),
		logging.Int("sent", result.Sent))
	w.refreshSends(ctx, opID)
	return result, nil
}

// SendRecords loads the operation's send records, newest first.
func (w *Workflow) SendRecords(ctx context.Context) ([]records.SendRecord, error) {
	const operation = "list send records"
	opID, current, err := w.begin(operation, accessRead, true)
	if err != nil {
		return nil, err
	}
	sends, err := w.backend.SendRecords(ctx, opID)
	if err != nil {
		return nil, w.failure(current, operation, err)
	}
	if err := w.commit(operation, func(s *State) {
		s.Sends = slices.Clone(sends)
	}); err != nil {
		return nil, err
	}
	return sends, nil
}

// MarkSent records that a drafted message was sent by hand.
func (w *Workflow) MarkSent(ctx context.Context, recordID string) (*records.SendRecord, error) {
	const operation = "mark sent"
	opID, current, err := w.begin(operation, accessSend, true)
	if err != nil {
		return nil, err
	}
	rec, err := w.backend.MarkSent(ctx, opID, recordID)
	if err != nil {
		return nil, w.failure(current, operation, err)
	}
	if err := w.commit(operation, func(s *State) {
		sends := slices.Clone(s.Sends)
		for i := range sends {
			if sends[i].ID == rec.ID {
				sends[i] = *rec
			}
		}
		s.Sends = sends
	}); err != nil {
		return nil, err
	}
	w.opLogger(opID).Info("send record marked sent", logging.String("record_id", rec.ID))
	return rec, nil
}

// VerifySendStatus asks the backend to reconcile drafts with the mailbox.
func (w *Workflow) VerifySendStatus(ctx context.Context) (*records.VerifyResult, error) {
	const operation = "verify send status"
	opID, current, err := w.begin(operation, accessSend, true)
	if err != nil {
		return nil, err
	}
	result, err := w.backend.VerifySendStatus(ctx, opID)
	if err != nil {
		return nil, w.failure(current, operation, err)
	}
	w.opLogger(opID).Info("send status verified",
		logging.Int("checked", result.Checked),
		logging.Int("updated", result.Updated))
	w.refreshSends(ctx, opID)
	return result, nil
}

// DocumentPreview returns a document binary. Each (kind, id) is fetched at
// most once per session.
func (w *Workflow) DocumentPreview(ctx context.Context, kind backend.DocumentKind, docID string) (*backend.Binary, error) {
	const operation = "document preview"
	opID, current, err := w.begin(operation, accessRead, true)
	if err != nil {
		return nil, err
	}
	bin, err := w.cache.Get(ctx, grouping.Key(kind, docID), func(ctx context.Context) (*backend.Binary, error) {
		return w.backend.DocumentBinary(ctx, opID, kind, docID)
	})
	if err != nil {
		return nil, w.failure(current, operation, err)
	}
	w.mu.Lock()
	detached := w.detached
	w.mu.Unlock()
	if detached {
		return nil, w.closedError(operation)
	}
	return bin, nil
}

// refreshSends is best effort: failures are logged at debug.
func (w *Workflow) refreshSends(ctx context.Context, opID string) {
	sends, err := w.backend.SendRecords(ctx, opID)
	if err != nil {
		w.opLogger(opID).Debug("send record refresh failed",
			logging.String(logging.FieldEventType, "send_refresh_failed"),
			logging.Error(err))
		return
	}
	_ = w.commit("refresh send records", func(s *State) {
		s.Sends = slices.Clone(sends)
	})
}
