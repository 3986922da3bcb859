package workflow

import (
	"context"
	"slices"

	"boletodesk/internal/logging"
	"boletodesk/internal/preflight"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
	"boletodesk/internal/stage"
	"boletodesk/internal/textutil"
)

// UploadSummary holds the backend answers of one UploadFiles call. A nil
// field means that family was not uploaded.
type UploadSummary struct {
	Collection *records.CollectionUpload
	Fiscal     *records.FiscalUpload
}

// UploadFiles uploads collection PDFs, then fiscal notes. Both lists pass
// local preflight before anything is sent. The fiscal upload starts only
// after the collection upload succeeded; if it then fails, the collection
// documents are kept and the error is marked services.ErrPartial. New
// collection documents drop any earlier processing result.
func (w *Workflow) UploadFiles(ctx context.Context, collection, fiscal []string) (UploadSummary, error) {
	const operation = "upload files"
	var summary UploadSummary
	opID, current, err := w.begin(operation, accessMutate, true)
	if err != nil {
		return summary, err
	}
	if len(collection) == 0 && len(fiscal) == 0 {
		return summary, services.Wrap(services.ErrValidation, current.String(), operation, "no files selected", nil)
	}
	if _, err := preflight.CheckUploads(preflight.UploadCollection, collection); err != nil {
		return summary, err
	}
	if _, err := preflight.CheckUploads(preflight.UploadFiscal, fiscal); err != nil {
		return summary, err
	}
	logger := w.opLogger(opID)

	if len(collection) > 0 {
		upload, err := w.backend.UploadCollection(ctx, opID, collection)
		if err != nil {
			return summary, w.failure(current, "upload collection", err)
		}
		if err := w.commit(operation, func(s *State) {
			s.Documents = append(slices.Clone(s.Documents), upload.Documents...)
			if len(upload.Documents) > 0 {
				// New documents are unprocessed; the old result no longer covers them.
				s.Result = nil
				s.Preview = nil
			}
			if len(s.Documents) > 0 {
				s.Stage = stage.Process
			}
		}); err != nil {
			return summary, err
		}
		summary.Collection = upload
		logger.Info("collection uploaded",
			logging.String(logging.FieldEventType, "collection_uploaded"),
			logging.Int("files", len(collection)),
			logging.Int("pages", upload.TotalPages),
			logging.Int("documents", upload.Created))
	}

	if len(fiscal) > 0 {
		upload, err := w.backend.UploadFiscal(ctx, opID, fiscal)
		if err != nil {
			if summary.Collection != nil {
				w.logFailure(current, "upload fiscal", err)
				return summary, services.Wrap(services.ErrPartial, current.String(), "upload fiscal",
					"collection documents were kept", err)
			}
			return summary, w.failure(current, "upload fiscal", err)
		}
		if err := w.commit(operation, func(s *State) {
			s.Notes = append(slices.Clone(s.Notes), upload.Notes...)
		}); err != nil {
			return summary, err
		}
		summary.Fiscal = upload
		logger.Info("fiscal notes uploaded",
			logging.String(logging.FieldEventType, "fiscal_uploaded"),
			logging.Int("files", len(fiscal)),
			logging.Int("valid", upload.Valid),
			logging.Int("invalid", upload.Invalid))
	}
	return summary, nil
}

// UpdateRecipientEmails replaces the recipient list of a fiscal note.
// Addresses are trimmed and de-duplicated; invalid ones are still sent so
// the backend records them, and are logged here.
func (w *Workflow) UpdateRecipientEmails(ctx context.Context, noteID string, addrs []string) (*records.FiscalNote, error) {
	const operation = "update recipient emails"
	opID, current, err := w.begin(operation, accessMutate, true)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(w.State().Notes, func(n records.FiscalNote) bool { return n.ID == noteID }) {
		return nil, services.Wrap(services.ErrNotFound, current.String(), operation, "unknown fiscal note "+noteID, nil)
	}

	emails := textutil.DedupeEmails(addrs)
	logger := w.opLogger(opID)
	if _, invalid := textutil.ClassifyEmails(emails); len(invalid) > 0 {
		logger.Warn("recipient list has invalid addresses",
			logging.String(logging.FieldEventType, "recipient_invalid"),
			logging.String("note_id", noteID),
			logging.Int("invalid", len(invalid)))
	}

	note, err := w.backend.UpdateNoteEmails(ctx, opID, noteID, emails)
	if err != nil {
		return nil, w.failure(current, operation, err)
	}
	hasResult := false
	if err := w.commit(operation, func(s *State) {
		notes := slices.Clone(s.Notes)
		for i := range notes {
			if notes[i].ID == note.ID {
				notes[i] = *note
			}
		}
		s.Notes = notes
		hasResult = s.Result != nil
	}); err != nil {
		return nil, err
	}
	logger.Info("recipient emails updated",
		logging.String(logging.FieldEventType, "recipient_updated"),
		logging.String("note_id", noteID),
		logging.Int("valid", len(note.Emails)))
	if hasResult {
		w.refreshPreview(ctx, opID)
	}
	return note, nil
}
