package mockbackend

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"boletodesk/internal/records"
)

type sendRequest struct {
	Mode string `json:"modo" validate:"oneof=preview automatico"`
}

type statusRequest struct {
	Status string `json:"status" validate:"oneof=pendente rascunho enviado erro"`
}

func (s *Server) handleSendPreview(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	groups := groupForSend(op)
	writeJSON(w, http.StatusOK, records.SendPreview{
		TotalGroups:   len(groups),
		TotalApproved: op.rec.TotalApproved,
		Groups:        groups,
	})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	if op.rec.Status != records.OperationProcessing && op.rec.Status != records.OperationConcluded {
		writeError(w, http.StatusBadRequest, "Operacao deve estar em processamento ou concluida para enviar")
		return
	}
	if requestValidator.Struct(req) != nil {
		writeError(w, http.StatusBadRequest, "Modo invalido. Use: preview ou automatico")
		return
	}
	if op.rec.TotalApproved == 0 {
		writeError(w, http.StatusBadRequest, "Nenhum boleto aprovado para enviar")
		return
	}
	groups := groupForSend(op)
	if len(groups) == 0 {
		writeError(w, http.StatusBadRequest, "Nenhum email destino encontrado nos XMLs vinculados")
		return
	}

	mode := records.SendMode(req.Mode)
	now := s.now().UTC()
	result := records.SendResult{Created: len(groups), Mode: mode, Details: make([]records.SendDetail, 0, len(groups))}
	for _, group := range groups {
		rec := &records.SendRecord{
			ID:            uuid.NewString(),
			To:            group.To,
			CC:            group.CC,
			Subject:       group.Subject,
			Mode:          mode,
			Status:        records.SendStatusDraft,
			DocumentIDs:   make([]string, 0, len(group.Documents)),
			AttachedNotes: make([]string, 0, len(group.Notes)),
			CreatedAt:     now,
		}
		for _, doc := range group.Documents {
			rec.DocumentIDs = append(rec.DocumentIDs, doc.ID)
		}
		for _, n := range group.Notes {
			rec.AttachedNotes = append(rec.AttachedNotes, n.FileName)
		}
		if mode == records.SendModeAutomatic {
			rec.Status = records.SendStatusSent
			sentAt := now
			rec.SentAt = &sentAt
			result.Sent++
		}
		op.sends = append(op.sends, rec)
		result.Details = append(result.Details, records.SendDetail{
			To:            rec.To,
			CC:            rec.CC,
			Subject:       rec.Subject,
			DocumentCount: len(rec.DocumentIDs),
			NoteCount:     len(rec.AttachedNotes),
			Status:        rec.Status,
		})
	}
	op.rec.Mode = string(mode)
	op.rec.UpdatedAt = now
	writeJSON(w, http.StatusOK, result)
}

// handleListSends answers newest first.
func (s *Server) handleListSends(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	out := make([]records.SendRecord, 0, len(op.sends))
	for i := len(op.sends) - 1; i >= 0; i-- {
		out = append(out, *op.sends[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSendStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || requestValidator.Struct(req) != nil {
		writeError(w, http.StatusUnprocessableEntity, "status invalido")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	id := chi.URLParam(r, "envioId")
	for _, rec := range op.sends {
		if rec.ID != id {
			continue
		}
		rec.Status = req.Status
		if req.Status == records.SendStatusSent && rec.SentAt == nil {
			sentAt := s.now().UTC()
			rec.SentAt = &sentAt
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	writeError(w, http.StatusNotFound, "Envio nao encontrado")
}

// handleVerifySends promotes drafts whose subject reached the mailbox.
func (s *Server) handleVerifySends(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	out := records.VerifyResult{Items: []records.VerifyItem{}}
	for _, rec := range op.sends {
		if rec.Status != records.SendStatusDraft {
			continue
		}
		out.Checked++
		item := records.VerifyItem{
			RecordID:       rec.ID,
			Subject:        rec.Subject,
			PreviousStatus: rec.Status,
			NewStatus:      rec.Status,
			FoundInSent:    s.mailbox[rec.Subject],
		}
		if item.FoundInSent {
			rec.Status = records.SendStatusSent
			sentAt := s.now().UTC()
			rec.SentAt = &sentAt
			item.NewStatus = rec.Status
			out.Updated++
		}
		out.Items = append(out.Items, item)
	}
	writeJSON(w, http.StatusOK, out)
}
