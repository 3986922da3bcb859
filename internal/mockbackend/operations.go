package mockbackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"boletodesk/internal/records"
	"boletodesk/internal/textutil"
)

type createRequest struct {
	FidcID string `json:"fidc_id" validate:"required"`
	Label  string `json:"numero"`
}

type updateRequest struct {
	FidcID *string `json:"fidc_id"`
	Label  *string `json:"numero"`
}

func (s *Server) findFidc(id string) (records.Fidc, bool) {
	for _, f := range s.fidcs {
		if f.ID == id {
			return f, true
		}
	}
	return records.Fidc{}, false
}

func (s *Server) handleListFidcs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Fidcs())
}

func (s *Server) handleCreateOperation(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || requestValidator.Struct(req) != nil {
		writeError(w, http.StatusUnprocessableEntity, "fidc_id obrigatorio")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fidc, ok := s.findFidc(req.FidcID)
	if !ok {
		writeError(w, http.StatusNotFound, "FIDC nao encontrado")
		return
	}
	s.created++
	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = fmt.Sprintf("OP-%04d", s.created)
	}
	now := s.now().UTC()
	op := &operation{
		fidc: fidc,
		rec: records.Operation{
			ID:        uuid.NewString(),
			Label:     label,
			FidcID:    fidc.ID,
			FidcName:  fidc.Name,
			Status:    records.OperationProcessing,
			Mode:      string(records.SendModePreview),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	s.ops[op.rec.ID] = op
	writeJSON(w, http.StatusCreated, op.rec)
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := positiveInt(query.Get("page"), 1)
	perPage := positiveInt(query.Get("per_page"), 20)
	status := records.OperationStatus(query.Get("status"))

	s.mu.Lock()
	items := make([]records.Operation, 0, len(s.ops))
	for _, op := range s.ops {
		if status != "" && op.rec.Status != status {
			continue
		}
		items = append(items, op.rec)
	}
	s.mu.Unlock()

	slices.SortFunc(items, func(a, b records.Operation) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Label, a.Label)
	})
	total := len(items)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)
	writeJSON(w, http.StatusOK, records.OperationPage{
		Items:   items[start:end],
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

func positiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	writeJSON(w, http.StatusOK, op.snapshot())
}

func (s *Server) handleUpdateOperation(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
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
	if op.rec.Status != records.OperationProcessing {
		writeError(w, http.StatusBadRequest, "Apenas operacoes em processamento podem ser editadas")
		return
	}
	if req.FidcID != nil {
		fidc, ok := s.findFidc(*req.FidcID)
		if !ok {
			writeError(w, http.StatusNotFound, "FIDC nao encontrado")
			return
		}
		op.fidc = fidc
		op.rec.FidcID = fidc.ID
		op.rec.FidcName = fidc.Name
	}
	if req.Label != nil {
		label := strings.TrimSpace(*req.Label)
		if label == "" {
			writeError(w, http.StatusUnprocessableEntity, "numero nao pode ser vazio")
			return
		}
		op.rec.Label = label
	}
	op.rec.UpdatedAt = s.now().UTC()
	writeJSON(w, http.StatusOK, op.rec)
}

func (s *Server) handleDeleteOperation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	delete(s.ops, op.rec.ID)
	writeJSON(w, http.StatusOK, map[string]string{"detail": fmt.Sprintf("Operacao %s excluida com sucesso", op.rec.Label)})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	s.runPipeline(w, r, false)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	s.runPipeline(w, r, true)
}

// runPipeline settles pending documents on process, and rejected plus
// pending documents on reprocess. The answer always carries every document
// and the operation-wide totals.
func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request, again bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	if op.rec.Status != records.OperationProcessing {
		writeError(w, http.StatusBadRequest, "Apenas operacoes em processamento podem ser processadas")
		return
	}
	if len(op.docs) == 0 {
		writeError(w, http.StatusConflict, "Nenhum boleto enviado para esta operacao")
		return
	}
	if again && !op.processed {
		writeError(w, http.StatusConflict, "Operacao ainda nao foi processada")
		return
	}

	notes := op.notesByKey()
	for _, doc := range op.docs {
		switch doc.rec.Status {
		case records.ApprovalPending:
		case records.ApprovalRejected:
			if !again {
				continue
			}
		default:
			continue
		}
		op.settle(doc, notes[textutil.InvoiceKey(doc.fields.InvoiceNumber)])
	}
	op.processed = true
	op.recount()
	op.rec.UpdatedAt = s.now().UTC()
	writeJSON(w, http.StatusOK, op.result())
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	if op.rec.Status != records.OperationProcessing {
		writeError(w, http.StatusBadRequest, "Apenas operacoes em processamento podem ser finalizadas")
		return
	}
	if !op.processed {
		writeError(w, http.StatusConflict, "Operacao ainda nao foi processada")
		return
	}
	op.rec.Status = records.OperationConcluded
	op.rec.UpdatedAt = s.now().UTC()
	writeJSON(w, http.StatusOK, op.rec)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	if op.rec.Status != records.OperationProcessing {
		writeError(w, http.StatusBadRequest, "Apenas operacoes em processamento podem ser canceladas")
		return
	}
	op.rec.Status = records.OperationCancelled
	op.rec.UpdatedAt = s.now().UTC()
	writeJSON(w, http.StatusOK, op.rec)
}

// notesByKey indexes valid notes by invoice key; the first upload wins.
func (op *operation) notesByKey() map[string]*note {
	index := make(map[string]*note, len(op.notes))
	for _, n := range op.notes {
		key := textutil.InvoiceKey(n.rec.InvoiceNumber)
		if key == "" {
			continue
		}
		if _, exists := index[key]; !exists {
			index[key] = n
		}
	}
	return index
}

func (op *operation) settle(doc *document, n *note) {
	var rec *records.FiscalNote
	doc.noteID = ""
	if n != nil {
		rec = &n.rec
		doc.noteID = n.rec.ID
	}
	v := evaluate(doc.fields, rec)

	doc.rec.Payer = doc.fields.Payer
	doc.rec.TaxID = doc.fields.TaxID
	doc.rec.InvoiceNumber = doc.fields.InvoiceNumber
	doc.rec.DueDate = doc.fields.DueDate
	doc.rec.Amount = doc.fields.Amount
	doc.rec.AmountDisplay = ""
	if doc.fields.Amount != nil {
		doc.rec.AmountDisplay = textutil.FormatBRL(*doc.fields.Amount)
	}
	doc.rec.RenamedFile = renamedFileName(doc.fields)
	doc.rec.InterestDetected = v.interest
	doc.rec.SetLayers(v.layers)
	if v.approved {
		doc.rec.Status = records.ApprovalApproved
		doc.rec.RejectionReason = ""
	} else {
		doc.rec.Status = records.ApprovalRejected
		doc.rec.RejectionReason = v.reason
	}
}

func (op *operation) recount() {
	approved, rejected := 0, 0
	for _, doc := range op.docs {
		switch {
		case doc.rec.Status.IsApproved():
			approved++
		case doc.rec.Status == records.ApprovalRejected:
			rejected++
		}
	}
	op.rec.TotalDocuments = len(op.docs)
	op.rec.TotalApproved = approved
	op.rec.TotalRejected = rejected
	op.rec.SuccessRate = 0
	if len(op.docs) > 0 {
		op.rec.SuccessRate = float64(approved) / float64(len(op.docs)) * 100
	}
}

func (op *operation) documents() []records.CollectionDocument {
	out := make([]records.CollectionDocument, 0, len(op.docs))
	for _, doc := range op.docs {
		out = append(out, doc.rec)
	}
	return out
}

func (op *operation) fiscalNotes() []records.FiscalNote {
	out := make([]records.FiscalNote, 0, len(op.notes))
	for _, n := range op.notes {
		out = append(out, n.rec)
	}
	return out
}

func (op *operation) result() records.ProcessingResult {
	return records.ProcessingResult{
		Total:       op.rec.TotalDocuments,
		Approved:    op.rec.TotalApproved,
		Rejected:    op.rec.TotalRejected,
		SuccessRate: op.rec.SuccessRate,
		Documents:   op.documents(),
	}
}

func (op *operation) snapshot() records.Snapshot {
	return records.Snapshot{
		ID:             op.rec.ID,
		Label:          op.rec.Label,
		Fidc:           op.fidc,
		Status:         op.rec.Status,
		Mode:           op.rec.Mode,
		TotalDocuments: op.rec.TotalDocuments,
		TotalApproved:  op.rec.TotalApproved,
		TotalRejected:  op.rec.TotalRejected,
		SuccessRate:    op.rec.SuccessRate,
		CreatedAt:      op.rec.CreatedAt,
		Documents:      op.documents(),
		Notes:          op.fiscalNotes(),
	}
}
