package mockbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"boletodesk/internal/records"
	"boletodesk/internal/textutil"
)

const maxUploadMemory = 32 << 20

type uploadedFile struct {
	name string
	data []byte
}

// readUploads returns the "files" parts, rejecting extensions outside
// allowed and names already used by existing.
func readUploads(r *http.Request, allowed []string, existing map[string]bool) ([]uploadedFile, int, string) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, http.StatusBadRequest, "multipart invalido"
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return nil, http.StatusBadRequest, "Nenhum arquivo enviado"
	}
	seen := make(map[string]bool, len(headers))
	out := make([]uploadedFile, 0, len(headers))
	for _, header := range headers {
		name := filepath.Base(header.Filename)
		if !slices.Contains(allowed, strings.ToLower(filepath.Ext(name))) {
			return nil, http.StatusBadRequest, fmt.Sprintf("Formato invalido: %s. Extensoes aceitas: %s", name, strings.Join(allowed, ", "))
		}
		if existing[name] || seen[name] {
			return nil, http.StatusBadRequest, fmt.Sprintf("Arquivo duplicado: %s ja foi enviado nesta operacao.", name)
		}
		seen[name] = true
		data, err := readPart(header)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Sprintf("Falha ao ler %s", name)
		}
		out = append(out, uploadedFile{name: name, data: data})
	}
	return out, 0, ""
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (s *Server) handleUploadCollection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	op := s.lookup(w, r)
	if op == nil {
		s.mu.Unlock()
		return
	}
	if op.rec.Status != records.OperationProcessing {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Apenas operacoes em processamento aceitam uploads")
		return
	}
	existing := make(map[string]bool, len(op.docs))
	for _, doc := range op.docs {
		existing[doc.rec.OriginalFile] = true
	}
	extract := s.collect
	s.mu.Unlock()

	files, status, detail := readUploads(r, []string{".pdf"}, existing)
	if status != 0 {
		writeError(w, status, detail)
		return
	}

	var created []*document
	totalPages := 0
	for _, file := range files {
		pages, err := extract(file.name, file.data)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Arquivo invalido: %s", file.name))
			return
		}
		totalPages += len(pages)
		for i, fields := range pages {
			created = append(created, &document{
				rec: records.CollectionDocument{
					ID:           uuid.NewString(),
					OriginalFile: pageFileName(file.name, i+1, len(pages)),
					Status:       records.ApprovalPending,
				},
				fields:      fields,
				data:        file.data,
				contentType: "application/pdf",
			})
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	op = s.ops[chi.URLParam(r, "id")]
	if op == nil {
		writeError(w, http.StatusNotFound, "Operacao nao encontrada")
		return
	}
	op.docs = append(op.docs, created...)
	op.recount()
	op.rec.UpdatedAt = s.now().UTC()

	out := records.CollectionUpload{TotalPages: totalPages, Created: len(created), Documents: make([]records.CollectionDocument, 0, len(created))}
	for _, doc := range created {
		out.Documents = append(out.Documents, doc.rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUploadFiscal(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	op := s.lookup(w, r)
	if op == nil {
		s.mu.Unlock()
		return
	}
	if op.rec.Status != records.OperationProcessing {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Apenas operacoes em processamento aceitam uploads")
		return
	}
	if len(op.docs) == 0 {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Envie os boletos antes das notas fiscais")
		return
	}
	existing := make(map[string]bool, len(op.notes))
	for _, n := range op.notes {
		existing[n.rec.FileName] = true
	}
	extract := s.fiscal
	s.mu.Unlock()

	files, status, detail := readUploads(r, []string{".xml", ".pdf"}, existing)
	if status != 0 {
		writeError(w, status, detail)
		return
	}

	out := records.FiscalUpload{Notes: make([]records.FiscalNote, 0, len(files))}
	created := make([]*note, 0, len(files))
	for _, file := range files {
		n := &note{
			rec: records.FiscalNote{
				ID:            uuid.NewString(),
				FileName:      file.name,
				Emails:        []string{},
				InvalidEmails: []string{},
			},
			data:        file.data,
			contentType: "application/xml",
		}
		if strings.EqualFold(filepath.Ext(file.name), ".pdf") {
			n.contentType = "application/pdf"
		}
		if fields, err := extract(file.name, file.data); err == nil {
			n.rec.Valid = true
			n.rec.InvoiceNumber = fields.InvoiceNumber
			n.rec.TaxID = fields.TaxID
			n.rec.RecipientName = fields.RecipientName
			n.rec.TotalAmount = fields.TotalAmount
			n.rec.Emails, n.rec.InvalidEmails = textutil.SplitEmails(fields.Emails)
			out.Valid++
		} else {
			s.logger.Debug("fiscal extraction failed", "file", file.name, "error", err)
			out.Invalid++
		}
		created = append(created, n)
		out.Notes = append(out.Notes, n.rec)
	}
	out.Total = len(created)

	s.mu.Lock()
	defer s.mu.Unlock()
	op = s.ops[chi.URLParam(r, "id")]
	if op == nil {
		writeError(w, http.StatusNotFound, "Operacao nao encontrada")
		return
	}
	op.notes = append(op.notes, created...)
	op.rec.UpdatedAt = s.now().UTC()
	writeJSON(w, http.StatusOK, out)
}

type emailsRequest struct {
	Emails []string `json:"emails"`
}

func (s *Server) handleUpdateEmails(w http.ResponseWriter, r *http.Request) {
	var req emailsRequest
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
	id := chi.URLParam(r, "xmlId")
	for _, n := range op.notes {
		if n.rec.ID != id {
			continue
		}
		n.rec.Emails, n.rec.InvalidEmails = textutil.ClassifyEmails(req.Emails)
		op.rec.UpdatedAt = s.now().UTC()
		writeJSON(w, http.StatusOK, n.rec)
		return
	}
	writeError(w, http.StatusNotFound, "XML nao encontrado")
}

func (s *Server) handleDocumentFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	id := chi.URLParam(r, "docId")
	for _, doc := range op.docs {
		if doc.rec.ID == id {
			writeFile(w, doc.contentType, doc.data)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Boleto nao encontrado")
}

func (s *Server) handleNoteFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.lookup(w, r)
	if op == nil {
		return
	}
	id := chi.URLParam(r, "docId")
	for _, n := range op.notes {
		if n.rec.ID == id {
			writeFile(w, n.contentType, n.data)
			return
		}
	}
	writeError(w, http.StatusNotFound, "XML nao encontrado")
}

func writeFile(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
