package records

import (
	"strings"
	"time"
)

// ApprovalStatus is the verdict the backend assigns a collection document.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pendente"
	ApprovalApproved ApprovalStatus = "aprovado"
	ApprovalPartial  ApprovalStatus = "parcialmente_aprovado"
	ApprovalRejected ApprovalStatus = "rejeitado"
)

// IsApproved reports whether the document may be sent. Partial approvals count.
func (s ApprovalStatus) IsApproved() bool {
	return s == ApprovalApproved || s == ApprovalPartial
}

// IsSettled reports whether the document has been through processing.
func (s ApprovalStatus) IsSettled() bool {
	return s != "" && s != ApprovalPending
}

// OperationStatus is the backend lifecycle state of an operation.
type OperationStatus string

const (
	OperationProcessing OperationStatus = "em_processamento"
	OperationSending    OperationStatus = "enviando"
	OperationConcluded  OperationStatus = "concluida"
	OperationCancelled  OperationStatus = "cancelada"
)

// LayerResult is one layer of the backend approval pipeline.
type LayerResult struct {
	Ordinal  int    `json:"camada"`
	Name     string `json:"nome"`
	Passed   bool   `json:"aprovado"`
	Message  string `json:"mensagem"`
	Blocking bool   `json:"bloqueia"`
}

// CollectionDocument is a payment slip ("boleto") extracted upstream.
type CollectionDocument struct {
	ID               string         `json:"id"`
	OriginalFile     string         `json:"arquivo_original"`
	RenamedFile      string         `json:"arquivo_renomeado,omitempty"`
	Payer            string         `json:"pagador,omitempty"`
	TaxID            string         `json:"cnpj,omitempty"`
	InvoiceNumber    string         `json:"numero_nota,omitempty"`
	DueDate          string         `json:"vencimento,omitempty"`
	Amount           *float64       `json:"valor"`
	AmountDisplay    string         `json:"valor_formatado,omitempty"`
	Status           ApprovalStatus `json:"status"`
	RejectionReason  string         `json:"motivo_rejeicao,omitempty"`
	InterestDetected bool           `json:"juros_detectado"`
	Layer1           *LayerResult   `json:"validacao_camada1,omitempty"`
	Layer2           *LayerResult   `json:"validacao_camada2,omitempty"`
	Layer3           *LayerResult   `json:"validacao_camada3,omitempty"`
	Layer4           *LayerResult   `json:"validacao_camada4,omitempty"`
	Layer5           *LayerResult   `json:"validacao_camada5,omitempty"`
}

// Layers returns the populated layer results in pipeline order.
func (d CollectionDocument) Layers() []LayerResult {
	out := make([]LayerResult, 0, 5)
	for _, layer := range []*LayerResult{d.Layer1, d.Layer2, d.Layer3, d.Layer4, d.Layer5} {
		if layer != nil {
			out = append(out, *layer)
		}
	}
	return out
}

// SetLayers assigns up to five layer results by position.
func (d *CollectionDocument) SetLayers(layers []LayerResult) {
	slots := []**LayerResult{&d.Layer1, &d.Layer2, &d.Layer3, &d.Layer4, &d.Layer5}
	for i, slot := range slots {
		if i < len(layers) {
			layer := layers[i]
			*slot = &layer
		} else {
			*slot = nil
		}
	}
}

// DisplayName prefers the renamed file over the uploaded one.
func (d CollectionDocument) DisplayName() string {
	if strings.TrimSpace(d.RenamedFile) != "" {
		return d.RenamedFile
	}
	return d.OriginalFile
}

// FiscalNote is an invoice record sourced from XML or PDF.
type FiscalNote struct {
	ID            string   `json:"id"`
	FileName      string   `json:"nome_arquivo"`
	InvoiceNumber string   `json:"numero_nota"`
	TaxID         string   `json:"cnpj,omitempty"`
	RecipientName string   `json:"nome_destinatario,omitempty"`
	TotalAmount   *float64 `json:"valor_total"`
	Emails        []string `json:"emails"`
	InvalidEmails []string `json:"emails_invalidos"`
	Valid         bool     `json:"xml_valido"`
}

// Fidc is the fund an operation belongs to.
type Fidc struct {
	ID       string   `json:"id"`
	Name     string   `json:"nome"`
	FullName string   `json:"nome_completo,omitempty"`
	TaxID    string   `json:"cnpj,omitempty"`
	CCEmails []string `json:"cc_emails,omitempty"`
	Color    string   `json:"cor,omitempty"`
	Active   bool     `json:"ativo"`
}

// ProcessingResult is the aggregate answer of a process or reprocess call.
type ProcessingResult struct {
	Total       int                  `json:"total"`
	Approved    int                  `json:"aprovados"`
	Rejected    int                  `json:"rejeitados"`
	SuccessRate float64              `json:"taxa_sucesso"`
	Documents   []CollectionDocument `json:"boletos"`
}

// Operation is the listing view of an operation.
type Operation struct {
	ID             string          `json:"id"`
	Label          string          `json:"numero"`
	FidcID         string          `json:"fidc_id"`
	FidcName       string          `json:"fidc_nome,omitempty"`
	Status         OperationStatus `json:"status"`
	Mode           string          `json:"modo_envio"`
	TotalDocuments int             `json:"total_boletos"`
	TotalApproved  int             `json:"total_aprovados"`
	TotalRejected  int             `json:"total_rejeitados"`
	SuccessRate    float64         `json:"taxa_sucesso"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OperationPage is one page of the operation history.
type OperationPage struct {
	Items   []Operation `json:"items"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
}

// Snapshot is the full authoritative state of one operation.
type Snapshot struct {
	ID             string               `json:"id"`
	Label          string               `json:"numero"`
	Fidc           Fidc                 `json:"fidc"`
	Status         OperationStatus      `json:"status"`
	Mode           string               `json:"modo_envio"`
	TotalDocuments int                  `json:"total_boletos"`
	TotalApproved  int                  `json:"total_aprovados"`
	TotalRejected  int                  `json:"total_rejeitados"`
	SuccessRate    float64              `json:"taxa_sucesso"`
	CreatedAt      time.Time            `json:"created_at"`
	Documents      []CollectionDocument `json:"boletos"`
	Notes          []FiscalNote         `json:"xmls"`
}

// HasResult reports whether the operation has been processed at least once.
// The backend's initial status is em_processamento, so the status alone is not
// enough; a settled document or a concluded operation proves a result exists.
func (s Snapshot) HasResult() bool {
	if s.Status == OperationConcluded {
		return true
	}
	for _, doc := range s.Documents {
		if doc.Status.IsSettled() {
			return true
		}
	}
	return false
}

// Result rebuilds the processing result carried by the snapshot, or nil when
// the operation has not been processed.
func (s Snapshot) Result() *ProcessingResult {
	if !s.HasResult() {
		return nil
	}
	return &ProcessingResult{
		Total:       s.TotalDocuments,
		Approved:    s.TotalApproved,
		Rejected:    s.TotalRejected,
		SuccessRate: s.SuccessRate,
		Documents:   append([]CollectionDocument(nil), s.Documents...),
	}
}

// CollectionUpload is the answer to a collection document upload.
type CollectionUpload struct {
	TotalPages int                  `json:"total_paginas"`
	Created    int                  `json:"boletos_criados"`
	Documents  []CollectionDocument `json:"boletos"`
}

// FiscalUpload is the answer to a fiscal note upload.
type FiscalUpload struct {
	Total   int          `json:"total_xmls"`
	Valid   int          `json:"validos"`
	Invalid int          `json:"invalidos"`
	Notes   []FiscalNote `json:"xmls"`
}

// EmailGroup is one candidate outbound message.
type EmailGroup struct {
	To        []string             `json:"email_para"`
	CC        []string             `json:"email_cc"`
	Subject   string               `json:"assunto"`
	Documents []CollectionDocument `json:"boletos"`
	Notes     []FiscalNote         `json:"xmls"`
}

// SendPreview lists the grouped message candidates for an operation.
type SendPreview struct {
	TotalGroups   int          `json:"total_grupos"`
	TotalApproved int          `json:"total_aprovados"`
	Groups        []EmailGroup `json:"grupos"`
}

// SendMode selects between drafting and delivering messages.
type SendMode string

const (
	SendModePreview   SendMode = "preview"
	SendModeAutomatic SendMode = "automatico"
)

// ParseSendMode accepts the wire names plus "automatic".
func ParseSendMode(value string) (SendMode, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "preview":
		return SendModePreview, true
	case "automatico", "automatic", "auto":
		return SendModeAutomatic, true
	default:
		return "", false
	}
}

// SendDetail summarizes one message produced by a send.
type SendDetail struct {
	To            []string `json:"email_para"`
	CC            []string `json:"email_cc"`
	Subject       string   `json:"assunto"`
	DocumentCount int      `json:"boletos_count"`
	NoteCount     int      `json:"xmls_count"`
	Status        string   `json:"status"`
}

// SendResult is the answer to a send request.
type SendResult struct {
	Created int          `json:"emails_criados"`
	Sent    int          `json:"emails_enviados"`
	Mode    SendMode     `json:"modo"`
	Details []SendDetail `json:"detalhes"`
}

// Send record statuses.
const (
	SendStatusPending = "pendente"
	SendStatusDraft   = "rascunho"
	SendStatusSent    = "enviado"
	SendStatusError   = "erro"
)

// SendRecord is one persisted message of an operation.
type SendRecord struct {
	ID            string     `json:"id"`
	To            []string   `json:"email_para"`
	CC            []string   `json:"email_cc"`
	Subject       string     `json:"assunto"`
	Mode          SendMode   `json:"modo"`
	Status        string     `json:"status"`
	ErrorDetails  string     `json:"erro_detalhes,omitempty"`
	DocumentIDs   []string   `json:"boletos_ids"`
	AttachedNotes []string   `json:"xmls_anexados"`
	SentAt        *time.Time `json:"timestamp_envio"`
	CreatedAt     time.Time  `json:"created_at"`
}

// VerifyItem is the per-record outcome of a send status verification.
type VerifyItem struct {
	RecordID       string `json:"envio_id"`
	Subject        string `json:"assunto"`
	PreviousStatus string `json:"status_anterior"`
	NewStatus      string `json:"status_novo"`
	FoundInSent    bool   `json:"encontrado_enviados"`
}

// VerifyResult is the answer to a send status verification.
type VerifyResult struct {
	Checked int          `json:"verificados"`
	Updated int          `json:"atualizados"`
	Items   []VerifyItem `json:"itens"`
}

// User is the authenticated operator.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"nome"`
	Email  string `json:"email"`
	Active bool   `json:"ativo"`
}

// Login is the answer to a successful login.
type Login struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"usuario"`
}
