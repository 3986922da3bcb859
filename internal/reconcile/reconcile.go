package reconcile

import (
	"math"
	"strings"

	"boletodesk/internal/records"
	"boletodesk/internal/textutil"
)

// MatchStatus is the outcome of comparing one field.
type MatchStatus string

const (
	MatchExact         MatchStatus = "exact"
	MatchPartial       MatchStatus = "partial"
	MatchDivergent     MatchStatus = "divergent"
	MatchNotApplicable MatchStatus = "not_applicable"
)

// Field names the compared attribute of a report row.
type Field string

const (
	FieldInvoiceNumber Field = "invoice_number"
	FieldAmount        Field = "amount"
	FieldName          Field = "recipient_name"
	FieldTaxID         Field = "tax_id"
	FieldEmail         Field = "email"
	FieldFiscalNote    Field = "fiscal_note"
)

// NoNoteMessage is carried by the informational row of unpaired documents.
const NoNoteMessage = "no fiscal note linked to this document"

// amountTolerance is the largest difference still treated as equal.
const amountTolerance = 0.01

// Row compares one field of a document with its fiscal note.
type Row struct {
	Field           Field       `json:"field"`
	CollectionValue string      `json:"collection_value"`
	FiscalValue     string      `json:"fiscal_value"`
	Status          MatchStatus `json:"status"`
	Message         string      `json:"message,omitempty"`
}

// Report is the ordered set of rows for one document.
type Report struct {
	Rows []Row `json:"rows"`
}

// Paired reports whether the report compared against an actual note.
func (r Report) Paired() bool {
	return !(len(r.Rows) == 1 && r.Rows[0].Field == FieldFiscalNote)
}

// Status returns the row status for field, if the report has it.
func (r Report) Status(field Field) (MatchStatus, bool) {
	for _, row := range r.Rows {
		if row.Field == field {
			return row.Status, true
		}
	}
	return "", false
}

// Reconcile compares doc against note. A nil note yields exactly one
// informational row.
func Reconcile(doc records.CollectionDocument, note *records.FiscalNote) Report {
	if note == nil {
		return Report{Rows: []Row{{
			Field:           FieldFiscalNote,
			CollectionValue: textutil.OrPlaceholder(doc.InvoiceNumber),
			FiscalValue:     textutil.Placeholder,
			Status:          MatchNotApplicable,
			Message:         NoNoteMessage,
		}}}
	}

	emailValue := textutil.Placeholder
	if len(note.Emails) > 0 {
		emailValue = strings.Join(note.Emails, ", ")
	}

	docAmount := textutil.OrPlaceholder(doc.AmountDisplay)
	if strings.TrimSpace(doc.AmountDisplay) == "" && doc.Amount != nil {
		docAmount = textutil.FormatBRL(*doc.Amount)
	}

	return Report{Rows: []Row{
		{
			Field:           FieldInvoiceNumber,
			CollectionValue: textutil.OrPlaceholder(doc.InvoiceNumber),
			FiscalValue:     textutil.OrPlaceholder(note.InvoiceNumber),
			Status:          MatchInvoiceNumber(doc.InvoiceNumber, note.InvoiceNumber),
		},
		{
			Field:           FieldAmount,
			CollectionValue: docAmount,
			FiscalValue:     textutil.FormatOptionalBRL(note.TotalAmount),
			Status:          MatchAmount(doc.Amount, note.TotalAmount),
		},
		{
			Field:           FieldName,
			CollectionValue: textutil.OrPlaceholder(doc.Payer),
			FiscalValue:     textutil.OrPlaceholder(note.RecipientName),
			Status:          MatchName(doc.Payer, note.RecipientName),
		},
		{
			Field:           FieldTaxID,
			CollectionValue: textutil.OrPlaceholder(doc.TaxID),
			FiscalValue:     textutil.OrPlaceholder(note.TaxID),
			Status:          MatchTaxID(doc.TaxID, note.TaxID),
		},
		{
			Field:           FieldEmail,
			CollectionValue: textutil.Placeholder,
			FiscalValue:     emailValue,
			Status:          MatchEmail(note.Emails),
		},
	}}
}

// MatchInvoiceNumber compares invoice numbers ignoring leading zeros.
func MatchInvoiceNumber(a, b string) MatchStatus {
	ka, kb := textutil.InvoiceKey(a), textutil.InvoiceKey(b)
	if ka == "" || kb == "" {
		return MatchNotApplicable
	}
	if ka == kb {
		return MatchExact
	}
	return MatchDivergent
}

// MatchAmount treats amounts closer than one cent as equal.
func MatchAmount(a, b *float64) MatchStatus {
	if a == nil || b == nil {
		return MatchNotApplicable
	}
	if math.Abs(*a-*b) < amountTolerance {
		return MatchExact
	}
	return MatchDivergent
}

// MatchName compares party names after uppercasing and trimming. Names that
// differ earn a partial match when one contains the other or when at least
// half of the larger token set is shared.
func MatchName(a, b string) MatchStatus {
	na, nb := textutil.NormalizeName(a), textutil.NormalizeName(b)
	if na == "" || nb == "" {
		return MatchNotApplicable
	}
	if na == nb {
		return MatchExact
	}

	ta, tb := textutil.NameTokens(na), textutil.NameTokens(nb)
	common := 0
	for token := range ta {
		if _, ok := tb[token]; ok {
			common++
		}
	}
	total := max(len(ta), len(tb))
	if total == 0 {
		return MatchDivergent
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return MatchPartial
	}
	if float64(common)/float64(total) >= 0.5 {
		return MatchPartial
	}
	return MatchDivergent
}

// MatchTaxID compares tax ids on their digits only.
func MatchTaxID(a, b string) MatchStatus {
	da, db := textutil.DigitsOnly(a), textutil.DigitsOnly(b)
	if da == "" || db == "" {
		return MatchNotApplicable
	}
	if da == db {
		return MatchExact
	}
	return MatchDivergent
}

// MatchEmail is informational: the note either carries a validated address or not.
func MatchEmail(emails []string) MatchStatus {
	for _, email := range emails {
		if strings.TrimSpace(email) != "" {
			return MatchExact
		}
	}
	return MatchNotApplicable
}
