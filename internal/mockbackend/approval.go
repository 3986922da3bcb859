package mockbackend

import (
	"fmt"
	"math"
	"strings"

	"boletodesk/internal/reconcile"
	"boletodesk/internal/records"
	"boletodesk/internal/textutil"
)

type verdict struct {
	approved bool
	reason   string
	interest bool
	layers   []records.LayerResult
}

// evaluate runs the five approval layers for one document against its note.
func evaluate(fields DocumentFields, note *records.FiscalNote) verdict {
	var v verdict
	v.approved = true
	block := func(layer records.LayerResult) {
		v.layers = append(v.layers, layer)
		if layer.Blocking {
			v.approved = false
			v.reason = layer.Message
		}
	}

	block(layerNote(fields, note))
	if !v.approved {
		for i, name := range []string{"CNPJ", "Nome", "Valor", "Email"} {
			v.layers = append(v.layers, records.LayerResult{
				Ordinal: i + 2,
				Name:    name,
				Message: "Não validado (camada anterior falhou)",
			})
		}
		return v
	}

	block(layerTaxID(fields, note))
	block(layerName(fields, note))
	block(layerAmount(fields, note))
	v.interest = interestDetected(fields, note)
	block(layerEmail(note))
	return v
}

func layerNote(fields DocumentFields, note *records.FiscalNote) records.LayerResult {
	layer := records.LayerResult{Ordinal: 1, Name: "XML"}
	switch {
	case note == nil:
		layer.Message = fmt.Sprintf("XML não encontrado para nota %s", orDefault(fields.InvoiceNumber, "?"))
		layer.Blocking = true
	case !note.Valid:
		layer.Message = "XML inválido"
		layer.Blocking = true
	default:
		docKey := textutil.InvoiceKey(fields.InvoiceNumber)
		noteKey := textutil.InvoiceKey(note.InvoiceNumber)
		if docKey != "" && noteKey != "" && docKey != noteKey {
			layer.Message = fmt.Sprintf("Número da nota divergente: boleto=%s, XML=%s", docKey, noteKey)
			layer.Blocking = true
			break
		}
		layer.Passed = true
		layer.Message = "XML válido e número da nota confere"
	}
	return layer
}

func layerTaxID(fields DocumentFields, note *records.FiscalNote) records.LayerResult {
	layer := records.LayerResult{Ordinal: 2, Name: "CNPJ", Passed: true}
	docTax := textutil.DigitsOnly(fields.TaxID)
	noteTax := textutil.DigitsOnly(note.TaxID)
	switch {
	case docTax == "" || noteTax == "":
		layer.Message = "CNPJ não disponível para comparação"
	case docTax == noteTax:
		layer.Message = "CNPJ confere"
	default:
		layer.Passed = false
		layer.Blocking = true
		layer.Message = fmt.Sprintf("CNPJ divergente! Boleto=%s, XML=%s", docTax, noteTax)
	}
	return layer
}

// layerName never blocks.
func layerName(fields DocumentFields, note *records.FiscalNote) records.LayerResult {
	layer := records.LayerResult{Ordinal: 3, Name: "Nome", Passed: true}
	if strings.TrimSpace(fields.Payer) == "" || strings.TrimSpace(note.RecipientName) == "" {
		layer.Message = "Nome não disponível para comparação"
		return layer
	}
	switch reconcile.MatchName(fields.Payer, note.RecipientName) {
	case reconcile.MatchExact:
		layer.Message = "Nome confere"
	case reconcile.MatchPartial:
		layer.Message = "Nome semelhante"
	default:
		layer.Passed = false
		layer.Message = "Similaridade baixa"
	}
	return layer
}

func layerAmount(fields DocumentFields, note *records.FiscalNote) records.LayerResult {
	layer := records.LayerResult{Ordinal: 4, Name: "Valor", Passed: true}
	if fields.Amount == nil {
		layer.Message = "Valor do boleto não disponível para comparação"
		return layer
	}
	if note.TotalAmount == nil || *note.TotalAmount == 0 {
		layer.Message = "Valor do XML não disponível para comparação"
		return layer
	}
	diff := math.Abs(math.Round(*fields.Amount*100) - math.Round(*note.TotalAmount*100))
	if diff == 0 {
		layer.Message = "Valor confere"
		return layer
	}
	layer.Passed = false
	layer.Blocking = true
	layer.Message = fmt.Sprintf("Valor divergente! Diferença %s", textutil.FormatBRL(diff/100))
	return layer
}

func interestDetected(fields DocumentFields, note *records.FiscalNote) bool {
	if fields.Amount == nil || note.TotalAmount == nil || *note.TotalAmount == 0 {
		return false
	}
	return *fields.Amount > *note.TotalAmount
}

func layerEmail(note *records.FiscalNote) records.LayerResult {
	layer := records.LayerResult{Ordinal: 5, Name: "Email"}
	if len(note.Emails) > 0 {
		layer.Passed = true
		layer.Message = fmt.Sprintf("%d email(s) válido(s)", len(note.Emails))
		return layer
	}
	layer.Blocking = true
	layer.Message = "Nenhum email válido encontrado"
	if len(note.InvalidEmails) > 0 {
		layer.Message += fmt.Sprintf(" (filtrados: %s)", strings.Join(note.InvalidEmails, ", "))
	}
	return layer
}
