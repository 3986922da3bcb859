package mockbackend

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Comment prefixes that carry fixture payloads inside generated PDFs.
const (
	documentFixturePrefix = "% boleto:"
	noteFixturePrefix     = "% nfe:"
)

// DocumentFields are the values an extractor reads from one collection page.
type DocumentFields struct {
	Payer         string   `json:"pagador,omitempty"`
	TaxID         string   `json:"cnpj,omitempty"`
	InvoiceNumber string   `json:"numero_nota,omitempty"`
	DueDate       string   `json:"vencimento,omitempty"`
	Amount        *float64 `json:"valor,omitempty"`
}

// NoteFields are the values an extractor reads from a fiscal note.
type NoteFields struct {
	InvoiceNumber string   `json:"numero_nota"`
	TaxID         string   `json:"cnpj,omitempty"`
	RecipientName string   `json:"nome_destinatario,omitempty"`
	TotalAmount   *float64 `json:"valor_total,omitempty"`
	Emails        string   `json:"emails,omitempty"`
}

// BuildPDF renders a minimal, structurally valid PDF with one page per
// document and the document fields embedded as comment lines.
func BuildPDF(docs ...DocumentFields) []byte {
	payloads := make([]any, len(docs))
	for i := range docs {
		payloads[i] = docs[i]
	}
	return buildPDF(documentFixturePrefix, payloads)
}

// BuildNotePDF renders a one-page PDF carrying a fiscal note fixture.
func BuildNotePDF(note NoteFields) []byte {
	return buildPDF(noteFixturePrefix, []any{note})
}

func buildPDF(prefix string, payloads []any) []byte {
	pages := len(payloads)
	if pages == 0 {
		pages = 1
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	for _, payload := range payloads {
		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		fmt.Fprintf(&buf, "%s%s\n", prefix, data)
	}

	offsets := make([]int, 0, pages+2)
	object := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	object("<< /Type /Catalog /Pages 2 0 R >>")
	object(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for range pages {
		object("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// readFixtures decodes every comment line with prefix into a new T.
func readFixtures[T any](data []byte, prefix string) []T {
	var out []T
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		var value T
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, prefix)), &value); err != nil {
			continue
		}
		out = append(out, value)
	}
	return out
}
