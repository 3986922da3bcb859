package mockbackend

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"boletodesk/internal/preflight"
	"boletodesk/internal/textutil"
)

// CollectionExtractor splits an uploaded collection PDF into per-page fields.
type CollectionExtractor func(fileName string, data []byte) ([]DocumentFields, error)

// FiscalExtractor reads the note fields of an uploaded fiscal file.
type FiscalExtractor func(fileName string, data []byte) (NoteFields, error)

// ExtractCollection is the default CollectionExtractor. Pages without a
// fixture comment yield empty fields.
func ExtractCollection(fileName string, data []byte) ([]DocumentFields, error) {
	pages, err := api.PageCount(bytes.NewReader(data), preflight.PDFConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%s: read pdf: %w", fileName, err)
	}
	fields := readFixtures[DocumentFields](data, documentFixturePrefix)
	out := make([]DocumentFields, pages)
	copy(out, fields)
	return out, nil
}

// ExtractFiscal is the default FiscalExtractor.
func ExtractFiscal(fileName string, data []byte) (NoteFields, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xml":
		return ParseNFe(data)
	case ".pdf":
		if _, err := api.PageCount(bytes.NewReader(data), preflight.PDFConfiguration()); err != nil {
			return NoteFields{}, fmt.Errorf("%s: read pdf: %w", fileName, err)
		}
		notes := readFixtures[NoteFields](data, noteFixturePrefix)
		if len(notes) == 0 || strings.TrimSpace(notes[0].InvoiceNumber) == "" {
			return NoteFields{}, fmt.Errorf("%s: invoice number not found", fileName)
		}
		return notes[0], nil
	default:
		return NoteFields{}, fmt.Errorf("%s: unsupported file type", fileName)
	}
}

// pageFileName names the record of page n (1-based) of a split upload.
func pageFileName(fileName string, page, pages int) string {
	if pages <= 1 {
		return fileName
	}
	ext := filepath.Ext(fileName)
	return fmt.Sprintf("%s_p%d%s", strings.TrimSuffix(fileName, ext), page, ext)
}

// renamedFileName builds "{payer} - NF {number} - {DD-MM} - {amount}.pdf".
func renamedFileName(fields DocumentFields) string {
	payer := orDefault(fields.Payer, "SEM_PAGADOR")
	number := orDefault(fields.InvoiceNumber, "SEM_NF")
	due := orDefault(fields.DueDate, "A definir")
	amount := "SEM_VALOR"
	if fields.Amount != nil {
		amount = textutil.FormatBRL(*fields.Amount)
	}
	name := textutil.SanitizeFileName(fmt.Sprintf("%s - NF %s - %s - %s.pdf", payer, number, due, amount))
	name = strings.Join(strings.Fields(name), " ")
	if len(name) > 255 {
		name = name[:251] + ".pdf"
	}
	return name
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}
