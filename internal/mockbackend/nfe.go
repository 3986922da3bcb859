package mockbackend

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// NFeNamespace is the portal namespace of electronic invoices.
const NFeNamespace = "http://www.portalfiscal.inf.br/nfe"

type nfeInfo struct {
	Ide struct {
		Number string `xml:"nNF"`
	} `xml:"ide"`
	Dest struct {
		CNPJ  string `xml:"CNPJ"`
		CPF   string `xml:"CPF"`
		Name  string `xml:"xNome"`
		Email string `xml:"email"`
	} `xml:"dest"`
	Total struct {
		ICMS struct {
			Value string `xml:"vNF"`
		} `xml:"ICMSTot"`
	} `xml:"total"`
}

// ParseNFe reads the invoice fields of an NFe document. Element names are
// matched without regard to namespace.
func ParseNFe(data []byte) (NoteFields, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return NoteFields{}, errors.New("infNFe element not found")
		}
		if err != nil {
			return NoteFields{}, fmt.Errorf("parse xml: %w", err)
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "infNFe" {
			continue
		}
		var info nfeInfo
		if err := decoder.DecodeElement(&info, &start); err != nil {
			return NoteFields{}, fmt.Errorf("decode infNFe: %w", err)
		}
		return info.fields()
	}
}

func (info nfeInfo) fields() (NoteFields, error) {
	number := strings.TrimSpace(info.Ide.Number)
	if number == "" {
		return NoteFields{}, errors.New("nNF missing")
	}
	fields := NoteFields{
		InvoiceNumber: number,
		TaxID:         strings.TrimSpace(info.Dest.CNPJ),
		RecipientName: strings.TrimSpace(info.Dest.Name),
		Emails:        strings.TrimSpace(info.Dest.Email),
	}
	if fields.TaxID == "" {
		fields.TaxID = strings.TrimSpace(info.Dest.CPF)
	}
	if raw := strings.TrimSpace(info.Total.ICMS.Value); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return NoteFields{}, fmt.Errorf("vNF %q: %w", raw, err)
		}
		fields.TotalAmount = &value
	}
	return fields, nil
}

// BuildNFe renders a minimal NFe document for note.
func BuildNFe(note NoteFields) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<nfeProc xmlns=%q><NFe><infNFe Id="NFe%s">`, NFeNamespace, note.InvoiceNumber)
	fmt.Fprintf(&buf, "<ide><nNF>%s</nNF></ide>", escape(note.InvoiceNumber))
	buf.WriteString("<dest>")
	if digits := note.TaxID; len(digits) == 11 {
		fmt.Fprintf(&buf, "<CPF>%s</CPF>", escape(digits))
	} else if digits != "" {
		fmt.Fprintf(&buf, "<CNPJ>%s</CNPJ>", escape(digits))
	}
	fmt.Fprintf(&buf, "<xNome>%s</xNome>", escape(note.RecipientName))
	if note.Emails != "" {
		fmt.Fprintf(&buf, "<email>%s</email>", escape(note.Emails))
	}
	buf.WriteString("</dest>")
	if note.TotalAmount != nil {
		fmt.Fprintf(&buf, "<total><ICMSTot><vNF>%.2f</vNF></ICMSTot></total>", *note.TotalAmount)
	}
	buf.WriteString("</infNFe></NFe></nfeProc>\n")
	return buf.Bytes()
}

func escape(value string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(value))
	return buf.String()
}
