package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"boletodesk/internal/records"
	"boletodesk/internal/services"
)

// DocumentKind selects which binary family a preview download targets.
type DocumentKind string

const (
	KindCollection DocumentKind = "boleto"
	KindFiscal     DocumentKind = "xml"
)

// ParseDocumentKind accepts the kind names used on the command line.
func ParseDocumentKind(value string) (DocumentKind, error) {
	switch value {
	case "boleto", "collection":
		return KindCollection, nil
	case "xml", "note", "fiscal":
		return KindFiscal, nil
	default:
		return "", fmt.Errorf("unknown document kind %q", value)
	}
}

func (k DocumentKind) segment() string {
	if k == KindFiscal {
		return "xmls"
	}
	return "boletos"
}

// Binary is a downloaded document file.
type Binary struct {
	Data        []byte
	ContentType string
}

// SendPreview fetches the grouped message candidates of an operation.
func (c *Client) SendPreview(ctx context.Context, id string) (*records.SendPreview, error) {
	if err := requireID("operation", id); err != nil {
		return nil, err
	}
	req, _ := c.jsonRequest("GET /operacoes/{id}/preview-envio", http.MethodGet, opPath(id, "preview-envio"), nil)
	var out records.SendPreview
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Send drafts or delivers the grouped messages.
func (c *Client) Send(ctx context.Context, id string, mode records.SendMode) (*records.SendResult, error) {
	if err := requireID("operation", id); err != nil {
		return nil, err
	}
	req, err := c.jsonRequest("POST /operacoes/{id}/enviar", http.MethodPost, opPath(id, "enviar"), map[string]string{"modo": string(mode)})
	if err != nil {
		return nil, err
	}
	var out records.SendResult
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendRecords lists the persisted messages of an operation.
func (c *Client) SendRecords(ctx context.Context, id string) ([]records.SendRecord, error) {
	if err := requireID("operation", id); err != nil {
		return nil, err
	}
	req, _ := c.jsonRequest("GET /operacoes/{id}/envios", http.MethodGet, opPath(id, "envios"), nil)
	var out []records.SendRecord
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkSent flags a drafted message as delivered by hand.
func (c *Client) MarkSent(ctx context.Context, id, recordID string) (*records.SendRecord, error) {
	if err := requireID("operation", id); err != nil {
		return nil, err
	}
	if err := requireID("send record", recordID); err != nil {
		return nil, err
	}
	req, err := c.jsonRequest("PATCH /operacoes/{id}/envios/{envioId}/status", http.MethodPatch,
		opPath(id, "envios", url.PathEscape(recordID), "status"), map[string]string{"status": records.SendStatusSent})
	if err != nil {
		return nil, err
	}
	var out records.SendRecord
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySendStatus asks the backend to reconcile drafts with the mailbox.
func (c *Client) VerifySendStatus(ctx context.Context, id string) (*records.VerifyResult, error) {
	if err := requireID("operation", id); err != nil {
		return nil, err
	}
	req, _ := c.jsonRequest("POST /operacoes/{id}/envios/verificar-status", http.MethodPost, opPath(id, "envios", "verificar-status"), nil)
	var out records.VerifyResult
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DocumentBinary downloads the file behind a collection document or note.
func (c *Client) DocumentBinary(ctx context.Context, id string, kind DocumentKind, docID string) (*Binary, error) {
	if err := requireID("operation", id); err != nil {
		return nil, err
	}
	if err := requireID("document", docID); err != nil {
		return nil, err
	}
	route := fmt.Sprintf("GET /operacoes/{id}/%s/{docId}/arquivo", kind.segment())
	resp, err := c.send(ctx, request{route: route, method: http.MethodGet, path: opPath(id, kind.segment(), url.PathEscape(docID), "arquivo")})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", route, "read body", err)
	}
	return &Binary{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}
