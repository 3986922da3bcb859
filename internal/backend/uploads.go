package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"boletodesk/internal/records"
)

// UploadCollection submits collection document PDFs.
func (c *Client) UploadCollection(ctx context.Context, id string, paths []string) (*records.CollectionUpload, error) {
	var out records.CollectionUpload
	if err := c.upload(ctx, id, "POST /operacoes/{id}/boletos/upload", opPath(id, "boletos", "upload"), paths, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadFiscal submits fiscal note XML or PDF files.
func (c *Client) UploadFiscal(ctx context.Context, id string, paths []string) (*records.FiscalUpload, error) {
	var out records.FiscalUpload
	if err := c.upload(ctx, id, "POST /operacoes/{id}/xmls/upload", opPath(id, "xmls", "upload"), paths, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateNoteEmails replaces the recipient addresses of a fiscal note.
func (c *Client) UpdateNoteEmails(ctx context.Context, id, noteID string, emails []string) (*records.FiscalNote, error) {
	if err := requireID("operation", id); err != nil {
		return nil, err
	}
	if err := requireID("fiscal note", noteID); err != nil {
		return nil, err
	}
	if emails == nil {
		emails = []string{}
	}
	req, err := c.jsonRequest("PATCH /operacoes/{id}/xmls/{xmlId}/emails", http.MethodPatch,
		opPath(id, "xmls", url.PathEscape(noteID), "emails"), map[string][]string{"emails": emails})
	if err != nil {
		return nil, err
	}
	var out records.FiscalNote
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) upload(ctx context.Context, id, route, path string, paths []string, out any) error {
	if err := requireID("operation", id); err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no files to upload")
	}
	body, contentType, err := buildMultipart(paths)
	if err != nil {
		return err
	}
	return c.do(ctx, request{route: route, method: http.MethodPost, path: path, body: body, contentType: contentType}, out)
}

func buildMultipart(paths []string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, path := range paths {
		if err := addFilePart(writer, path); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func addFilePart(writer *multipart.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload %q: %w", path, err)
	}
	defer file.Close()

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", contentTypeFor(path))
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy upload %q: %w", path, err)
	}
	return nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".xml":
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}
