package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"boletodesk/internal/records"
)

// OperationPatch carries the fields to change on an operation. Nil fields
// are left out of the request.
type OperationPatch struct {
	FidcID *string `json:"fidc_id,omitempty"`
	Label  *string `json:"numero,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p OperationPatch) Empty() bool {
	return p.FidcID == nil && p.Label == nil
}

// ListOptions filters the operation history.
type ListOptions struct {
	Page    int
	PerPage int
	Status  records.OperationStatus
}

func opPath(id string, suffix ...string) string {
	parts := append([]string{"/operacoes", url.PathEscape(id)}, suffix...)
	return strings.Join(parts, "/")
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s id required", kind)
	}
	return nil
}

// ListFidcs returns the funds an operation can belong to.
func (c *Client) ListFidcs(ctx context.Context) ([]records.Fidc, error) {
	req, _ := c.jsonRequest("GET /fidcs", http.MethodGet, "/fidcs", nil)
	var out []records.Fidc
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOperation creates an operation under fidcID. An empty label lets the
// backend assign the next sequential one.
func (c *Client) CreateOperation(ctx context.Context, fidcID, label string) (*records.Operation, error) {
	if err := requireID("fidc", fidcID); err != nil {
		return nil, err
	}
	body := map[string]string{"fidc_id": strings.TrimSpace(fidcID)}
	if label = strings.TrimSpace(label); label != "" {
		body["numero"] = label
	}
	req, err := c.jsonRequest("POST /operacoes", http.MethodPost, "/operacoes", body)
	if err != nil {
		return nil, err
	}
	var out records.Operation
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOperation sends patch. An empty patch is rejected locally.
func (c *Client) UpdateOperation(ctx context.Context, id string, patch OperationPatch) (*records.Operation, error) {
	if err := requireID("operation", id); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, errors.New("operation patch is empty")
	}
	req, err := c.jsonRequest("PATCH /operacoes/{id}", http.MethodPatch, opPath(id), patch)
	if err != nil {
		return nil, err
	}
	var out records.Operation
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOperation fetches the authoritative snapshot of an operation.
func (c *Client) GetOperation(ctx context.Context, id string) (*records.Snapshot, error) {
	if err := requireID("operation", id); err != nil {
		return nil, err
	}
	req, _ := c.jsonRequest("GET /operacoes/{id}", http.MethodGet, opPath(id), nil)
	var out records.Snapshot
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOperations pages through the operation history.
func (c *Client) ListOperations(ctx context.Context, opts ListOptions) (*records.OperationPage, error) {
	params := url.Values{}
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.Status != "" {
		params.Set("status", string(opts.Status))
	}
	path := "/operacoes"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	req, _ := c.jsonRequest("GET /operacoes", http.MethodGet, path, nil)
	var out records.OperationPage
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Process runs the approval pipeline over every uploaded document.
func (c *Client) Process(ctx context.Context, id string) (*records.ProcessingResult, error) {
	return c.runPipeline(ctx, id, "processar")
}

// Reprocess re-runs the approval pipeline.
func (c *Client) Reprocess(ctx context.Context, id string) (*records.ProcessingResult, error) {
	return c.runPipeline(ctx, id, "reprocessar")
}

func (c *Client) runPipeline(ctx context.Context, id, action string) (*records.ProcessingResult, error) {
	if err := requireID("operation", id); err != nil {
		return nil, err
	}
	req, _ := c.jsonRequest("POST /operacoes/{id}/"+action, http.MethodPost, opPath(id, action), nil)
	var out records.ProcessingResult
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Finalize marks the operation concluded.
func (c *Client) Finalize(ctx context.Context, id string) error {
	return c.lifecycle(ctx, id, http.MethodPost, "POST /operacoes/{id}/finalizar", opPath(id, "finalizar"))
}

// Cancel cancels the operation.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.lifecycle(ctx, id, http.MethodPost, "POST /operacoes/{id}/cancelar", opPath(id, "cancelar"))
}

// Delete removes the operation permanently.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.lifecycle(ctx, id, http.MethodDelete, "DELETE /operacoes/{id}", opPath(id))
}

func (c *Client) lifecycle(ctx context.Context, id, method, route, path string) error {
	if err := requireID("operation", id); err != nil {
		return err
	}
	req, _ := c.jsonRequest(route, method, path, nil)
	return c.do(ctx, req, nil)
}
