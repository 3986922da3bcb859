package workflow_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boletodesk/internal/backend"
	"boletodesk/internal/grouping"
	"boletodesk/internal/mockbackend"
	"boletodesk/internal/reconcile"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
	"boletodesk/internal/session"
	"boletodesk/internal/stage"
	"boletodesk/internal/testsupport"
	"boletodesk/internal/workflow"
)

const (
	routeCreate     = "POST /operacoes"
	routePatch      = "PATCH /operacoes/{id}"
	routeFiscal     = "POST /operacoes/{id}/xmls/upload"
	routeCollection = "POST /operacoes/{id}/boletos/upload"
	routeProcess    = "POST /operacoes/{id}/processar"
	routePreview    = "GET /operacoes/{id}/preview-envio"
	routeDocument   = "GET /operacoes/{id}/boletos/{docId}/arquivo"
	routeSends      = "GET /operacoes/{id}/envios"
)

type harness struct {
	mb     *testsupport.MockBackend
	wf     *workflow.Workflow
	dir    string
	fidc   records.Fidc
	mu     sync.Mutex
	seen   []workflow.State
	closed int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mb := testsupport.StartMockBackend(t)
	return newHarnessOn(t, mb, mb.Client, session.Session{ID: "s1"})
}

func newHarnessOn(t *testing.T, mb *testsupport.MockBackend, b workflow.Backend, sess session.Session) *harness {
	t.Helper()
	h := &harness{mb: mb, dir: t.TempDir(), fidc: mb.Server.Fidcs()[0]}
	h.wf = workflow.New(sess, b,
		workflow.WithPreviewCache(grouping.NewCache(filepath.Join(h.dir, "previews"), nil)),
		workflow.WithHooks(workflow.Hooks{
			Changed: func(s workflow.State) {
				h.mu.Lock()
				h.seen = append(h.seen, s)
				h.mu.Unlock()
			},
			Closed: func() {
				h.mu.Lock()
				h.closed++
				h.mu.Unlock()
			},
		}),
	)
	return h
}

func slip(number string, amount float64) mockbackend.DocumentFields {
	return mockbackend.DocumentFields{
		Payer:         "Padaria Sol",
		TaxID:         "11.222.333/0001-44",
		InvoiceNumber: number,
		DueDate:       "10-06",
		Amount:        testsupport.Amount(amount),
	}
}

func invoice(number string, amount float64) mockbackend.NoteFields {
	return mockbackend.NoteFields{
		InvoiceNumber: number,
		TaxID:         "11222333000144",
		RecipientName: "PADARIA SOL",
		TotalAmount:   testsupport.Amount(amount),
		Emails:        "contas@padariasol.com.br",
	}
}

func (h *harness) collection(t *testing.T, name string, docs ...mockbackend.DocumentFields) string {
	return testsupport.WritePDF(t, h.dir, name, docs...)
}

func (h *harness) fiscal(t *testing.T, name string, note mockbackend.NoteFields) string {
	return testsupport.WriteNFe(t, h.dir, name, note)
}

// ready creates an operation and uploads two documents with matching notes.
func (h *harness) ready(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.wf.Create(ctx, h.fidc.ID, "")
	require.NoError(t, err)
	_, err = h.wf.UploadFiles(ctx,
		[]string{h.collection(t, "lote.pdf", slip("501", 100), slip("502", 250))},
		[]string{h.fiscal(t, "501.xml", invoice("501", 100)), h.fiscal(t, "502.xml", invoice("502", 250))},
	)
	require.NoError(t, err)
}

func TestNewSessionStartsAtConfigure(t *testing.T) {
	h := newHarness(t)
	state := h.wf.State()
	assert.Equal(t, stage.Configure, state.Stage)
	assert.Equal(t, stage.Configure, h.wf.MaxStage())

	err := h.wf.Navigate(stage.Upload)
	assert.True(t, errors.Is(err, services.ErrStageLocked))
	assert.Empty(t, h.wf.Pairs())
	assert.True(t, h.wf.View().Empty())

	_, err = h.wf.Process(context.Background())
	assert.True(t, errors.Is(err, services.ErrStageLocked))
}

func TestCreateMovesToUpload(t *testing.T) {
	h := newHarness(t)
	op, err := h.wf.Create(context.Background(), h.fidc.ID, "")
	require.NoError(t, err)

	state := h.wf.State()
	assert.Equal(t, op.ID, state.OperationID)
	assert.Equal(t, "OP-0001", state.Label)
	assert.Equal(t, h.fidc.Name, state.Fidc.Name)
	assert.Equal(t, stage.Upload, state.Stage)
	assert.Equal(t, stage.Upload, h.wf.MaxStage())
	require.NotEmpty(t, h.seen)
	assert.Equal(t, op.ID, h.seen[len(h.seen)-1].OperationID)

	_, err = h.wf.Create(context.Background(), h.fidc.ID, "")
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestCreateFailureStaysInConfigure(t *testing.T) {
	h := newHarness(t)
	h.mb.Server.FailNext(routeCreate, http.StatusInternalServerError)

	_, err := h.wf.Create(context.Background(), h.fidc.ID, "LOTE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrTransient))
	assert.Equal(t, "transient", services.Notice(err))
	assert.Equal(t, stage.Configure, h.wf.State().Stage)
	assert.Empty(t, h.wf.State().OperationID)
}

func TestSaveSendsOnlyChangedFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.wf.Create(ctx, h.fidc.ID, "LOTE-1")
	require.NoError(t, err)

	sent, err := h.wf.Save(ctx, h.fidc.ID, "LOTE-1")
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 0, h.mb.Server.Calls(routePatch))

	other := h.mb.Server.Fidcs()[2]
	sent, err = h.wf.Save(ctx, other.ID, "")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, other.Name, h.wf.State().Fidc.Name)
	assert.Equal(t, "LOTE-1", h.wf.State().Label)

	sent, err = h.wf.Save(ctx, other.ID, "LOTE-2")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "LOTE-2", h.wf.State().Label)
	assert.Equal(t, 2, h.mb.Server.Calls(routePatch))

	sent, err = h.wf.Save(ctx, other.ID, "LOTE-2")
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestUploadAdvancesToProcess(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	state := h.wf.State()
	assert.Len(t, state.Documents, 2)
	assert.Len(t, state.Notes, 2)
	assert.Equal(t, stage.Process, state.Stage)
	assert.Equal(t, stage.Process, h.wf.MaxStage())

	pairs := h.wf.Pairs()
	require.Len(t, pairs, 2)
}

func TestUploadPreflightRejectsBeforeSending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.wf.Create(ctx, h.fidc.ID, "")
	require.NoError(t, err)

	bad := testsupport.WriteFile(t, filepath.Join(h.dir, "broken.pdf"), []byte("nope"))
	_, err = h.wf.UploadFiles(ctx, []string{bad}, nil)
	assert.True(t, errors.Is(err, services.ErrValidation))
	assert.Equal(t, 0, h.mb.Server.Calls(routeCollection))

	_, err = h.wf.UploadFiles(ctx, nil, nil)
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestFiscalFailureKeepsCollection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.wf.Create(ctx, h.fidc.ID, "")
	require.NoError(t, err)
	h.mb.Server.FailNext(routeFiscal, http.StatusBadGateway)

	summary, err := h.wf.UploadFiles(ctx,
		[]string{h.collection(t, "a.pdf", slip("1", 10))},
		[]string{h.fiscal(t, "1.xml", invoice("1", 10))},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrPartial))
	assert.Equal(t, "partial", services.Notice(err))
	require.NotNil(t, summary.Collection)
	assert.Nil(t, summary.Fiscal)

	state := h.wf.State()
	assert.Len(t, state.Documents, 1)
	assert.Empty(t, state.Notes)
	assert.Equal(t, stage.Process, state.Stage)

	_, err = h.wf.UploadFiles(ctx, nil, []string{h.fiscal(t, "1b.xml", invoice("1", 10))})
	require.NoError(t, err)
	assert.Len(t, h.wf.State().Notes, 1)
}

func TestFiscalOnlyFailureIsTransient(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	h.mb.Server.FailNext(routeFiscal, http.StatusServiceUnavailable)

	_, err := h.wf.UploadFiles(context.Background(), nil, []string{h.fiscal(t, "x.xml", invoice("9", 1))})
	require.Error(t, err)
	assert.False(t, errors.Is(err, services.ErrPartial))
	assert.True(t, errors.Is(err, services.ErrTransient))
}

func TestProcessStoresResultAndLoadsPreview(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	ctx := context.Background()

	result, err := h.wf.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Approved)
	h.wf.Settle()

	state := h.wf.State()
	assert.Equal(t, stage.Result, state.Stage)
	require.NotNil(t, state.Result)
	require.NotNil(t, state.Preview)
	assert.Equal(t, 1, state.Preview.TotalGroups)

	view := h.wf.View()
	require.Len(t, view.Groups, 1)
	require.Len(t, view.Groups[0].Items, 2)
	status, _ := view.Groups[0].Items[0].Report.Status(reconcile.FieldAmount)
	assert.Equal(t, reconcile.MatchExact, status)

	require.NoError(t, h.wf.Navigate(stage.Upload))
	assert.Equal(t, stage.Upload, h.wf.State().Stage)
	require.NoError(t, h.wf.Navigate(stage.Configure))
	assert.Equal(t, stage.Upload, h.wf.State().Stage, "bound sessions never return to configure")
}

func TestProcessPairsOneAndLeavesOneUnpaired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.wf.Create(ctx, h.fidc.ID, "")
	require.NoError(t, err)
	_, err = h.wf.UploadFiles(ctx,
		[]string{h.collection(t, "lote.pdf", slip("0501", 100), slip("502", 250))},
		[]string{h.fiscal(t, "501.xml", invoice("501", 100))},
	)
	require.NoError(t, err)
	_, err = h.wf.Process(ctx)
	require.NoError(t, err)
	h.wf.Settle()
	assert.Equal(t, stage.Result, h.wf.State().Stage)

	pairs := h.wf.Pairs()
	require.Len(t, pairs, 2)
	summary := reconcile.Summarize(pairs)
	assert.Equal(t, 1, summary.Paired)
	assert.Equal(t, 1, summary.Unpaired)

	fields := func(r reconcile.Report) []reconcile.Field {
		out := make([]reconcile.Field, 0, len(r.Rows))
		for _, row := range r.Rows {
			out = append(out, row.Field)
		}
		return out
	}
	paired, unpaired := pairs[0], pairs[1]
	assert.Equal(t, "0501", paired.Document.InvoiceNumber)
	require.NotNil(t, paired.Note)
	assert.Equal(t, []reconcile.Field{
		reconcile.FieldInvoiceNumber,
		reconcile.FieldAmount,
		reconcile.FieldName,
		reconcile.FieldTaxID,
		reconcile.FieldEmail,
	}, fields(paired.Report))
	status, _ := paired.Report.Status(reconcile.FieldInvoiceNumber)
	assert.Equal(t, reconcile.MatchExact, status)
	status, _ = paired.Report.Status(reconcile.FieldAmount)
	assert.Equal(t, reconcile.MatchExact, status)

	assert.Nil(t, unpaired.Note)
	assert.Equal(t, []reconcile.Field{reconcile.FieldFiscalNote}, fields(unpaired.Report))
	assert.False(t, unpaired.Report.Paired())
}

func TestCollectionUploadAfterResultDropsResult(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	ctx := context.Background()
	_, err := h.wf.Process(ctx)
	require.NoError(t, err)
	h.wf.Settle()
	require.NotNil(t, h.wf.State().Preview)

	_, err = h.wf.UploadFiles(ctx, []string{h.collection(t, "extra.pdf", slip("503", 75))}, nil)
	require.NoError(t, err)

	state := h.wf.State()
	assert.Len(t, state.Documents, 3)
	assert.Nil(t, state.Result)
	assert.Nil(t, state.Preview)
	assert.Equal(t, stage.Process, state.Stage)
	assert.Equal(t, stage.Process, h.wf.MaxStage())
	assert.True(t, h.wf.View().Empty())
	assert.True(t, errors.Is(h.wf.Navigate(stage.Result), services.ErrStageLocked))

	result, err := h.wf.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, stage.Result, h.wf.State().Stage)
}

func TestPreviewFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	h.mb.Server.FailNext(routePreview, http.StatusInternalServerError)

	_, err := h.wf.Process(context.Background())
	require.NoError(t, err)
	h.wf.Settle()

	state := h.wf.State()
	assert.Equal(t, stage.Result, state.Stage)
	assert.Nil(t, state.Preview)
	assert.True(t, h.wf.View().Empty())
	assert.Equal(t, 1, h.mb.Server.Calls(routePreview))
}

func TestProcessFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	h.mb.Server.FailNext(routeProcess, http.StatusInternalServerError)

	_, err := h.wf.Process(context.Background())
	assert.True(t, errors.Is(err, services.ErrTransient))
	state := h.wf.State()
	assert.Equal(t, stage.Process, state.Stage)
	assert.Nil(t, state.Result)
}

func TestReprocessRequiresResult(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	ctx := context.Background()

	_, err := h.wf.Reprocess(ctx)
	assert.True(t, errors.Is(err, services.ErrStageLocked))

	_, err = h.wf.Process(ctx)
	require.NoError(t, err)
	result, err := h.wf.Reprocess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	h.wf.Settle()
}

func TestUpdateRecipientEmailsThenReprocess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.wf.Create(ctx, h.fidc.ID, "")
	require.NoError(t, err)
	noEmail := invoice("700", 30)
	noEmail.Emails = ""
	_, err = h.wf.UploadFiles(ctx,
		[]string{h.collection(t, "a.pdf", slip("700", 30))},
		[]string{h.fiscal(t, "700.xml", noEmail)},
	)
	require.NoError(t, err)
	result, err := h.wf.Process(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Rejected)
	h.wf.Settle()

	noteID := h.wf.State().Notes[0].ID
	note, err := h.wf.UpdateRecipientEmails(ctx, noteID, []string{" fin@sol.com ", "FIN@sol.com", "quebrado"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fin@sol.com"}, note.Emails)
	assert.Equal(t, []string{"quebrado"}, note.InvalidEmails)
	assert.Equal(t, note.Emails, h.wf.State().Notes[0].Emails)

	_, err = h.wf.UpdateRecipientEmails(ctx, "missing", []string{"a@b.com"})
	assert.True(t, errors.Is(err, services.ErrNotFound))

	result, err = h.wf.Reprocess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Approved)
	h.wf.Settle()
}

func TestFinalizeAllowsSendingOnly(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	ctx := context.Background()

	require.Error(t, h.wf.Finalize(ctx), "finalize needs a result")
	_, err := h.wf.Process(ctx)
	require.NoError(t, err)
	h.wf.Settle()

	require.NoError(t, h.wf.Finalize(ctx))
	state := h.wf.State()
	assert.Equal(t, workflow.TerminalFinalized, state.Terminal)
	assert.Equal(t, records.OperationConcluded, state.Status)
	require.NotNil(t, state.Result)

	_, err = h.wf.Process(ctx)
	assert.True(t, errors.Is(err, services.ErrTerminated))
	assert.Equal(t, "rejected", services.Notice(err))
	assert.True(t, errors.Is(h.wf.Cancel(ctx, true), services.ErrTerminated))
	_, err = h.wf.Save(ctx, "", "NOVO")
	assert.True(t, errors.Is(err, services.ErrTerminated))

	sent, err := h.wf.Send(ctx, records.SendModePreview)
	require.NoError(t, err)
	assert.Equal(t, 1, sent.Created)
	sends := h.wf.State().Sends
	require.Len(t, sends, 1)
	assert.Equal(t, records.SendStatusDraft, sends[0].Status)

	marked, err := h.wf.MarkSent(ctx, sends[0].ID)
	require.NoError(t, err)
	assert.Equal(t, records.SendStatusSent, marked.Status)
	assert.Equal(t, records.SendStatusSent, h.wf.State().Sends[0].Status)

	verify, err := h.wf.VerifySendStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, verify.Checked)
	assert.Zero(t, h.closed)
}

func TestCancelRequiresConfirmation(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	ctx := context.Background()

	err := h.wf.Cancel(ctx, false)
	assert.True(t, errors.Is(err, services.ErrConfirmationRequired))
	assert.Equal(t, workflow.TerminalNone, h.wf.State().Terminal)

	require.NoError(t, h.wf.Cancel(ctx, true))
	assert.Equal(t, workflow.TerminalCancelled, h.wf.State().Terminal)
	assert.Equal(t, 1, h.closed)

	assert.True(t, errors.Is(h.wf.Delete(ctx, true), services.ErrTerminated))
	_, err = h.wf.Send(ctx, records.SendModePreview)
	assert.True(t, errors.Is(err, services.ErrTerminated))
}

func TestDeleteClosesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	op, err := h.wf.Create(ctx, h.fidc.ID, "")
	require.NoError(t, err)

	assert.True(t, errors.Is(h.wf.Delete(ctx, false), services.ErrConfirmationRequired))
	require.NoError(t, h.wf.Delete(ctx, true))
	assert.Equal(t, workflow.TerminalDeleted, h.wf.State().Terminal)
	assert.Equal(t, 1, h.closed)

	_, err = h.mb.Client.GetOperation(ctx, op.ID)
	assert.True(t, errors.Is(err, services.ErrNotFound))
}

func TestDocumentPreviewFetchesOnce(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	ctx := context.Background()
	docID := h.wf.State().Documents[0].ID

	first, err := h.wf.DocumentPreview(ctx, backend.KindCollection, docID)
	require.NoError(t, err)
	second, err := h.wf.DocumentPreview(ctx, backend.KindCollection, docID)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, 1, h.mb.Server.Calls(routeDocument))
	assert.Equal(t, 1, h.wf.PreviewCache().Len())
}

func TestRestoreClampsStoredStage(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	ctx := context.Background()
	_, err := h.wf.Process(ctx)
	require.NoError(t, err)
	h.wf.Settle()
	_, err = h.wf.Send(ctx, records.SendModePreview)
	require.NoError(t, err)
	opID := h.wf.State().OperationID

	restored := newHarnessOn(t, h.mb, h.mb.Client, session.Session{
		ID:          "s2",
		OperationID: opID,
		Stage:       stage.Result,
	})
	assert.Equal(t, stage.Upload, restored.wf.State().Stage)
	require.NoError(t, restored.wf.Restore(ctx))

	state := restored.wf.State()
	assert.Equal(t, stage.Result, state.Stage)
	assert.Equal(t, "OP-0001", state.Label)
	assert.Equal(t, h.fidc.Color, state.Fidc.Color)
	assert.Len(t, state.Documents, 2)
	assert.Len(t, state.Notes, 2)
	require.NotNil(t, state.Result)
	assert.Equal(t, 2, state.Result.Approved)
	assert.NotNil(t, state.Preview)
	assert.Len(t, state.Sends, 1)
}

func TestRestoreWithoutResultClampsToProcess(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	opID := h.wf.State().OperationID

	restored := newHarnessOn(t, h.mb, h.mb.Client, session.Session{ID: "s2", OperationID: opID, Stage: stage.Result})
	require.NoError(t, restored.wf.Restore(context.Background()))
	assert.Equal(t, stage.Process, restored.wf.State().Stage)
	assert.Nil(t, restored.wf.State().Result)
	assert.Equal(t, 0, h.mb.Server.Calls(routePreview))
}

func TestRestoreMarksConcludedOperationFinalized(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	ctx := context.Background()
	_, err := h.wf.Process(ctx)
	require.NoError(t, err)
	h.wf.Settle()
	require.NoError(t, h.wf.Finalize(ctx))

	restored := newHarnessOn(t, h.mb, h.mb.Client, session.Session{ID: "s2", OperationID: h.wf.State().OperationID, Stage: stage.Upload})
	require.NoError(t, restored.wf.Restore(ctx))
	state := restored.wf.State()
	assert.Equal(t, workflow.TerminalFinalized, state.Terminal)
	assert.Equal(t, stage.Upload, state.Stage, "a reachable stored stage is kept")
}

func TestRestoreSurvivesSendListFailure(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	h.mb.Server.FailNext(routeSends, http.StatusInternalServerError)

	restored := newHarnessOn(t, h.mb, h.mb.Client, session.Session{ID: "s2", OperationID: h.wf.State().OperationID})
	require.NoError(t, restored.wf.Restore(context.Background()))
	assert.Empty(t, restored.wf.State().Sends)
}

// detachingBackend closes the session while a process call is in flight.
type detachingBackend struct {
	workflow.Backend
	detach func()
}

func (d *detachingBackend) Process(ctx context.Context, id string) (*records.ProcessingResult, error) {
	result, err := d.Backend.Process(ctx, id)
	d.detach()
	return result, err
}

func TestResponseDiscardedAfterDetach(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	wrapped := &detachingBackend{Backend: mb.Client}
	h := newHarnessOn(t, mb, wrapped, session.Session{ID: "s1"})
	wrapped.detach = h.wf.Detach
	h.ready(t)

	_, err := h.wf.Process(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrSessionClosed))
	assert.Nil(t, h.wf.State().Result)

	err = h.wf.Navigate(stage.Upload)
	assert.True(t, errors.Is(err, services.ErrSessionClosed))
}
