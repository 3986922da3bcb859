package mockbackend_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boletodesk/internal/backend"
	"boletodesk/internal/mockbackend"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
	"boletodesk/internal/testsupport"
)

const payerTaxID = "12345678000199"

func slip(number, due string, amount float64) mockbackend.DocumentFields {
	return mockbackend.DocumentFields{
		Payer:         "ACME Comercio Ltda",
		TaxID:         "12.345.678/0001-99",
		InvoiceNumber: number,
		DueDate:       due,
		Amount:        testsupport.Amount(amount),
	}
}

func invoice(number string, amount float64, emails string) mockbackend.NoteFields {
	return mockbackend.NoteFields{
		InvoiceNumber: number,
		TaxID:         payerTaxID,
		RecipientName: "ACME COMERCIO LTDA",
		TotalAmount:   testsupport.Amount(amount),
		Emails:        emails,
	}
}

func createOperation(t *testing.T, mb *testsupport.MockBackend) *records.Operation {
	t.Helper()
	op, err := mb.Client.CreateOperation(context.Background(), mb.Server.Fidcs()[0].ID, "")
	require.NoError(t, err)
	return op
}

func TestLoginIssuesUsableToken(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	ctx := context.Background()

	anon, err := backend.New(mb.BaseURL)
	require.NoError(t, err)

	_, err = anon.Login(ctx, mockbackend.DefaultEmail, "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrUnauthorized))

	login, err := anon.Login(ctx, mockbackend.DefaultEmail, mockbackend.DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, "bearer", login.TokenType)
	assert.Equal(t, mockbackend.DefaultEmail, login.User.Email)

	authed, err := backend.New(mb.BaseURL, backend.WithToken(login.AccessToken))
	require.NoError(t, err)
	fidcs, err := authed.ListFidcs(ctx)
	require.NoError(t, err)
	assert.Len(t, fidcs, 4)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	anon, err := backend.New(mb.BaseURL)
	require.NoError(t, err)

	_, err = anon.ListFidcs(context.Background())
	assert.True(t, errors.Is(err, services.ErrUnauthorized))

	forged, err := backend.New(mb.BaseURL, backend.WithToken("not-a-jwt"))
	require.NoError(t, err)
	_, err = forged.ListFidcs(context.Background())
	assert.True(t, errors.Is(err, services.ErrUnauthorized))
}

func TestCreateOperationAssignsSequentialLabels(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	first := createOperation(t, mb)
	second := createOperation(t, mb)

	assert.Equal(t, "OP-0001", first.Label)
	assert.Equal(t, "OP-0002", second.Label)
	assert.Equal(t, records.OperationProcessing, first.Status)

	named, err := mb.Client.CreateOperation(context.Background(), mb.Server.Fidcs()[1].ID, "LOTE-7")
	require.NoError(t, err)
	assert.Equal(t, "LOTE-7", named.Label)
	assert.Equal(t, "NOVAX", named.FidcName)

	page, err := mb.Client.ListOperations(context.Background(), backend.ListOptions{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
}

func TestProcessApprovesMatchingDocuments(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	ctx := context.Background()
	op := createOperation(t, mb)
	dir := t.TempDir()

	pdf := testsupport.WritePDF(t, dir, "lote.pdf",
		slip("1001", "15-03", 150.00),
		slip("1002", "10-03", 99.90),
		slip("1003", "", 10.00),
	)
	upload, err := mb.Client.UploadCollection(ctx, op.ID, []string{pdf})
	require.NoError(t, err)
	assert.Equal(t, 3, upload.TotalPages)
	require.Len(t, upload.Documents, 3)
	assert.Equal(t, "lote_p1.pdf", upload.Documents[0].OriginalFile)

	notes := []string{
		testsupport.WriteNFe(t, dir, "1001.xml", invoice("1001", 150.00, "financeiro@acme.com.br")),
		testsupport.WriteNFe(t, dir, "1002.xml", invoice("1002", 80.00, "financeiro@acme.com.br")),
		testsupport.WriteNFe(t, dir, "1003.xml", invoice("1003", 10.00, "sem-arroba")),
	}
	fiscal, err := mb.Client.UploadFiscal(ctx, op.ID, notes)
	require.NoError(t, err)
	assert.Equal(t, 3, fiscal.Valid)
	assert.Equal(t, []string{"sem-arroba"}, fiscal.Notes[2].InvalidEmails)

	result, err := mb.Client.Process(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Approved)
	assert.Equal(t, 2, result.Rejected)

	byNumber := map[string]records.CollectionDocument{}
	for _, doc := range result.Documents {
		byNumber[doc.InvoiceNumber] = doc
	}
	approved := byNumber["1001"]
	assert.Equal(t, records.ApprovalApproved, approved.Status)
	assert.Equal(t, "ACME Comercio Ltda - NF 1001 - 15-03 - R$ 150,00.pdf", approved.RenamedFile)
	assert.Len(t, approved.Layers(), 5)

	amountMismatch := byNumber["1002"]
	assert.Equal(t, records.ApprovalRejected, amountMismatch.Status)
	assert.True(t, amountMismatch.InterestDetected)
	assert.Contains(t, amountMismatch.RejectionReason, "Valor divergente")

	noEmail := byNumber["1003"]
	assert.Equal(t, records.ApprovalRejected, noEmail.Status)
	assert.Contains(t, noEmail.RejectionReason, "Nenhum email")

	snap, err := mb.Client.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, snap.HasResult())
	assert.Len(t, snap.Notes, 3)
}

func TestMissingNoteBlocksRemainingLayers(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	ctx := context.Background()
	op := createOperation(t, mb)
	dir := t.TempDir()

	_, err := mb.Client.UploadCollection(ctx, op.ID, []string{testsupport.WritePDF(t, dir, "a.pdf", slip("2001", "01-04", 5))})
	require.NoError(t, err)
	_, err = mb.Client.UploadFiscal(ctx, op.ID, []string{testsupport.WriteNFe(t, dir, "other.xml", invoice("9999", 5, "x@acme.com"))})
	require.NoError(t, err)

	result, err := mb.Client.Process(ctx, op.ID)
	require.NoError(t, err)
	doc := result.Documents[0]
	assert.Equal(t, records.ApprovalRejected, doc.Status)
	layers := doc.Layers()
	require.Len(t, layers, 5)
	assert.True(t, layers[0].Blocking)
	for _, layer := range layers[1:] {
		assert.Equal(t, "Não validado (camada anterior falhou)", layer.Message)
	}
}

func TestReprocessSettlesRejectedAfterEmailFix(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	ctx := context.Background()
	op := createOperation(t, mb)
	dir := t.TempDir()

	_, err := mb.Client.UploadCollection(ctx, op.ID, []string{testsupport.WritePDF(t, dir, "a.pdf", slip("3001", "01-04", 20))})
	require.NoError(t, err)
	fiscal, err := mb.Client.UploadFiscal(ctx, op.ID, []string{testsupport.WriteNFe(t, dir, "3001.xml", invoice("3001", 20, ""))})
	require.NoError(t, err)

	result, err := mb.Client.Process(ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, 0, result.Approved)

	note, err := mb.Client.UpdateNoteEmails(ctx, op.ID, fiscal.Notes[0].ID, []string{"Pagar@Acme.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pagar@acme.com"}, note.Emails)

	result, err = mb.Client.Reprocess(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Approved)
	assert.Equal(t, 0, result.Rejected)
}

func TestOrderingGuards(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	ctx := context.Background()
	op := createOperation(t, mb)
	dir := t.TempDir()

	_, err := mb.Client.Process(ctx, op.ID)
	assertStatus(t, err, http.StatusConflict)

	_, err = mb.Client.UploadFiscal(ctx, op.ID, []string{testsupport.WriteNFe(t, dir, "n.xml", invoice("1", 1, "a@b.com"))})
	assertStatus(t, err, http.StatusConflict)

	_, err = mb.Client.UploadCollection(ctx, op.ID, []string{testsupport.WritePDF(t, dir, "a.pdf", slip("1", "01-01", 1))})
	require.NoError(t, err)

	_, err = mb.Client.Reprocess(ctx, op.ID)
	assertStatus(t, err, http.StatusConflict)
	assertStatus(t, mb.Client.Finalize(ctx, op.ID), http.StatusConflict)

	_, err = mb.Client.UploadCollection(ctx, op.ID, []string{testsupport.WritePDF(t, dir, "a.pdf", slip("1", "01-01", 1))})
	assertStatus(t, err, http.StatusBadRequest)

	require.NoError(t, mb.Client.Cancel(ctx, op.ID))
	assertStatus(t, mb.Client.Cancel(ctx, op.ID), http.StatusBadRequest)
	label := "NOVO"
	_, err = mb.Client.UpdateOperation(ctx, op.ID, backend.OperationPatch{Label: &label})
	assertStatus(t, err, http.StatusBadRequest)

	require.NoError(t, mb.Client.Delete(ctx, op.ID))
	_, err = mb.Client.GetOperation(ctx, op.ID)
	assert.True(t, errors.Is(err, services.ErrNotFound))
}

func TestSendGroupsByRecipientsAndVerifies(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	ctx := context.Background()
	op := createOperation(t, mb)
	dir := t.TempDir()

	_, err := mb.Client.UploadCollection(ctx, op.ID, []string{testsupport.WritePDF(t, dir, "lote.pdf",
		slip("11", "20-05", 10),
		slip("12", "02-05", 20),
		slip("13", "01-05", 30),
	)})
	require.NoError(t, err)
	_, err = mb.Client.UploadFiscal(ctx, op.ID, []string{
		testsupport.WriteNFe(t, dir, "11.xml", invoice("11", 10, "b@acme.com; a@acme.com")),
		testsupport.WriteNFe(t, dir, "12.xml", invoice("12", 20, "a@acme.com,b@acme.com")),
		testsupport.WriteNFe(t, dir, "13.xml", invoice("13", 30, "outro@cliente.com")),
	})
	require.NoError(t, err)
	_, err = mb.Client.Process(ctx, op.ID)
	require.NoError(t, err)

	preview, err := mb.Client.SendPreview(ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, 2, preview.TotalGroups)
	shared := preview.Groups[0]
	assert.Equal(t, []string{"a@acme.com", "b@acme.com"}, shared.To)
	assert.Equal(t, []string{"cobranca@example.com"}, shared.CC)
	assert.Equal(t, "Boleto e Nota Fiscal (12, 11)", shared.Subject)
	assert.Len(t, shared.Notes, 2)

	sent, err := mb.Client.Send(ctx, op.ID, records.SendModePreview)
	require.NoError(t, err)
	assert.Equal(t, 2, sent.Created)
	assert.Equal(t, 0, sent.Sent)

	mb.Server.DeliverToMailbox(shared.Subject)
	verify, err := mb.Client.VerifySendStatus(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, verify.Checked)
	assert.Equal(t, 1, verify.Updated)

	sends, err := mb.Client.SendRecords(ctx, op.ID)
	require.NoError(t, err)
	require.Len(t, sends, 2)
	var draft records.SendRecord
	for _, rec := range sends {
		if rec.Status == records.SendStatusDraft {
			draft = rec
		}
	}
	require.NotEmpty(t, draft.ID)
	marked, err := mb.Client.MarkSent(ctx, op.ID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, records.SendStatusSent, marked.Status)
	assert.NotNil(t, marked.SentAt)

	require.NoError(t, mb.Client.Finalize(ctx, op.ID))
	auto, err := mb.Client.Send(ctx, op.ID, records.SendModeAutomatic)
	require.NoError(t, err)
	assert.Equal(t, 2, auto.Sent)
}

func TestFailNextInjectsStatus(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	mb.Server.FailNext("GET /fidcs", http.StatusServiceUnavailable)

	_, err := mb.Client.ListFidcs(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrTransient))

	_, err = mb.Client.ListFidcs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, mb.Server.Calls("GET /fidcs"))
}

func TestDocumentBinaryServesUpload(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	ctx := context.Background()
	op := createOperation(t, mb)
	dir := t.TempDir()

	upload, err := mb.Client.UploadCollection(ctx, op.ID, []string{testsupport.WritePDF(t, dir, "one.pdf", slip("5", "01-01", 1))})
	require.NoError(t, err)

	bin, err := mb.Client.DocumentBinary(ctx, op.ID, backend.KindCollection, upload.Documents[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", bin.ContentType)
	assert.Equal(t, mockbackend.BuildPDF(slip("5", "01-01", 1)), bin.Data)
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var statusErr *backend.StatusError
	require.True(t, errors.As(err, &statusErr), "expected StatusError, got %v", err)
	assert.Equal(t, code, statusErr.StatusCode)
}
