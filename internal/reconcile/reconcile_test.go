package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boletodesk/internal/reconcile"
	"boletodesk/internal/records"
)

func amount(v float64) *float64 { return &v }

func TestInvoiceNumberIgnoresLeadingZeros(t *testing.T) {
	cases := []struct {
		a, b string
		want reconcile.MatchStatus
	}{
		{"00123", "123", reconcile.MatchExact},
		{"123", "00123", reconcile.MatchExact},
		{"0010", "10", reconcile.MatchExact},
		{"124", "123", reconcile.MatchDivergent},
		{"", "123", reconcile.MatchNotApplicable},
		{"000", "0", reconcile.MatchNotApplicable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, reconcile.MatchInvoiceNumber(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
	}
}

func TestAmountTolerance(t *testing.T) {
	assert.Equal(t, reconcile.MatchExact, reconcile.MatchAmount(amount(1500.004), amount(1500.00)))
	assert.Equal(t, reconcile.MatchDivergent, reconcile.MatchAmount(amount(1500.02), amount(1500.00)))
	assert.Equal(t, reconcile.MatchNotApplicable, reconcile.MatchAmount(nil, amount(1)))
	assert.Equal(t, reconcile.MatchNotApplicable, reconcile.MatchAmount(amount(1), nil))
}

func TestNameMatching(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want reconcile.MatchStatus
	}{
		{"equal after normalization", " acme ltda", "ACME LTDA ", reconcile.MatchExact},
		{"either empty", "", "ACME", reconcile.MatchNotApplicable},
		{"blank", "   ", "ACME", reconcile.MatchNotApplicable},
		{"substring", "ACME COMERCIO", "ACME COMERCIO LTDA", reconcile.MatchPartial},
		{"half tokens shared", "ACME COMERCIO DE PAPEIS", "ACME COMERCIO INDUSTRIA LTDA", reconcile.MatchPartial},
		{"few tokens shared", "ACME COMERCIO PAPEIS LTDA", "ACME INDUSTRIA QUIMICA SOCIEDADE", reconcile.MatchDivergent},
		{"only short tokens", "AB CD", "EF GH", reconcile.MatchDivergent},
		{"short tokens even when contained", "SA", "SA BR", reconcile.MatchDivergent},
		{"disjoint", "ALFA BETA", "GAMA DELTA", reconcile.MatchDivergent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, reconcile.MatchName(tc.a, tc.b))
		})
	}
}

func TestNameMatchingIsSymmetric(t *testing.T) {
	names := []string{
		"ACME LTDA", "ACME COMERCIO LTDA", "acme", "", "ALFA BETA GAMA",
		"BETA GAMA", "SA", "XY ZW", "COMERCIO DE PAPEIS ACME", "Ação Comercial",
	}
	for _, a := range names {
		for _, b := range names {
			docA := records.CollectionDocument{Payer: a}
			docB := records.CollectionDocument{Payer: b}
			forward := reconcile.Reconcile(docA, &records.FiscalNote{RecipientName: b})
			backward := reconcile.Reconcile(docB, &records.FiscalNote{RecipientName: a})
			fs, _ := forward.Status(reconcile.FieldName)
			bs, _ := backward.Status(reconcile.FieldName)
			assert.Equal(t, fs, bs, "%q vs %q", a, b)
		}
	}
}

func TestTaxIDDigitsOnly(t *testing.T) {
	assert.Equal(t, reconcile.MatchExact, reconcile.MatchTaxID("12.345.678/0001-90", "12345678000190"))
	assert.Equal(t, reconcile.MatchDivergent, reconcile.MatchTaxID("12.345.678/0001-90", "12345678000191"))
	assert.Equal(t, reconcile.MatchNotApplicable, reconcile.MatchTaxID("", "12345678000190"))
	assert.Equal(t, reconcile.MatchNotApplicable, reconcile.MatchTaxID("n/a", "12345678000190"))
}

func TestEmailIsInformational(t *testing.T) {
	assert.Equal(t, reconcile.MatchExact, reconcile.MatchEmail([]string{"a@b.com"}))
	assert.Equal(t, reconcile.MatchNotApplicable, reconcile.MatchEmail(nil))
	assert.Equal(t, reconcile.MatchNotApplicable, reconcile.MatchEmail([]string{" "}))
}

func TestNilNoteYieldsSingleInformationalRow(t *testing.T) {
	docs := []records.CollectionDocument{
		{},
		{ID: "b-1", InvoiceNumber: "00123", Payer: "ACME", TaxID: "1", Amount: amount(10)},
		{ID: "b-2", Status: records.ApprovalRejected, RejectionReason: "no note"},
	}
	for _, doc := range docs {
		report := reconcile.Reconcile(doc, nil)
		require.Len(t, report.Rows, 1)
		assert.Equal(t, reconcile.FieldFiscalNote, report.Rows[0].Field)
		assert.Equal(t, reconcile.NoNoteMessage, report.Rows[0].Message)
		assert.False(t, report.Paired())
	}
}

func TestReconcileFullReport(t *testing.T) {
	doc := records.CollectionDocument{
		InvoiceNumber: "000123",
		Amount:        amount(1500),
		AmountDisplay: "R$ 1.500,00",
		Payer:         "ACME COMERCIO LTDA",
		TaxID:         "12.345.678/0001-90",
	}
	note := records.FiscalNote{
		InvoiceNumber: "123",
		TotalAmount:   amount(1500.001),
		RecipientName: "ACME COMERCIO",
		TaxID:         "12345678000190",
		Emails:        []string{"fin@acme.com", "ap@acme.com"},
	}
	report := reconcile.Reconcile(doc, &note)
	require.Len(t, report.Rows, 5)
	assert.True(t, report.Paired())

	want := map[reconcile.Field]reconcile.MatchStatus{
		reconcile.FieldInvoiceNumber: reconcile.MatchExact,
		reconcile.FieldAmount:        reconcile.MatchExact,
		reconcile.FieldName:          reconcile.MatchPartial,
		reconcile.FieldTaxID:         reconcile.MatchExact,
		reconcile.FieldEmail:         reconcile.MatchExact,
	}
	for field, status := range want {
		got, ok := report.Status(field)
		require.True(t, ok, "missing %s", field)
		assert.Equal(t, status, got, "field %s", field)
	}
	assert.Equal(t, "fin@acme.com, ap@acme.com", report.Rows[4].FiscalValue)
	assert.Equal(t, "R$ 1.500,00", report.Rows[1].FiscalValue)
}

func TestPairDocumentsByInvoiceKey(t *testing.T) {
	docs := []records.CollectionDocument{
		{ID: "b-1", InvoiceNumber: "00123"},
		{ID: "b-2", InvoiceNumber: "456"},
		{ID: "b-3"},
	}
	notes := []records.FiscalNote{
		{ID: "x-1", InvoiceNumber: "123", Emails: []string{"a@b.com"}},
		{ID: "x-2", InvoiceNumber: "0123"},
	}
	pairs := reconcile.PairDocuments(docs, notes)
	require.Len(t, pairs, 3)
	require.NotNil(t, pairs[0].Note)
	assert.Equal(t, "x-1", pairs[0].Note.ID)
	assert.Len(t, pairs[0].Report.Rows, 5)
	assert.Nil(t, pairs[1].Note)
	assert.Len(t, pairs[1].Report.Rows, 1)
	assert.Nil(t, pairs[2].Note)

	summary := reconcile.Summarize(pairs)
	assert.Equal(t, 1, summary.Paired)
	assert.Equal(t, 2, summary.Unpaired)
	assert.Equal(t, 2, summary.Exact)
	assert.Equal(t, 3, summary.NotApplicable)
}
