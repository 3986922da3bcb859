package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "ACME COMÉRCIO LTDA", NormalizeName("  acme comércio ltda "))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestNameTokensDropsShortWords(t *testing.T) {
	tokens := NameTokens("ACME DE SA COMERCIO  LTDA")
	assert.Len(t, tokens, 3)
	assert.Contains(t, tokens, "ACME")
	assert.Contains(t, tokens, "COMERCIO")
	assert.Contains(t, tokens, "LTDA")
	assert.NotContains(t, tokens, "DE")

	assert.Contains(t, NameTokens("SÃO"), "SÃO")
	assert.Empty(t, NameTokens("DE DA SA"))
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "12345678000190", DigitsOnly("12.345.678/0001-90"))
	assert.Equal(t, "", DigitsOnly("n/a"))
}

func TestInvoiceKey(t *testing.T) {
	cases := map[string]string{
		"00123": "123",
		"123":   "123",
		" 0042": "42",
		"000":   "",
		"":      "",
		"1020":  "1020",
	}
	for in, want := range cases {
		assert.Equal(t, want, InvoiceKey(in), "input %q", in)
	}
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 1.500,00", FormatBRL(1500))
	assert.Equal(t, "R$ 0,99", FormatBRL(0.99))
	assert.Equal(t, Placeholder, FormatOptionalBRL(nil))
}

func TestOrPlaceholder(t *testing.T) {
	assert.Equal(t, Placeholder, OrPlaceholder(" "))
	assert.Equal(t, "x", OrPlaceholder("x"))
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "boleto-1.pdf", SanitizeFileName("boleto/1.pdf"))
	assert.Equal(t, "nota.xml", SanitizeFileName("..nota?.xml"))
	assert.Equal(t, "", SanitizeFileName("  "))
}

func TestSplitEmails(t *testing.T) {
	valid, invalid := SplitEmails("Fin@Acme.com.br; compras@acme.com.br, third@acme.com bad@ trunc@acme.")
	assert.Equal(t, []string{"fin@acme.com.br", "compras@acme.com.br"}, valid)
	assert.Equal(t, []string{"bad@", "trunc@acme."}, invalid)
}

func TestSplitEmailsRejectsOverlongSecond(t *testing.T) {
	long := strings.Repeat("a", 95) + "@acme.com"
	valid, invalid := SplitEmails("first@acme.com " + long)
	assert.Equal(t, []string{"first@acme.com"}, valid)
	assert.Equal(t, []string{long}, invalid)
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("ops@fidc.com.br"))
	assert.False(t, ValidEmail("ops@localhost"))
	assert.False(t, ValidEmail("a@b@c.com"))
	assert.False(t, ValidEmail(""))
	assert.False(t, ValidEmail("ops@fidc.com."))
	assert.False(t, ValidEmail("ops@fidc.c"))
	assert.False(t, ValidEmail("o'brien@fidc.com"), "backend rule rejects quotes RFC 5322 allows")
	assert.True(t, ValidEmail(" Cobranca+NF@Fidc.com.br "))
}

func TestDedupeEmails(t *testing.T) {
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, DedupeEmails([]string{" A@x.com", "b@x.com", "a@x.com", ""}))
}
