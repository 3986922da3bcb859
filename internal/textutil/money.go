package textutil

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var brlPrinter = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders an amount as "R$ 1.500,00".
func FormatBRL(amount float64) string {
	return brlPrinter.Sprintf("R$ %.2f", amount)
}

// FormatOptionalBRL renders a nullable amount, using Placeholder when absent.
func FormatOptionalBRL(amount *float64) string {
	if amount == nil {
		return Placeholder
	}
	return FormatBRL(*amount)
}
