package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"boletodesk/internal/mockbackend"
)

func newFixturesCommand() *cobra.Command {
	var dir string
	var notePDF bool

	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Write a sample batch of collection PDFs and fiscal notes",
		Long: "Write a sample batch: one collection PDF with five slips and a fiscal note for each " +
			"but the last. One note disagrees on the amount and one carries no email, so processing " +
			"yields approvals and rejections.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := writeSampleBatch(dir, notePDF)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range paths {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "fixtures", "Output directory")
	cmd.Flags().BoolVar(&notePDF, "note-pdf", false, "Write fiscal notes as PDFs instead of NF-e XML")
	return cmd
}

type sampleSlip struct {
	doc  mockbackend.DocumentFields
	note *mockbackend.NoteFields
}

func amount(v float64) *float64 {
	return &v
}

func sampleSlips() []sampleSlip {
	slip := func(payer, taxID, number, due string, value float64) mockbackend.DocumentFields {
		return mockbackend.DocumentFields{Payer: payer, TaxID: taxID, InvoiceNumber: number, DueDate: due, Amount: amount(value)}
	}
	nfe := func(name, taxID, number string, value float64, emails string) *mockbackend.NoteFields {
		return &mockbackend.NoteFields{InvoiceNumber: number, TaxID: taxID, RecipientName: name, TotalAmount: amount(value), Emails: emails}
	}
	return []sampleSlip{
		{
			doc:  slip("ACME Comercio Ltda", "12.345.678/0001-90", "1001", "15-03", 150),
			note: nfe("ACME COMERCIO LTDA", "12345678000190", "1001", 150, "financeiro@acme.com.br"),
		},
		{
			doc:  slip("ACME Comercio Ltda", "12.345.678/0001-90", "1002", "20-03", 320.5),
			note: nfe("ACME COMERCIO LTDA", "12345678000190", "1002", 320.5, "financeiro@acme.com.br"),
		},
		{
			doc:  slip("Padaria Sol", "11.222.333/0001-44", "2001", "10-04", 89.9),
			note: nfe("PADARIA SOL LTDA", "11222333000144", "2001", 98.9, "contas@padariasol.com.br"),
		},
		{
			doc:  slip("Mercado Lua", "55.666.777/0001-88", "3001", "05-04", 1200),
			note: nfe("MERCADO LUA", "55666777000188", "3001", 1200, ""),
		},
		{
			doc: slip("Oficina Norte", "99.888.777/0001-66", "4001", "30-04", 450),
		},
	}
}

// writeSampleBatch writes the sample batch under dir and returns the paths,
// collection file first.
func writeSampleBatch(dir string, notePDF bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fixture directory: %w", err)
	}
	slips := sampleSlips()
	docs := make([]mockbackend.DocumentFields, 0, len(slips))
	for _, s := range slips {
		docs = append(docs, s.doc)
	}

	var paths []string
	write := func(name string, data []byte) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
		return nil
	}
	if err := write("boletos.pdf", mockbackend.BuildPDF(docs...)); err != nil {
		return nil, err
	}
	for _, s := range slips {
		if s.note == nil {
			continue
		}
		var err error
		if notePDF {
			err = write("NF-"+s.note.InvoiceNumber+".pdf", mockbackend.BuildNotePDF(*s.note))
		} else {
			err = write("NF-"+s.note.InvoiceNumber+".xml", mockbackend.BuildNFe(*s.note))
		}
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}
