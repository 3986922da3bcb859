package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"boletodesk/internal/grouping"
	"boletodesk/internal/reconcile"
	"boletodesk/internal/records"
	"boletodesk/internal/session"
	"boletodesk/internal/stage"
	"boletodesk/internal/textutil"
	"boletodesk/internal/workflow"
)

func renderState(out io.Writer, sess session.Session, state workflow.State, furthest stage.Stage) {
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Session "+shortID(sess.ID), colorize) {
		fmt.Fprintln(out, line)
	}
	if state.OperationID == "" {
		fmt.Fprintln(out, renderStatusLine("Operation", statusInfo, "not created (run `boletodesk op create --fidc <name>`)", colorize))
		return
	}
	fmt.Fprintln(out, renderStatusLine("Operation", statusInfo, fmt.Sprintf("%s (%s)", state.Label, state.OperationID), colorize))
	fmt.Fprintln(out, renderStatusLine("FIDC", statusInfo, state.Fidc.Name, colorize))
	fmt.Fprintln(out, renderStatusLine("Stage", statusInfo, fmt.Sprintf("%s (furthest reachable: %s)", state.Stage, furthest), colorize))
	if state.Status != "" {
		fmt.Fprintln(out, renderStatusLine("Status", statusInfo, string(state.Status), colorize))
	}
	if state.Terminal != workflow.TerminalNone {
		fmt.Fprintln(out, renderStatusLine("Terminal", statusWarn, string(state.Terminal), colorize))
	}

	invalid := 0
	for _, n := range state.Notes {
		if !n.Valid {
			invalid++
		}
	}
	noteKind := statusOK
	if invalid > 0 {
		noteKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Documents", statusInfo, fmt.Sprint(len(state.Documents)), colorize))
	fmt.Fprintln(out, renderStatusLine("Fiscal notes", noteKind, fmt.Sprintf("%d (%d invalid)", len(state.Notes), invalid), colorize))

	if r := state.Result; r != nil {
		kind := statusOK
		if r.Rejected > 0 {
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine("Result", kind,
			fmt.Sprintf("%d approved, %d rejected of %d (%.0f%%)", r.Approved, r.Rejected, r.Total, r.SuccessRate), colorize))
	}
	if len(state.Sends) > 0 {
		fmt.Fprintln(out, renderStatusLine("Sends", statusInfo, fmt.Sprint(len(state.Sends)), colorize))
	}
}

func renderPairs(out io.Writer, pairs []reconcile.Pair, colorize bool) {
	if len(pairs) == 0 {
		fmt.Fprintln(out, "No documents")
		return
	}
	fmt.Fprint(out, renderTable(
		[]column{
			{"Document", colText}, {"NF", colCount}, {"Payer", colText}, {"Due", colText},
			{"Amount", colMoney}, {"Status", colText}, {"Note", colMatch}, {"Amt", colMatch},
			{"Name", colMatch}, {"CNPJ", colMatch}, {"Email", colMatch},
		},
		buildPairRows(pairs, colorize),
	))
	s := reconcile.Summarize(pairs)
	fmt.Fprintf(out, "%d paired, %d without note; %d exact, %d partial, %d divergent\n",
		s.Paired, s.Unpaired, s.Exact, s.Partial, s.Divergent)
}

func buildPairRows(pairs []reconcile.Pair, colorize bool) [][]string {
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		d := p.Document
		cell := func(field reconcile.Field) string {
			status, ok := p.Report.Status(field)
			return matchCell(status, ok, colorize)
		}
		noteCell := paint("missing", ansiRed, colorize)
		if p.Note != nil {
			noteCell = cell(reconcile.FieldInvoiceNumber)
		}
		status := approvalCell(d.Status, colorize)
		if d.InterestDetected {
			status += " (juros)"
		}
		rows = append(rows, []string{
			d.DisplayName(),
			textutil.OrPlaceholder(d.InvoiceNumber),
			textutil.OrPlaceholder(d.Payer),
			textutil.OrPlaceholder(d.DueDate),
			textutil.FormatOptionalBRL(d.Amount),
			status,
			noteCell,
			cell(reconcile.FieldAmount),
			cell(reconcile.FieldName),
			cell(reconcile.FieldTaxID),
			cell(reconcile.FieldEmail),
		})
	}
	return rows
}

func renderView(out io.Writer, view grouping.View, colorize bool) {
	if view.Empty() {
		fmt.Fprintln(out, "No approved documents to send")
		return
	}
	fmt.Fprintf(out, "%d message(s), %d approved document(s)\n", view.TotalGroups, view.TotalApproved)
	for i, g := range view.Groups {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader(fmt.Sprintf("Message %d: %s", i+1, g.Subject), colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, renderStatusLine("To", statusInfo, strings.Join(g.To, ", "), colorize))
		if len(g.CC) > 0 {
			fmt.Fprintln(out, renderStatusLine("CC", statusInfo, strings.Join(g.CC, ", "), colorize))
		}
		attachments := make([]string, 0, len(g.Notes))
		for _, n := range g.Notes {
			attachments = append(attachments, n.FileName)
		}
		if len(attachments) > 0 {
			fmt.Fprintln(out, renderStatusLine("Fiscal notes", statusInfo, strings.Join(attachments, ", "), colorize))
		}
		rows := make([][]string, 0, len(g.Items))
		for _, item := range g.Items {
			rows = append(rows, []string{
				item.Document.ID,
				item.Document.DisplayName(),
				textutil.OrPlaceholder(item.Document.InvoiceNumber),
				textutil.OrPlaceholder(item.Document.DueDate),
				textutil.FormatOptionalBRL(item.Document.Amount),
			})
		}
		fmt.Fprint(out, renderTable(
			[]column{{"ID", colText}, {"Document", colText}, {"NF", colCount}, {"Due", colText}, {"Amount", colMoney}},
			rows,
		))
	}
}

func buildSendRows(sends []records.SendRecord) [][]string {
	rows := make([][]string, 0, len(sends))
	for _, s := range sends {
		sentAt := textutil.Placeholder
		if s.SentAt != nil {
			sentAt = s.SentAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			s.ID,
			s.Subject,
			strings.Join(s.To, ", "),
			string(s.Mode),
			s.Status,
			fmt.Sprint(len(s.DocumentIDs)),
			sentAt,
		})
	}
	return rows
}
