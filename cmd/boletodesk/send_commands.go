package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"boletodesk/internal/backend"
	"boletodesk/internal/console"
	"boletodesk/internal/fileutil"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
	"boletodesk/internal/session"
	"boletodesk/internal/textutil"
	"boletodesk/internal/workflow"
)

func newOpPairsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pairs",
		Short: "Compare each collection document with its fiscal note",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(_ context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				pairs := wf.Pairs()
				if ctx.jsonOutput() {
					return writeJSON(cmd, pairs)
				}
				out := cmd.OutOrStdout()
				renderPairs(out, pairs, shouldColorize(out))
				return nil
			})
		},
	}
}

func newOpPreviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Show the messages a send would produce",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(_ context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				wf.Settle()
				view := wf.View()
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				out := cmd.OutOrStdout()
				renderView(out, view, shouldColorize(out))
				return nil
			})
		},
	}
}

func newOpSendCommand(ctx *commandContext) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Draft or deliver the grouped messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			sendMode, ok := records.ParseSendMode(mode)
			if !ok {
				return services.Wrap(services.ErrValidation, "", "send", fmt.Sprintf("unknown mode %q (preview or automatico)", mode), nil)
			}
			return ctx.withWorkflow(cmd, func(c context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				result, err := wf.Send(c, sendMode)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d message(s) created, %d sent (%s)\n", result.Created, result.Sent, result.Mode)
				rows := make([][]string, 0, len(result.Details))
				for _, d := range result.Details {
					rows = append(rows, []string{d.Subject, strings.Join(d.To, ", "), fmt.Sprint(d.DocumentCount), fmt.Sprint(d.NoteCount), d.Status})
				}
				if len(rows) > 0 {
					fmt.Fprint(out, renderTable(
						[]column{{"Subject", colWide}, {"To", colWide}, {"Docs", colCount}, {"Notes", colCount}, {"Status", colText}},
						rows,
					))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(records.SendModePreview), "Send mode: preview (drafts) or automatico (deliver)")
	return cmd
}

func newOpSendsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "envios",
		Aliases: []string{"sends"},
		Short:   "List send records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(c context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				sends, err := wf.SendRecords(c)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, sends)
				}
				out := cmd.OutOrStdout()
				if len(sends) == 0 {
					fmt.Fprintln(out, "No send records")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]column{
						{"ID", colText}, {"Subject", colWide}, {"To", colWide}, {"Mode", colText},
						{"Status", colText}, {"Docs", colCount}, {"Sent", colText},
					},
					buildSendRows(sends),
				))
				return nil
			})
		},
	}
}

func newOpMarkSentCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-sent <record>",
		Short: "Mark a drafted message as sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(c context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				record, err := wf.MarkSent(c, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, record)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", record.Subject, record.Status)
				return nil
			})
		},
	}
}

func newOpVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the mailbox for drafted messages that were sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(c context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				result, err := wf.VerifySendStatus(c)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d checked, %d updated\n", result.Checked, result.Updated)
				for _, item := range result.Items {
					if item.PreviousStatus != item.NewStatus {
						fmt.Fprintf(out, "  %s: %s -> %s\n", item.Subject, item.PreviousStatus, item.NewStatus)
					}
				}
				return nil
			})
		},
	}
}

func newOpDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <boleto|xml> <document>",
		Short: "Save a document file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := backend.ParseDocumentKind(args[0])
			if err != nil {
				return err
			}
			return ctx.withWorkflow(cmd, func(c context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				docID := strings.TrimSpace(args[1])
				bin, err := wf.DocumentPreview(c, kind, docID)
				if err != nil {
					return err
				}
				target := output
				if target == "" {
					target = defaultDownloadName(wf.State(), kind, docID)
				}
				if dir := filepath.Dir(target); dir != "" {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return fmt.Errorf("create output directory: %w", err)
					}
				}
				if err := fileutil.WriteVerified(target, bin.Data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", target, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", target, len(bin.Data))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default: document name in the current directory)")
	return cmd
}

func defaultDownloadName(state workflow.State, kind backend.DocumentKind, docID string) string {
	if kind == backend.KindFiscal {
		for _, n := range state.Notes {
			if n.ID == docID && n.FileName != "" {
				return textutil.SanitizeFileName(n.FileName)
			}
		}
		return textutil.SanitizeFileName(docID + ".xml")
	}
	for _, d := range state.Documents {
		if d.ID == docID {
			return textutil.SanitizeFileName(d.DisplayName())
		}
	}
	return textutil.SanitizeFileName(docID + ".pdf")
}
