package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"boletodesk/internal/backend"
	"boletodesk/internal/console"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
	"boletodesk/internal/session"
	"boletodesk/internal/textutil"
	"boletodesk/internal/workflow"
)

func newOperationCommand(ctx *commandContext) *cobra.Command {
	opCmd := &cobra.Command{
		Use:     "op",
		Aliases: []string{"operation"},
		Short:   "Drive the operation of the active session",
	}

	opCmd.AddCommand(newOpCreateCommand(ctx))
	opCmd.AddCommand(newOpSaveCommand(ctx))
	opCmd.AddCommand(newOpUploadCommand(ctx))
	opCmd.AddCommand(newOpEmailsCommand(ctx))
	opCmd.AddCommand(newOpProcessCommand(ctx, false))
	opCmd.AddCommand(newOpProcessCommand(ctx, true))
	opCmd.AddCommand(newOpFinalizeCommand(ctx))
	opCmd.AddCommand(newOpTerminateCommand(ctx, "cancel"))
	opCmd.AddCommand(newOpTerminateCommand(ctx, "delete"))
	opCmd.AddCommand(newOpShowCommand(ctx))
	opCmd.AddCommand(newOpPairsCommand(ctx))
	opCmd.AddCommand(newOpPreviewCommand(ctx))
	opCmd.AddCommand(newOpSendCommand(ctx))
	opCmd.AddCommand(newOpSendsCommand(ctx))
	opCmd.AddCommand(newOpMarkSentCommand(ctx))
	opCmd.AddCommand(newOpVerifyCommand(ctx))
	opCmd.AddCommand(newOpDownloadCommand(ctx))

	return opCmd
}

func newOpCreateCommand(ctx *commandContext) *cobra.Command {
	var fidcRef string
	var label string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the session's operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(c context.Context, con *console.Console, _ session.Session, wf *workflow.Workflow) error {
				fidcID, err := resolveFidc(c, con.Client(), fidcRef)
				if err != nil {
					return err
				}
				op, err := wf.Create(c, fidcID, label)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, op)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created operation %s (%s)\n", op.Label, wf.State().Fidc.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fidcRef, "fidc", "", "FIDC id or name")
	cmd.Flags().StringVar(&label, "label", "", "Operation number (default: assigned by the backend)")
	_ = cmd.MarkFlagRequired("fidc")
	return cmd
}

func newOpSaveCommand(ctx *commandContext) *cobra.Command {
	var fidcRef string
	var label string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Change the FIDC or label of the operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(c context.Context, con *console.Console, _ session.Session, wf *workflow.Workflow) error {
				fidcID := ""
				if strings.TrimSpace(fidcRef) != "" {
					var err error
					if fidcID, err = resolveFidc(c, con.Client(), fidcRef); err != nil {
						return err
					}
				}
				sent, err := wf.Save(c, fidcID, label)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !sent {
					fmt.Fprintln(out, "Nothing to save")
					return nil
				}
				state := wf.State()
				fmt.Fprintf(out, "Saved operation %s (%s)\n", state.Label, state.Fidc.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fidcRef, "fidc", "", "FIDC id or name")
	cmd.Flags().StringVar(&label, "label", "", "Operation number")
	return cmd
}

// resolveFidc accepts an FIDC id or a case-insensitive name.
func resolveFidc(ctx context.Context, client *backend.Client, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", services.Wrap(services.ErrValidation, "", "fidc", "--fidc is required", nil)
	}
	fidcs, err := client.ListFidcs(ctx)
	if err != nil {
		return "", err
	}
	for _, f := range fidcs {
		if f.ID == ref || strings.EqualFold(f.Name, ref) {
			return f.ID, nil
		}
	}
	names := make([]string, 0, len(fidcs))
	for _, f := range fidcs {
		names = append(names, f.Name)
	}
	return "", services.Wrap(services.ErrNotFound, "", "fidc", fmt.Sprintf("unknown FIDC %q (known: %s)", ref, strings.Join(names, ", ")), nil)
}

func newOpUploadCommand(ctx *commandContext) *cobra.Command {
	var collection []string
	var fiscal []string

	cmd := &cobra.Command{
		Use:   "upload [files...]",
		Short: "Upload collection PDFs and fiscal XMLs",
		Long:  "Upload collection PDFs and fiscal XMLs. Positional files are sorted by extension: .pdf goes to collection, .xml to fiscal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			pdfs, xmls := splitUploads(args)
			pdfs = append(append([]string{}, collection...), pdfs...)
			xmls = append(append([]string{}, fiscal...), xmls...)
			if len(pdfs) == 0 && len(xmls) == 0 {
				return services.Wrap(services.ErrValidation, "", "upload", "no files given", nil)
			}
			return ctx.withWorkflow(cmd, func(c context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				summary, err := wf.UploadFiles(c, pdfs, xmls)
				out := cmd.OutOrStdout()
				if summary.Collection != nil {
					fmt.Fprintf(out, "Collection: %d page(s), %d document(s) created\n", summary.Collection.TotalPages, summary.Collection.Created)
				}
				if summary.Fiscal != nil {
					fmt.Fprintf(out, "Fiscal: %d file(s), %d valid, %d invalid\n", summary.Fiscal.Total, summary.Fiscal.Valid, summary.Fiscal.Invalid)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Stage %s\n", wf.State().Stage)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&collection, "collection", nil, "Collection PDF files")
	cmd.Flags().StringSliceVar(&fiscal, "fiscal", nil, "Fiscal XML files")
	return cmd
}

func splitUploads(paths []string) (pdfs, xmls []string) {
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ".xml") {
			xmls = append(xmls, p)
		} else {
			pdfs = append(pdfs, p)
		}
	}
	return pdfs, xmls
}

func newOpEmailsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "emails <note> <address...>",
		Short: "Replace the recipient addresses of a fiscal note",
		Long:  "Replace the recipient addresses of a fiscal note. The note is named by id or invoice number.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(c context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				noteID := resolveNote(wf.State().Notes, args[0])
				var addrs []string
				for _, arg := range args[1:] {
					for _, part := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ';' }) {
						addrs = append(addrs, part)
					}
				}
				note, err := wf.UpdateRecipientEmails(c, noteID, addrs)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, note)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "NF %s: %s\n", note.InvoiceNumber, strings.Join(note.Emails, ", "))
				if len(note.InvalidEmails) > 0 {
					fmt.Fprintf(out, "Invalid: %s\n", strings.Join(note.InvalidEmails, ", "))
				}
				if wf.State().Result != nil {
					fmt.Fprintln(out, "Run `boletodesk op reprocess` to apply the change")
				}
				return nil
			})
		},
	}
}

func resolveNote(notes []records.FiscalNote, ref string) string {
	ref = strings.TrimSpace(ref)
	for _, n := range notes {
		if n.ID == ref {
			return n.ID
		}
	}
	key := textutil.InvoiceKey(ref)
	for _, n := range notes {
		if key != "" && textutil.InvoiceKey(n.InvoiceNumber) == key {
			return n.ID
		}
	}
	return ref
}

func newOpProcessCommand(ctx *commandContext, again bool) *cobra.Command {
	use, short := "process", "Run the approval pipeline"
	if again {
		use, short = "reprocess", "Re-run the approval pipeline after corrections"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(c context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				run := wf.Process
				if again {
					run = wf.Reprocess
				}
				result, err := run(c)
				if err != nil {
					return err
				}
				wf.Settle()
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d document(s): %d approved, %d rejected (%.0f%%)\n",
					result.Total, result.Approved, result.Rejected, result.SuccessRate)
				renderPairs(out, wf.Pairs(), shouldColorize(out))
				return nil
			})
		},
	}
}

func newOpFinalizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize",
		Short: "Conclude the operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(c context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				if err := wf.Finalize(c); err != nil {
					return err
				}
				state := wf.State()
				fmt.Fprintf(cmd.OutOrStdout(), "Finalized operation %s (%s)\n", state.Label, state.Status)
				return nil
			})
		},
	}
}

func newOpTerminateCommand(ctx *commandContext, action string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   action,
		Short: strings.ToUpper(action[:1]) + action[1:] + " the operation and close its session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(c context.Context, con *console.Console, sess session.Session, wf *workflow.Workflow) error {
				label := wf.State().Label
				confirm := yes || !con.Config().Console.ConfirmDestructive
				if !confirm {
					confirm = promptConfirm(cmd, fmt.Sprintf("%s operation %s?", action, label))
				}
				run := wf.Cancel
				if action == "delete" {
					run = wf.Delete
				}
				if err := run(c, confirm); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Operation %s: %s; closed session %s\n", label, wf.State().Terminal, shortID(sess.ID))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm without prompting")
	return cmd
}

// promptConfirm asks on an interactive terminal; anything else declines.
func promptConfirm(cmd *cobra.Command, question string) bool {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !(isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd())) {
		return false
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	return readYes(in)
}

func readYes(r io.Reader) bool {
	line, _ := bufio.NewReader(r).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "sim":
		return true
	default:
		return false
	}
}

func newOpShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the session's operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflow(cmd, func(_ context.Context, _ *console.Console, sess session.Session, wf *workflow.Workflow) error {
				state := wf.State()
				if ctx.jsonOutput() {
					return writeJSON(cmd, state)
				}
				renderState(cmd.OutOrStdout(), sess, state, wf.MaxStage())
				return nil
			})
		},
	}
}
