package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"boletodesk/internal/backend"
	"boletodesk/internal/console"
	"boletodesk/internal/records"
	"boletodesk/internal/services"
	"boletodesk/internal/session"
	"boletodesk/internal/stage"
	"boletodesk/internal/workflow"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "Manage open sessions",
	}

	sessionCmd.AddCommand(newSessionNewCommand(ctx))
	sessionCmd.AddCommand(newSessionListCommand(ctx))
	sessionCmd.AddCommand(newSessionActivateCommand(ctx))
	sessionCmd.AddCommand(newSessionCloseCommand(ctx))
	sessionCmd.AddCommand(newSessionOpenCommand(ctx))
	sessionCmd.AddCommand(newSessionGoCommand(ctx))

	return sessionCmd
}

func newSessionNewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Open a new empty session and make it active",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withConsole(cmd, func(_ context.Context, con *console.Console) error {
				sess, ok := con.NewSession()
				if !ok {
					return fmt.Errorf("session limit reached (%d open); close one first", con.Registry().Capacity())
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, sess)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Opened session %s (%d/%d)\n", shortID(sess.ID), con.Registry().Len(), con.Registry().Capacity())
				return nil
			})
		},
	}
}

func newSessionListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withConsole(cmd, func(_ context.Context, con *console.Console) error {
				snap := con.Registry().Snapshot()
				if ctx.jsonOutput() {
					return writeJSON(cmd, snap)
				}
				if len(snap.Sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No open sessions")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]column{
						{"#", colCount}, {"ID", colText}, {"Operation", colText}, {"FIDC", colText},
						{"Stage", colText}, {"Active", colMatch}, {"Updated", colText},
					},
					buildSessionRows(snap),
				))
				return nil
			})
		},
	}
}

func buildSessionRows(snap session.Snapshot) [][]string {
	rows := make([][]string, 0, len(snap.Sessions))
	for i, s := range snap.Sessions {
		label := s.OperationLabel
		if !s.Bound() {
			label = "(new)"
		} else if label == "" {
			label = shortID(s.OperationID)
		}
		active := ""
		if s.ID == snap.ActiveID {
			active = "*"
		}
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			shortID(s.ID),
			label,
			s.Fidc.Name,
			s.Stage.String(),
			active,
			s.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}

func newSessionActivateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <session>",
		Short: "Make a session active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withConsole(cmd, func(_ context.Context, con *console.Console) error {
				id, err := matchSession(con.Registry(), args[0])
				if err != nil {
					return err
				}
				con.Activate(id)
				fmt.Fprintf(cmd.OutOrStdout(), "Active session %s\n", shortID(id))
				return nil
			})
		},
	}
}

func newSessionCloseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "close [session]",
		Short: "Close a session (default: the active one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withConsole(cmd, func(_ context.Context, con *console.Console) error {
				id := con.Registry().ActiveID()
				if len(args) == 1 {
					var err error
					if id, err = matchSession(con.Registry(), args[0]); err != nil {
						return err
					}
				}
				if id == "" || !con.CloseSession(id) {
					return services.Wrap(services.ErrNotFound, "", "close session", "no session to close", nil)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Closed session %s\n", shortID(id))
				if active := con.Registry().ActiveID(); active != "" {
					fmt.Fprintf(out, "Active session %s\n", shortID(active))
				}
				return nil
			})
		},
	}
}

func newSessionOpenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "open <operation>",
		Short: "Open an existing operation by id or label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withConsole(cmd, func(c context.Context, con *console.Console) error {
				opID, hints, err := lookupOperation(c, con.Client(), args[0])
				if err != nil {
					return err
				}
				sess, wf, ok, err := con.OpenExisting(c, opID, hints)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("session limit reached (%d open); close one first", con.Registry().Capacity())
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, wf.State())
				}
				state := wf.State()
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s: %s (%s) at %s\n", shortID(sess.ID), state.Label, state.Fidc.Name, state.Stage)
				return nil
			})
		},
	}
}

// lookupOperation resolves an operation label against the listing, falling
// back to treating ref as an operation id.
func lookupOperation(ctx context.Context, client *backend.Client, ref string) (string, session.Hints, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", session.Hints{}, services.Wrap(services.ErrValidation, "", "open", "operation required", nil)
	}
	page, err := client.ListOperations(ctx, backend.ListOptions{Page: 1, PerPage: 100})
	if err != nil {
		return "", session.Hints{}, err
	}
	for _, op := range page.Items {
		if op.ID == ref || strings.EqualFold(op.Label, ref) {
			return op.ID, hintsFor(op), nil
		}
	}
	return ref, session.Hints{}, nil
}

func hintsFor(op records.Operation) session.Hints {
	return session.Hints{
		Label: op.Label,
		Fidc:  session.Fidc{ID: op.FidcID, Name: op.FidcName},
	}
}

func newSessionGoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "go <stage>",
		Short: "Navigate the session to a stage (configure, upload, process, result)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := stage.Parse(args[0])
			if err != nil {
				return err
			}
			return ctx.withWorkflow(cmd, func(_ context.Context, _ *console.Console, _ session.Session, wf *workflow.Workflow) error {
				if err := wf.Navigate(target); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stage %s (furthest reachable: %s)\n", wf.State().Stage, wf.MaxStage())
				return nil
			})
		},
	}
}
