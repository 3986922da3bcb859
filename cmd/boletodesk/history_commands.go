package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"boletodesk/internal/backend"
	"boletodesk/internal/console"
	"boletodesk/internal/records"
)

func newFidcsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fidcs",
		Short: "List the FIDCs an operation can belong to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withConsole(cmd, func(c context.Context, con *console.Console) error {
				fidcs, err := con.Client().ListFidcs(c)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, fidcs)
				}
				rows := make([][]string, 0, len(fidcs))
				for _, f := range fidcs {
					rows = append(rows, []string{f.ID, f.Name, f.FullName, f.TaxID, yesNo(f.Active)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]column{{"ID", colText}, {"Name", colText}, {"Full name", colWide}, {"CNPJ", colText}, {"Active", colMatch}},
					rows,
				))
				return nil
			})
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var page int
	var perPage int
	var status string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withConsole(cmd, func(c context.Context, con *console.Console) error {
				result, err := con.Client().ListOperations(c, backend.ListOptions{
					Page:    page,
					PerPage: perPage,
					Status:  records.OperationStatus(status),
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if len(result.Items) == 0 {
					fmt.Fprintln(out, "No operations")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]column{
						{"ID", colText}, {"Label", colText}, {"FIDC", colText}, {"Status", colText},
						{"Docs", colCount}, {"Approved", colCount}, {"Rejected", colCount}, {"Created", colText},
					},
					buildHistoryRows(result.Items),
				))
				fmt.Fprintf(out, "Page %d, %d of %d operation(s); open one with `boletodesk session open <label>`\n",
					result.Page, len(result.Items), result.Total)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", 20, "Operations per page")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (em_processamento, enviando, concluida, cancelada)")
	return cmd
}

func buildHistoryRows(ops []records.Operation) [][]string {
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, []string{
			op.ID,
			op.Label,
			op.FidcName,
			string(op.Status),
			fmt.Sprint(op.TotalDocuments),
			fmt.Sprint(op.TotalApproved),
			fmt.Sprint(op.TotalRejected),
			op.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}
