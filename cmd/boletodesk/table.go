package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"boletodesk/internal/textutil"
)

// columnKind decides how a column is aligned and wrapped.
type columnKind int

const (
	colText columnKind = iota
	colWide
	colCount
	colMoney
	colMatch
)

// wideColumnWidth soft-wraps recipient lists and subjects.
const wideColumnWidth = 40

type column struct {
	title string
	kind  columnKind
}

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c.title
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			r[i] = textutil.OrPlaceholder(cell)
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, c := range columns {
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		switch c.kind {
		case colCount, colMoney:
			cfg.Align = text.AlignRight
			cfg.AlignHeader = text.AlignRight
		case colMatch:
			cfg.Align = text.AlignCenter
			cfg.AlignHeader = text.AlignCenter
		case colWide:
			cfg.WidthMax = wideColumnWidth
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
		configs = append(configs, cfg)
	}
	tw.SetColumnConfigs(configs)

	return tw.Render() + "\n"
}
