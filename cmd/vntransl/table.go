package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one output table column. Numeric columns are
// right-aligned so counts line up.
type column struct {
	header  string
	numeric bool
}

func renderTable(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, 0, len(cols))
	var configs []table.ColumnConfig
	for i, col := range cols {
		header = append(header, col.header)
		if col.numeric {
			configs = append(configs, table.ColumnConfig{
				Number:      i + 1,
				Align:       text.AlignRight,
				AlignHeader: text.AlignLeft,
			})
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, cells := range rows {
		row := make(table.Row, len(cols))
		for i := range row {
			row[i] = ""
			if i < len(cells) {
				row[i] = cells[i]
			}
		}
		tw.AppendRow(row)
	}

	return tw.Render()
}
