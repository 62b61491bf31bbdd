package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// statusColors maps task lifecycle states onto table cell colors. The text
// package suppresses ANSI codes when stdout is not a terminal.
var statusColors = map[string]text.Colors{
	"pending":   {text.FgCyan},
	"running":   {text.FgYellow},
	"completed": {text.FgGreen},
	"failed":    {text.FgRed},
	"cancelled": {text.Faint},
}

func colorizeStatus(status string) string {
	if colors, ok := statusColors[status]; ok {
		return colors.Sprint(status)
	}
	return status
}

func colorizeAvailable(available bool) string {
	if available {
		return text.Colors{text.FgGreen}.Sprint("yes")
	}
	return text.Colors{text.FgRed}.Sprint("no")
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range configs {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
