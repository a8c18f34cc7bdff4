package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = [...]struct {
	tag   string
	color text.Colors
}{
	statusInfo:  {"info", text.Colors{text.FgBlue}},
	statusOK:    {"ok", text.Colors{text.FgGreen}},
	statusWarn:  {"warn", text.Colors{text.FgYellow}},
	statusError: {"error", text.Colors{text.FgRed, text.Bold}},
}

const statusLabelWidth = 14

// renderStatusLine formats "  Label          tag    message".
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusStyles[kind]
	tag := fmt.Sprintf("%-5s", style.tag)
	if colorize {
		tag = style.color.Sprint(tag)
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label, tag)
	if message = strings.TrimSpace(message); message != "" {
		line += "  " + message
	}
	return line
}

// printSection writes an underlined title followed by lines and a blank line.
func printSection(w io.Writer, title string, lines []string, colorize bool) {
	heading := strings.TrimSpace(title)
	rule := strings.Repeat("─", text.StringWidthWithoutEscSequences(heading))
	if colorize {
		heading = text.Colors{text.Bold, text.FgCyan}.Sprint(heading)
	}
	fmt.Fprintln(w, heading)
	fmt.Fprintln(w, rule)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

func shouldColorize(w io.Writer) bool {
	if _, disabled := os.LookupEnv("NO_COLOR"); disabled {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

type column struct {
	title      string
	alignRight bool
}

func leftColumns(titles ...string) []column {
	cols := make([]column, len(titles))
	for i, title := range titles {
		cols[i] = column{title: title}
	}
	return cols
}

// renderTable draws rows under columns; short rows are padded with blanks.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if col.alignRight {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		cells := make(table.Row, len(columns))
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = row[i]
			}
		}
		tw.AppendRow(cells)
	}
	return tw.Render() + "\n"
}
