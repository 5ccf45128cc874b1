// Package render formats operator-facing terminal output.
package render

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// Alignment of a table column
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// Table renders rows under headers in a rounded box. Missing cells are left
// blank. When colorize is set the header row is bold.
func Table(headers []string, rows [][]string, aligns []Alignment, colorize bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if colorize {
		tw.Style().Color.Header = text.Colors{text.Bold}
	}

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// ShouldColorize reports whether writer is an interactive terminal
func ShouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Good, Warn, Bad and Accent wrap s in a colour when enabled
func Good(s string, colorize bool) string   { return paint(ansiGreen, s, colorize) }
func Warn(s string, colorize bool) string   { return paint(ansiYellow, s, colorize) }
func Bad(s string, colorize bool) string    { return paint(ansiRed, s, colorize) }
func Accent(s string, colorize bool) string { return paint(ansiCyan, s, colorize) }

func paint(color, s string, colorize bool) string {
	if !colorize || s == "" {
		return s
	}
	return color + s + ansiReset
}
