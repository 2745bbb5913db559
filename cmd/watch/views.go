package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/quantfold/tickstream/pkg/stream"
)

// NewSymbolInput creates a new text input for symbol entry.
func NewSymbolInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "AAPL,MSFT,BINANCE:BTCUSDT"
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 50
	ti.Prompt = "> "

	return ti
}

// ParseSymbols parses comma-separated symbols into a slice.
func ParseSymbols(input string) []string {
	parts := strings.Split(input, ",")
	symbols := make([]string, 0, len(parts))

	for _, p := range parts {
		s := strings.TrimSpace(strings.ToUpper(p))
		if s != "" {
			symbols = append(symbols, s)
		}
	}

	return symbols
}

// NewTickTable creates a new table for displaying live ticks.
func NewTickTable() table.Model {
	columns := []table.Column{
		{Title: "Symbol", Width: 20},
		{Title: "Price", Width: 18},
		{Title: "Volume", Width: 14},
		{Title: "Window", Width: 8},
		{Title: "Time", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)

	t.SetStyles(s)

	return t
}

// UpdateTableRows updates the table with the latest tick per symbol.
func UpdateTableRows(t table.Model, latest map[string]stream.Tick, windows map[string]int, prevPrices map[string]float64) table.Model {
	// Sort symbols for consistent ordering
	symbols := make([]string, 0, len(latest))
	for symbol := range latest {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	rows := make([]table.Row, 0, len(latest))

	for _, symbol := range symbols {
		tick := latest[symbol]
		prevPrice := prevPrices[symbol]

		rows = append(rows, table.Row{
			symbol,
			FormatPriceWithColor(tick.Price, prevPrice),
			fmt.Sprintf("%.2f", tick.Volume),
			fmt.Sprintf("%d", windows[symbol]),
			tick.Time().Format("15:04:05"),
		})
	}

	t.SetRows(rows)

	return t
}
