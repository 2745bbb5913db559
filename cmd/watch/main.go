package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quantfold/tickstream/pkg/stream"
)

func main() {
	opts := stream.DefaultOptions()
	opts.Token = os.Getenv("FINNHUB_TOKEN")

	if endpoint := os.Getenv("TICKSTREAM_ENDPOINT"); endpoint != "" {
		opts.Endpoint = endpoint
	}

	if opts.Token == "" {
		fmt.Fprintln(os.Stderr, "FINNHUB_TOKEN environment variable is required")
		os.Exit(1)
	}

	model := NewModel(opts)
	p := tea.NewProgram(model, tea.WithAltScreen())
	SetProgram(p)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error running program: %v\n", err)
		os.Exit(1)
	}
}
