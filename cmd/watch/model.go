package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/charmbracelet/bubbles/table"

	"github.com/quantfold/tickstream/pkg/stream"
)

// Application states.
const (
	StateSymbolInput = iota
	StateDataDisplay
)

// Model is the main Bubble Tea model for the live tick watcher.
type Model struct {
	state       int
	symbolInput textinput.Model
	tickTable   table.Model
	latest      map[string]stream.Tick
	windows     map[string]int
	prevPrices  map[string]float64
	symbols     []string
	opts        stream.Options
	err         error
	width       int
	height      int

	// Streaming control
	streamCancel context.CancelFunc
}

// program is the running tea.Program, used to send messages from the
// streaming goroutine. Set once in main before Run.
var program *tea.Program

// SetProgram records the tea.Program reference for sending messages from
// goroutines.
func SetProgram(p *tea.Program) {
	program = p
}

// NewModel creates a new Model with initial state.
func NewModel(opts stream.Options) Model {
	return Model{
		state:       StateSymbolInput,
		symbolInput: NewSymbolInput(),
		tickTable:   NewTickTable(),
		latest:      make(map[string]stream.Tick),
		windows:     make(map[string]int),
		prevPrices:  make(map[string]float64),
		opts:        opts,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.streamCancel != nil {
				m.streamCancel()
			}

			return m, tea.Quit
		case "q":
			// Only quit on 'q' if not in text input mode
			if m.state != StateSymbolInput {
				if m.streamCancel != nil {
					m.streamCancel()
				}

				return m, tea.Quit
			}
		case "esc":
			return m.handleEsc()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tickTable.SetWidth(msg.Width)
		m.tickTable.SetHeight(msg.Height - 6)

		return m, nil

	case TickMsg:
		if existing, ok := m.latest[msg.Tick.Symbol]; ok {
			m.prevPrices[msg.Tick.Symbol] = existing.Price
		}

		m.latest[msg.Tick.Symbol] = msg.Tick
		m.windows[msg.Tick.Symbol] = msg.Window
		m.tickTable = UpdateTableRows(m.tickTable, m.latest, m.windows, m.prevPrices)

		return m, nil

	case StreamErrorMsg:
		m.err = msg.Err

		return m, nil

	case StreamStartedMsg:
		m.state = StateDataDisplay

		return m, nil
	}

	// Delegate to state-specific update
	switch m.state {
	case StateSymbolInput:
		return m.updateSymbolInput(msg)
	case StateDataDisplay:
		return m.updateDataDisplay(msg)
	}

	return m, nil
}

func (m Model) handleEsc() (tea.Model, tea.Cmd) {
	if m.state == StateDataDisplay {
		// Stop streaming and clear watched symbols
		if m.streamCancel != nil {
			m.streamCancel()
			m.streamCancel = nil
		}

		m.latest = make(map[string]stream.Tick)
		m.windows = make(map[string]int)
		m.prevPrices = make(map[string]float64)
		m.symbols = nil
		m.err = nil
		m.symbolInput.Reset()
		m.symbolInput.Focus()
		m.state = StateSymbolInput

		return m, textinput.Blink
	}

	return m, nil
}

func (m Model) updateSymbolInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "enter" {
			symbols := ParseSymbols(m.symbolInput.Value())
			if len(symbols) > 0 {
				m.symbols = symbols
				m.symbolInput.Blur()

				return m, m.startStreaming()
			}
		}
	}

	var cmd tea.Cmd
	m.symbolInput, cmd = m.symbolInput.Update(msg)

	return m, cmd
}

func (m Model) updateDataDisplay(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.tickTable, cmd = m.tickTable.Update(msg)

	return m, cmd
}

// startStreaming returns a command that starts the live tick stream.
func (m *Model) startStreaming() tea.Cmd {
	return func() tea.Msg {
		if program == nil {
			return StreamErrorMsg{Err: fmt.Errorf("program not set")}
		}

		ctx, cancel := context.WithCancel(context.Background())
		m.streamCancel = cancel

		go streamTicks(ctx, program, m.symbols, m.opts)

		return StreamStartedMsg{}
	}
}

// streamTicks connects to the live stream and forwards ticks to the program.
func streamTicks(ctx context.Context, p *tea.Program, symbols []string, opts stream.Options) {
	opts.OnError = func(err error) {
		p.Send(StreamErrorMsg{Err: err})
	}

	onTick := stream.TickHandlerFunc(func(view stream.TickView) error {
		p.Send(TickMsg{Tick: view.Tick(), Window: len(view.History())})

		return nil
	})

	sub, err := stream.Connect(ctx, symbols, onTick, opts)
	if err != nil {
		p.Send(StreamErrorMsg{Err: err})

		return
	}
	defer sub.Close()

	<-ctx.Done()
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	switch m.state {
	case StateSymbolInput:
		s.WriteString(TitleStyle.Render("Tickstream - Live Watch"))
		s.WriteString("\n\n")
		s.WriteString("Enter comma-separated symbols (e.g., AAPL,MSFT):\n\n")
		s.WriteString(m.symbolInput.View())
		s.WriteString("\n\n")
		s.WriteString(HelpStyle.Render("Press Enter to start streaming, Ctrl+C to quit"))

	case StateDataDisplay:
		s.WriteString(TitleStyle.Render("Live Ticks"))
		s.WriteString("\n\n")

		if m.err != nil {
			s.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			s.WriteString("\n\n")
		}

		if len(m.latest) == 0 {
			s.WriteString("Waiting for data...\n")
		} else {
			s.WriteString(m.tickTable.View())
		}

		s.WriteString("\n")
		s.WriteString(HelpStyle.Render(fmt.Sprintf("q: quit | Esc: back | Streaming: %s", strings.Join(m.symbols, ", "))))
	}

	return s.String()
}
