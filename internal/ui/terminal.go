package ui

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Sizes for the key buffer and the log pane.
const (
	keyBuffer   = 8
	logPaneSize = 6
)

// Status line keys rendered with a spinner or warning style. They mirror
// the devsync keys; ui does not import devsync.
const (
	spinnerKey  = "devMode"
	failuresKey = "uploadFailures"
)

type (
	upsertMsg struct{ key, line string }
	removeMsg struct{ key string }
	logMsg    string
)

// model is the bubbletea model behind Terminal.
type model struct {
	title   string
	help    string
	spinner spinner.Model
	order   []string
	lines   map[string]string
	logs    []string
	keys    chan<- string
}

func newModel(title, help string, keys chan<- string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return model{
		title:   title,
		help:    help,
		spinner: s,
		lines:   make(map[string]string),
		keys:    keys,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The session decides what keys mean, including ctrl+c. A key
		// pressed while the session is busy is dropped.
		select {
		case m.keys <- msg.String():
		default:
		}

		return m, nil

	case upsertMsg:
		if _, ok := m.lines[msg.key]; !ok {
			m.order = append(m.order, msg.key)
		}

		m.lines[msg.key] = msg.line

		return m, nil

	case removeMsg:
		if _, ok := m.lines[msg.key]; !ok {
			return m, nil
		}

		delete(m.lines, msg.key)

		order := m.order[:0:0]
		for _, k := range m.order {
			if k != msg.key {
				order = append(order, k)
			}
		}

		m.order = order

		return m, nil

	case logMsg:
		m.logs = append(m.logs, string(msg))
		if len(m.logs) > logPaneSize {
			m.logs = m.logs[len(m.logs)-logPaneSize:]
		}

		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	for _, k := range m.order {
		line := m.lines[k]

		switch k {
		case spinnerKey:
			b.WriteString(m.spinner.View() + " " + lineStyle.Render(line))
		case failuresKey:
			b.WriteString(warnStyle.Render("! " + line))
		default:
			b.WriteString("  " + lineStyle.Render(line))
		}

		b.WriteString("\n")
	}

	for _, l := range m.logs {
		b.WriteString(logStyle.Render(l))
		b.WriteString("\n")
	}

	if m.help != "" {
		b.WriteString(helpStyle.Render(m.help))
		b.WriteString("\n")
	}

	return b.String()
}

// Terminal is an interactive StatusRenderer. It owns the screen between
// Start and Stop; write logs through LogWriter meanwhile.
type Terminal struct {
	program *tea.Program
	keys    chan string
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// NewTerminal creates a terminal view. opts are passed to tea.NewProgram;
// tests use them to swap input and output.
func NewTerminal(title, help string, opts ...tea.ProgramOption) *Terminal {
	keys := make(chan string, keyBuffer)

	// Signals are handled by the command, which maps them to stop reasons.
	opts = append([]tea.ProgramOption{tea.WithoutSignalHandler()}, opts...)

	return &Terminal{
		program: tea.NewProgram(newModel(title, help, keys), opts...),
		keys:    keys,
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background.
func (t *Terminal) Start() {
	go func() {
		defer close(t.done)

		if _, err := t.program.Run(); err != nil {
			t.mu.Lock()
			t.err = err
			t.mu.Unlock()
		}
	}()
}

// Keys delivers key presses as bubbletea key names ("y", "q", "ctrl+c").
func (t *Terminal) Keys() <-chan string {
	return t.keys
}

// Upsert implements devsync.StatusRenderer.
func (t *Terminal) Upsert(key, line string) {
	t.program.Send(upsertMsg{key: key, line: line})
}

// Remove implements devsync.StatusRenderer.
func (t *Terminal) Remove(key string) {
	t.program.Send(removeMsg{key: key})
}

// LogWriter returns a writer whose lines appear in the log pane.
func (t *Terminal) LogWriter() io.Writer {
	return logWriter{t: t}
}

// Stop ends the program, restores the terminal, and returns any run error.
func (t *Terminal) Stop() error {
	t.program.Quit()
	<-t.done

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.err
}

type logWriter struct {
	t *Terminal
}

func (w logWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		w.t.program.Send(logMsg(line))
	}

	return len(p), nil
}
