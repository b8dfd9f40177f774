// Package tui is the interactive chat interface. It talks to the
// Coordinator only through the command and event channels.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"repochat/internal/commands"
)

type role int

const (
	roleUser role = iota
	roleAnswer
	roleInfo
	roleError
)

type entry struct {
	role role
	text string
}

// eventMsg carries a Coordinator event into the update loop.
type eventMsg struct {
	event commands.Event
}

// eventsClosedMsg is sent once the event channel is closed.
type eventsClosedMsg struct{}

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	commands chan<- commands.Command
	events   <-chan commands.Event

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	title      string
	transcript []entry
	state      commands.State
	// runID is the run being rendered; cancelled marks it as cancelled by
	// the user so its remaining output is dropped.
	runID     string
	cancelled bool
	progress  string
	ready     bool
}

// New creates a chat model for the repository at repoPath.
func New(repoPath string, cmds chan<- commands.Command, events <-chan commands.Event) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /index to index the repository"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		commands:   cmds,
		events:     events,
		input:      ti,
		viewport:   viewport.New(0, 0),
		spinner:    sp,
		title:      "repochat · " + repoPath,
		transcript: []entry{{role: roleInfo, text: welcome}},
	}
}

const welcome = `Welcome to repochat.

  /index    index (or re-index) the repository
  /reindex  drop the index and build it again
  /cancel   cancel the running operation (or press esc)
  /quit     exit (or press ctrl+c)

Anything else is sent as a question about the repository.`

// Init starts the cursor blink, the spinner and the event listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

// waitForEvent blocks on the event channel.
func waitForEvent(events <-chan commands.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: e}
	}
}

// Update handles keys, window changes and Coordinator events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, vh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // title, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-vh)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEsc:
			m.cancel()
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case eventMsg:
		m.apply(msg.event)
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	switch strings.ToLower(text) {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/cancel":
		m.cancel()
	case "/index":
		m.send(commands.StartIndexing{})
	case "/reindex":
		m.send(commands.StartIndexing{Reset: true})
	case "/help":
		m.add(roleInfo, welcome)
	default:
		if strings.HasPrefix(text, "/") {
			m.add(roleError, fmt.Sprintf("Unknown command %s. Type /help for the list.", text))
			break
		}
		m.add(roleUser, text)
		m.send(commands.SubmitQuery{Text: text})
	}
	m.refresh()
	return m, nil
}

func (m *Model) cancel() {
	if m.state == commands.StateIdle {
		return
	}
	m.cancelled = true
	m.progress = "cancelling"
	m.send(commands.Cancel{})
	m.refresh()
}

// send queues a command without blocking the update loop.
func (m *Model) send(cmd commands.Command) {
	select {
	case m.commands <- cmd:
	default:
		m.add(roleError, "Too many pending commands; try again in a moment.")
	}
}

// accept reports whether an event belongs on screen. Events of runs other
// than the current one, and streaming output of a cancelled run, are
// dropped.
func (m *Model) accept(e commands.Event) bool {
	id := e.Run()
	if id == "" {
		return true
	}
	if sc, ok := e.(commands.StateChanged); ok && sc.State != commands.StateIdle {
		return true
	}
	if id != m.runID {
		return false
	}
	if m.cancelled {
		switch e.(type) {
		case commands.QueryAnswerChunk, commands.IndexingProgress:
			return false
		}
	}
	return true
}

func (m *Model) apply(e commands.Event) {
	if !m.accept(e) {
		return
	}
	switch e := e.(type) {
	case commands.StateChanged:
		m.state = e.State
		if e.State == commands.StateIdle {
			m.runID = ""
			m.cancelled = false
			m.progress = ""
		} else {
			m.runID = e.RunID
			m.cancelled = false
			m.progress = ""
		}
	case commands.Info:
		m.add(roleInfo, e.Text)
	case commands.Error:
		m.add(roleError, e.Text)
	case commands.IndexingProgress:
		if e.Total > 0 {
			m.progress = fmt.Sprintf("%s %d/%d", e.Stage, e.Done, e.Total)
		} else {
			m.progress = e.Stage
		}
	case commands.QueryAnswerChunk:
		if n := len(m.transcript); n > 0 && m.transcript[n-1].role == roleAnswer {
			m.transcript[n-1].text += e.Text
		} else {
			m.add(roleAnswer, e.Text)
		}
	case commands.QueryComplete:
		if n := len(m.transcript); n == 0 || m.transcript[n-1].role != roleAnswer {
			m.add(roleAnswer, "(empty answer)")
		}
	}
	m.refresh()
}

func (m *Model) add(r role, text string) {
	m.transcript = append(m.transcript, entry{role: r, text: text})
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the title, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := titleStyle.Render(m.title)
	body := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	return title + "\n" + body + "\n" + input + "\n" + m.status()
}

func (m Model) status() string {
	if m.state == commands.StateIdle {
		return statusStyle.Render("ready · esc cancels · ctrl+c quits")
	}
	s := m.state.String()
	if m.progress != "" {
		s += " · " + m.progress
	}
	return m.spinner.View() + " " + statusStyle.Render(s)
}

func (m Model) renderTranscript() string {
	width := max(20, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for i, e := range m.transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.role {
		case roleUser:
			b.WriteString(userStyle.Render("you") + "\n" + wrap.Render(e.text))
		case roleAnswer:
			b.WriteString(answerStyle.Render("repochat") + "\n" + wrap.Render(e.text))
		case roleInfo:
			b.WriteString(infoStyle.Width(width).Render(e.text))
		case roleError:
			b.WriteString(errorStyle.Width(width).Render("error: " + e.text))
		}
	}
	return b.String()
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	spinnerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	infoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
