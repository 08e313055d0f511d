package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/opcoord/internal/event"
	"github.com/Iron-Ham/opcoord/internal/operation"
)

// eventMsg carries a bus event into the program.
type eventMsg struct{ event event.Event }

// doneMsg reports that the workload returned.
type doneMsg struct{ err error }

// row is one operation line in the status view.
type row struct {
	id        string
	name      string
	state     operation.State
	failed    bool
	errors    []string
	waitingOn string
}

// Model is the status view. It is driven entirely by coordination events.
type Model struct {
	title   string
	spinner spinner.Model

	rows  []*row
	index map[string]*row

	indicatorVisible bool
	background       bool
	grants           int
	expired          int

	done bool
	err  error
}

// NewModel creates an empty status view.
func NewModel(title string) Model {
	return Model{
		title: title,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(spinnerStyle),
		),
		index: make(map[string]*row),
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(msg.event)
		return m, nil

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(ev event.Event) {
	switch e := ev.(type) {
	case event.OperationSubmittedEvent:
		r := &row{id: e.OperationID, name: e.Name, state: operation.StatePending}
		m.rows = append(m.rows, r)
		m.index[e.OperationID] = r

	case event.ExclusionQueuedEvent:
		if r := m.index[e.OperationID]; r != nil {
			if waiting := m.index[e.WaitingOn]; waiting != nil {
				r.waitingOn = waiting.name
			} else {
				r.waitingOn = e.WaitingOn
			}
		}

	case event.OperationStartedEvent:
		if r := m.index[e.OperationID]; r != nil {
			r.state = operation.StateExecuting
			r.waitingOn = ""
		}

	case event.OperationFinishedEvent:
		if r := m.index[e.OperationID]; r != nil {
			r.state = operation.StateFinished
			if e.Cancelled {
				r.state = operation.StateCancelled
			}
			r.failed = !e.Succeeded()
			r.errors = e.Errors
			r.waitingOn = ""
		}

	case event.IndicatorEvent:
		m.indicatorVisible = e.Visible()

	case event.EnvironmentChangedEvent:
		m.background = e.Background

	case event.GrantBegunEvent:
		m.grants++

	case event.GrantEndedEvent:
		m.grants--
		if e.Reason == event.GrantEndExpired {
			m.expired++
		}
	}
}

// View renders the status view.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	if m.indicatorVisible {
		b.WriteString(m.spinner.View() + " activity\n")
	} else {
		b.WriteString(mutedStyle.Render("  idle") + "\n")
	}

	env := "foreground"
	if m.background {
		env = warningStyle.Render("background")
	}
	fmt.Fprintf(&b, "  environment: %s  grants: %d", env, m.grants)
	if m.expired > 0 {
		b.WriteString(errorStyle.Render(fmt.Sprintf("  expired: %d", m.expired)))
	}
	b.WriteString("\n\n")

	for _, r := range m.rows {
		b.WriteString(m.renderRow(r))
		b.WriteString("\n")
	}

	switch {
	case m.done && m.err != nil:
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	case m.done:
		b.WriteString(helpStyle.Render("done") + "\n")
	default:
		b.WriteString(helpStyle.Render("q: quit") + "\n")
	}
	return b.String()
}

func (m Model) renderRow(r *row) string {
	state := r.state.String()
	style := stateStyle(r.state)
	if r.failed && r.state == operation.StateFinished {
		state = "failed"
		style = errorStyle
	}

	line := "  " + nameStyle.Render(r.name) + style.Render(state)
	if r.waitingOn != "" {
		line += mutedStyle.Render("  waiting on " + r.waitingOn)
	}
	if len(r.errors) > 0 {
		line += errorStyle.Render("  " + strings.Join(r.errors, "; "))
	}
	return line
}
