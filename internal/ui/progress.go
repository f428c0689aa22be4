// Package ui shows live per-host progress while a deploy runs on a terminal.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fleetdeploy/internal/deploy"
	"fleetdeploy/internal/models"
)

// EventMsg carries a deployer event into the program.
type EventMsg deploy.Event

// DoneMsg tells the program the deploy has returned.
type DoneMsg struct {
	Results []models.DeployResult
}

type KeyMap struct {
	Cancel key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Cancel: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "cancel"),
		),
	}
}

type hostState struct {
	name    string
	started bool
	step    deploy.Step
	result  *models.DeployResult
}

// ProgressModel renders one line per host with its current step.
type ProgressModel struct {
	title     string
	hosts     []hostState
	finished  int
	spinner   spinner.Model
	styles    Styles
	keys      KeyMap
	cancel    context.CancelFunc
	canceling bool
	done      bool
	results   []models.DeployResult
}

func NewProgressModel(title string, hosts []string, styles Styles, cancel context.CancelFunc) ProgressModel {
	states := make([]hostState, len(hosts))
	for i, h := range hosts {
		states[i] = hostState{name: h}
	}
	return ProgressModel{
		title:   title,
		hosts:   states,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Step)),
		styles:  styles,
		keys:    DefaultKeyMap(),
		cancel:  cancel,
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Cancel) && !m.canceling {
			m.canceling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case EventMsg:
		if msg.Index < 0 || msg.Index >= len(m.hosts) {
			return m, nil
		}
		h := &m.hosts[msg.Index]
		switch msg.Kind {
		case deploy.HostStarted:
			h.started = true
		case deploy.StepStarted:
			h.started = true
			h.step = msg.Step
		case deploy.HostFinished:
			if h.result == nil {
				m.finished++
			}
			h.result = msg.Result
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.results = msg.Results
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n\n")

	names := make([]string, len(m.hosts))
	for i, h := range m.hosts {
		names[i] = h.name
	}
	width := GetMaxWidth(names)

	for _, h := range m.hosts {
		name := m.styles.Host.Render(h.name + strings.Repeat(" ", width-lipgloss.Width(h.name)))
		b.WriteString(fmt.Sprintf("  %s  %s\n", m.icon(h), name+"  "+m.state(h)))
	}

	b.WriteString("\n")
	footer := fmt.Sprintf("%d/%d finished", m.finished, len(m.hosts))
	switch {
	case m.done:
	case m.canceling:
		footer += " · canceling, waiting for running hosts"
	default:
		footer += " · " + m.keys.Cancel.Help().Key + " to " + m.keys.Cancel.Help().Desc
	}
	b.WriteString(m.styles.Description.Render(footer))
	b.WriteString("\n")
	return b.String()
}

func (m ProgressModel) icon(h hostState) string {
	switch {
	case h.result != nil && h.result.Succeeded():
		return m.styles.Success.Render("✓")
	case h.result != nil:
		return m.styles.Error.Render("✗")
	case h.started:
		return m.spinner.View()
	default:
		return m.styles.Description.Render("·")
	}
}

func (m ProgressModel) state(h hostState) string {
	switch {
	case h.result != nil && h.result.Succeeded():
		return m.styles.Success.Render("deployed")
	case h.result != nil:
		return m.styles.Error.Render(h.result.Err.Kind.String() + " failed")
	case h.started:
		return m.styles.Step.Render(h.step.String() + "…")
	default:
		return m.styles.Description.Render("waiting")
	}
}

// Results returns what DoneMsg delivered.
func (m ProgressModel) Results() []models.DeployResult {
	return m.results
}

// RunProgress runs deployFn while showing live progress on out. deployFn
// receives the observer it must pass to the deployer. cancel is called when
// the user asks to stop.
func RunProgress(out io.Writer, title string, hosts []string, theme Theme, cancel context.CancelFunc,
	deployFn func(deploy.Observer) []models.DeployResult) ([]models.DeployResult, error) {

	styles := NewStyles(lipgloss.NewRenderer(out), theme)
	p := tea.NewProgram(NewProgressModel(title, hosts, styles, cancel), tea.WithOutput(out))

	results := make(chan []models.DeployResult, 1)
	go func() {
		res := deployFn(func(e deploy.Event) { p.Send(EventMsg(e)) })
		results <- res
		p.Send(DoneMsg{Results: res})
	}()

	if _, err := p.Run(); err != nil {
		// The deploy keeps going without a display.
		return <-results, fmt.Errorf("progress display: %w", err)
	}
	return <-results, nil
}
