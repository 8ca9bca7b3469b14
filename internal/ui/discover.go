package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sensoroic/sensoroic/internal/discovery"
)

// ProgressMsg carries a session progress event into the model.
type ProgressMsg discovery.Progress

// DoneMsg carries the terminal report of a session.
type DoneMsg struct {
	Resources []*discovery.Resource
	Failed    bool
}

type discoverKeyMap struct {
	Cancel key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k discoverKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (k discoverKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Cancel}}
}

// DiscoveryModel shows a running discovery session. Pressing q or ctrl+c
// cancels the session; the program only quits once the session has
// delivered its terminal report.
type DiscoveryModel struct {
	Progress   *Progress
	Spinner    spinner.Model
	Help       help.Model
	Keys       discoverKeyMap
	Label      string
	Host       string
	Count      int
	Cancelling bool
	Done       bool
	Failed     bool
	Resources  []*discovery.Resource
	Width      int

	cancel func()
}

// NewDiscoveryModel creates a model for a session started with opts.
// cancel is called at most once, when the user asks to stop.
func NewDiscoveryModel(opts discovery.Options, cancel func()) DiscoveryModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return DiscoveryModel{
		Progress: NewDiscoveryProgress(opts),
		Spinner:  s,
		Help:     help.New(),
		Keys: discoverKeyMap{
			Cancel: key.NewBinding(
				key.WithKeys("q", "ctrl+c", "esc"),
				key.WithHelp("q", "cancel"),
			),
		},
		Label:  "Starting discovery",
		Width:  GetTerminalWidth(),
		cancel: cancel,
	}
}

// Init starts the spinner
func (m DiscoveryModel) Init() tea.Cmd {
	return m.Spinner.Tick
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.Keys.Cancel) {
			if m.Done {
				return m, tea.Quit
			}
			if !m.Cancelling {
				m.Cancelling = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = clampWidth(msg.Width)
		m.Progress.SetWidth(m.Width)
		return m, nil

	case ProgressMsg:
		ev := discovery.Progress(msg)
		m.Progress.Apply(ev)
		m.Label = ev.Label
		m.Host = ev.Host
		m.Count = ev.Resources
		return m, nil

	case DoneMsg:
		m.Done = true
		m.Failed = msg.Failed
		m.Resources = msg.Resources
		m.Count = len(msg.Resources)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current state
func (m DiscoveryModel) View() string {
	var b strings.Builder

	status := m.Label
	if m.Host != "" {
		status += " " + StepNoteStyle.Render(m.Host)
	}
	switch {
	case m.Done:
		b.WriteString(ProgressLabelStyle.Render(status))
	case m.Cancelling:
		b.WriteString(ProgressLabelStyle.Render(m.Spinner.View() + " Cancelling..."))
	default:
		b.WriteString(ProgressLabelStyle.Render(m.Spinner.View() + " " + status))
	}
	b.WriteString("\n\n")

	b.WriteString(m.Progress.Render())
	b.WriteString("\n\n")
	b.WriteString(ProgressLabelStyle.Render(fmt.Sprintf("Resources found: %d", m.Count)))
	b.WriteString("\n")

	if !m.Done {
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render(m.Help.View(m.Keys)))
		b.WriteString("\n")
	}
	return b.String()
}

// RunInteractive runs a session under the Bubble Tea model, reading keys
// from in and drawing to out. It returns once the session has finished.
func RunInteractive(ctx context.Context, s Starter, opts discovery.Options, in io.Reader, out io.Writer) (*Outcome, error) {
	var session *discovery.Session
	model := NewDiscoveryModel(opts, func() {
		if session != nil {
			session.Cancel()
		}
	})

	progOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(out)}
	if in != nil {
		progOpts = append(progOpts, tea.WithInput(in))
	}
	p := tea.NewProgram(model, progOpts...)

	session, err := s.Start(ctx, opts, discovery.ListenerFuncs{
		Progress:  func(ev discovery.Progress) { p.Send(ProgressMsg(ev)) },
		Completed: func(r []*discovery.Resource) { p.Send(DoneMsg{Resources: r}) },
		Failed:    func() { p.Send(DoneMsg{Failed: true}) },
	})
	if err != nil {
		return nil, err
	}

	_, runErr := p.Run()
	if runErr != nil {
		// The program can also stop when ctx is done; the session
		// follows ctx, so waiting here is bounded.
		session.Cancel()
	}
	outcome := newOutcome(session, session.Wait())
	if runErr != nil && ctx.Err() == nil {
		return outcome, fmt.Errorf("terminal UI failed: %w", runErr)
	}
	return outcome, nil
}
