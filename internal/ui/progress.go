package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/sensoroic/sensoroic/internal/discovery"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepComplete
	StepFailed
	StepSkipped
)

// Step is a single step in a multi-step operation
type Step struct {
	Number  int // 1-based
	Name    string
	Status  StepStatus
	Message string // Optional note, e.g. "C0:FA:AC:CF:FA:0A" or "disabled"
}

// Discovery step numbers, one per session phase that does work.
const (
	StepScan       = 1
	StepShortRange = 2
	StepMulticast  = 3
)

// Progress is a progress bar with a step list.
type Progress struct {
	Label     string
	Steps     []Step
	Current   int     // Current step (1-based)
	Total     int     // Total steps
	Percent   float64 // 0.0 - 1.0
	Width     int
	ShowBar   bool
	ShowSteps bool
	bar       progress.Model
}

// NewProgress creates a progress display with totalSteps pending steps.
func NewProgress(label string, totalSteps int) *Progress {
	steps := make([]Step, totalSteps)
	for i := range steps {
		steps[i] = Step{Number: i + 1, Status: StepPending}
	}

	return &Progress{
		Label:     label,
		Steps:     steps,
		Total:     totalSteps,
		Width:     GetTerminalWidth(),
		ShowBar:   true,
		ShowSteps: true,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// NewDiscoveryProgress creates the three discovery steps for opts. Steps the
// options turn off start out skipped.
func NewDiscoveryProgress(opts discovery.Options) *Progress {
	p := NewProgress("", 3)
	p.SetStepNames([]string{discovery.LabelScanning, discovery.LabelShortRange, discovery.LabelMulticast})

	switch {
	case !opts.EnableShortRange:
		p.UpdateStep(StepScan, StepSkipped, "disabled")
		p.UpdateStep(StepShortRange, StepSkipped, "disabled")
	case opts.HasWhitelist():
		p.UpdateStep(StepScan, StepSkipped, "whitelist")
		p.Steps[StepShortRange-1].Name = discovery.LabelShortRangeWhitelist
	}
	if !opts.EnableMulticast {
		p.UpdateStep(StepMulticast, StepSkipped, "disabled")
	}
	return p
}

// SetWidth sets the terminal width for responsive rendering
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = width
	barWidth := width - 20 // room for percentage and step count
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	p.bar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth))
	return p
}

// SetStepNames sets the names for all steps
func (p *Progress) SetStepNames(names []string) *Progress {
	for i, name := range names {
		if i < len(p.Steps) {
			p.Steps[i].Name = name
		}
	}
	return p
}

// UpdateStep updates a specific step's status and optional message
func (p *Progress) UpdateStep(stepNumber int, status StepStatus, message string) {
	if stepNumber < 1 || stepNumber > len(p.Steps) {
		return
	}
	idx := stepNumber - 1
	p.Steps[idx].Status = status
	p.Steps[idx].Message = message

	if status == StepRunning {
		p.Current = stepNumber
		return
	}

	finished := 0
	for _, s := range p.Steps {
		if s.Status == StepComplete || s.Status == StepSkipped {
			finished++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(finished) / float64(p.Total)
	}
}

// CompleteStep marks a step as complete
func (p *Progress) CompleteStep(stepNumber int, message string) {
	p.UpdateStep(stepNumber, StepComplete, message)
}

// FailStep marks a step as failed
func (p *Progress) FailStep(stepNumber int, message string) {
	p.UpdateStep(stepNumber, StepFailed, message)
}

// StartStep marks a step as running
func (p *Progress) StartStep(stepNumber int, message string) {
	p.UpdateStep(stepNumber, StepRunning, message)
}

// Apply moves the discovery steps to match a session progress event. It
// returns the steps that finished because of it, in order.
func (p *Progress) Apply(ev discovery.Progress) []Step {
	var finished []Step
	// completeRunning closes every running step before the given one.
	completeRunning := func(before int) {
		for i := range p.Steps {
			if p.Steps[i].Number >= before {
				break
			}
			if p.Steps[i].Status == StepRunning {
				p.CompleteStep(p.Steps[i].Number, "")
				finished = append(finished, p.Steps[i])
			}
		}
	}
	// skipPending marks steps that never started.
	skipPending := func(message string) {
		for i := range p.Steps {
			if p.Steps[i].Status == StepPending {
				p.UpdateStep(p.Steps[i].Number, StepSkipped, message)
				finished = append(finished, p.Steps[i])
			}
		}
	}

	switch ev.Phase {
	case discovery.PhaseScanning:
		p.StartStep(StepScan, "")
	case discovery.PhaseShortRangeDiscovery:
		completeRunning(StepShortRange)
		if ev.Label != "" {
			p.Steps[StepShortRange-1].Name = ev.Label
		}
		p.StartStep(StepShortRange, ev.Host)
	case discovery.PhaseMulticastDiscovery:
		completeRunning(StepMulticast)
		// Short-range work the session never reached was skipped.
		for _, n := range []int{StepScan, StepShortRange} {
			if p.Steps[n-1].Status == StepPending {
				p.UpdateStep(n, StepSkipped, "unavailable")
				finished = append(finished, p.Steps[n-1])
			}
		}
		p.StartStep(StepMulticast, "")
	case discovery.PhaseDone:
		completeRunning(len(p.Steps) + 1)
		skipPending("unavailable")
	case discovery.PhaseCancelled:
		for i := range p.Steps {
			if p.Steps[i].Status == StepRunning {
				p.FailStep(p.Steps[i].Number, "cancelled")
				finished = append(finished, p.Steps[i])
			}
		}
		skipPending("cancelled")
	}
	return finished
}

// Render returns the styled progress display as a string
func (p *Progress) Render() string {
	var b strings.Builder

	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}

	if p.ShowBar {
		b.WriteString(p.renderProgressBar())
		b.WriteString("\n\n")
	}

	if p.ShowSteps {
		b.WriteString(p.renderStepList())
	}

	return b.String()
}

func (p *Progress) renderProgressBar() string {
	barView := p.bar.ViewAs(p.Percent)
	percentStr := fmt.Sprintf("%3.0f%%", p.Percent*100)
	stepStr := fmt.Sprintf("[%d/%d]", p.Current, p.Total)

	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %s  %s", barView, percentStr, stepStr))
}

func (p *Progress) renderStepList() string {
	lines := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		lines = append(lines, p.RenderStep(step))
	}
	return strings.Join(lines, "\n")
}

// RenderStep renders a single step line, e.g. "  [2/3] Discovering ...  ●".
func (p *Progress) RenderStep(step Step) string {
	var (
		marker string
		style  lipgloss.Style
	)
	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = StepMarkerSkipped, StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  [%d/%d] ", step.Number, p.Total))
	b.WriteString(style.Render(step.Name))

	// Align markers on one column
	padding := 45 - lipgloss.Width(step.Name)
	if padding < 1 {
		padding = 1
	}
	b.WriteString(strings.Repeat(" ", padding))
	b.WriteString(style.Render(marker))

	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}

	return b.String()
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}
