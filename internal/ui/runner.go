package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sensoroic/sensoroic/internal/discovery"
)

// Starter launches discovery sessions. *discovery.Coordinator implements it.
type Starter interface {
	Start(ctx context.Context, opts discovery.Options, l discovery.Listener) (*discovery.Session, error)
}

// Outcome summarises a finished session.
type Outcome struct {
	Session   string                `json:"session"`
	Resources []*discovery.Resource `json:"resources"`
	Hosts     []string              `json:"scanned_hosts,omitempty"` // short-range hosts queried
	Cancelled bool                  `json:"cancelled"`
	Elapsed   time.Duration         `json:"elapsed"`
}

func newOutcome(s *discovery.Session, resources []*discovery.Resource) *Outcome {
	return &Outcome{
		Session:   s.ID,
		Resources: resources,
		Hosts:     s.ScannedHosts(),
		Cancelled: s.Phase() == discovery.PhaseCancelled,
		Elapsed:   s.Elapsed(),
	}
}

// RunnerConfig holds configuration for a discovery command
type RunnerConfig struct {
	Title       string            // e.g., "Resource Discovery"
	Command     string            // e.g., "sensoroic discover"
	Params      map[string]string // Parameters to display in header
	Interactive bool              // Use the Bubble Tea view
	Input       io.Reader         // Key input for the interactive view (default: os.Stdin)
	Output      io.Writer         // Output writer (default: os.Stdout)
}

// Runner orchestrates the header, progress and result output of a
// discovery command.
type Runner struct {
	config RunnerConfig
	header *Header
	output io.Writer
	width  int
}

// NewRunner creates a new runner
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Input == nil {
		config.Input = os.Stdin
	}

	width := GetTerminalWidth()
	return &Runner{
		config: config,
		header: NewHeader(config.Title, config.Command, config.Params).SetWidth(width),
		output: config.Output,
		width:  width,
	}
}

// Run starts a session, shows its progress and prints the result.
func (r *Runner) Run(ctx context.Context, s Starter, opts discovery.Options) (*Outcome, error) {
	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	var (
		outcome *Outcome
		err     error
	)
	if r.config.Interactive {
		outcome, err = RunInteractive(ctx, s, opts, r.config.Input, r.output)
	} else {
		outcome, err = RunPlain(ctx, s, opts, r.output)
	}
	if err != nil && outcome == nil {
		r.printFailure(err)
		return nil, err
	}

	_, _ = fmt.Fprintln(r.output)
	r.PrintOutcome(outcome)
	return outcome, err
}

// PrintOutcome prints the result box followed by the resource tables.
func (r *Runner) PrintOutcome(o *Outcome) {
	details := map[string]string{
		"Resources": strconv.Itoa(len(o.Resources)),
		"Hosts":     strconv.Itoa(countHosts(o.Resources)),
		"Duration":  o.Elapsed.Round(time.Millisecond).String(),
		"Session":   o.Session,
	}
	var result *Result
	switch {
	case o.Cancelled:
		result = NewWarningResult(r.config.Title+" cancelled", details)
	case len(o.Resources) == 0:
		result = NewFailureResult(r.config.Title+" found nothing", nil, []string{
			"Check the Bluetooth adapter is powered: bluetoothctl show",
			"Make sure the host is on the same network segment as the devices",
			"Increase --scan, --per-host or --multicast for slow devices",
			"Run with --log-level debug to see every CoAP frame",
		})
		result.Details = details
	default:
		result = NewSuccessResult(r.config.Title+" complete", details)
	}
	if len(o.Hosts) > 0 {
		result.AddDetail("Scanned", strconv.Itoa(len(o.Hosts)))
	}
	_, _ = fmt.Fprintln(r.output, result.SetWidth(r.width).Render())

	if len(o.Resources) > 0 {
		_, _ = fmt.Fprintln(r.output)
		_, _ = fmt.Fprintln(r.output, RenderResources(o.Resources))
	}
}

func (r *Runner) printFailure(err error) {
	result := NewFailureResult(r.config.Title+" failed", err, []string{
		"Check the options with: sensoroic config show",
		"Run with --log-level debug for details",
	})
	_, _ = fmt.Fprintln(r.output, result.SetWidth(r.width).Render())
}

func countHosts(resources []*discovery.Resource) int {
	hosts := make(map[string]struct{})
	for _, res := range resources {
		hosts[res.Host] = struct{}{}
	}
	return len(hosts)
}
