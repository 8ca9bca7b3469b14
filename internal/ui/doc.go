// Package ui provides terminal output for the sensoroic CLI.
//
// It uses Bubble Tea and Lipgloss to render discovery sessions. On a
// terminal, DiscoveryModel shows a spinner, the discovery steps and a live
// resource count; pressing q cancels the session and the view stays up
// until the session reports back. Elsewhere, PlainReporter prints one line
// per finished step.
//
// # Architecture
//
//   - Header: command banner showing the options in effect
//   - Progress: step list for the scan, short-range and multicast phases
//   - Result: success/failure/warning boxes
//   - RenderResources: tables of sensors, smart devices and other resources
//
// Runner ties these together into the header → progress → result flow:
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:       "Resource Discovery",
//	    Command:     "sensoroic discover",
//	    Params:      map[string]string{"Scan": "10s"},
//	    Interactive: ui.IsTerminal(),
//	})
//	outcome, err := runner.Run(ctx, coordinator, opts)
//
// # Logging Integration
//
// zap output is controlled by SENSOROIC_LOG_LEVEL and goes to stderr, so it
// does not interleave with the rendered output on stdout.
package ui
