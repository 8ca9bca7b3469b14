package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sensoroic/sensoroic/internal/catalog"
	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/oic"
)

func statuses(p *Progress) []StepStatus {
	out := make([]StepStatus, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Status
	}
	return out
}

func equalStatuses(a, b []StepStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewDiscoveryProgress(t *testing.T) {
	whitelist := discovery.DefaultOptions()
	whitelist.Whitelist = []string{"AA:BB:CC:DD:EE:FF"}

	noBLE := discovery.DefaultOptions()
	noBLE.EnableShortRange = false

	noIP := discovery.DefaultOptions()
	noIP.EnableMulticast = false

	tests := []struct {
		name string
		opts discovery.Options
		want []StepStatus
	}{
		{"defaults", discovery.DefaultOptions(), []StepStatus{StepPending, StepPending, StepPending}},
		{"whitelist skips scan", whitelist, []StepStatus{StepSkipped, StepPending, StepPending}},
		{"short range disabled", noBLE, []StepStatus{StepSkipped, StepSkipped, StepPending}},
		{"multicast disabled", noIP, []StepStatus{StepPending, StepPending, StepSkipped}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewDiscoveryProgress(tt.opts)
			if got := statuses(p); !equalStatuses(got, tt.want) {
				t.Errorf("statuses = %v, want %v", got, tt.want)
			}
		})
	}

	p := NewDiscoveryProgress(whitelist)
	if p.Steps[StepShortRange-1].Name != discovery.LabelShortRangeWhitelist {
		t.Errorf("short-range step = %q, want whitelist label", p.Steps[StepShortRange-1].Name)
	}
}

func TestProgressApplyFullSession(t *testing.T) {
	p := NewDiscoveryProgress(discovery.DefaultOptions())

	p.Apply(discovery.Progress{Phase: discovery.PhaseScanning})
	if p.Current != StepScan || p.Steps[0].Status != StepRunning {
		t.Fatalf("after scanning: current = %d, steps = %v", p.Current, statuses(p))
	}

	finished := p.Apply(discovery.Progress{Phase: discovery.PhaseShortRangeDiscovery, Label: discovery.LabelShortRange, Host: "AA:BB:CC:DD:EE:FF"})
	if len(finished) != 1 || finished[0].Number != StepScan || finished[0].Status != StepComplete {
		t.Errorf("finished = %+v, want scan complete", finished)
	}
	if p.Steps[1].Message != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("short-range message = %q", p.Steps[1].Message)
	}

	p.Apply(discovery.Progress{Phase: discovery.PhaseMulticastDiscovery})
	p.Apply(discovery.Progress{Phase: discovery.PhaseDone})

	want := []StepStatus{StepComplete, StepComplete, StepComplete}
	if got := statuses(p); !equalStatuses(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if p.Percent != 1 {
		t.Errorf("Percent = %v, want 1", p.Percent)
	}
}

func TestProgressApplyUnavailableAdapter(t *testing.T) {
	p := NewDiscoveryProgress(discovery.DefaultOptions())

	// A whitelist session with no adapter goes straight to multicast.
	p.Apply(discovery.Progress{Phase: discovery.PhaseMulticastDiscovery})
	want := []StepStatus{StepSkipped, StepSkipped, StepRunning}
	if got := statuses(p); !equalStatuses(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func TestProgressApplyCancelled(t *testing.T) {
	p := NewDiscoveryProgress(discovery.DefaultOptions())
	p.Apply(discovery.Progress{Phase: discovery.PhaseScanning})
	finished := p.Apply(discovery.Progress{Phase: discovery.PhaseCancelled})

	want := []StepStatus{StepFailed, StepSkipped, StepSkipped}
	if got := statuses(p); !equalStatuses(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if len(finished) != 3 {
		t.Errorf("finished %d steps, want 3", len(finished))
	}
	if p.Steps[0].Message != "cancelled" {
		t.Errorf("message = %q, want cancelled", p.Steps[0].Message)
	}
}

func TestRenderStepMarkers(t *testing.T) {
	p := NewProgress("", 2)
	p.SetStepNames([]string{"first", "second"})
	p.CompleteStep(1, "3 hosts")
	p.UpdateStep(2, StepSkipped, "")

	out := p.Render()
	for _, want := range []string{"[1/2] first", StepMarkerComplete, "(3 hosts)", "[2/2] second", StepMarkerSkipped} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
}

func keyMsg(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDiscoveryModelCancelWaitsForReport(t *testing.T) {
	cancels := 0
	m := NewDiscoveryModel(discovery.DefaultOptions(), func() { cancels++ })

	next, cmd := m.Update(keyMsg("q"))
	m = next.(DiscoveryModel)
	if cmd != nil {
		t.Error("cancel key returned a command, want none until the session reports")
	}
	if !m.Cancelling || cancels != 1 {
		t.Errorf("Cancelling = %v, cancels = %d", m.Cancelling, cancels)
	}

	next, _ = m.Update(keyMsg("ctrl+c"))
	m = next.(DiscoveryModel)
	if cancels != 1 {
		t.Errorf("cancel called %d times, want 1", cancels)
	}
	if !strings.Contains(m.View(), "Cancelling") {
		t.Errorf("View() = %q, want cancelling notice", m.View())
	}

	next, cmd = m.Update(DoneMsg{Failed: true})
	m = next.(DiscoveryModel)
	if !m.Done || !m.Failed {
		t.Errorf("Done = %v, Failed = %v", m.Done, m.Failed)
	}
	if cmd == nil {
		t.Fatal("DoneMsg returned no command, want tea.Quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("command = %T, want tea.QuitMsg", cmd())
	}
}

func TestDiscoveryModelProgress(t *testing.T) {
	m := NewDiscoveryModel(discovery.DefaultOptions(), nil)

	next, _ := m.Update(ProgressMsg{
		Phase:     discovery.PhaseShortRangeDiscovery,
		Label:     discovery.LabelShortRange,
		Host:      "C0:FA:AC:CF:FA:0A",
		Resources: 4,
	})
	m = next.(DiscoveryModel)

	if m.Count != 4 || m.Host != "C0:FA:AC:CF:FA:0A" {
		t.Errorf("Count = %d, Host = %q", m.Count, m.Host)
	}
	view := m.View()
	for _, want := range []string{discovery.LabelShortRange, "C0:FA:AC:CF:FA:0A", "Resources found: 4", "cancel"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}

	next, _ = m.Update(tea.WindowSizeMsg{Width: 500, Height: 40})
	if w := next.(DiscoveryModel).Width; w != MaxContentWidth {
		t.Errorf("Width = %d, want %d", w, MaxContentWidth)
	}
}

func testResources() []*discovery.Resource {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []*discovery.Resource{
		{Host: "coap://192.168.1.20:5683", Path: "/light/1", ResourceTypes: []string{oic.RTBinarySwitch}, Connectivity: discovery.ConnIP, Observable: true, DiscoveredAt: at},
		{Host: "coap+gatt://C0:FA:AC:CF:FA:0A", Path: "/bme280_0/ambtmp", ResourceTypes: []string{oic.RTAmbientTemperature}, Connectivity: discovery.ConnGATT, DiscoveredAt: at},
		{Host: "coap+gatt://C0:FA:AC:CF:FA:0A", Path: "/bme280_0/rhmty", ResourceTypes: []string{oic.RTRelativeHumidity}, Connectivity: discovery.ConnGATT, DiscoveredAt: at},
		{Host: "coap://192.168.1.20:5683", Path: "/oic/d", ResourceTypes: []string{"oic.wk.d"}, Connectivity: discovery.ConnIP, DiscoveredAt: at},
	}
}

func TestGroupResources(t *testing.T) {
	groups := GroupResources(append(testResources(), nil))
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}

	wantTitles := []string{"Sensors", "Smart devices", "Other resources"}
	wantLens := []int{2, 1, 1}
	for i, g := range groups {
		if g.Title != wantTitles[i] || len(g.Resources) != wantLens[i] {
			t.Errorf("group %d = %q with %d, want %q with %d", i, g.Title, len(g.Resources), wantTitles[i], wantLens[i])
		}
	}
	if groups[0].Resources[0].Path != "/bme280_0/ambtmp" {
		t.Errorf("sensors not ordered by path: first = %s", groups[0].Resources[0].Path)
	}

	if got := GroupResources(nil); len(got) != 0 {
		t.Errorf("GroupResources(nil) = %v, want empty", got)
	}
}

func TestGroupTableAcrossSessions(t *testing.T) {
	table, err := catalog.New(catalog.DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	all := testResources()
	table.Merge(all[:2])
	table.Merge(all[1:])

	groups := GroupTable(table)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if n := len(groups[0].Resources); n != 2 {
		t.Errorf("sensors = %d, want 2 (one seen twice)", n)
	}
	if groups[1].Resources[0].Path != "/light/1" || groups[2].Resources[0].Path != "/oic/d" {
		t.Errorf("unexpected grouping: %s, %s", groups[1].Resources[0].Path, groups[2].Resources[0].Path)
	}
}

func TestRenderRepresentation(t *testing.T) {
	rep := oic.Representation{"rt": oic.RTTemperature, "temp": 21.5, "ts_secs": uint64(1700)}
	out := RenderRepresentation(rep)
	for _, want := range []string{"KEY", "temp", "21.5", "ts_secs", "1700"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderRepresentation() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, oic.RTTemperature) {
		t.Errorf("RenderRepresentation() shows the resource type:\n%s", out)
	}
	if out := RenderRepresentation(oic.Representation{}); !strings.Contains(out, "No values") {
		t.Errorf("RenderRepresentation(empty) = %q", out)
	}

	line := FormatReading(time.Date(2024, 5, 1, 12, 3, 4, 0, time.UTC), oic.Representation{"value": true})
	if !strings.Contains(line, "12:03:04") || !strings.Contains(line, "value=true") {
		t.Errorf("FormatReading() = %q", line)
	}
}

func TestRenderResources(t *testing.T) {
	out := RenderResources(testResources())
	for _, want := range []string{
		"Sensors (2)",
		"Ambient Temperature Sensor",
		"Relative Humidity Sensor",
		"Smart devices (1)",
		"/light/1 *",
		"Other resources (1)",
		"gatt",
		"NAME",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderResources() missing %q:\n%s", want, out)
		}
	}

	if out := RenderResources(nil); !strings.Contains(out, "No resources found") {
		t.Errorf("RenderResources(nil) = %q", out)
	}
}

func TestResultRendersDetailsInOrder(t *testing.T) {
	r := NewSuccessResult("Discovery complete", map[string]string{"Resources": "3", "Duration": "2s"}).SetWidth(80)
	out := r.Render()
	if d, res := strings.Index(out, "Duration"), strings.Index(out, "Resources"); d < 0 || res < 0 || d > res {
		t.Errorf("details out of order:\n%s", out)
	}

	fail := NewFailureResult("Discovery failed", errors.New("no adapter"), []string{"power on"}).Render()
	for _, want := range []string{"FAILED", "Error: no adapter", "Troubleshooting:", "power on"} {
		if !strings.Contains(fail, want) {
			t.Errorf("failure box missing %q", want)
		}
	}
}

func TestHeaderRender(t *testing.T) {
	out := NewHeader("Resource Discovery", "sensoroic discover", map[string]string{"Scan": "10s", "Adapter": "hci0"}).SetWidth(80).Render()
	if !strings.Contains(out, "RESOURCE DISCOVERY") || !strings.Contains(out, "sensoroic discover") {
		t.Errorf("header missing title or command:\n%s", out)
	}
	if a, s := strings.Index(out, "Adapter:"), strings.Index(out, "Scan:"); a < 0 || s < 0 || a > s {
		t.Errorf("params out of order:\n%s", out)
	}
	if !strings.Contains(out, "─") {
		t.Errorf("header missing divider:\n%s", out)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := ConfirmOverwrite(strings.NewReader(tt.input), &out, "/tmp/config.yaml"); got != tt.want {
			t.Errorf("ConfirmOverwrite(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "/tmp/config.yaml already exists") {
			t.Errorf("prompt missing path: %s", out.String())
		}
	}
}

// stubTransport answers every query at once with its resources.
type stubTransport struct {
	resources []*discovery.Resource
}

func (s *stubTransport) FindResource(_ context.Context, _, _ string, _ discovery.ConnectivityType, onFound func(*discovery.Resource)) error {
	for _, r := range s.resources {
		onFound(r)
	}
	return nil
}

func multicastOnly() discovery.Options {
	opts := discovery.DefaultOptions()
	opts.EnableShortRange = false
	opts.MulticastTimeout = 50 * time.Millisecond
	return opts
}

func TestRunPlain(t *testing.T) {
	coord := discovery.NewCoordinator(&stubTransport{resources: testResources()[:1]})

	var out bytes.Buffer
	outcome, err := RunPlain(context.Background(), coord, multicastOnly(), &out)
	if err != nil {
		t.Fatalf("RunPlain() error = %v", err)
	}
	if len(outcome.Resources) != 1 || outcome.Cancelled {
		t.Errorf("outcome = %+v", outcome)
	}
	if outcome.Session == "" {
		t.Error("outcome has no session ID")
	}
	for _, want := range []string{discovery.LabelMulticast, "1 resources found"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunnerPrintsOutcome(t *testing.T) {
	var out bytes.Buffer
	runner := NewRunner(RunnerConfig{
		Title:   "Resource Discovery",
		Command: "sensoroic discover",
		Output:  &out,
	})

	coord := discovery.NewCoordinator(&stubTransport{})
	outcome, err := runner.Run(context.Background(), coord, multicastOnly())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outcome.Resources) != 0 {
		t.Errorf("got %d resources, want 0", len(outcome.Resources))
	}
	for _, want := range []string{"RESOURCE DISCOVERY", "found nothing", "Troubleshooting:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	runner.PrintOutcome(&Outcome{Session: "s-1", Resources: testResources(), Elapsed: time.Second})
	for _, want := range []string{"SUCCESS", "Sensors (2)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	runner.PrintOutcome(&Outcome{Session: "s-2", Cancelled: true})
	if !strings.Contains(out.String(), "cancelled") {
		t.Errorf("output missing cancelled:\n%s", out.String())
	}
}

func TestRunnerInvalidOptions(t *testing.T) {
	var out bytes.Buffer
	runner := NewRunner(RunnerConfig{Title: "Resource Discovery", Output: &out})

	opts := multicastOnly()
	opts.MulticastTimeout = 0
	_, err := runner.Run(context.Background(), discovery.NewCoordinator(&stubTransport{}), opts)
	if !errors.Is(err, discovery.ErrInvalidOptions) {
		t.Fatalf("Run() error = %v, want ErrInvalidOptions", err)
	}
	if !strings.Contains(out.String(), "failed") {
		t.Errorf("output missing failure box:\n%s", out.String())
	}
}

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out).SetWidth(10)
	if p.width != MinTerminalWidth {
		t.Errorf("width = %d, want %d", p.width, MinTerminalWidth)
	}

	p.PrintWarning("Configuration left unchanged", map[string]string{"Path": "/tmp/config.yaml"})
	p.PrintError("Server failed to start", errors.New("address in use"), []string{"Pick another --port"})
	for _, want := range []string{"WARNING", "/tmp/config.yaml", "FAILED", "address in use", "Pick another --port"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := p.PrintJSON(map[string]int{"resources": 2}); err != nil {
		t.Fatalf("PrintJSON() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "{\n  \"resources\": 2\n}" {
		t.Errorf("PrintJSON() = %q", got)
	}
}
