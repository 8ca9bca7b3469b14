package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/sensoroic/sensoroic/internal/catalog"
	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/oic"
)

// ResourceGroup is a titled subset of discovered resources.
type ResourceGroup struct {
	Title     string
	Resources []*discovery.Resource
}

// GroupResources groups the resources of one session. See GroupTable.
func GroupResources(resources []*discovery.Resource) []ResourceGroup {
	table, err := catalog.New(len(resources))
	if err != nil {
		return nil
	}
	table.Merge(resources)
	return GroupTable(table)
}

// GroupTable splits a resource table into sensors, smart devices and the
// rest, each ordered by host and path. Empty groups are left out.
func GroupTable(table *catalog.Table) []ResourceGroup {
	groups := []ResourceGroup{
		{Title: "Sensors", Resources: table.Sensors()},
		{Title: "Smart devices", Resources: table.SmartDevices()},
		{Title: "Other resources", Resources: table.Others()},
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g.Resources) > 0 {
			out = append(out, g)
		}
	}
	return out
}

var resourceColumns = []string{"NAME", "HOST", "PATH", "TYPES", "VIA"}

func resourceRow(r *discovery.Resource) []string {
	name := oic.ReadableName(r.Path, r.ResourceTypes)
	if r.Observable {
		name += " *"
	}
	return []string{
		name,
		r.Host,
		r.Path,
		strings.Join(r.ResourceTypes, ","),
		r.Connectivity.String(),
	}
}

// RenderResources renders the grouped resource tables. Observable
// resources are marked with "*".
func RenderResources(resources []*discovery.Resource) string {
	groups := GroupResources(resources)
	if len(groups) == 0 {
		return StepPendingStyle.Render("  No resources found")
	}

	sections := make([]string, 0, len(groups))
	for _, g := range groups {
		rows := make([][]string, 0, len(g.Resources))
		for _, r := range g.Resources {
			rows = append(rows, resourceRow(r))
		}
		title := SectionTitleStyle.Render(fmt.Sprintf("%s (%d)", g.Title, len(g.Resources)))
		sections = append(sections, title+"\n"+renderTable(resourceColumns, rows))
	}
	return strings.Join(sections, "\n\n")
}

// RenderRepresentation renders the values of a resource, one per row.
func RenderRepresentation(rep oic.Representation) string {
	keys := rep.Keys()
	if len(keys) == 0 {
		return StepPendingStyle.Render("  No values")
	}
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, fmt.Sprint(rep[k])})
	}
	return renderTable([]string{"KEY", "VALUE"}, rows)
}

// FormatReading renders one observed value on a single line.
func FormatReading(at time.Time, rep oic.Representation) string {
	keys := rep.Keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, rep[k]))
	}
	return StepNoteStyle.Render(at.Format("15:04:05")) + "  " + strings.Join(parts, " ")
}

// renderTable lays out rows in left-aligned columns indented by two spaces.
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len([]rune(h))
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	format := func(cells []string) string {
		padded := make([]string, len(cells))
		for i, c := range cells {
			padded[i] = c + strings.Repeat(" ", widths[i]-len([]rune(c)))
		}
		return strings.TrimRight(strings.Join(padded, "  "), " ")
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, "  "+TableHeaderStyle.Render(format(header)))
	for _, row := range rows {
		lines = append(lines, "  "+TableCellStyle.Render(format(row)))
	}
	return strings.Join(lines, "\n")
}
