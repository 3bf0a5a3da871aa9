package tui

import (
	"fmt"
	"strings"
)

const barWidth = 30

// render draws the whole dashboard.
func (m Model) render() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("go-stan-swarm"))
	b.WriteString("  ")
	b.WriteString(mutedStyle.Render(m.runName))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s  %s  %s\n\n",
		baseStyle.Render(m.modelName),
		dimStyle.Render("elapsed"),
		baseStyle.Render(formatDuration(m.Elapsed())),
	)

	if len(m.snapshots) == 0 {
		b.WriteString(mutedStyle.Render("waiting for chains to start..."))
		b.WriteString("\n")
	}

	for _, s := range m.snapshots {
		b.WriteString(m.renderChainRow(s))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.metricsAddr != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("metrics http://%s/metrics", m.metricsAddr)))
		b.WriteString("  ")
	}
	b.WriteString(dimStyle.Render("q to quit"))
	b.WriteString("\n")

	return b.String()
}

// renderChainRow draws one chain's line: id, progress bar, iteration
// counts, phase, state.
func (m Model) renderChainRow(s ChainSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "  chain %-3d ", s.ID)
	b.WriteString(renderBar(s.Fraction(), barWidth))

	if s.Total > 0 {
		fmt.Fprintf(&b, " %5d/%-5d", s.Iteration, s.Total)
	} else {
		b.WriteString("            ")
	}

	if s.Phase != "" {
		fmt.Fprintf(&b, " %-9s", s.Phase)
	} else {
		b.WriteString("          ")
	}

	b.WriteString(" ")
	b.WriteString(stateStyle(s.State).Render(s.State))

	return b.String()
}

// renderBar draws a fixed-width progress bar.
func renderBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(subtitleStyle.Render(strings.Repeat("█", filled)))
	b.WriteString(dimStyle.Render(strings.Repeat("░", width-filled)))
	b.WriteString("]")
	return b.String()
}
